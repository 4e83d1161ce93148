package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cantina-labs/cantinaos/internal/topics"
)

// ServiceSeed declares one service's required configuration keys, per
// spec.md §6 "Required keys per service are declared with the service".
// The registry seed file is the single place this declaration lives so
// a missing required key is caught at startup rather than at first use.
type ServiceSeed struct {
	Name         string   `yaml:"name"`
	RequiredKeys []string `yaml:"required_keys"`
}

// RegistrySeed is the static, file-described portion of the topic/
// service registry (SPEC_FULL.md §1.1): the DJ coordinator's music
// library and each service's declared required keys. It is decoded
// strictly — an unrecognized field is a startup error, never a silent
// no-op — because a typo here means a service starts with settings the
// operator thinks it has and does not.
type RegistrySeed struct {
	Services []ServiceSeed  `yaml:"services"`
	Library  []topics.Track `yaml:"library"`
}

// LoadRegistrySeed reads and strictly decodes the YAML seed file at
// path. A field in the file with no matching struct tag is rejected
// rather than ignored, unlike environment variable loading.
func LoadRegistrySeed(path string) (RegistrySeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RegistrySeed{}, fmt.Errorf("config: read registry seed %q: %w", path, err)
	}

	var seed RegistrySeed
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return RegistrySeed{}, fmt.Errorf("config: decode registry seed %q: %w", path, err)
	}
	return seed, nil
}

// RequiredKeysFor returns the declared required configuration keys for
// service name, or nil if the seed declares none.
func (s RegistrySeed) RequiredKeysFor(name string) []string {
	for _, svc := range s.Services {
		if svc.Name == name {
			return svc.RequiredKeys
		}
	}
	return nil
}
