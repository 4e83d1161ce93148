package topics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/cantina-labs/cantinaos/internal/bus"
	"github.com/cantina-labs/cantinaos/internal/cerrors"
)

// entry bundles everything the registry knows about one topic: its compiled
// schema and documentation metadata (spec.md §4.2 "(a) its schema, (b)
// documentation, (c) expected producer services, (d) expected consumer
// services").
type entry struct {
	schema    *jsonschema.Schema
	doc       string
	producers []string
	consumers []string
}

// Registry is the immutable, central payload/topic registry. It implements
// bus.Validator and is built once at startup (spec.md §4.2 "A central,
// read-only structure built at startup").
type Registry struct {
	entries map[bus.Topic]entry
}

// Doc describes one topic registration passed to Build.
type Doc struct {
	Topic       bus.Topic
	Schema      string // inline JSON Schema document
	Description string
	Producers   []string
	Consumers   []string
}

// Build compiles every schema in docs and returns the resulting Registry.
// Build panics on a malformed schema: a bad schema is an authoring bug, not
// a runtime condition, exactly like the registration-conflict failures
// spec.md §4.4 treats as fatal at startup.
func Build(docs []Doc) *Registry {
	compiler := jsonschema.NewCompiler()
	entries := make(map[bus.Topic]entry, len(docs))
	for _, d := range docs {
		uri := fmt.Sprintf("mem://topics/%s", d.Topic)
		if err := compiler.AddResource(uri, bytes.NewReader([]byte(d.Schema))); err != nil {
			panic(fmt.Sprintf("topics: bad schema for %q: %v", d.Topic, err))
		}
		sch, err := compiler.Compile(uri)
		if err != nil {
			panic(fmt.Sprintf("topics: compile schema for %q: %v", d.Topic, err))
		}
		entries[d.Topic] = entry{
			schema:    sch,
			doc:       d.Description,
			producers: d.Producers,
			consumers: d.Consumers,
		}
	}
	return &Registry{entries: entries}
}

// KnownTopic implements bus.Validator.
func (r *Registry) KnownTopic(topic bus.Topic) bool {
	_, ok := r.entries[topic]
	return ok
}

// Describe returns the documentation registered for topic.
func (r *Registry) Describe(topic bus.Topic) (Doc, bool) {
	e, ok := r.entries[topic]
	if !ok {
		return Doc{}, false
	}
	return Doc{Topic: topic, Description: e.doc, Producers: e.producers, Consumers: e.consumers}, true
}

// Validate implements bus.Validator. It stamps the payload's required
// fields (timestamp, event_id), applies the small set of known legacy-field
// coercions, then checks the result against the topic's compiled schema.
func (r *Registry) Validate(topic bus.Topic, payload bus.Payload) error {
	e, ok := r.entries[topic]
	if !ok {
		return fmt.Errorf("topics: publish to unregistered topic %q", topic)
	}
	if payload == nil {
		return nil
	}
	if stamper, ok := payload.(metaStamper); ok {
		stamper.Stamp(time.Now())
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return &cerrors.ValidationError{Topic: string(topic), Field: "<payload>", Err: err}
	}
	applyCoercions(topic, raw, &raw)

	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return &cerrors.ValidationError{Topic: string(topic), Field: "<payload>", Err: err}
	}
	if err := e.schema.Validate(instance); err != nil {
		return &cerrors.ValidationError{Topic: string(topic), Field: "<schema>", Err: err}
	}
	return nil
}

// applyCoercions rewrites known legacy field values to their canonical form
// in place before schema validation (spec.md §4.2 "Coerce vendor status
// strings"; spec.md §9 legacy music-phase aliases).
func applyCoercions(topic bus.Topic, in []byte, out *[]byte) {
	switch topic {
	case ServiceStatusTopic:
		var p ServiceStatusPayload
		if err := json.Unmarshal(in, &p); err == nil {
			p.Status = CoerceStatus(string(p.Status))
			if rewritten, err := json.Marshal(p); err == nil {
				*out = rewritten
			}
		}
	case MusicStatusTopic:
		var p MusicStatusPayload
		if err := json.Unmarshal(in, &p); err == nil {
			p.Kind = CanonicalMusicPhase(string(p.Kind))
			if rewritten, err := json.Marshal(p); err == nil {
				*out = rewritten
			}
		}
	}
}
