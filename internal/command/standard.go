package command

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cantina-labs/cantinaos/internal/bus"
	"github.com/cantina-labs/cantinaos/internal/mode"
	"github.com/cantina-labs/cantinaos/internal/service"
	"github.com/cantina-labs/cantinaos/internal/topics"
)

// RegisterStandard wires the canonical command set of spec.md §6.1 onto d:
// help, status, reset, engage, ambient, disengage, list music, play music
// <N>, stop music, dj start|stop|next, debug level <component> <level>. It
// also installs the fixed shortcut table (spec.md §4.4).
func RegisterStandard(d *Dispatcher, modeMgr *mode.Manager, registry *service.Registry) error {
	registrations := []struct {
		name    string
		service string
		shape   Shape
	}{
		{"help", "command_dispatcher", shapeHelp(d)},
		{"status", "command_dispatcher", shapeStatus(registry, modeMgr)},
		{"reset", "command_dispatcher", shapeReset},
		{"engage", "mode_manager", shapeModeRequest(topics.ModeInteractive)},
		{"ambient", "mode_manager", shapeModeRequest(topics.ModeAmbient)},
		{"disengage", "mode_manager", shapeModeRequest(topics.ModeIdle)},
		{"list music", "music_service", shapeMusicCommand("list music")},
		{"play music", "music_service", shapePlayMusic},
		{"stop music", "music_service", shapeMusicCommand("stop music")},
		{"dj start", "dj_coordinator", shapeDJCommand(boolPtr(true), false)},
		{"dj stop", "dj_coordinator", shapeDJCommand(boolPtr(false), false)},
		{"dj next", "dj_coordinator", shapeDJCommand(nil, true)},
		{"debug level", "logging", shapeDebugLevel},
	}
	for _, r := range registrations {
		if err := d.Register(r.name, r.service, r.shape); err != nil {
			return err
		}
	}

	shortcuts := map[string]string{
		"h":  "help",
		"e":  "engage",
		"s":  "stop music",
		"st": "status",
	}
	// Deterministic registration order for reproducible conflict errors.
	keys := make([]string, 0, len(shortcuts))
	for k := range shortcuts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, alias := range keys {
		if err := d.RegisterShortcut(alias, shortcuts[alias]); err != nil {
			return err
		}
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }

func shapeHelp(d *Dispatcher) Shape {
	return func(rec topics.CommandRecord) (bus.Payload, error) {
		d.mu.RLock()
		names := d.names()
		d.mu.RUnlock()
		return &topics.CLIResponsePayload{
			Message: "available commands: " + strings.Join(names, ", "),
		}, nil
	}
}

func shapeStatus(registry *service.Registry, modeMgr *mode.Manager) Shape {
	return func(rec topics.CommandRecord) (bus.Payload, error) {
		statuses := registry.Statuses()
		names := make([]string, 0, len(statuses))
		for name := range statuses {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names)+1)
		parts = append(parts, fmt.Sprintf("mode=%s", modeMgr.Current()))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, statuses[name]))
		}
		return &topics.CLIResponsePayload{Message: strings.Join(parts, " ")}, nil
	}
}

func shapeReset(rec topics.CommandRecord) (bus.Payload, error) {
	return &topics.SystemShutdownRequestPayload{Reason: "user requested reset"}, nil
}

func shapeModeRequest(to topics.Mode) Shape {
	return func(rec topics.CommandRecord) (bus.Payload, error) {
		return &topics.ModeSetRequestPayload{To: to, Requester: string(rec.Source)}, nil
	}
}

func shapeMusicCommand(command string) Shape {
	return func(rec topics.CommandRecord) (bus.Payload, error) {
		return &topics.MusicCommandPayload{Command: command, Args: rec.Args, RawInput: rec.RawInput}, nil
	}
}

// shapePlayMusic implements spec.md §4.4's special case: `play music <N>`
// extracts N into track_index so the music service never parses the phrase
// itself, while still carrying the full command string and args verbatim
// (spec.md's E2E scenario 2 fixes command:"play music", args:["3"]).
func shapePlayMusic(rec topics.CommandRecord) (bus.Payload, error) {
	if len(rec.Args) != 1 {
		return nil, fmt.Errorf("usage: play music <N>")
	}
	n, err := strconv.Atoi(rec.Args[0])
	if err != nil {
		return nil, fmt.Errorf("track index %q is not a number", rec.Args[0])
	}
	return &topics.MusicCommandPayload{Command: "play music", Args: rec.Args, TrackIndex: &n, RawInput: rec.RawInput}, nil
}

// shapeDJCommand implements spec.md §4.4's special case for `dj
// start|stop|next`: a boolean dj_mode_active, or skip for next.
func shapeDJCommand(active *bool, skip bool) Shape {
	return func(rec topics.CommandRecord) (bus.Payload, error) {
		return &topics.DJCommandPayload{DJModeActive: active, Skip: skip}, nil
	}
}

func shapeDebugLevel(rec topics.CommandRecord) (bus.Payload, error) {
	if len(rec.Args) != 2 {
		return nil, fmt.Errorf("usage: debug level <component> <level>")
	}
	return &topics.DebugLevelPayload{Component: rec.Args[0], Level: rec.Args[1]}, nil
}
