package protocol

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// RegistryConfig is the raw material a Registry is built from.
type RegistryConfig struct {
	Commands []CommandSpec
	Status   []string
	Settings []string
	Default  string
}

type command struct {
	spec    CommandSpec
	pattern *regexp.Regexp
}

// Registry is the immutable table of known commands. It is validated once
// by NewRegistry and is safe for concurrent use afterwards.
type Registry struct {
	commands map[string]*command
	names    []string
	status   []string
	settings []string
	def      string
}

// NewRegistry validates cfg and builds a registry from a private copy of it.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	r := &Registry{commands: make(map[string]*command, len(cfg.Commands))}

	for i, spec := range cfg.Commands {
		if err := checkSpec(spec); err != nil {
			return nil, fmt.Errorf("%w: command[%d] %q: %v", ErrInvalidRegistry, i, spec.Name, err)
		}
		if _, dup := r.commands[spec.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate command %q", ErrInvalidRegistry, spec.Name)
		}
		c := &command{spec: spec.clone()}
		if spec.Pattern != "" {
			re, err := regexp.Compile("^(?:" + spec.Pattern + ")$")
			if err != nil {
				return nil, fmt.Errorf("%w: command %q pattern: %v", ErrInvalidRegistry, spec.Name, err)
			}
			c.pattern = re
		}
		r.commands[spec.Name] = c
		r.names = append(r.names, spec.Name)
	}
	sort.Strings(r.names)

	var err error
	if r.status, err = r.pollable("status", cfg.Status); err != nil {
		return nil, err
	}
	if r.settings, err = r.pollable("settings", cfg.Settings); err != nil {
		return nil, err
	}
	if cfg.Default != "" {
		if _, err := r.pollable("default", []string{cfg.Default}); err != nil {
			return nil, err
		}
	}
	r.def = cfg.Default
	return r, nil
}

func checkSpec(spec CommandSpec) error {
	if strings.TrimSpace(spec.Name) == "" {
		return fmt.Errorf("missing name")
	}
	if spec.Kind != Query && spec.Kind != Setter {
		return fmt.Errorf("invalid kind %d", spec.Kind)
	}
	for i, f := range spec.Response {
		if strings.TrimSpace(f.Label) == "" {
			return fmt.Errorf("field %d missing label", i)
		}
		switch f.Type {
		case FieldInt, FieldScaledInt, FieldString:
		case FieldEnum:
			if len(f.Options) == 0 {
				return fmt.Errorf("field %d (%s) enum without options", i, f.Label)
			}
		case FieldAck:
			if len(f.Options) != 2 {
				return fmt.Errorf("field %d (%s) ack needs failure and success labels", i, f.Label)
			}
		default:
			return fmt.Errorf("field %d (%s) unknown type %s", i, f.Label, f.Type)
		}
	}
	return nil
}

// pollable checks that every name is registered and can be sent without parameters.
func (r *Registry) pollable(list string, names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, name := range names {
		c, ok := r.commands[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s command %q not registered", ErrInvalidRegistry, list, name)
		}
		if c.pattern != nil && !c.pattern.MatchString(name) {
			return nil, fmt.Errorf("%w: %s command %q requires parameters", ErrInvalidRegistry, list, name)
		}
		out = append(out, name)
	}
	return out, nil
}

// Command returns a copy of the named command's spec.
func (r *Registry) Command(name string) (CommandSpec, bool) {
	c, ok := r.commands[name]
	if !ok {
		return CommandSpec{}, false
	}
	return c.spec.clone(), true
}

// Validate checks params against the command's declared pattern.
func (r *Registry) Validate(name, params string) (CommandSpec, error) {
	c, ok := r.commands[name]
	if !ok {
		return CommandSpec{}, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	if c.pattern == nil {
		if params != "" {
			return CommandSpec{}, fmt.Errorf("%w: %s accepts no parameters, got %q", ErrValidation, name, params)
		}
		return c.spec.clone(), nil
	}
	if !c.pattern.MatchString(name + params) {
		return CommandSpec{}, fmt.Errorf("%w: %q does not match %s", ErrValidation, name+params, c.spec.Pattern)
	}
	return c.spec.clone(), nil
}

// Resolve splits a full command string such as "POP1" into a registered
// name and its parameter suffix. An exact name wins; otherwise the longest
// name prefix whose pattern accepts the whole input. Input that starts with
// a registered name but fits none of the patterns is a validation error.
func (r *Registry) Resolve(input string) (name, params string, err error) {
	if _, ok := r.commands[input]; ok {
		return input, "", nil
	}
	best, prefix := "", ""
	for n, c := range r.commands {
		if !strings.HasPrefix(input, n) {
			continue
		}
		if len(n) > len(prefix) {
			prefix = n
		}
		if c.pattern != nil && len(n) > len(best) && c.pattern.MatchString(input) {
			best = n
		}
	}
	switch {
	case best != "":
		return best, input[len(best):], nil
	case prefix != "":
		return "", "", fmt.Errorf("%w: %q does not fit %s", ErrValidation, input, r.describe(prefix))
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownCommand, input)
	}
}

func (r *Registry) describe(name string) string {
	if p := r.commands[name].spec.Pattern; p != "" {
		return p
	}
	return name + " (no parameters)"
}

// Names returns all command names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

func (r *Registry) Len() int { return len(r.commands) }

// StatusCommands lists the commands meant for periodic polling.
func (r *Registry) StatusCommands() []string {
	return append([]string(nil), r.status...)
}

// SettingsCommands lists the commands meant to be fetched once.
func (r *Registry) SettingsCommands() []string {
	return append([]string(nil), r.settings...)
}

func (r *Registry) DefaultCommand() string { return r.def }
