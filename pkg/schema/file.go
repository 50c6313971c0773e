// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type fileField struct {
	Name string   `yaml:"name"`
	Type string   `yaml:"type"`
	Min  *float64 `yaml:"min"`
	Max  *float64 `yaml:"max"`
}

type fileCommand struct {
	Required []fileField `yaml:"required"`
	Optional []fileField `yaml:"optional"`
}

type file struct {
	Commands map[string]fileCommand `yaml:"commands"`
}

// ParseType returns the Type named s.
func ParseType(s string) (Type, error) {
	for t := Boolean; t <= Record; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown field type %q", s)
}

// Parse decodes a YAML schema document:
//
//	commands:
//	  unsubscribe:
//	    required:
//	      - {name: ticker_id, type: string}
//	    optional:
//	      - {name: depth, type: integer, min: 0, max: 50}
func Parse(data []byte) (map[string]Command, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	commands := make(map[string]Command, len(f.Commands))
	for name, fc := range f.Commands {
		required, err := convertFields(name, fc.Required)
		if err != nil {
			return nil, err
		}
		optional, err := convertFields(name, fc.Optional)
		if err != nil {
			return nil, err
		}
		commands[name] = Command{Required: required, Optional: optional}
	}
	return commands, nil
}

func convertFields(command string, in []fileField) ([]Field, error) {
	out := make([]Field, 0, len(in))
	for _, ff := range in {
		if ff.Name == "" {
			return nil, fmt.Errorf("command %s: field without name", command)
		}
		t, err := ParseType(ff.Type)
		if err != nil {
			return nil, fmt.Errorf("command %s field %s: %w", command, ff.Name, err)
		}
		if (ff.Min != nil || ff.Max != nil) && t != Integer && t != Real {
			return nil, fmt.Errorf("command %s field %s: bounds on %s field", command, ff.Name, t)
		}
		if ff.Min != nil && ff.Max != nil && *ff.Min > *ff.Max {
			return nil, fmt.Errorf("command %s field %s: min above max", command, ff.Name)
		}
		out = append(out, Field{Name: ff.Name, Type: t, Min: ff.Min, Max: ff.Max})
	}
	return out, nil
}

// LoadFile reads a YAML schema file and overlays its commands on the
// default table. A command in the file replaces the default one.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %q: %w", path, err)
	}
	commands, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema file %q: %w", path, err)
	}
	return Default().With(commands), nil
}

// With returns a copy of t with commands added or replaced.
func (t *Table) With(commands map[string]Command) *Table {
	merged := make(map[string]Command, len(t.commands)+len(commands))
	for name, cmd := range t.commands {
		merged[name] = cmd
	}
	for name, cmd := range commands {
		merged[name] = cmd
	}
	return NewTable(merged)
}
