// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/absmach/ctlproxy/pkg/codec"
	"github.com/absmach/ctlproxy/pkg/errors"
)

const sample = `
commands:
  set_depth:
    required:
      - {name: ticker_id, type: string}
    optional:
      - {name: depth, type: integer, min: 1, max: 50}
  unsubscribe:
    required:
      - {name: ticker_ids, type: list}
`

func TestParse(t *testing.T) {
	commands, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	cmd, ok := commands["set_depth"]
	if !ok {
		t.Fatal("set_depth not parsed")
	}
	if len(cmd.Required) != 1 || cmd.Required[0].Type != String {
		t.Errorf("required = %+v", cmd.Required)
	}
	depth := cmd.Optional[0]
	if depth.Type != Integer || *depth.Min != 1 || *depth.Max != 50 {
		t.Errorf("depth = %+v", depth)
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"unknown type":   "commands:\n  c:\n    required:\n      - {name: a, type: float}\n",
		"missing name":   "commands:\n  c:\n    required:\n      - {type: string}\n",
		"bounded string": "commands:\n  c:\n    optional:\n      - {name: a, type: string, min: 1}\n",
		"inverted range": "commands:\n  c:\n    optional:\n      - {name: a, type: real, min: 5, max: 1}\n",
		"not yaml":       "commands: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Error("Parse() = nil, want error")
			}
		})
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}

	table, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	// Defaults survive.
	if _, ok := table.Lookup("modify_subscription"); !ok {
		t.Error("default command modify_subscription lost")
	}

	// File replaces a default.
	err = table.Validate("unsubscribe", codec.Envelope{"content": map[string]any{"ticker_id": "x"}})
	if errors.DetailOf(err) != "missing field: ticker_ids" {
		t.Errorf("Validate(unsubscribe) = %v", err)
	}

	// Defaults table is untouched.
	if err := Default().Validate("unsubscribe", codec.Envelope{"content": map[string]any{"ticker_id": "x"}}); err != nil {
		t.Errorf("Default().Validate(unsubscribe) = %v", err)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadFile() = nil, want error")
	}
}

func TestParseTypeRoundTrip(t *testing.T) {
	for ty := Boolean; ty <= Record; ty++ {
		got, err := ParseType(ty.String())
		if err != nil || got != ty {
			t.Errorf("ParseType(%q) = %v, %v", ty.String(), got, err)
		}
	}
}
