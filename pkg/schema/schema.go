// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package schema checks request content against per-command field specs.
//
// The table is static and read-only after construction. Commands that are not
// in the table pass unchecked: upstream is the authority for them.
package schema

import (
	"encoding/json"
	"strconv"

	"github.com/absmach/ctlproxy/pkg/codec"
	"github.com/absmach/ctlproxy/pkg/errors"
)

// Type is the logical type a field must have.
type Type int

const (
	Boolean Type = iota
	Integer
	Real
	String
	List
	Record
)

func (t Type) String() string {
	switch t {
	case Boolean:
		return "boolean"
	case Integer:
		return "integer"
	case Real:
		return "real"
	case String:
		return "string"
	case List:
		return "list"
	case Record:
		return "record"
	default:
		return "unknown"
	}
}

// Field describes one content field. Min and Max are inclusive and only
// apply to Integer and Real fields.
type Field struct {
	Name string
	Type Type
	Min  *float64
	Max  *float64
}

// Command is the schema of one command's content.
type Command struct {
	Required []Field
	Optional []Field
}

// Table maps command names to their schema.
type Table struct {
	commands map[string]Command
}

// Bound returns a pointer to v for use as Field.Min or Field.Max.
func Bound(v float64) *float64 {
	return &v
}

// NewTable copies commands into an immutable table.
func NewTable(commands map[string]Command) *Table {
	t := &Table{commands: make(map[string]Command, len(commands))}
	for name, cmd := range commands {
		t.commands[name] = Command{
			Required: append([]Field(nil), cmd.Required...),
			Optional: append([]Field(nil), cmd.Optional...),
		}
	}
	return t
}

// Default returns the table of commands known to the frontend.
func Default() *Table {
	return NewTable(map[string]Command{
		"modify_subscription": {
			Optional: []Field{
				{Name: "ticker_id", Type: String},
				{Name: "order_book_speed", Type: Integer, Min: Bound(0), Max: Bound(10)},
				{Name: "trades_speed", Type: Integer, Min: Bound(0), Max: Bound(10)},
				{Name: "order_book_levels", Type: Integer, Min: Bound(0)},
				{Name: "emit_quotes", Type: Boolean},
			},
		},
		"unsubscribe": {
			Required: []Field{
				{Name: "ticker_id", Type: String},
			},
		},
		"get_snapshot": {
			Required: []Field{
				{Name: "ticker_id", Type: String},
			},
			Optional: []Field{
				{Name: "daily_data", Type: Boolean},
				{Name: "order_book_levels", Type: Integer, Min: Bound(0)},
			},
		},
		"list_directory": {
			Required: []Field{
				{Name: "directory", Type: String},
			},
		},
	})
}

// Lookup returns the schema of command.
func (t *Table) Lookup(command string) (Command, bool) {
	cmd, ok := t.commands[command]
	return cmd, ok
}

// Validate checks the envelope's content against the schema of command.
// Unknown commands always pass.
func (t *Table) Validate(command string, env codec.Envelope) error {
	cmd, ok := t.commands[command]
	if !ok {
		return nil
	}
	content, ok := env.Content()
	if !ok {
		return errors.InvalidArguments("content missing")
	}
	record, ok := content.(map[string]any)
	if !ok {
		return errors.InvalidArguments("content has wrong type, expected type: %s, got: %s", Record, codec.TypeName(content))
	}
	return cmd.Check(record)
}

// Check validates required fields, then optional fields, each in declaration
// order. The first violation is returned.
func (c Command) Check(content map[string]any) error {
	for _, f := range c.Required {
		v, ok := content[f.Name]
		if !ok || v == nil {
			return errors.InvalidArguments("missing field: %s", f.Name)
		}
		if err := f.check(v); err != nil {
			return err
		}
	}
	for _, f := range c.Optional {
		v, ok := content[f.Name]
		if !ok || v == nil {
			continue
		}
		if err := f.check(v); err != nil {
			return err
		}
	}
	return nil
}

func (f Field) check(v any) error {
	if !f.Type.matches(v) {
		return errors.InvalidArguments("field '%s' has wrong type, expected type: %s", f.Name, f.Type)
	}
	if f.Min == nil && f.Max == nil {
		return nil
	}

	n, ok := v.(json.Number)
	if !ok {
		return nil
	}
	val, err := n.Float64()
	if err != nil {
		return errors.InvalidArguments("field '%s' is not a finite number", f.Name)
	}
	if f.Min != nil && val < *f.Min {
		return errors.InvalidArguments("field '%s' must have a value of at least %s", f.Name, format(*f.Min))
	}
	if f.Max != nil && val > *f.Max {
		return errors.InvalidArguments("field '%s' must have a value of at most %s", f.Name, format(*f.Max))
	}
	return nil
}

func (t Type) matches(v any) bool {
	switch t {
	case Boolean:
		_, ok := v.(bool)
		return ok
	case Integer:
		n, ok := v.(json.Number)
		return ok && codec.IsInteger(n)
	case Real:
		_, ok := v.(json.Number)
		return ok
	case String:
		_, ok := v.(string)
		return ok
	case List:
		_, ok := v.([]any)
		return ok
	case Record:
		_, ok := v.(map[string]any)
		return ok
	default:
		return false
	}
}

func format(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
