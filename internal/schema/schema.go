// Package schema declares the flight-record data dictionary: every column the
// pipeline reads or derives, its logical kind, storage width, null-sentinel
// group, and valid range. The registry is the single source of truth for the
// reader's cast plan, the cleaner's group rules, sink DDL, and the drift probe.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the logical type of a column as seen by the cast layer.
type Kind int8

const (
	KindInt    Kind = iota // integral value held in a narrow int column
	KindFloat              // minute durations held in float32
	KindString             // codes and identifiers
	KindBool               // 0/1 flags held in a bitmap
	KindEnum               // small closed vocabulary held as an int8 code
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	}
	return fmt.Sprintf("kind(%d)", int8(k))
}

// Group identifies the null-sentinel family a column belongs to. Columns in a
// group share one sentinel encoding, so cleaning rules can null out a whole
// group without enumerating columns.
type Group int8

const (
	GroupTemporal     Group = iota // year/month/day/day_of_week, sentinel -1
	GroupIdent                     // carrier, flight number, tail number
	GroupRoute                     // airports and distance
	GroupTime                      // HHMM clock fields, sentinel -1
	GroupDelay                     // minute durations, sentinel NaN
	GroupFlag                      // cancelled/diverted bits, no null form
	GroupCancellation              // cancellation reason, sentinel "no reason"
	GroupCause                     // per-cause delay minutes, sentinel NaN
	GroupDerived                   // columns filled by the deriver
)

func (g Group) String() string {
	switch g {
	case GroupTemporal:
		return "temporal"
	case GroupIdent:
		return "ident"
	case GroupRoute:
		return "route"
	case GroupTime:
		return "time"
	case GroupDelay:
		return "delay"
	case GroupFlag:
		return "flag"
	case GroupCancellation:
		return "cancellation"
	case GroupCause:
		return "cause"
	case GroupDerived:
		return "derived"
	}
	return fmt.Sprintf("group(%d)", int8(g))
}

// Width is the storage width class. It drives both the in-memory column
// representation and the sink DDL type mapping.
type Width int8

const (
	WidthBit     Width = iota // single bit
	WidthInt8                 // small integral, fits int8
	WidthInt16                // integral, fits int16
	WidthFloat32              // single-precision minutes
	WidthString               // variable-length text, bounded by MaxLen
)

func (w Width) String() string {
	switch w {
	case WidthBit:
		return "bit"
	case WidthInt8:
		return "int8"
	case WidthInt16:
		return "int16"
	case WidthFloat32:
		return "float32"
	case WidthString:
		return "string"
	}
	return fmt.Sprintf("width(%d)", int8(w))
}

// Descriptor describes one column. Pure data; the registry hands out copies.
type Descriptor struct {
	Name     string
	Kind     Kind
	Width    Width
	Group    Group
	Required bool // a null after casting is a row-level violation

	// Min/Max bound integral kinds (both zero means unchecked).
	Min, Max int
	// NonNegative rejects negative values for float kinds; plain delay
	// columns may legitimately be negative (early flights) and leave it off.
	NonNegative bool
	// MaxLen bounds string kinds for sink DDL; 0 means unbounded TEXT.
	MaxLen int
	// Enum lists the accepted labels for enum kinds. The stored code is the
	// label index + 1; code 0 is the null sentinel.
	Enum []string

	// Derived marks columns the deriver fills; they never appear in input.
	Derived bool
}

// EnumCode returns the stored code for an enum label, or 0 when the label is
// not part of the vocabulary.
func (d Descriptor) EnumCode(label string) int8 {
	for i, l := range d.Enum {
		if l == label {
			return int8(i + 1)
		}
	}
	return 0
}

// ErrUnknownColumn is returned by Describe for names outside the dictionary.
// Referencing an undeclared column is a wiring bug, not a data problem, so
// callers treat it as fatal.
var ErrUnknownColumn = errors.New("unknown column")

// Registry holds an ordered, immutable set of column descriptors.
type Registry struct {
	cols   []Descriptor
	byName map[string]int
}

// NewRegistry builds a registry from an ordered descriptor list. Duplicate
// names are a construction error.
func NewRegistry(cols []Descriptor) (*Registry, error) {
	r := &Registry{
		cols:   make([]Descriptor, len(cols)),
		byName: make(map[string]int, len(cols)),
	}
	copy(r.cols, cols)
	for i, c := range r.cols {
		if c.Name == "" {
			return nil, fmt.Errorf("schema: column %d has empty name", i)
		}
		if _, dup := r.byName[c.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate column %q", c.Name)
		}
		r.byName[c.Name] = i
	}
	return r, nil
}

// Describe returns the descriptor for name.
func (r *Registry) Describe(name string) (Descriptor, error) {
	i, ok := r.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("schema: %w: %q", ErrUnknownColumn, name)
	}
	return r.cols[i], nil
}

// Has reports whether name is a declared column.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Columns returns all column names in declaration order.
func (r *Registry) Columns() []string {
	out := make([]string, len(r.cols))
	for i, c := range r.cols {
		out[i] = c.Name
	}
	return out
}

// Base returns the descriptors for input columns (non-derived) in order.
func (r *Registry) Base() []Descriptor {
	out := make([]Descriptor, 0, len(r.cols))
	for _, c := range r.cols {
		if !c.Derived {
			out = append(out, c)
		}
	}
	return out
}

// All returns every descriptor in declaration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.cols))
	copy(out, r.cols)
	return out
}

// Len returns the number of declared columns, derived included.
func (r *Registry) Len() int { return len(r.cols) }

// DriftError reports a header that does not match the declared base schema.
// Any unknown, missing, or duplicated column aborts the run before a single
// row is processed.
type DriftError struct {
	Unknown   []string // present in the header, absent from the dictionary
	Missing   []string // declared base columns absent from the header
	Duplicate []string // header names seen more than once
}

func (e *DriftError) Error() string {
	var b strings.Builder
	b.WriteString("schema drift:")
	if len(e.Unknown) > 0 {
		fmt.Fprintf(&b, " unknown=%v", e.Unknown)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " missing=%v", e.Missing)
	}
	if len(e.Duplicate) > 0 {
		fmt.Fprintf(&b, " duplicate=%v", e.Duplicate)
	}
	return b.String()
}

// CheckHeader compares a normalized header against the declared base columns
// and returns a *DriftError describing every deviation, or nil when the
// header matches exactly (order is free, presence is not).
func (r *Registry) CheckHeader(header []string) error {
	var drift DriftError
	seen := make(map[string]int, len(header))
	for _, name := range header {
		seen[name]++
		if seen[name] == 2 {
			drift.Duplicate = append(drift.Duplicate, name)
		}
		if !r.Has(name) {
			if seen[name] == 1 {
				drift.Unknown = append(drift.Unknown, name)
			}
			continue
		}
		d := r.cols[r.byName[name]]
		if d.Derived {
			// Derived names arriving in input are treated as unknown; the
			// deriver owns them.
			if seen[name] == 1 {
				drift.Unknown = append(drift.Unknown, name)
			}
		}
	}
	for _, c := range r.cols {
		if c.Derived {
			continue
		}
		if _, ok := seen[c.Name]; !ok {
			drift.Missing = append(drift.Missing, c.Name)
		}
	}
	if len(drift.Unknown) > 0 || len(drift.Missing) > 0 || len(drift.Duplicate) > 0 {
		return &drift
	}
	return nil
}
