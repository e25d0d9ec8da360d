// ABOUTME: Delta-merge optional values distinguishing absent/null/present
// ABOUTME: Implements the absent/null/present trichotomy for stream/update, server/state, group/update
package protocol

import "encoding/json"

type optState uint8

const (
	optAbsent optState = iota
	optNull
	optPresent
)

// Opt represents one field under the delta-merge rule:
//
//	absent field  -> retain prior value
//	explicit null -> clear prior value
//	present value -> replace
//
// A zero-value Opt is Absent, so it has the "omitzero" property the JSON
// encoder needs to skip untouched fields on encode; UnmarshalJSON observes
// whether the key was present at all (the stdlib decoder never calls
// UnmarshalJSON for a key that is missing from the object).
type Opt[T any] struct {
	state optState
	value T
}

// Present constructs an Opt carrying a concrete replacement value.
func Present[T any](v T) Opt[T] { return Opt[T]{state: optPresent, value: v} }

// Null constructs an Opt representing an explicit clear.
func Null[T any]() Opt[T] { return Opt[T]{state: optNull} }

// IsAbsent reports whether the field was omitted from the message entirely.
func (o Opt[T]) IsAbsent() bool { return o.state == optAbsent }

// IsNull reports whether the field was explicitly set to JSON null.
func (o Opt[T]) IsNull() bool { return o.state == optNull }

// IsPresent reports whether the field carries a concrete replacement value.
func (o Opt[T]) IsPresent() bool { return o.state == optPresent }

// Value returns the carried value and whether the field was Present. Callers
// that need the full trichotomy should check IsAbsent/IsNull/IsPresent
// directly; Value is a convenience for the common "did it replace" check.
func (o Opt[T]) Value() (T, bool) { return o.value, o.state == optPresent }

// IsZero reports whether this Opt should be omitted from JSON output under
// the "omitzero" struct tag option — true only for Absent, since Null must
// still be encoded as a literal JSON null to distinguish it from Absent.
func (o Opt[T]) IsZero() bool { return o.state == optAbsent }

func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		o.state = optNull
		var zero T
		o.value = zero
		return nil
	}
	o.state = optPresent
	return json.Unmarshal(data, &o.value)
}

func (o Opt[T]) MarshalJSON() ([]byte, error) {
	switch o.state {
	case optNull:
		return []byte("null"), nil
	case optPresent:
		return json.Marshal(o.value)
	default:
		// Should not be reachable when "omitzero" is honored, but a safe
		// fallback keeps this type usable without the tag too.
		return []byte("null"), nil
	}
}

type (
	OptString = Opt[string]
	OptInt    = Opt[int]
	OptBool   = Opt[bool]
)

// MergeString applies the delta-merge rule to a plain string destination:
// absent leaves it unchanged and null clears it to "", so a cleared field
// and an empty one look the same afterwards.
func MergeString(dst *string, delta OptString) {
	switch {
	case delta.IsAbsent():
		return
	case delta.IsNull():
		*dst = ""
	default:
		v, _ := delta.Value()
		*dst = v
	}
}

// MergeStringPtr applies the delta-merge rule to a destination field
// represented as **string, so "cleared" and "never set" remain distinguishable
// to the receiver (e.g. MetadataState.Title).
func MergeStringPtr(dst **string, delta OptString) {
	switch {
	case delta.IsAbsent():
		return
	case delta.IsNull():
		*dst = nil
	default:
		v, _ := delta.Value()
		*dst = &v
	}
}

// MergeIntPtr applies the delta-merge rule to a destination field
// represented as **int.
func MergeIntPtr(dst **int, delta OptInt) {
	switch {
	case delta.IsAbsent():
		return
	case delta.IsNull():
		*dst = nil
	default:
		v, _ := delta.Value()
		*dst = &v
	}
}

// MergeBoolPtr applies the delta-merge rule to a destination field
// represented as **bool.
func MergeBoolPtr(dst **bool, delta OptBool) {
	switch {
	case delta.IsAbsent():
		return
	case delta.IsNull():
		*dst = nil
	default:
		v, _ := delta.Value()
		*dst = &v
	}
}
