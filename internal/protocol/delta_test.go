// ABOUTME: Tests for the Opt[T] delta-merge trichotomy
// ABOUTME: Covers absent/null/present round trips through JSON and the merge helpers
package protocol

import (
	"encoding/json"
	"testing"
)

func TestOpt_Trichotomy(t *testing.T) {
	type payload struct {
		Name OptString `json:"name,omitzero"`
	}

	var absent payload
	data, err := json.Marshal(absent)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{}" {
		t.Errorf("expected absent field to be omitted, got %s", data)
	}

	var decodedAbsent payload
	if err := json.Unmarshal([]byte(`{}`), &decodedAbsent); err != nil {
		t.Fatal(err)
	}
	if !decodedAbsent.Name.IsAbsent() {
		t.Error("expected Absent after decoding {}")
	}

	var decodedNull payload
	if err := json.Unmarshal([]byte(`{"name":null}`), &decodedNull); err != nil {
		t.Fatal(err)
	}
	if !decodedNull.Name.IsNull() {
		t.Error("expected Null after decoding {\"name\":null}")
	}

	var decodedPresent payload
	if err := json.Unmarshal([]byte(`{"name":"Kitchen"}`), &decodedPresent); err != nil {
		t.Fatal(err)
	}
	v, ok := decodedPresent.Name.Value()
	if !ok || v != "Kitchen" {
		t.Errorf("expected Present(Kitchen), got value=%q present=%v", v, ok)
	}
}

// TestDeltaRoundTrip_Property: for any
// field and sequence of updates obeying the present/null/absent trichotomy,
// the receiver's merged state equals the value dictated by the last
// non-absent occurrence.
func TestDeltaRoundTrip_Property(t *testing.T) {
	var groupName *string

	apply := func(delta OptString) {
		MergeStringPtr(&groupName, delta)
	}

	apply(Present("Kitchen"))
	if groupName == nil || *groupName != "Kitchen" {
		t.Fatalf("after present, expected Kitchen, got %v", groupName)
	}

	apply(Opt[string]{}) // absent: retain
	if groupName == nil || *groupName != "Kitchen" {
		t.Fatalf("after absent, expected retained Kitchen, got %v", groupName)
	}

	apply(Null[string]()) // null: clear
	if groupName != nil {
		t.Fatalf("after null, expected cleared, got %v", *groupName)
	}

	apply(Present("Living Room"))
	if groupName == nil || *groupName != "Living Room" {
		t.Fatalf("after final present, expected Living Room, got %v", groupName)
	}
}

func TestMergeString_NonPointerVariant(t *testing.T) {
	dst := "initial"
	MergeString(&dst, Opt[string]{})
	if dst != "initial" {
		t.Errorf("absent should retain, got %q", dst)
	}
	MergeString(&dst, Null[string]())
	if dst != "" {
		t.Errorf("null should clear to zero value, got %q", dst)
	}
	MergeString(&dst, Present("new"))
	if dst != "new" {
		t.Errorf("present should replace, got %q", dst)
	}
}
