package tasks

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	h := func(ctx context.Context, payload json.RawMessage) error { return nil }

	if err := reg.Register("a.task", h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, ok := reg.Lookup("a.task"); !ok {
		t.Fatal("registered task not found")
	}
	if _, ok := reg.Lookup("missing"); ok {
		t.Fatal("lookup of unregistered task succeeded")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	h := func(ctx context.Context, payload json.RawMessage) error { return nil }

	if err := reg.Register("dup", h); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := reg.Register("dup", h); err == nil {
		t.Fatal("duplicate registration accepted")
	}
}

func TestRegistryRejectsBadInput(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	if err := reg.Register("", func(ctx context.Context, payload json.RawMessage) error { return nil }); err == nil {
		t.Fatal("empty name accepted")
	}
	if err := reg.Register("nil.handler", nil); err == nil {
		t.Fatal("nil handler accepted")
	}
}

func TestRegistryNames(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	h := func(ctx context.Context, payload json.RawMessage) error { return nil }
	for _, name := range []string{"b", "a", "c"} {
		if err := reg.Register(name, h); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}
	names := reg.Names()
	sort.Strings(names)
	want := []string{"a", "b", "c"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}
}
