package flashloan

import (
	"context"
	"errors"
	"testing"

	flasherrors "flashsettle/core/errors"
)

func TestRegistryUpdateAndLookup(t *testing.T) {
	holder, _, err := Create(treasury, 40)
	if err != nil {
		t.Fatal(err)
	}
	reg, err := NewRegistry(holder)
	if err != nil {
		t.Fatal(err)
	}
	for i, location := range []string{"navi", "bucket", "scallop"} {
		id, err := reg.Append(holder, location)
		if err != nil {
			t.Fatalf("append %s: %v", location, err)
		}
		if id != uint64(i) {
			t.Fatalf("append %s returned id %d", location, id)
		}
	}
	if err := reg.Update(holder, 1, "bucket-v2"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got, err := reg.Lookup(1); err != nil || got != "bucket-v2" {
		t.Fatalf("lookup(1) = %q err=%v", got, err)
	}
	if _, err := reg.Lookup(5); !errors.Is(err, flasherrors.ErrIndexOutOfBounds) {
		t.Fatalf("expected ErrIndexOutOfBounds, got %v", err)
	}
	if err := reg.Update(holder, 3, "x"); !errors.Is(err, flasherrors.ErrIndexOutOfBounds) {
		t.Fatalf("expected update past the end to fail, got %v", err)
	}
	if reg.Len() != 3 {
		t.Fatalf("len = %d", reg.Len())
	}
}

func TestRegistryRejectsForeignCap(t *testing.T) {
	holder, _, _ := Create(treasury, 40)
	other, _, _ := Create(treasury, 40)
	reg, _ := NewRegistry(holder)
	if _, err := reg.Append(other, "navi"); !errors.Is(err, flasherrors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := reg.Append(holder, "  "); err == nil {
		t.Fatalf("expected empty location to be rejected")
	}
	if _, err := NewRegistry(nil); !errors.Is(err, flasherrors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for nil cap, got %v", err)
	}
}

func TestRegistryPersistsThroughAdmin(t *testing.T) {
	f := newFixture(t, 40)
	ctx := context.Background()
	for _, location := range []string{"navi", "bucket", "scallop"} {
		if _, err := f.admin.AppendAdapter(ctx, f.cap, location); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.admin.UpdateAdapter(ctx, f.cap, 9, "navi"); !errors.Is(err, flasherrors.ErrIndexOutOfBounds) {
		t.Fatalf("expected ErrIndexOutOfBounds, got %v", err)
	}
	if err := f.admin.UpdateAdapter(ctx, f.cap, 0, "scallop"); err != nil {
		t.Fatal(err)
	}
	reg, err := f.admin.Registry(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := reg.Lookup(0); got != "scallop" || reg.Len() != 3 {
		t.Fatalf("unexpected registry %+v", reg)
	}
	if len(f.events) != 4 {
		t.Fatalf("expected 4 registry events, got %d", len(f.events))
	}
}
