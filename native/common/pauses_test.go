package common

import (
	"errors"
	"testing"
)

func TestPausesGuard(t *testing.T) {
	pauses := NewPauses(" Lending ", "")
	if !pauses.IsPaused("lending") {
		t.Fatalf("expected lending paused")
	}
	if err := Guard(pauses, "lending"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if got := pauses.Paused(); len(got) != 1 || got[0] != "lending" {
		t.Fatalf("unexpected paused list %v", got)
	}
	pauses.Resume("LENDING")
	if err := Guard(pauses, "lending"); err != nil {
		t.Fatalf("expected resume to clear pause, got %v", err)
	}
	if err := Guard(nil, "lending"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	var unset *Pauses
	if unset.IsPaused("lending") {
		t.Fatalf("nil pauses must report nothing paused")
	}
}
