package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/unalkalkan/narrator/pkg/types"
)

func sampleCheckpoint() types.Checkpoint {
	return types.Checkpoint{
		Fingerprint:          []byte{0xde, 0xad, 0xbe, 0xef},
		LastCompletedOrdinal: 42,
		StreamByteOffset:     1024,
		ChapterMarkers: types.ChapterMarkerTable{
			{Ordinal: 0, Title: "Chapter One", Offset: 16},
			{Ordinal: 5, Title: "Chapter Two", Offset: 900},
		},
		Version: types.CheckpointFormatVersion,
	}
}

func TestWriteThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	l := Open(dir)

	want := sampleCheckpoint()
	if err := l.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, ok := l.Load()
	if !ok {
		t.Fatalf("Load: ok = false, want true")
	}
	if got.LastCompletedOrdinal != want.LastCompletedOrdinal {
		t.Errorf("LastCompletedOrdinal = %d, want %d", got.LastCompletedOrdinal, want.LastCompletedOrdinal)
	}
	if got.StreamByteOffset != want.StreamByteOffset {
		t.Errorf("StreamByteOffset = %d, want %d", got.StreamByteOffset, want.StreamByteOffset)
	}
	if len(got.ChapterMarkers) != len(want.ChapterMarkers) {
		t.Fatalf("len(ChapterMarkers) = %d, want %d", len(got.ChapterMarkers), len(want.ChapterMarkers))
	}
	for i, m := range got.ChapterMarkers {
		if m != want.ChapterMarkers[i] {
			t.Errorf("marker[%d] = %+v, want %+v", i, m, want.ChapterMarkers[i])
		}
	}
}

func TestWriteAlternatesSlots(t *testing.T) {
	dir := t.TempDir()
	l := Open(dir)

	cp1 := sampleCheckpoint()
	cp1.LastCompletedOrdinal = 1
	if err := l.Write(cp1); err != nil {
		t.Fatalf("Write 1: %v", err)
	}
	firstActive := l.active

	cp2 := sampleCheckpoint()
	cp2.LastCompletedOrdinal = 2
	if err := l.Write(cp2); err != nil {
		t.Fatalf("Write 2: %v", err)
	}
	if l.active == firstActive {
		t.Errorf("second write landed in the same slot as the first: %s", l.active)
	}

	for _, name := range []string{slotA, slotB} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected slot %s to exist: %v", name, err)
		}
	}
}

func TestLoadPrefersHigherOrdinalAcrossSlots(t *testing.T) {
	dir := t.TempDir()
	l := Open(dir)

	older := sampleCheckpoint()
	older.LastCompletedOrdinal = 10
	if err := l.Write(older); err != nil {
		t.Fatalf("Write older: %v", err)
	}

	newer := sampleCheckpoint()
	newer.LastCompletedOrdinal = 20
	if err := l.Write(newer); err != nil {
		t.Fatalf("Write newer: %v", err)
	}

	got, ok := l.Load()
	if !ok {
		t.Fatalf("Load: ok = false")
	}
	if got.LastCompletedOrdinal != 20 {
		t.Errorf("LastCompletedOrdinal = %d, want 20 (the newer slot)", got.LastCompletedOrdinal)
	}
}

func TestLoadRejectsCorruptSlot(t *testing.T) {
	dir := t.TempDir()
	l := Open(dir)

	cp := sampleCheckpoint()
	if err := l.Write(cp); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Corrupt the byte that was just written by flipping a byte in
	// the middle of the slot that became active.
	path := filepath.Join(dir, l.active)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	data[len(data)/2] ^= 0xFF
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fresh := Open(dir)
	_, ok := fresh.Load()
	if ok {
		t.Errorf("Load: ok = true for a corrupted slot, want false")
	}
	if !fresh.SlotsExist() {
		t.Errorf("SlotsExist: false, want true — a slot file is present, just invalid")
	}
}

func TestLoadFallsBackToValidSlotWhenOtherCorrupt(t *testing.T) {
	dir := t.TempDir()
	l := Open(dir)

	first := sampleCheckpoint()
	first.LastCompletedOrdinal = 7
	if err := l.Write(first); err != nil {
		t.Fatalf("Write: %v", err)
	}
	goodSlot := l.active

	// Corrupt the *other*, never-written slot by writing garbage
	// directly so Load sees one valid and one invalid slot.
	other := slotA
	if goodSlot == slotA {
		other = slotB
	}
	if err := os.WriteFile(filepath.Join(dir, other), []byte("not a checkpoint"), 0644); err != nil {
		t.Fatalf("WriteFile garbage: %v", err)
	}

	fresh := Open(dir)
	got, ok := fresh.Load()
	if !ok {
		t.Fatalf("Load: ok = false, want true (one valid slot present)")
	}
	if got.LastCompletedOrdinal != 7 {
		t.Errorf("LastCompletedOrdinal = %d, want 7", got.LastCompletedOrdinal)
	}
}

func TestLoadWithNoSlotsPresent(t *testing.T) {
	dir := t.TempDir()
	l := Open(dir)

	_, ok := l.Load()
	if ok {
		t.Errorf("Load: ok = true with no checkpoint files written, want false")
	}
	if l.SlotsExist() {
		t.Errorf("SlotsExist: true with no checkpoint files written, want false")
	}
}
