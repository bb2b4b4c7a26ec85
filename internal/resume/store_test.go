package resume

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

const testHash = "0123456789abcdef0123456789abcdef01234567"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	store, err := NewStore(filepath.Join(t.TempDir(), "resume_data"), logger)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	snapshot := &Snapshot{
		InfoHash:  testHash,
		Name:      "show.s01e01.mkv",
		Trackers:  [][]string{{"http://tracker.example/announce"}},
		Length:    1 << 30,
		Completed: 512 << 20,
	}
	blob, err := snapshot.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if err := store.Save(testHash, blob); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, ok := store.Load(testHash)
	if !ok {
		t.Fatal("Load should find the saved snapshot")
	}
	if loaded.InfoHash != snapshot.InfoHash || loaded.Name != snapshot.Name {
		t.Errorf("Round-trip mismatch: %+v", loaded)
	}
	if loaded.Length != snapshot.Length || loaded.Completed != snapshot.Completed {
		t.Errorf("Round-trip size mismatch: %+v", loaded)
	}
	if len(loaded.Trackers) != 1 || loaded.Trackers[0][0] != snapshot.Trackers[0][0] {
		t.Errorf("Round-trip tracker mismatch: %+v", loaded.Trackers)
	}
}

func TestSaveOverwrites(t *testing.T) {
	store := newTestStore(t)

	first, _ := (&Snapshot{InfoHash: testHash, Name: "first"}).Encode()
	second, _ := (&Snapshot{InfoHash: testHash, Name: "second"}).Encode()

	if err := store.Save(testHash, first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(testHash, second); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, ok := store.Load(testHash)
	if !ok || loaded.Name != "second" {
		t.Errorf("Expected the overwritten snapshot, got %+v", loaded)
	}
}

func TestLoadAbsent(t *testing.T) {
	store := newTestStore(t)

	if snapshot, ok := store.Load(testHash); ok || snapshot != nil {
		t.Error("Load on a never-saved session must report absent, not an error")
	}
}

func TestLoadCorrupt(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(testHash, []byte("not bencode at all")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, ok := store.Load(testHash); ok {
		t.Error("corrupt resume data must degrade to absent")
	}

	// Well-formed bencode with a bad info hash is just as unusable.
	blob, _ := (&Snapshot{InfoHash: "zz", Name: "bad"}).Encode()
	if err := store.Save(testHash, blob); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, ok := store.Load(testHash); ok {
		t.Error("resume data with an invalid info hash must degrade to absent")
	}
}

func TestRemove(t *testing.T) {
	store := newTestStore(t)

	blob, _ := (&Snapshot{InfoHash: testHash}).Encode()
	if err := store.Save(testHash, blob); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	store.Remove(testHash)
	if _, ok := store.Load(testHash); ok {
		t.Error("snapshot should be gone after Remove")
	}

	// Removing again is harmless.
	store.Remove(testHash)
}
