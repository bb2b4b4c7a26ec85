package models

import "testing"

func TestResolvePauseTarget(t *testing.T) {
	seedingPaused := []DownloadState{StateSeeding, StateCompleted, StateSeedingPaused}
	for _, state := range seedingPaused {
		if got := ResolvePauseTarget(state); got != StateSeedingPaused {
			t.Errorf("ResolvePauseTarget(%s) = %s, want %s", state, got, StateSeedingPaused)
		}
	}

	paused := []DownloadState{
		StatePaused,
		StateDownloading,
		StateDownloadingMetadata,
		StateCheckingFiles,
		StateCheckingResumeData,
		StateFailed,
		DownloadState(""),       // unknown/absent previous state
		DownloadState("bogus"),  // never produced by the engine
	}
	for _, state := range paused {
		if got := ResolvePauseTarget(state); got != StatePaused {
			t.Errorf("ResolvePauseTarget(%q) = %s, want %s", state, got, StatePaused)
		}
	}
}

func TestIsPaused(t *testing.T) {
	if !StatePaused.IsPaused() || !StateSeedingPaused.IsPaused() {
		t.Error("paused variants should report IsPaused")
	}
	if StateDownloading.IsPaused() || StateCompleted.IsPaused() {
		t.Error("active states should not report IsPaused")
	}
}
