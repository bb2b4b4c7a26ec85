package models

// DownloadState represents the lifecycle state of a tracked download
type DownloadState string

const (
	StatePaused              DownloadState = "paused"
	StateSeedingPaused       DownloadState = "seeding_paused"
	StateDownloading         DownloadState = "downloading"
	StateDownloadingMetadata DownloadState = "downloading_metadata"
	StateCheckingFiles       DownloadState = "checking_files"
	StateCheckingResumeData  DownloadState = "checking_resume_data"
	StateSeeding             DownloadState = "seeding"
	StateCompleted           DownloadState = "completed"
	StateFailed              DownloadState = "failed"
)

// IsTerminal reports whether no further engine activity is expected
func (s DownloadState) IsTerminal() bool {
	return s == StateFailed
}

// IsPaused reports whether the state is one of the paused variants
func (s DownloadState) IsPaused() bool {
	return s == StatePaused || s == StateSeedingPaused
}

// ResolvePauseTarget computes the paused state a download lands in when the
// user pauses it. A download that already finished (seeding, completed, or
// seeding-paused) keeps its completion information by pausing into
// SeedingPaused; everything else, including an unknown previous state,
// pauses into Paused.
func ResolvePauseTarget(previous DownloadState) DownloadState {
	switch previous {
	case StateSeeding, StateCompleted, StateSeedingPaused:
		return StateSeedingPaused
	default:
		return StatePaused
	}
}
