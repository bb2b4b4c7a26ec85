// Package metrics exposes the lifecycle manager's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsApplied counts engine events applied to the download record,
	// labeled by the record field they touched.
	EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torrnarr_events_applied_total",
		Help: "Engine events applied to download records, by field.",
	}, []string{"field"})

	// UpdatesMissed counts record updates that affected zero rows,
	// usually a race between a deletion and an in-flight engine callback.
	UpdatesMissed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torrnarr_updates_missed_total",
		Help: "Record updates that affected no rows.",
	})

	// ActiveSessions tracks engine sessions currently registered.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "torrnarr_active_sessions",
		Help: "Engine sessions currently registered.",
	})

	// SnapshotsSaved counts resume-data snapshots written to disk.
	SnapshotsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torrnarr_resume_snapshots_saved_total",
		Help: "Resume-data snapshots persisted.",
	})
)
