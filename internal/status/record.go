// Package status publishes and reads the liveness records that let a
// dashboard observe many recorder processes.
//
// Each recorder owns one JSON file, <dir>/<subject>.json, and rewrites it
// whole on every update through a sibling .tmp file and a rename, so a
// reader never sees a partially written record. Readers classify records
// purely from their heartbeat age: a crashed recorder leaves its file
// behind, which ages into stale and then hidden.
package status

import (
	"math"
	"time"
)

// State is the lifecycle state of a recorder instance.
type State string

// Recorder states.
const (
	StateStarting  State = "STARTING"
	StateWaiting   State = "WAITING"
	StateRecording State = "RECORDING"
	StateStopped   State = "STOPPED"
)

// Heartbeat age thresholds used by readers.
const (
	StaleAfter = 60 * time.Second
	HideAfter  = 5400 * time.Second
)

// File naming.
const (
	RecordExt = ".json"
	TempExt   = ".tmp"
)

// Record is the published state of one recorder instance.
type Record struct {
	Subject       string    `json:"subject"`
	InstanceID    string    `json:"instance_id"`
	State         State     `json:"state"`
	PID           int       `json:"pid"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	CurrentFile   *string   `json:"current_file"`
	FileSizeMB    float64   `json:"file_size_mb"`
}

// File returns the current file name, or "" when none is set.
func (r Record) File() string {
	if r.CurrentFile == nil {
		return ""
	}
	return *r.CurrentFile
}

// Class is a reader's view of a record's freshness.
type Class int

const (
	// Fresh records have a heartbeat within StaleAfter.
	Fresh Class = iota
	// Stale records may belong to a dead process.
	Stale
	// Hidden records are presumed abandoned and left out of aggregated views.
	Hidden
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Hidden:
		return "hidden"
	default:
		return "unknown"
	}
}

// Age returns now minus the record's last heartbeat.
func Age(now time.Time, rec Record) time.Duration {
	return now.Sub(rec.LastHeartbeat)
}

// Classify returns the freshness class of rec at now. It depends only on
// its arguments.
func Classify(now time.Time, rec Record) Class {
	age := Age(now, rec)
	switch {
	case age > HideAfter:
		return Hidden
	case age > StaleAfter:
		return Stale
	default:
		return Fresh
	}
}

func roundMB(mb float64) float64 {
	return math.Round(mb*100) / 100
}
