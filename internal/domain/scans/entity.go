package scans

import (
	"time"
)

// ID tipe untuk Scan
type ScanID string

// Status enum
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status ends a pipeline run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition enforces the scan lifecycle:
// pending → processing → {completed, failed}; processing is re-enterable
// from a terminal state via an explicit re-scan.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusProcessing:
		return from == StatusPending || from.Terminal()
	case StatusCompleted, StatusFailed:
		return from == StatusProcessing
	default:
		return false
	}
}

// InteractiveElement is one actionable page element reduced to a flat
// record. Lives inside the snapshot, never persisted on its own.
type InteractiveElement struct {
	Tag         string `json:"tag"`
	Text        string `json:"text"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Placeholder string `json:"placeholder"`
	Href        string `json:"href,omitempty"`
}

// PageSnapshot is the structured output of browsing a URL.
type PageSnapshot struct {
	Title               string               `json:"title"`
	Content             string               `json:"content"`
	InteractiveElements []InteractiveElement `json:"interactive_elements"`
}

// Aggregate Root: Scan
type Scan struct {
	ID            ScanID        `json:"id"`
	UserID        string        `json:"user_id"`
	URL           string        `json:"url"`
	Status        Status        `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	LastScannedAt *time.Time    `json:"last_scanned_at,omitempty"`
	Snapshot      *PageSnapshot `json:"raw_scan_data,omitempty"`
	SnapshotURL   string        `json:"snapshot_url,omitempty"`
}
