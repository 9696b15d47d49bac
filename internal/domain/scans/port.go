package scans

import (
	"context"
	"time"

	"github.com/bryanwahyu/gherkin-agent/internal/domain/features"
)

// Repository port (interface untuk persistence)
type Repository interface {
	Create(ctx context.Context, s *Scan) error
	Get(ctx context.Context, owner string, id ScanID) (*Scan, error)
	UpdateStatus(ctx context.Context, id ScanID, status Status) error
	SetSnapshot(ctx context.Context, id ScanID, snap *PageSnapshot, snapshotURL string, scannedAt time.Time) error
	Latest(ctx context.Context, owner string, limit int) ([]*Scan, error)
	Paginate(ctx context.Context, owner string, page, pageSize int, filters map[string]any) (PaginatedResult, error)
	// Delete removes the scan and, by cascade, its features. Returns
	// false when no scan with that id exists for the owner.
	Delete(ctx context.Context, owner string, id ScanID) (bool, error)
}

// Inspector port: drives one isolated headless browsing session and
// returns the page snapshot. No retries; the caller decides retry policy.
type Inspector interface {
	Inspect(ctx context.Context, url string) (*PageSnapshot, error)
}

// Synthesizer port: turns an inspection snapshot (plus any existing
// features, for regeneration context) into validated feature drafts.
type Synthesizer interface {
	Synthesize(ctx context.Context, url string, snap *PageSnapshot, existing []*features.Feature) ([]features.Draft, error)
}

// SnapshotArchive port: optional artifact storage for raw snapshots.
type SnapshotArchive interface {
	UploadSnapshot(ctx context.Context, key string, data []byte) (string, error)
}
