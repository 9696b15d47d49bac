package scans

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bryanwahyu/gherkin-agent/internal/application"
	"github.com/bryanwahyu/gherkin-agent/internal/domain/features"
	domain "github.com/bryanwahyu/gherkin-agent/internal/domain/scans"
)

// Recorder receives pipeline lifecycle counts. Implemented by the
// metrics middleware; nil disables recording.
type Recorder interface {
	ScanStarted()
	ScanSucceeded()
	ScanFailed()
}

// Service implements use-cases untuk Scan.
// Safe for concurrent use; all state lives behind the injected ports.
type Service struct {
	Scans       domain.Repository
	Features    features.Repository
	Inspector   domain.Inspector
	Synthesizer domain.Synthesizer
	Archive     domain.SnapshotArchive // optional
	Metrics     Recorder               // optional
	Clock       application.Clock
	Log         *slog.Logger
}

func (s *Service) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

//
// ==== USE CASES ====
//

// Create validates the URL and persists a new scan in pending state.
func (s *Service) Create(ctx context.Context, owner, rawURL string) (*domain.Scan, error) {
	target, err := domain.NormalizeTarget(rawURL)
	if err != nil {
		return nil, err
	}
	scan := &domain.Scan{
		ID:        domain.ScanID(uuid.New().String()),
		UserID:    owner,
		URL:       target,
		Status:    domain.StatusPending,
		CreatedAt: s.Clock.Now(),
	}
	if err := s.Scans.Create(ctx, scan); err != nil {
		return nil, err
	}
	return scan, nil
}

// Trigger moves the scan into processing, synchronously, before any
// long-running work starts, so polling clients observe progress. A scan
// already processing is refused rather than raced (see DESIGN.md).
func (s *Service) Trigger(ctx context.Context, owner string, id domain.ScanID) (*domain.Scan, error) {
	scan, err := s.Scans.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if scan.Status == domain.StatusProcessing {
		return nil, domain.ErrScanBusy
	}
	if !domain.CanTransition(scan.Status, domain.StatusProcessing) {
		return nil, fmt.Errorf("%w: %s → processing", domain.ErrInvalidTransition, scan.Status)
	}
	if err := s.Scans.UpdateStatus(ctx, id, domain.StatusProcessing); err != nil {
		return nil, err
	}
	scan.Status = domain.StatusProcessing
	return scan, nil
}

// RunDetached jalankan pipeline di background, lepas dari request yang men-trigger.
// Carries the owner forward explicitly; never relies on per-request state.
func (s *Service) RunDetached(owner string, id domain.ScanID, target string) {
	go s.Run(owner, id, target)
}

// Run executes the pipeline to completion: inspect → synthesize →
// persist features → archive snapshot → completed. Any failure marks
// the scan failed; errors never escape this boundary.
func (s *Service) Run(owner string, id domain.ScanID, target string) {
	ctx := context.Background()
	log := s.logger().With("scan_id", id, "url", target)

	if s.Metrics != nil {
		s.Metrics.ScanStarted()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("scan pipeline panic", "panic", r)
			s.fail(ctx, id)
		}
	}()

	log.Info("scan pipeline started")

	snap, err := s.Inspector.Inspect(ctx, target)
	if err != nil {
		log.Error("inspection failed", "error", err)
		s.fail(ctx, id)
		return
	}
	log.Info("inspection complete", "title", snap.Title, "elements", len(snap.InteractiveElements))

	// Existing features feed the prompt on re-scan so the model can
	// regenerate with context.
	existing, err := s.Features.ListByScan(ctx, string(id))
	if err != nil {
		log.Warn("could not load existing features for context", "error", err)
		existing = nil
	}

	drafts, err := s.Synthesizer.Synthesize(ctx, target, snap, existing)
	if err != nil {
		log.Error("synthesis failed", "error", err)
		s.fail(ctx, id)
		return
	}
	log.Info("synthesis complete", "features", len(drafts))

	// Individual insert failures are logged and skipped; a scan with
	// fewer features than generated is still a completed scan.
	saved := 0
	for _, d := range drafts {
		f := &features.Feature{
			ID:          uuid.New().String(),
			ScanID:      string(id),
			Title:       d.Title,
			Description: d.Description,
			FilePath:    d.FilePath,
			Content:     d.Content,
			CreatedAt:   s.Clock.Now(),
		}
		if err := s.Features.Insert(ctx, f); err != nil {
			log.Warn("feature insert skipped", "title", d.Title, "error", err)
			continue
		}
		saved++
	}
	log.Info("features persisted", "saved", saved, "generated", len(drafts))

	snapshotURL := s.archiveSnapshot(ctx, id, snap, log)

	now := s.Clock.Now()
	if err := s.Scans.SetSnapshot(ctx, id, snap, snapshotURL, now); err != nil {
		log.Warn("snapshot persist failed", "error", err)
	}

	if err := s.Scans.UpdateStatus(ctx, id, domain.StatusCompleted); err != nil {
		log.Error("status update failed", "error", err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.ScanSucceeded()
	}
	log.Info("scan completed")
}

// archiveSnapshot uploads the raw snapshot JSON as an artifact.
// Best-effort; archive failures never fail the scan.
func (s *Service) archiveSnapshot(ctx context.Context, id domain.ScanID, snap *domain.PageSnapshot, log *slog.Logger) string {
	if s.Archive == nil {
		return ""
	}
	data, err := json.Marshal(snap)
	if err != nil {
		log.Warn("snapshot marshal failed", "error", err)
		return ""
	}
	key := fmt.Sprintf("snapshots/%s.json", id)
	url, err := s.Archive.UploadSnapshot(ctx, key, data)
	if err != nil {
		log.Warn("snapshot archive failed", "error", err)
		return ""
	}
	return url
}

func (s *Service) fail(ctx context.Context, id domain.ScanID) {
	if err := s.Scans.UpdateStatus(ctx, id, domain.StatusFailed); err != nil {
		s.logger().Error("failed to mark scan failed", "scan_id", id, "error", err)
	}
	if s.Metrics != nil {
		s.Metrics.ScanFailed()
	}
}

// Get ambil 1 scan by id (owner-scoped)
func (s *Service) Get(ctx context.Context, owner string, id domain.ScanID) (*domain.Scan, error) {
	return s.Scans.Get(ctx, owner, id)
}

// Latest ambil N scan terakhir
func (s *Service) Latest(ctx context.Context, owner string, limit int) ([]*domain.Scan, error) {
	return s.Scans.Latest(ctx, owner, limit)
}

// Paginate with optional status / url-search filters
func (s *Service) Paginate(ctx context.Context, owner string, page, pageSize int, filters map[string]any) (domain.PaginatedResult, error) {
	return s.Scans.Paginate(ctx, owner, page, pageSize, filters)
}

// Features lists the persisted features of an owned scan.
func (s *Service) ListFeatures(ctx context.Context, owner string, id domain.ScanID) ([]*features.Feature, error) {
	if _, err := s.Scans.Get(ctx, owner, id); err != nil {
		return nil, err
	}
	return s.Features.ListByScan(ctx, string(id))
}

// Delete removes an owned scan; features go with it by cascade.
func (s *Service) Delete(ctx context.Context, owner string, id domain.ScanID) error {
	ok, err := s.Scans.Delete(ctx, owner, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrScanNotFound
	}
	return nil
}
