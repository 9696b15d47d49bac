package scans

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/gherkin-agent/internal/domain/features"
	domain "github.com/bryanwahyu/gherkin-agent/internal/domain/scans"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// fakeScanRepo is an in-memory Repository that also records every status
// written, in order, so tests can assert lifecycle monotonicity.
type fakeScanRepo struct {
	mu            sync.Mutex
	scans         map[domain.ScanID]*domain.Scan
	statusHistory map[domain.ScanID][]domain.Status
}

func newFakeScanRepo() *fakeScanRepo {
	return &fakeScanRepo{
		scans:         make(map[domain.ScanID]*domain.Scan),
		statusHistory: make(map[domain.ScanID][]domain.Status),
	}
}

func (r *fakeScanRepo) Create(_ context.Context, s *domain.Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.scans[s.ID] = &cp
	r.statusHistory[s.ID] = append(r.statusHistory[s.ID], s.Status)
	return nil
}

func (r *fakeScanRepo) Get(_ context.Context, owner string, id domain.ScanID) (*domain.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok || s.UserID != owner {
		return nil, domain.ErrScanNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeScanRepo) UpdateStatus(_ context.Context, id domain.ScanID, status domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok {
		return domain.ErrScanNotFound
	}
	s.Status = status
	r.statusHistory[id] = append(r.statusHistory[id], status)
	return nil
}

func (r *fakeScanRepo) SetSnapshot(_ context.Context, id domain.ScanID, snap *domain.PageSnapshot, snapshotURL string, scannedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok {
		return domain.ErrScanNotFound
	}
	s.Snapshot = snap
	s.SnapshotURL = snapshotURL
	s.LastScannedAt = &scannedAt
	return nil
}

func (r *fakeScanRepo) Latest(_ context.Context, owner string, limit int) ([]*domain.Scan, error) {
	return nil, nil
}

func (r *fakeScanRepo) Paginate(_ context.Context, owner string, page, pageSize int, filters map[string]any) (domain.PaginatedResult, error) {
	return domain.PaginatedResult{}, nil
}

func (r *fakeScanRepo) Delete(_ context.Context, owner string, id domain.ScanID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok || s.UserID != owner {
		return false, nil
	}
	delete(r.scans, id)
	return true, nil
}

func (r *fakeScanRepo) history(id domain.ScanID) []domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Status(nil), r.statusHistory[id]...)
}

type fakeFeatureRepo struct {
	mu        sync.Mutex
	inserted  []*features.Feature
	failTitle string // Insert returns an error for this title
}

func (r *fakeFeatureRepo) Insert(_ context.Context, f *features.Feature) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTitle != "" && f.Title == r.failTitle {
		return errors.New("boom")
	}
	r.inserted = append(r.inserted, f)
	return nil
}

func (r *fakeFeatureRepo) GetByTitle(_ context.Context, scanID, title string) (*features.Feature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.inserted {
		if f.ScanID == scanID && f.Title == title {
			return f, nil
		}
	}
	return nil, features.ErrFeatureNotFound
}

func (r *fakeFeatureRepo) Update(_ context.Context, id string, title, content *string) error {
	return nil
}

func (r *fakeFeatureRepo) DeleteByTitle(_ context.Context, scanID, title string) (int64, error) {
	return 0, nil
}

func (r *fakeFeatureRepo) ListByScan(_ context.Context, scanID string) ([]*features.Feature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*features.Feature
	for _, f := range r.inserted {
		if f.ScanID == scanID {
			out = append(out, f)
		}
	}
	return out, nil
}

type fakeInspector struct {
	snap *domain.PageSnapshot
	err  error
}

func (i *fakeInspector) Inspect(_ context.Context, url string) (*domain.PageSnapshot, error) {
	return i.snap, i.err
}

type fakeSynthesizer struct {
	drafts   []features.Draft
	err      error
	lastSeen []*features.Feature
}

func (s *fakeSynthesizer) Synthesize(_ context.Context, url string, snap *domain.PageSnapshot, existing []*features.Feature) ([]features.Draft, error) {
	s.lastSeen = existing
	return s.drafts, s.err
}

func newTestService(scans *fakeScanRepo, feats *fakeFeatureRepo, insp *fakeInspector, synth *fakeSynthesizer) *Service {
	return &Service{
		Scans:       scans,
		Features:    feats,
		Inspector:   insp,
		Synthesizer: synth,
		Clock:       fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
}

func TestCreateNormalizesAndPersistsPending(t *testing.T) {
	repo := newFakeScanRepo()
	svc := newTestService(repo, &fakeFeatureRepo{}, &fakeInspector{}, &fakeSynthesizer{})

	scan, err := svc.Create(context.Background(), "alice", "//example.com/login")
	require.NoError(t, err)
	assert.NotEmpty(t, scan.ID)
	assert.Equal(t, "https://example.com/login", scan.URL)
	assert.Equal(t, domain.StatusPending, scan.Status)
	assert.Equal(t, "alice", scan.UserID)

	stored, err := repo.Get(context.Background(), "alice", scan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestCreateRejectsInvalidURL(t *testing.T) {
	svc := newTestService(newFakeScanRepo(), &fakeFeatureRepo{}, &fakeInspector{}, &fakeSynthesizer{})

	_, err := svc.Create(context.Background(), "alice", "not a url")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTriggerMarksProcessingBeforePipeline(t *testing.T) {
	repo := newFakeScanRepo()
	svc := newTestService(repo, &fakeFeatureRepo{}, &fakeInspector{}, &fakeSynthesizer{})

	scan, err := svc.Create(context.Background(), "alice", "https://example.com")
	require.NoError(t, err)

	got, err := svc.Trigger(context.Background(), "alice", scan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)

	stored, _ := repo.Get(context.Background(), "alice", scan.ID)
	assert.Equal(t, domain.StatusProcessing, stored.Status)
}

func TestTriggerRefusesWhileProcessing(t *testing.T) {
	repo := newFakeScanRepo()
	svc := newTestService(repo, &fakeFeatureRepo{}, &fakeInspector{}, &fakeSynthesizer{})

	scan, err := svc.Create(context.Background(), "alice", "https://example.com")
	require.NoError(t, err)
	_, err = svc.Trigger(context.Background(), "alice", scan.ID)
	require.NoError(t, err)

	_, err = svc.Trigger(context.Background(), "alice", scan.ID)
	assert.ErrorIs(t, err, domain.ErrScanBusy)
}

func TestTriggerEnforcesOwnership(t *testing.T) {
	repo := newFakeScanRepo()
	svc := newTestService(repo, &fakeFeatureRepo{}, &fakeInspector{}, &fakeSynthesizer{})

	scan, err := svc.Create(context.Background(), "alice", "https://example.com")
	require.NoError(t, err)

	_, err = svc.Trigger(context.Background(), "mallory", scan.ID)
	assert.ErrorIs(t, err, domain.ErrScanNotFound)
}

func TestRunHappyPath(t *testing.T) {
	repo := newFakeScanRepo()
	feats := &fakeFeatureRepo{}
	snap := &domain.PageSnapshot{
		Title:   "Login",
		Content: "Welcome back",
		InteractiveElements: []domain.InteractiveElement{
			{Tag: "input", Name: "email", Placeholder: "Email"},
			{Tag: "button", Text: "Sign in"},
		},
	}
	synth := &fakeSynthesizer{drafts: []features.Draft{
		{Title: "User login", Description: "Login flow", FilePath: "features/login.feature", Content: "Feature: User login"},
		{Title: "Password reset", Description: "Reset flow", FilePath: "features/reset.feature", Content: "Feature: Password reset"},
	}}
	svc := newTestService(repo, feats, &fakeInspector{snap: snap}, synth)

	scan, err := svc.Create(context.Background(), "alice", "https://example.com")
	require.NoError(t, err)
	_, err = svc.Trigger(context.Background(), "alice", scan.ID)
	require.NoError(t, err)

	svc.Run("alice", scan.ID, scan.URL)

	stored, err := repo.Get(context.Background(), "alice", scan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	require.NotNil(t, stored.Snapshot)
	assert.Equal(t, "Login", stored.Snapshot.Title)
	require.NotNil(t, stored.LastScannedAt)

	list, err := feats.ListByScan(context.Background(), string(scan.ID))
	require.NoError(t, err)
	assert.Len(t, list, 2)

	// pending -> processing -> completed, nothing else
	assert.Equal(t,
		[]domain.Status{domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted},
		repo.history(scan.ID))
}

func TestRunInspectionFailureMarksFailed(t *testing.T) {
	repo := newFakeScanRepo()
	svc := newTestService(repo, &fakeFeatureRepo{},
		&fakeInspector{err: domain.ErrNavigationFailed}, &fakeSynthesizer{})

	scan, _ := svc.Create(context.Background(), "alice", "https://example.com")
	_, err := svc.Trigger(context.Background(), "alice", scan.ID)
	require.NoError(t, err)

	svc.Run("alice", scan.ID, scan.URL)

	stored, _ := repo.Get(context.Background(), "alice", scan.ID)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestRunSynthesisFailureMarksFailed(t *testing.T) {
	repo := newFakeScanRepo()
	svc := newTestService(repo, &fakeFeatureRepo{},
		&fakeInspector{snap: &domain.PageSnapshot{Title: "t"}},
		&fakeSynthesizer{err: domain.ErrSynthesisSchema})

	scan, _ := svc.Create(context.Background(), "alice", "https://example.com")
	_, err := svc.Trigger(context.Background(), "alice", scan.ID)
	require.NoError(t, err)

	svc.Run("alice", scan.ID, scan.URL)

	stored, _ := repo.Get(context.Background(), "alice", scan.ID)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestRunSkipsFailedInsertAndCompletes(t *testing.T) {
	repo := newFakeScanRepo()
	feats := &fakeFeatureRepo{failTitle: "Broken"}
	synth := &fakeSynthesizer{drafts: []features.Draft{
		{Title: "Good", Description: "d", FilePath: "features/good.feature", Content: "Feature: Good"},
		{Title: "Broken", Description: "d", FilePath: "features/broken.feature", Content: "Feature: Broken"},
	}}
	svc := newTestService(repo, feats, &fakeInspector{snap: &domain.PageSnapshot{Title: "t"}}, synth)

	scan, _ := svc.Create(context.Background(), "alice", "https://example.com")
	_, err := svc.Trigger(context.Background(), "alice", scan.ID)
	require.NoError(t, err)

	svc.Run("alice", scan.ID, scan.URL)

	stored, _ := repo.Get(context.Background(), "alice", scan.ID)
	assert.Equal(t, domain.StatusCompleted, stored.Status)

	list, _ := feats.ListByScan(context.Background(), string(scan.ID))
	require.Len(t, list, 1)
	assert.Equal(t, "Good", list[0].Title)
}

func TestRescanFeedsExistingFeaturesToSynthesizer(t *testing.T) {
	repo := newFakeScanRepo()
	feats := &fakeFeatureRepo{}
	synth := &fakeSynthesizer{drafts: []features.Draft{
		{Title: "Second pass", Description: "d", FilePath: "features/a.feature", Content: "Feature: Second pass"},
	}}
	svc := newTestService(repo, feats, &fakeInspector{snap: &domain.PageSnapshot{Title: "t"}}, synth)

	scan, _ := svc.Create(context.Background(), "alice", "https://example.com")
	require.NoError(t, feats.Insert(context.Background(), &features.Feature{
		ID: "f1", ScanID: string(scan.ID), Title: "First pass", Content: "Feature: First pass",
	}))

	_, err := svc.Trigger(context.Background(), "alice", scan.ID)
	require.NoError(t, err)
	svc.Run("alice", scan.ID, scan.URL)

	require.Len(t, synth.lastSeen, 1)
	assert.Equal(t, "First pass", synth.lastSeen[0].Title)
}

func TestDeleteNotFound(t *testing.T) {
	svc := newTestService(newFakeScanRepo(), &fakeFeatureRepo{}, &fakeInspector{}, &fakeSynthesizer{})

	err := svc.Delete(context.Background(), "alice", "missing-id")
	assert.ErrorIs(t, err, domain.ErrScanNotFound)
}

func TestListFeaturesEnforcesOwnership(t *testing.T) {
	repo := newFakeScanRepo()
	feats := &fakeFeatureRepo{}
	svc := newTestService(repo, feats, &fakeInspector{}, &fakeSynthesizer{})

	scan, _ := svc.Create(context.Background(), "alice", "https://example.com")
	_, err := svc.ListFeatures(context.Background(), "mallory", scan.ID)
	assert.ErrorIs(t, err, domain.ErrScanNotFound)
}
