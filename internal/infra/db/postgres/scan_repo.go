package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	domain "github.com/bryanwahyu/gherkin-agent/internal/domain/scans"
)

type ScanRepository struct{ db *sql.DB }

func NewScanRepository(db *sql.DB) *ScanRepository { return &ScanRepository{db: db} }

const scanColumns = `id, user_id, url, status, created_at, last_scanned_at, raw_scan_data, snapshot_url`

// Create insert Scan record baru (status pending)
func (r *ScanRepository) Create(ctx context.Context, s *domain.Scan) error {
	const q = `
INSERT INTO scans (id, user_id, url, status, created_at)
VALUES ($1,$2,$3,$4,$5);`
	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, s.ID, s.UserID, s.URL, s.Status, created)
	return err
}

// Get by ID + owner
func (r *ScanRepository) Get(ctx context.Context, owner string, id domain.ScanID) (*domain.Scan, error) {
	q := `SELECT ` + scanColumns + ` FROM scans WHERE user_id=$1 AND id=$2 LIMIT 1;`
	s, err := scanRow(r.db.QueryRowContext(ctx, q, owner, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrScanNotFound
	}
	return s, err
}

// UpdateStatus flips the lifecycle state of one scan.
func (r *ScanRepository) UpdateStatus(ctx context.Context, id domain.ScanID, status domain.Status) error {
	const q = `UPDATE scans SET status=$1 WHERE id=$2;`
	_, err := r.db.ExecContext(ctx, q, status, id)
	return err
}

// SetSnapshot stores the raw inspection snapshot + artifact URL.
func (r *ScanRepository) SetSnapshot(ctx context.Context, id domain.ScanID, snap *domain.PageSnapshot, snapshotURL string, scannedAt time.Time) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	const q = `UPDATE scans SET raw_scan_data=$1, snapshot_url=$2, last_scanned_at=$3 WHERE id=$4;`
	_, err = r.db.ExecContext(ctx, q, data, snapshotURL, scannedAt, id)
	return err
}

// Latest scans per owner
func (r *ScanRepository) Latest(ctx context.Context, owner string, limit int) ([]*domain.Scan, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + scanColumns + ` FROM scans WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// Paginate with offset + limit (classic pagination)
func (r *ScanRepository) Paginate(ctx context.Context, owner string, page, pageSize int, filters map[string]any) (domain.PaginatedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	where, args := buildFilter(owner, filters)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+scanColumns+` FROM scans `+where+
			fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2),
		append(args, pageSize, offset)...)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("querying scans: %w", err)
	}
	defer rows.Close()

	scans, err := scanRows(rows)
	if err != nil {
		return domain.PaginatedResult{}, err
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans `+where, args...).Scan(&total); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("getting total count: %w", err)
	}

	return domain.PaginatedResult{
		Data:       scans,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

func buildFilter(owner string, filters map[string]any) (string, []any) {
	where := "WHERE user_id=$1"
	args := []any{owner}
	if filters != nil {
		if v, ok := filters["status"]; ok {
			args = append(args, v)
			where += fmt.Sprintf(" AND status=$%d", len(args))
		}
		if v, ok := filters["url"]; ok {
			term, _ := v.(string)
			args = append(args, "%"+escapeLikePattern(term)+"%")
			where += fmt.Sprintf(" AND url LIKE $%d", len(args))
		}
	}
	return where, args
}

func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// Delete removes an owned scan; features cascade via FK.
func (r *ScanRepository) Delete(ctx context.Context, owner string, id domain.ScanID) (bool, error) {
	const q = `DELETE FROM scans WHERE user_id=$1 AND id=$2;`
	res, err := r.db.ExecContext(ctx, q, owner, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (*domain.Scan, error) {
	var s domain.Scan
	var last sql.NullTime
	var raw []byte
	var snapshotURL sql.NullString
	if err := row.Scan(&s.ID, &s.UserID, &s.URL, &s.Status, &s.CreatedAt, &last, &raw, &snapshotURL); err != nil {
		return nil, err
	}
	if last.Valid {
		t := last.Time
		s.LastScannedAt = &t
	}
	if len(raw) > 0 {
		var snap domain.PageSnapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			s.Snapshot = &snap
		}
	}
	s.SnapshotURL = snapshotURL.String
	return &s, nil
}

func scanRows(rows *sql.Rows) ([]*domain.Scan, error) {
	var out []*domain.Scan
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
