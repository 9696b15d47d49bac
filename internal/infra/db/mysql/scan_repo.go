package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	domain "github.com/bryanwahyu/gherkin-agent/internal/domain/scans"
)

type ScanRepository struct {
	db *sql.DB
}

func NewScanRepository(db *sql.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

const scanColumns = `id, user_id, url, status, created_at, last_scanned_at, raw_scan_data, snapshot_url`

// Create insert Scan record baru (status pending)
func (r *ScanRepository) Create(ctx context.Context, s *domain.Scan) error {
	const q = `
INSERT INTO scans (id, user_id, url, status, created_at)
VALUES (?,?,?,?,?);
`
	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, s.ID, s.UserID, s.URL, s.Status, created)
	return err
}

// Get by ID + owner
func (r *ScanRepository) Get(ctx context.Context, owner string, id domain.ScanID) (*domain.Scan, error) {
	q := `SELECT ` + scanColumns + ` FROM scans WHERE user_id=? AND id=? LIMIT 1;`
	s, err := scanRow(r.db.QueryRowContext(ctx, q, owner, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrScanNotFound
	}
	return s, err
}

// UpdateStatus flips the lifecycle state of one scan.
func (r *ScanRepository) UpdateStatus(ctx context.Context, id domain.ScanID, status domain.Status) error {
	const q = `UPDATE scans SET status=? WHERE id=?;`
	_, err := r.db.ExecContext(ctx, q, status, id)
	return err
}

// SetSnapshot stores the raw inspection snapshot + artifact URL and
// stamps last_scanned_at.
func (r *ScanRepository) SetSnapshot(ctx context.Context, id domain.ScanID, snap *domain.PageSnapshot, snapshotURL string, scannedAt time.Time) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	const q = `UPDATE scans SET raw_scan_data=?, snapshot_url=?, last_scanned_at=? WHERE id=?;`
	_, err = r.db.ExecContext(ctx, q, data, nullString(snapshotURL), scannedAt, id)
	return err
}

// Latest scans per owner
func (r *ScanRepository) Latest(ctx context.Context, owner string, limit int) ([]*domain.Scan, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + scanColumns + ` FROM scans WHERE user_id=? ORDER BY created_at DESC LIMIT ?;`
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

	query := `SELECT ` + scanColumns + ` FROM scans WHERE user_id=?`
	args := []any{owner}

	if filters != nil {
		if v, ok := filters["status"]; ok {
			query += " AND status = ?"
			args = append(args, v)
		}
		if v, ok := filters["url"]; ok {
			// LIKE search on the target URL; escape wildcards first.
			term, _ := v.(string)
			query += " AND url LIKE ?"
			args = append(args, "%"+escapeLikePattern(term)+"%")
		}
	}

	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, pageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("querying scans: %w", err)
	}
	defer rows.Close()

	scans, err := scanRows(rows)
	if err != nil {
		return domain.PaginatedResult{}, err
	}

	total, err := r.count(ctx, owner, filters)
	if err != nil {
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

func (r *ScanRepository) count(ctx context.Context, owner string, filters map[string]any) (int64, error) {
	query := `SELECT COUNT(*) FROM scans WHERE user_id=?`
	args := []any{owner}
	if filters != nil {
		if v, ok := filters["status"]; ok {
			query += " AND status = ?"
			args = append(args, v)
		}
		if v, ok := filters["url"]; ok {
			term, _ := v.(string)
			query += " AND url LIKE ?"
			args = append(args, "%"+escapeLikePattern(term)+"%")
		}
	}
	var total int64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&total)
	return total, err
}

// Delete removes an owned scan; features cascade via FK.
func (r *ScanRepository) Delete(ctx context.Context, owner string, id domain.ScanID) (bool, error) {
	const q = `DELETE FROM scans WHERE user_id=? AND id=?;`
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
