package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	domain "github.com/bryanwahyu/gherkin-agent/internal/domain/features"
)

type FeatureRepository struct{ db *sql.DB }

func NewFeatureRepository(db *sql.DB) *FeatureRepository { return &FeatureRepository{db: db} }

const featureColumns = `id, scan_id, title, description, file_path, content, created_at`

// unique_violation
const pgDuplicateCode = "23505"

func isDuplicate(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgDuplicateCode
}

// Insert one feature; UNIQUE(scan_id, title) maps to ErrDuplicateTitle.
func (r *FeatureRepository) Insert(ctx context.Context, f *domain.Feature) error {
	const q = `
INSERT INTO features (id, scan_id, title, description, file_path, content, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`
	_, err := r.db.ExecContext(ctx, q, f.ID, f.ScanID, f.Title, f.Description, f.FilePath, f.Content, f.CreatedAt)
	if isDuplicate(err) {
		return domain.ErrDuplicateTitle
	}
	return err
}

// GetByTitle: exact title match within a scan.
func (r *FeatureRepository) GetByTitle(ctx context.Context, scanID, title string) (*domain.Feature, error) {
	q := `SELECT ` + featureColumns + ` FROM features WHERE scan_id=$1 AND title=$2 LIMIT 1;`
	var f domain.Feature
	err := r.db.QueryRowContext(ctx, q, scanID, title).
		Scan(&f.ID, &f.ScanID, &f.Title, &f.Description, &f.FilePath, &f.Content, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrFeatureNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Update applies only the provided fields; nil leaves a column untouched.
func (r *FeatureRepository) Update(ctx context.Context, id string, title, content *string) error {
	sets := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if title != nil {
		args = append(args, *title)
		sets = append(sets, fmt.Sprintf("title=$%d", len(args)))
	}
	if content != nil {
		args = append(args, *content)
		sets = append(sets, fmt.Sprintf("content=$%d", len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	q := "UPDATE features SET " + strings.Join(sets, ", ") + fmt.Sprintf(" WHERE id=$%d;", len(args))
	_, err := r.db.ExecContext(ctx, q, args...)
	if isDuplicate(err) {
		return domain.ErrDuplicateTitle
	}
	return err
}

// DeleteByTitle removes matching features; zero matches is a no-op.
func (r *FeatureRepository) DeleteByTitle(ctx context.Context, scanID, title string) (int64, error) {
	const q = `DELETE FROM features WHERE scan_id=$1 AND title=$2;`
	res, err := r.db.ExecContext(ctx, q, scanID, title)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByScan returns every feature of a scan, oldest first.
func (r *FeatureRepository) ListByScan(ctx context.Context, scanID string) ([]*domain.Feature, error) {
	q := `SELECT ` + featureColumns + ` FROM features WHERE scan_id=$1 ORDER BY created_at ASC, title ASC;`
	rows, err := r.db.QueryContext(ctx, q, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Feature
	for rows.Next() {
		var f domain.Feature
		if err := rows.Scan(&f.ID, &f.ScanID, &f.Title, &f.Description, &f.FilePath, &f.Content, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}
