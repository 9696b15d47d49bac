package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	domain "github.com/bryanwahyu/gherkin-agent/internal/domain/features"
)

type FeatureRepository struct {
	db *sql.DB
}

func NewFeatureRepository(db *sql.DB) *FeatureRepository {
	return &FeatureRepository{db: db}
}

const featureColumns = `id, scan_id, title, description, file_path, content, created_at`

// Insert one feature. UNIQUE(scan_id, title) keeps title lookups
// unambiguous; violations surface as ErrDuplicateTitle.
func (r *FeatureRepository) Insert(ctx context.Context, f *domain.Feature) error {
	const q = `
INSERT INTO features (id, scan_id, title, description, file_path, content, created_at)
VALUES (?,?,?,?,?,?,?);
`
	_, err := r.db.ExecContext(ctx, q, f.ID, f.ScanID, f.Title, f.Description, f.FilePath, f.Content, f.CreatedAt)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return domain.ErrDuplicateTitle
		}
		return err
	}
	return nil
}

// GetByTitle: exact title match within a scan.
func (r *FeatureRepository) GetByTitle(ctx context.Context, scanID, title string) (*domain.Feature, error) {
	q := `SELECT ` + featureColumns + ` FROM features WHERE scan_id=? AND title=? LIMIT 1;`
	f, err := featureRow(r.db.QueryRowContext(ctx, q, scanID, title))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrFeatureNotFound
	}
	return f, err
}

// Update applies only the provided fields; nil leaves a column untouched.
func (r *FeatureRepository) Update(ctx context.Context, id string, title, content *string) error {
	sets := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if title != nil {
		sets = append(sets, "title=?")
		args = append(args, *title)
	}
	if content != nil {
		sets = append(sets, "content=?")
		args = append(args, *content)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	// Affected-rows is not checked: MySQL reports 0 when the new value
	// equals the old one, which is not an error here.
	q := "UPDATE features SET " + strings.Join(sets, ", ") + " WHERE id=?;"
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return domain.ErrDuplicateTitle
		}
		return err
	}
	return nil
}

// DeleteByTitle removes matching features; zero matches is a no-op.
func (r *FeatureRepository) DeleteByTitle(ctx context.Context, scanID, title string) (int64, error) {
	const q = `DELETE FROM features WHERE scan_id=? AND title=?;`
	res, err := r.db.ExecContext(ctx, q, scanID, title)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByScan returns every feature of a scan, oldest first.
func (r *FeatureRepository) ListByScan(ctx context.Context, scanID string) ([]*domain.Feature, error) {
	q := `SELECT ` + featureColumns + ` FROM features WHERE scan_id=? ORDER BY created_at ASC, title ASC;`
	rows, err := r.db.QueryContext(ctx, q, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Feature
	for rows.Next() {
		f, err := featureRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func featureRow(row rowScanner) (*domain.Feature, error) {
	var f domain.Feature
	if err := row.Scan(&f.ID, &f.ScanID, &f.Title, &f.Description, &f.FilePath, &f.Content, &f.CreatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}
