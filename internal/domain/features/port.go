package features

import "context"

// Repository port (interface untuk persistence)
type Repository interface {
	Insert(ctx context.Context, f *Feature) error
	GetByTitle(ctx context.Context, scanID, title string) (*Feature, error)
	// Update applies only the provided fields; nil means leave unchanged.
	Update(ctx context.Context, id string, title, content *string) error
	// DeleteByTitle returns the number of rows removed; zero is not an error.
	DeleteByTitle(ctx context.Context, scanID, title string) (int64, error)
	ListByScan(ctx context.Context, scanID string) ([]*Feature, error)
}
