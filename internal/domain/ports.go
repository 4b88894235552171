package domain

import "context"

// NameRepository owns every persisted name record.
//
// CreateName inserts only when no row exists for the name and leaves an
// existing row untouched. MergeTexts is a single conditional update: it
// merges texts into the row only when the stored owner equals owner
// (case-insensitive) and reports whether a row was changed.
type NameRepository interface {
	GetName(ctx context.Context, name string) (NameRecord, error)
	GetNameByOwner(ctx context.Context, owner string) (string, error)
	CreateName(ctx context.Context, value NameRecord) error
	MergeTexts(ctx context.Context, name, owner string, texts map[string]string) (bool, error)
	ListNames(ctx context.Context, limit, offset int) ([]NameSummary, error)
}
