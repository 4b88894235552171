package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/PerkOS-xyz/UniPerk/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

type NameRepository struct {
	db *gorm.DB
}

func Open(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

func NewNameRepository(db *gorm.DB) *NameRepository {
	return &NameRepository{db: db}
}

func (r *NameRepository) GetName(ctx context.Context, name string) (domain.NameRecord, error) {
	var m NameModel
	err := r.db.WithContext(ctx).Where("name = ?", name).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NameRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.NameRecord{}, err
	}
	return toRecord(m), nil
}

// GetNameByOwner returns the earliest name registered by owner.
func (r *NameRepository) GetNameByOwner(ctx context.Context, owner string) (string, error) {
	var m NameModel
	err := r.db.WithContext(ctx).
		Select("id", "name").
		Where("lower(owner) = lower(?)", owner).
		Order("id ASC").
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return m.Name, nil
}

// CreateName inserts value unless the name already exists, in which case the
// stored row is left untouched.
func (r *NameRepository) CreateName(ctx context.Context, value domain.NameRecord) error {
	m := NameModel{
		Name:        value.Name,
		Owner:       value.Owner,
		Texts:       nonNil(value.Texts),
		Addresses:   nonNil(value.Addresses),
		Contenthash: value.Contenthash,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&m).Error
}

// MergeTexts applies texts as a JSON merge patch in one statement. It reports
// false when no row matches both name and owner.
func (r *NameRepository) MergeTexts(ctx context.Context, name, owner string, texts map[string]string) (bool, error) {
	patch, err := json.Marshal(texts)
	if err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).
		Model(&NameModel{}).
		Where("name = ? AND lower(owner) = lower(?)", name, owner).
		UpdateColumns(map[string]any{
			"texts":      gorm.Expr("json_patch(coalesce(texts, '{}'), ?)", string(patch)),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *NameRepository) ListNames(ctx context.Context, limit, offset int) ([]domain.NameSummary, error) {
	rows := make([]NameModel, 0)
	err := r.db.WithContext(ctx).
		Select("id", "name", "owner").
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make([]domain.NameSummary, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.NameSummary{Name: m.Name, Owner: m.Owner})
	}
	return result, nil
}

func toRecord(m NameModel) domain.NameRecord {
	return domain.NameRecord{
		ID:          m.ID,
		Name:        m.Name,
		Owner:       m.Owner,
		Texts:       nonNil(m.Texts),
		Addresses:   nonNil(m.Addresses),
		Contenthash: m.Contenthash,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
