package postgres

import (
	"context"

	"github.com/mnbf9rca/family-foqos-sub001/internal/domain"
	"gorm.io/gorm"
)

// LegacyStore pages through the retired legacy_session_entries table with a
// keyset cursor on the primary key.
type LegacyStore struct {
	db *gorm.DB
}

func NewLegacyStore(db *gorm.DB) *LegacyStore { return &LegacyStore{db: db} }

func (r *LegacyStore) List(ctx context.Context, cursor string, limit int) ([]domain.LegacyEntry, string, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []legacyEntryModel
	q := r.db.WithContext(ctx).Order("id asc").Limit(limit + 1)
	if cursor != "" {
		q = q.Where("id > ?", cursor)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, "", err
	}
	next := ""
	if len(models) > limit {
		models = models[:limit]
		next = models[len(models)-1].ID
	}
	out := make([]domain.LegacyEntry, 0, len(models))
	for _, m := range models {
		out = append(out, toDomainLegacy(m))
	}
	return out, next, nil
}

func (r *LegacyStore) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&legacyEntryModel{}).Error
}
