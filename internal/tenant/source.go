package tenant

import (
	"context"
	"fmt"

	"go_seoindex/internal/model"

	"gorm.io/gorm"
)

// Source lists tenants eligible for indexing
type Source struct {
	db *gorm.DB
}

// NewSource creates a tenant source
func NewSource(db *gorm.DB) *Source {
	return &Source{db: db}
}

// ActiveSlugs returns the slugs of all active tenants ordered by id
func (s *Source) ActiveSlugs(ctx context.Context) ([]string, error) {
	var slugs []string
	if err := activeSlugs(s.db.WithContext(ctx)).Pluck("slug", &slugs).Error; err != nil {
		return nil, fmt.Errorf("failed to list active tenants: %w", err)
	}
	return slugs, nil
}

func activeSlugs(tx *gorm.DB) *gorm.DB {
	return tx.Model(&model.Tenant{}).
		Where("status = ?", model.TenantStatusActive).
		Where("slug <> ?", "").
		Order("id ASC")
}
