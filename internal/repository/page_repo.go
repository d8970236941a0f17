package repository

import (
	"context"
	"errors"
	"fmt"

	"pagespace/internal/models"

	"gorm.io/gorm"
)

// PageRepositoryImpl handles all database operations for pages.
// The realtime layer consumes it through the collaboration.PageStore
// interface; the REST handlers use the concrete type directly.
type PageRepositoryImpl struct {
	db *gorm.DB
}

// NewPageRepository creates a new page repository.
func NewPageRepository(db *gorm.DB) *PageRepositoryImpl {
	return &PageRepositoryImpl{db: db}
}

func (r *PageRepositoryImpl) CreatePage(ctx context.Context, in *models.PageCreate) (*models.Page, error) {
	page := &models.Page{
		WorkspaceID: in.WorkspaceID,
		Title:       in.Title,
		Icon:        in.Icon,
		CreatedBy:   in.CreatedBy,
	}
	if err := r.db.WithContext(ctx).Create(page).Error; err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return page, nil
}

func (r *PageRepositoryImpl) GetPage(ctx context.Context, id string) (*models.Page, error) {
	var page models.Page
	err := r.db.WithContext(ctx).First(&page, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("page %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	return &page, nil
}

// ListPages returns the pages of a workspace, newest first (KSUIDs are
// time-ordered, so sorting by id sorts by creation time).
func (r *PageRepositoryImpl) ListPages(ctx context.Context, workspaceID string, limit, offset int) ([]*models.Page, error) {
	var pages []*models.Page
	err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&pages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	return pages, nil
}

func (r *PageRepositoryImpl) UpdatePage(ctx context.Context, id string, in *models.PageUpdate) (*models.Page, error) {
	var page models.Page
	if err := r.db.WithContext(ctx).First(&page, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("page %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find page: %w", err)
	}

	updates := make(map[string]interface{})
	if in.Title != nil {
		updates["title"] = *in.Title
	}
	if in.Icon != nil {
		updates["icon"] = *in.Icon
	}

	if err := r.db.WithContext(ctx).Model(&page).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update page: %w", err)
	}
	return &page, nil
}

// DeletePage soft-deletes the page and its blocks.
func (r *PageRepositoryImpl) DeletePage(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.Page{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete page: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("page %s: %w", id, ErrNotFound)
		}
		if err := tx.Delete(&models.Block{}, "page_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete page blocks: %w", err)
		}
		return nil
	})
}
