package repository

import (
	"context"
	"errors"
	"fmt"

	"pagespace/internal/models"

	"gorm.io/gorm"
)

// WorkspaceRepositoryImpl handles all database operations for workspaces.
type WorkspaceRepositoryImpl struct {
	db *gorm.DB
}

// NewWorkspaceRepository creates a new workspace repository.
func NewWorkspaceRepository(db *gorm.DB) *WorkspaceRepositoryImpl {
	return &WorkspaceRepositoryImpl{db: db}
}

func (r *WorkspaceRepositoryImpl) CreateWorkspace(ctx context.Context, in *models.WorkspaceCreate) (*models.Workspace, error) {
	ws := &models.Workspace{
		Name: in.Name,
		Icon: in.Icon,
	}
	if err := r.db.WithContext(ctx).Create(ws).Error; err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return ws, nil
}

func (r *WorkspaceRepositoryImpl) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	var ws models.Workspace
	err := r.db.WithContext(ctx).First(&ws, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("workspace %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return &ws, nil
}

func (r *WorkspaceRepositoryImpl) ListWorkspaces(ctx context.Context, limit, offset int) ([]*models.Workspace, error) {
	var workspaces []*models.Workspace
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&workspaces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	return workspaces, nil
}

func (r *WorkspaceRepositoryImpl) UpdateWorkspace(ctx context.Context, id string, in *models.WorkspaceUpdate) (*models.Workspace, error) {
	var ws models.Workspace
	if err := r.db.WithContext(ctx).First(&ws, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("workspace %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find workspace: %w", err)
	}

	updates := make(map[string]interface{})
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Icon != nil {
		updates["icon"] = *in.Icon
	}

	if err := r.db.WithContext(ctx).Model(&ws).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update workspace: %w", err)
	}
	return &ws, nil
}

func (r *WorkspaceRepositoryImpl) DeleteWorkspace(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.Workspace{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete workspace: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("workspace %s: %w", id, ErrNotFound)
	}
	return nil
}
