package repository

import (
	"context"
	"errors"
	"fmt"

	"pagespace/internal/models"

	"gorm.io/gorm"
)

// BlockRepositoryImpl handles all database operations for content blocks.
type BlockRepositoryImpl struct {
	db *gorm.DB
}

// NewBlockRepository creates a new block repository.
func NewBlockRepository(db *gorm.DB) *BlockRepositoryImpl {
	return &BlockRepositoryImpl{db: db}
}

func (r *BlockRepositoryImpl) CreateBlock(ctx context.Context, in *models.BlockCreate) (*models.Block, error) {
	block := &models.Block{
		PageID:   in.PageID,
		Type:     in.Type,
		Content:  in.Content,
		Position: in.Position,
	}
	if block.Type == "" {
		block.Type = models.BlockParagraph
	}
	if err := r.db.WithContext(ctx).Create(block).Error; err != nil {
		return nil, fmt.Errorf("failed to create block: %w", err)
	}
	return block, nil
}

func (r *BlockRepositoryImpl) GetBlock(ctx context.Context, id string) (*models.Block, error) {
	var block models.Block
	err := r.db.WithContext(ctx).First(&block, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("block %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	return &block, nil
}

// ListBlocks returns the blocks of a page in display order.
func (r *BlockRepositoryImpl) ListBlocks(ctx context.Context, pageID string) ([]*models.Block, error) {
	var blocks []*models.Block
	err := r.db.WithContext(ctx).
		Where("page_id = ?", pageID).
		Order("position ASC").
		Find(&blocks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	return blocks, nil
}

func (r *BlockRepositoryImpl) UpdateBlock(ctx context.Context, id string, in *models.BlockUpdate) (*models.Block, error) {
	var block models.Block
	if err := r.db.WithContext(ctx).First(&block, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("block %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find block: %w", err)
	}

	updates := make(map[string]interface{})
	if in.Type != nil {
		updates["type"] = *in.Type
	}
	if in.Content != nil {
		updates["content"] = *in.Content
	}
	if in.Position != nil {
		updates["position"] = *in.Position
	}

	if err := r.db.WithContext(ctx).Model(&block).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update block: %w", err)
	}
	return &block, nil
}

func (r *BlockRepositoryImpl) DeleteBlock(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.Block{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete block: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("block %s: %w", id, ErrNotFound)
	}
	return nil
}

// ReorderBlocks rewrites the position column for every listed block in one
// transaction. Block ids that do not belong to the page fail the whole
// reorder.
func (r *BlockRepositoryImpl) ReorderBlocks(ctx context.Context, pageID string, blockIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, blockID := range blockIDs {
			result := tx.Model(&models.Block{}).
				Where("id = ? AND page_id = ?", blockID, pageID).
				Update("position", i)
			if result.Error != nil {
				return fmt.Errorf("failed to reorder block %s: %w", blockID, result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("block %s on page %s: %w", blockID, pageID, ErrNotFound)
			}
		}
		return nil
	})
}
