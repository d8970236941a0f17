package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

type BlockType string

const (
	BlockParagraph BlockType = "paragraph"
	BlockHeading   BlockType = "heading"
	BlockList      BlockType = "list"
	BlockTodo      BlockType = "todo"
	BlockCode      BlockType = "code"
	BlockDivider   BlockType = "divider"
)

// Block is one unit of page content. Blocks are ordered within their page by
// the Position column; reordering rewrites positions in a single transaction.
type Block struct {
	ID        string         `json:"id" gorm:"type:char(27);primaryKey"`
	PageID    string         `json:"page_id" gorm:"type:char(27);not null;index"`
	Type      BlockType      `json:"type" gorm:"type:varchar(32);not null;default:'paragraph'"`
	Content   string         `json:"content" gorm:"type:text"`
	Position  int            `json:"position" gorm:"not null;default:0"`
	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"column:deleted_at;index"`
}

func (b *Block) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ksuid.New().String()
	}
	return nil
}

type BlockCreate struct {
	PageID   string    `json:"page_id"`
	Type     BlockType `json:"type"`
	Content  string    `json:"content"`
	Position int       `json:"position"`
}

type BlockUpdate struct {
	Type     *BlockType `json:"type,omitempty"`
	Content  *string    `json:"content,omitempty"`
	Position *int       `json:"position,omitempty"`
}
