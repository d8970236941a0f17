package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// Page is a document inside a workspace, composed of ordered content blocks.
// The realtime layer uses the page id as its narrower broadcast scope.
type Page struct {
	ID          string         `json:"id" gorm:"type:char(27);primaryKey"`
	WorkspaceID string         `json:"workspace_id" gorm:"type:char(27);not null;index"`
	Title       string         `json:"title" gorm:"type:text;not null"`
	Icon        string         `json:"icon" gorm:"type:varchar(64)"`
	CreatedBy   string         `json:"created_by" gorm:"type:char(27)"`
	CreatedAt   time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt   gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"column:deleted_at;index"`
}

func (p *Page) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = ksuid.New().String()
	}
	return nil
}

type PageCreate struct {
	WorkspaceID string `json:"workspace_id"`
	Title       string `json:"title"`
	Icon        string `json:"icon"`
	CreatedBy   string `json:"created_by"`
}

type PageUpdate struct {
	Title *string `json:"title,omitempty"`
	Icon  *string `json:"icon,omitempty"`
}
