package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// Workspace is the top-level tenant container. Pages belong to exactly one
// workspace, and the realtime layer uses the workspace id as its wider
// broadcast scope.
type Workspace struct {
	ID        string         `json:"id" gorm:"type:char(27);primaryKey"`
	Name      string         `json:"name" gorm:"type:text;not null"`
	Icon      string         `json:"icon" gorm:"type:varchar(64)"`
	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"column:deleted_at;index"`
}

// BeforeCreate hook generates a KSUID before inserting.
func (w *Workspace) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = ksuid.New().String()
	}
	return nil
}

type WorkspaceCreate struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

type WorkspaceUpdate struct {
	Name *string `json:"name,omitempty"`
	Icon *string `json:"icon,omitempty"`
}
