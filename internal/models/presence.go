package models

import "time"

// PresenceStatus is a user's current activity on a page.
type PresenceStatus string

const (
	PresenceActive  PresenceStatus = "active"
	PresenceTyping  PresenceStatus = "typing"
	PresenceViewing PresenceStatus = "viewing"
)

// UserInfo identifies a connected user on the wire. Color is derived from the
// user id so every tab of the same user renders the same cursor color.
type UserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Cursor is a user's last known cursor position on a page. It is keyed by
// user id, not connection id, so a reconnect or a second tab does not
// duplicate it.
type Cursor struct {
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Color     string    `json:"color"`
	PageID    string    `json:"page_id"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	BlockID   string    `json:"block_id,omitempty"`
	Selection string    `json:"selection,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PresenceRecord is a user's activity status on a page. Same keying and
// lifecycle as Cursor.
type PresenceRecord struct {
	UserID   string         `json:"user_id"`
	UserName string         `json:"user_name"`
	Color    string         `json:"color"`
	PageID   string         `json:"page_id"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"last_seen"`
}
