package collaboration

import (
	"encoding/json"
	"fmt"

	"pagespace/internal/models"
)

// Inbound message types.
const (
	MsgJoinWorkspace = "join_workspace"
	MsgJoinPage      = "join_page"
	MsgCursorMove    = "cursor_move"
	MsgCursorUpdate  = "cursor_update"
	MsgCursorHide    = "cursor_hide"
	MsgTypingStart   = "typing_start"
	MsgTypingStop    = "typing_stop"
	MsgCreatePage    = "create_page"
	MsgUpdatePage    = "update_page"
	MsgDeletePage    = "delete_page"
	MsgCreateBlock   = "create_block"
	MsgUpdateBlock   = "update_block"
	MsgDeleteBlock   = "delete_block"
	MsgReorderBlocks = "reorder_blocks"
	MsgHeartbeat     = "heartbeat"
)

// Outbound message types.
const (
	EvtUserJoined        = "user_joined"
	EvtUserLeft          = "user_left"
	EvtCursorUpdate      = "cursor_update"
	EvtCursorHide        = "cursor_hide"
	EvtUserTyping        = "user_typing"
	EvtPresenceState     = "presence_state"
	EvtPageCreated       = "page_created"
	EvtPageUpdated       = "page_updated"
	EvtPageDeleted       = "page_deleted"
	EvtBlockCreated      = "block_created"
	EvtBlockUpdated      = "block_updated"
	EvtBlockDeleted      = "block_deleted"
	EvtBlocksReordered   = "blocks_reordered"
	EvtHeartbeatResponse = "heartbeat_response"
	EvtError             = "error"
)

// envelope carries the fields common to every inbound frame. The full frame
// is re-decoded into the type-specific payload struct after dispatch on Type.
type envelope struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
}

// outbound is the wire shape of every server-to-client message. Broadcasts
// never carry a request id; unicast responses echo the client's if present.
type outbound struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

func (o outbound) encode() []byte {
	b, err := json.Marshal(o)
	if err != nil {
		// Payloads are server-built structs; this cannot fail at runtime.
		panic(fmt.Sprintf("encode outbound %s: %v", o.Type, err))
	}
	return b
}

// Inbound payloads.

type joinWorkspacePayload struct {
	WorkspaceID string `json:"workspace_id"`
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
}

func (p *joinWorkspacePayload) validate() error {
	if p.WorkspaceID == "" {
		return fmt.Errorf("join_workspace: missing workspace_id")
	}
	if p.UserID == "" {
		return fmt.Errorf("join_workspace: missing user_id")
	}
	return nil
}

type joinPagePayload struct {
	PageID string `json:"page_id"`
}

func (p *joinPagePayload) validate() error {
	if p.PageID == "" {
		return fmt.Errorf("join_page: missing page_id")
	}
	return nil
}

type cursorPayload struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	BlockID   string  `json:"block_id,omitempty"`
	Selection string  `json:"selection,omitempty"`
}

type createPagePayload struct {
	Title string `json:"title"`
	Icon  string `json:"icon,omitempty"`
}

type updatePagePayload struct {
	PageID string  `json:"page_id"`
	Title  *string `json:"title,omitempty"`
	Icon   *string `json:"icon,omitempty"`
}

func (p *updatePagePayload) validate() error {
	if p.PageID == "" {
		return fmt.Errorf("update_page: missing page_id")
	}
	return nil
}

type deletePagePayload struct {
	PageID string `json:"page_id"`
}

func (p *deletePagePayload) validate() error {
	if p.PageID == "" {
		return fmt.Errorf("delete_page: missing page_id")
	}
	return nil
}

type createBlockPayload struct {
	Type     models.BlockType `json:"block_type,omitempty"`
	Content  string           `json:"content"`
	Position int              `json:"position"`
}

type updateBlockPayload struct {
	BlockID  string            `json:"block_id"`
	Type     *models.BlockType `json:"block_type,omitempty"`
	Content  *string           `json:"content,omitempty"`
	Position *int              `json:"position,omitempty"`
}

func (p *updateBlockPayload) validate() error {
	if p.BlockID == "" {
		return fmt.Errorf("update_block: missing block_id")
	}
	return nil
}

type deleteBlockPayload struct {
	BlockID string `json:"block_id"`
}

func (p *deleteBlockPayload) validate() error {
	if p.BlockID == "" {
		return fmt.Errorf("delete_block: missing block_id")
	}
	return nil
}

type reorderBlocksPayload struct {
	PageID   string   `json:"page_id,omitempty"`
	BlockIDs []string `json:"block_ids"`
}

func (p *reorderBlocksPayload) validate() error {
	if len(p.BlockIDs) == 0 {
		return fmt.Errorf("reorder_blocks: missing block_ids")
	}
	return nil
}

// Outbound payloads.

type userEvent struct {
	User        models.UserInfo `json:"user"`
	WorkspaceID string          `json:"workspace_id,omitempty"`
	PageID      string          `json:"page_id,omitempty"`
}

type cursorHideEvent struct {
	UserID string `json:"user_id"`
	PageID string `json:"page_id"`
}

type typingEvent struct {
	User        models.UserInfo `json:"user"`
	WorkspaceID string          `json:"workspace_id,omitempty"`
	PageID      string          `json:"page_id,omitempty"`
	IsTyping    bool            `json:"is_typing"`
}

type presenceStateEvent struct {
	PageID   string                   `json:"page_id"`
	Cursors  []*models.Cursor         `json:"cursors"`
	Presence []*models.PresenceRecord `json:"presence"`
}

type pageDeletedEvent struct {
	PageID string `json:"page_id"`
}

type blockDeletedEvent struct {
	BlockID string `json:"block_id"`
	PageID  string `json:"page_id"`
}

type blocksReorderedEvent struct {
	PageID   string   `json:"page_id"`
	BlockIDs []string `json:"block_ids"`
}
