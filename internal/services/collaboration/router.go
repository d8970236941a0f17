package collaboration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pagespace/internal/logging"
	"pagespace/internal/middleware"
	"pagespace/internal/models"
	"pagespace/internal/repository"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Router dispatches inbound frames to typed handlers. Per-connection
// protocol state (anonymous, identified, in-workspace, in-page) is implicit
// in the registry fields; every handler re-reads a fresh snapshot, checks its
// precondition, and silently ignores frames the connection is not entitled
// to send yet.
//
// Mutating handlers follow request/confirm/broadcast: the persistence
// collaborator's return value is what gets broadcast, never the client's
// submitted payload. A collaborator failure becomes a unicast error to the
// requester; the rest of the scope receives nothing.
type Router struct {
	hub    *Hub
	pages  PageStore
	blocks BlockStore
	log    zerolog.Logger
}

func NewRouter(hub *Hub, pages PageStore, blocks BlockStore) *Router {
	return &Router{
		hub:    hub,
		pages:  pages,
		blocks: blocks,
		log:    *logging.WithComponent("collaboration.router"),
	}
}

// Dispatch decodes the envelope and routes by message type. Unknown types
// and unparseable frames produce a unicast error; the connection stays open.
func (r *Router) Dispatch(ctx context.Context, s *Session, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.sendError(s, "", "malformed message: invalid JSON")
		return
	}

	ctx, span := middleware.StartSpan(ctx, "Collaboration.Dispatch",
		attribute.String("message.type", env.Type),
		attribute.String("connection.id", s.ID),
	)
	defer span.End()

	switch env.Type {
	case MsgJoinWorkspace:
		r.handleJoinWorkspace(s, raw, env.RequestID)
	case MsgJoinPage:
		r.handleJoinPage(s, raw, env.RequestID)
	case MsgCursorMove, MsgCursorUpdate:
		r.handleCursorMove(s, raw)
	case MsgCursorHide:
		r.handleCursorHide(s)
	case MsgTypingStart:
		r.handleTyping(s, true)
	case MsgTypingStop:
		r.handleTyping(s, false)
	case MsgCreatePage:
		r.handleCreatePage(ctx, s, raw, env.RequestID)
	case MsgUpdatePage:
		r.handleUpdatePage(ctx, s, raw, env.RequestID)
	case MsgDeletePage:
		r.handleDeletePage(ctx, s, raw, env.RequestID)
	case MsgCreateBlock:
		r.handleCreateBlock(ctx, s, raw, env.RequestID)
	case MsgUpdateBlock:
		r.handleUpdateBlock(ctx, s, raw, env.RequestID)
	case MsgDeleteBlock:
		r.handleDeleteBlock(ctx, s, raw, env.RequestID)
	case MsgReorderBlocks:
		r.handleReorderBlocks(ctx, s, raw, env.RequestID)
	case MsgHeartbeat:
		r.hub.Unicast(s.ID, outbound{Type: EvtHeartbeatResponse, RequestID: env.RequestID}.encode())
	default:
		r.sendError(s, env.RequestID, fmt.Sprintf("unknown message type: %q", env.Type))
	}
}

func (r *Router) sendError(s *Session, requestID, msg string) {
	r.hub.Unicast(s.ID, outbound{Type: EvtError, Error: msg, RequestID: requestID}.encode())
}

// decodeInto unmarshals the full frame into the type-specific payload and
// reports malformed input to the sender.
func (r *Router) decodeInto(s *Session, raw []byte, requestID string, payload interface{}) bool {
	if err := json.Unmarshal(raw, payload); err != nil {
		r.sendError(s, requestID, "malformed message: "+err.Error())
		return false
	}
	return true
}

// --- presence handlers ------------------------------------------------------

func (r *Router) handleJoinWorkspace(s *Session, raw []byte, requestID string) {
	var p joinWorkspacePayload
	if !r.decodeInto(s, raw, requestID, &p) {
		return
	}
	if err := p.validate(); err != nil {
		r.sendError(s, requestID, err.Error())
		return
	}
	if p.UserName == "" {
		p.UserName = "Anonymous"
	}

	h := r.hub
	snap, ok := h.registry.Snapshot(s.ID)
	if !ok {
		return
	}

	// Switching workspaces implicitly leaves the previous page and
	// workspace so a connection is never in two scopes of a kind at once.
	if snap.WorkspaceID != "" && snap.WorkspaceID != p.WorkspaceID {
		r.leaveCurrentPage(s.ID, snap)
		h.scopes.LeaveWorkspace(snap.WorkspaceID, s.ID)
		h.registry.SetWorkspace(s.ID, "")
		if snap.UserID != "" {
			user := models.UserInfo{ID: snap.UserID, Name: snap.UserName, Color: snap.Color}
			h.Broadcast(ScopeWorkspace, snap.WorkspaceID,
				outbound{Type: EvtUserLeft, Data: userEvent{User: user, WorkspaceID: snap.WorkspaceID}}.encode(), s.ID)
		}
	}

	color := colorForUser(p.UserID)
	h.registry.Identify(s.ID, p.UserID, p.UserName, color)
	h.registry.SetWorkspace(s.ID, p.WorkspaceID)
	h.scopes.JoinWorkspace(p.WorkspaceID, s.ID)

	user := models.UserInfo{ID: p.UserID, Name: p.UserName, Color: color}
	h.Broadcast(ScopeWorkspace, p.WorkspaceID,
		outbound{Type: EvtUserJoined, Data: userEvent{User: user, WorkspaceID: p.WorkspaceID}}.encode(), s.ID)

	r.log.Debug().
		Str("connection_id", s.ID).
		Str("user_id", p.UserID).
		Str("workspace_id", p.WorkspaceID).
		Msg("joined workspace")
}

func (r *Router) handleJoinPage(s *Session, raw []byte, requestID string) {
	var p joinPagePayload
	if !r.decodeInto(s, raw, requestID, &p) {
		return
	}
	if err := p.validate(); err != nil {
		r.sendError(s, requestID, err.Error())
		return
	}

	h := r.hub
	snap, ok := h.registry.Snapshot(s.ID)
	if !ok || snap.UserID == "" {
		return
	}

	if snap.PageID != p.PageID {
		r.leaveCurrentPage(s.ID, snap)
	}

	h.registry.SetPage(s.ID, p.PageID)
	h.scopes.JoinPage(p.PageID, s.ID)
	h.presence.SetPresence(snap.UserID, &models.PresenceRecord{
		UserID:   snap.UserID,
		UserName: snap.UserName,
		Color:    snap.Color,
		PageID:   p.PageID,
		Status:   models.PresenceViewing,
		LastSeen: time.Now(),
	})

	user := models.UserInfo{ID: snap.UserID, Name: snap.UserName, Color: snap.Color}
	h.Broadcast(ScopePage, p.PageID,
		outbound{Type: EvtUserJoined, Data: userEvent{User: user, PageID: p.PageID}}.encode(), s.ID)

	// The requester gets the current page state so its UI can render the
	// cursors already there. Its own entries are excluded.
	h.Unicast(s.ID, outbound{Type: EvtPresenceState, Data: presenceStateEvent{
		PageID:   p.PageID,
		Cursors:  h.presence.CursorsForPage(p.PageID, snap.UserID),
		Presence: h.presence.PresenceForPage(p.PageID, snap.UserID),
	}, RequestID: requestID}.encode())
}

// leaveCurrentPage removes the connection from its current page scope,
// clears presence when it was the user's last connection there, and tells
// the page the user left. No-op when the connection has no page.
func (r *Router) leaveCurrentPage(connID string, snap ConnectionSnapshot) {
	if snap.PageID == "" {
		return
	}
	h := r.hub
	h.scopes.LeavePage(snap.PageID, connID)
	h.registry.SetPage(connID, "")
	if snap.UserID == "" {
		return
	}
	if h.registry.UserConnectionsOnPage(snap.UserID, snap.PageID) == 0 {
		h.presence.ClearUserOnPage(snap.UserID, snap.PageID)
	}
	user := models.UserInfo{ID: snap.UserID, Name: snap.UserName, Color: snap.Color}
	h.Broadcast(ScopePage, snap.PageID,
		outbound{Type: EvtUserLeft, Data: userEvent{User: user, PageID: snap.PageID}}.encode(), connID)
}

func (r *Router) handleCursorMove(s *Session, raw []byte) {
	var p cursorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		r.sendError(s, "", "malformed message: "+err.Error())
		return
	}

	h := r.hub
	snap, ok := h.registry.Snapshot(s.ID)
	if !ok || snap.UserID == "" || snap.PageID == "" {
		// Cursor before join_page is a client bug; drop it.
		return
	}

	cursor := &models.Cursor{
		UserID:    snap.UserID,
		UserName:  snap.UserName,
		Color:     snap.Color,
		PageID:    snap.PageID,
		X:         p.X,
		Y:         p.Y,
		BlockID:   p.BlockID,
		Selection: p.Selection,
		UpdatedAt: time.Now(),
	}
	h.presence.SetCursor(snap.UserID, cursor)
	h.presence.SetStatus(snap.UserID, models.PresenceActive)

	h.Broadcast(ScopePage, snap.PageID,
		outbound{Type: EvtCursorUpdate, Data: cursor}.encode(), s.ID)
}

func (r *Router) handleCursorHide(s *Session) {
	h := r.hub
	snap, ok := h.registry.Snapshot(s.ID)
	if !ok || snap.UserID == "" || snap.PageID == "" {
		return
	}
	h.presence.ClearCursor(snap.UserID)
	h.Broadcast(ScopePage, snap.PageID,
		outbound{Type: EvtCursorHide, Data: cursorHideEvent{UserID: snap.UserID, PageID: snap.PageID}}.encode(), s.ID)
}

func (r *Router) handleTyping(s *Session, isTyping bool) {
	h := r.hub
	snap, ok := h.registry.Snapshot(s.ID)
	if !ok || snap.UserID == "" || snap.WorkspaceID == "" {
		return
	}

	if isTyping {
		h.presence.SetStatus(snap.UserID, models.PresenceTyping)
	} else {
		h.presence.SetStatus(snap.UserID, models.PresenceActive)
	}

	user := models.UserInfo{ID: snap.UserID, Name: snap.UserName, Color: snap.Color}
	if snap.PageID != "" {
		h.Broadcast(ScopePage, snap.PageID,
			outbound{Type: EvtUserTyping, Data: typingEvent{User: user, PageID: snap.PageID, IsTyping: isTyping}}.encode(), s.ID)
		return
	}
	h.Broadcast(ScopeWorkspace, snap.WorkspaceID,
		outbound{Type: EvtUserTyping, Data: typingEvent{User: user, WorkspaceID: snap.WorkspaceID, IsTyping: isTyping}}.encode(), s.ID)
}

// --- persistence-backed handlers --------------------------------------------

func (r *Router) handleCreatePage(ctx context.Context, s *Session, raw []byte, requestID string) {
	var p createPagePayload
	if !r.decodeInto(s, raw, requestID, &p) {
		return
	}

	h := r.hub
	snap, ok := h.registry.Snapshot(s.ID)
	if !ok || snap.UserID == "" || snap.WorkspaceID == "" {
		return
	}
	if p.Title == "" {
		p.Title = "Untitled"
	}

	ctx, span := middleware.StartSpan(ctx, "Collaboration.CreatePage",
		attribute.String("workspace.id", snap.WorkspaceID))
	defer span.End()

	created, err := r.pages.CreatePage(ctx, &models.PageCreate{
		WorkspaceID: snap.WorkspaceID,
		Title:       p.Title,
		Icon:        p.Icon,
		CreatedBy:   snap.UserID,
	})
	if err != nil {
		middleware.AddSpanError(ctx, err)
		r.sendError(s, requestID, "failed to create page")
		return
	}

	// The persistence call may have interleaved with a disconnect; only a
	// still-registered requester triggers the broadcast.
	if _, ok := h.registry.Snapshot(s.ID); !ok {
		return
	}
	h.Broadcast(ScopeWorkspace, created.WorkspaceID,
		outbound{Type: EvtPageCreated, Data: created}.encode(), "")
}

func (r *Router) handleUpdatePage(ctx context.Context, s *Session, raw []byte, requestID string) {
	var p updatePagePayload
	if !r.decodeInto(s, raw, requestID, &p) {
		return
	}
	if err := p.validate(); err != nil {
		r.sendError(s, requestID, err.Error())
		return
	}

	h := r.hub
	snap, ok := h.registry.Snapshot(s.ID)
	if !ok || snap.UserID == "" {
		return
	}

	ctx, span := middleware.StartSpan(ctx, "Collaboration.UpdatePage",
		attribute.String("page.id", p.PageID))
	defer span.End()

	updated, err := r.pages.UpdatePage(ctx, p.PageID, &models.PageUpdate{Title: p.Title, Icon: p.Icon})
	if errors.Is(err, repository.ErrNotFound) {
		r.sendError(s, requestID, fmt.Sprintf("page not found: %s", p.PageID))
		return
	}
	if err != nil {
		middleware.AddSpanError(ctx, err)
		r.sendError(s, requestID, "failed to update page")
		return
	}

	if _, ok := h.registry.Snapshot(s.ID); !ok {
		return
	}
	h.Broadcast(ScopeWorkspace, updated.WorkspaceID,
		outbound{Type: EvtPageUpdated, Data: updated}.encode(), "")
}

func (r *Router) handleDeletePage(ctx context.Context, s *Session, raw []byte, requestID string) {
	var p deletePagePayload
	if !r.decodeInto(s, raw, requestID, &p) {
		return
	}
	if err := p.validate(); err != nil {
		r.sendError(s, requestID, err.Error())
		return
	}

	h := r.hub
	snap, ok := h.registry.Snapshot(s.ID)
	if !ok || snap.UserID == "" || snap.WorkspaceID == "" {
		return
	}

	ctx, span := middleware.StartSpan(ctx, "Collaboration.DeletePage",
		attribute.String("page.id", p.PageID))
	defer span.End()

	err := r.pages.DeletePage(ctx, p.PageID)
	if errors.Is(err, repository.ErrNotFound) {
		r.sendError(s, requestID, fmt.Sprintf("page not found: %s", p.PageID))
		return
	}
	if err != nil {
		middleware.AddSpanError(ctx, err)
		r.sendError(s, requestID, "failed to delete page")
		return
	}

	fresh, ok := h.registry.Snapshot(s.ID)
	if !ok {
		return
	}
	h.Broadcast(ScopeWorkspace, fresh.WorkspaceID,
		outbound{Type: EvtPageDeleted, Data: pageDeletedEvent{PageID: p.PageID}}.encode(), "")
}

func (r *Router) handleCreateBlock(ctx context.Context, s *Session, raw []byte, requestID string) {
	var p createBlockPayload
	if !r.decodeInto(s, raw, requestID, &p) {
		return
	}

	h := r.hub
	snap, ok := h.registry.Snapshot(s.ID)
	if !ok || snap.UserID == "" || snap.PageID == "" {
		return
	}

	ctx, span := middleware.StartSpan(ctx, "Collaboration.CreateBlock",
		attribute.String("page.id", snap.PageID))
	defer span.End()

	created, err := r.blocks.CreateBlock(ctx, &models.BlockCreate{
		PageID:   snap.PageID,
		Type:     p.Type,
		Content:  p.Content,
		Position: p.Position,
	})
	if err != nil {
		middleware.AddSpanError(ctx, err)
		r.sendError(s, requestID, "failed to create block")
		return
	}

	if _, ok := h.registry.Snapshot(s.ID); !ok {
		return
	}
	h.Broadcast(ScopePage, created.PageID,
		outbound{Type: EvtBlockCreated, Data: created}.encode(), "")
}

func (r *Router) handleUpdateBlock(ctx context.Context, s *Session, raw []byte, requestID string) {
	var p updateBlockPayload
	if !r.decodeInto(s, raw, requestID, &p) {
		return
	}
	if err := p.validate(); err != nil {
		r.sendError(s, requestID, err.Error())
		return
	}

	h := r.hub
	snap, ok := h.registry.Snapshot(s.ID)
	if !ok || snap.UserID == "" || snap.PageID == "" {
		return
	}

	ctx, span := middleware.StartSpan(ctx, "Collaboration.UpdateBlock",
		attribute.String("block.id", p.BlockID))
	defer span.End()

	updated, err := r.blocks.UpdateBlock(ctx, p.BlockID, &models.BlockUpdate{
		Type:     p.Type,
		Content:  p.Content,
		Position: p.Position,
	})
	if errors.Is(err, repository.ErrNotFound) {
		r.sendError(s, requestID, fmt.Sprintf("block not found: %s", p.BlockID))
		return
	}
	if err != nil {
		middleware.AddSpanError(ctx, err)
		r.sendError(s, requestID, "failed to update block")
		return
	}

	if _, ok := h.registry.Snapshot(s.ID); !ok {
		return
	}
	h.Broadcast(ScopePage, updated.PageID,
		outbound{Type: EvtBlockUpdated, Data: updated}.encode(), "")
}

func (r *Router) handleDeleteBlock(ctx context.Context, s *Session, raw []byte, requestID string) {
	var p deleteBlockPayload
	if !r.decodeInto(s, raw, requestID, &p) {
		return
	}
	if err := p.validate(); err != nil {
		r.sendError(s, requestID, err.Error())
		return
	}

	h := r.hub
	snap, ok := h.registry.Snapshot(s.ID)
	if !ok || snap.UserID == "" || snap.PageID == "" {
		return
	}

	ctx, span := middleware.StartSpan(ctx, "Collaboration.DeleteBlock",
		attribute.String("block.id", p.BlockID))
	defer span.End()

	err := r.blocks.DeleteBlock(ctx, p.BlockID)
	if errors.Is(err, repository.ErrNotFound) {
		r.sendError(s, requestID, fmt.Sprintf("block not found: %s", p.BlockID))
		return
	}
	if err != nil {
		middleware.AddSpanError(ctx, err)
		r.sendError(s, requestID, "failed to delete block")
		return
	}

	fresh, ok := h.registry.Snapshot(s.ID)
	if !ok {
		return
	}
	h.Broadcast(ScopePage, fresh.PageID,
		outbound{Type: EvtBlockDeleted, Data: blockDeletedEvent{BlockID: p.BlockID, PageID: fresh.PageID}}.encode(), "")
}

func (r *Router) handleReorderBlocks(ctx context.Context, s *Session, raw []byte, requestID string) {
	var p reorderBlocksPayload
	if !r.decodeInto(s, raw, requestID, &p) {
		return
	}
	if err := p.validate(); err != nil {
		r.sendError(s, requestID, err.Error())
		return
	}

	h := r.hub
	snap, ok := h.registry.Snapshot(s.ID)
	if !ok || snap.UserID == "" || snap.PageID == "" {
		return
	}
	pageID := p.PageID
	if pageID == "" {
		pageID = snap.PageID
	}

	ctx, span := middleware.StartSpan(ctx, "Collaboration.ReorderBlocks",
		attribute.String("page.id", pageID),
		attribute.Int("blocks", len(p.BlockIDs)))
	defer span.End()

	err := r.blocks.ReorderBlocks(ctx, pageID, p.BlockIDs)
	if errors.Is(err, repository.ErrNotFound) {
		r.sendError(s, requestID, fmt.Sprintf("cannot reorder blocks on page %s", pageID))
		return
	}
	if err != nil {
		middleware.AddSpanError(ctx, err)
		r.sendError(s, requestID, "failed to reorder blocks")
		return
	}

	if _, ok := h.registry.Snapshot(s.ID); !ok {
		return
	}
	// The sender receives this too: reordering changes layout for every
	// open view of the page, including the initiating one.
	h.Broadcast(ScopePage, pageID,
		outbound{Type: EvtBlocksReordered, Data: blocksReorderedEvent{PageID: pageID, BlockIDs: p.BlockIDs}}.encode(), "")
}
