package collaboration

import (
	"context"

	"pagespace/internal/logging"
	"pagespace/internal/models"

	"github.com/rs/zerolog"
)

// PageStore is the slice of the persistence collaborator the realtime layer
// needs for page mutations. Not-found is signalled with an error matching
// repository.ErrNotFound, never an empty result.
type PageStore interface {
	CreatePage(ctx context.Context, in *models.PageCreate) (*models.Page, error)
	UpdatePage(ctx context.Context, id string, in *models.PageUpdate) (*models.Page, error)
	DeletePage(ctx context.Context, id string) error
}

// BlockStore is the block-mutation slice of the persistence collaborator.
type BlockStore interface {
	CreateBlock(ctx context.Context, in *models.BlockCreate) (*models.Block, error)
	UpdateBlock(ctx context.Context, id string, in *models.BlockUpdate) (*models.Block, error)
	DeleteBlock(ctx context.Context, id string) error
	ReorderBlocks(ctx context.Context, pageID string, blockIDs []string) error
}

// Hub owns all realtime session state: the connection registry, the two
// scope indices, and the ephemeral presence store. One Hub is created at
// server start and passed to the transport handler; there are no package
// level singletons.
type Hub struct {
	registry *Registry
	scopes   *ScopeIndex
	presence *PresenceStore
	router   *Router
	log      zerolog.Logger
}

// NewHub creates a hub wired to the given persistence collaborator.
func NewHub(pages PageStore, blocks BlockStore) *Hub {
	h := &Hub{
		registry: NewRegistry(),
		scopes:   NewScopeIndex(),
		presence: NewPresenceStore(),
		log:      *logging.WithComponent("collaboration"),
	}
	h.router = NewRouter(h, pages, blocks)
	return h
}

// Connect registers a freshly accepted connection with empty identity.
func (h *Hub) Connect(s *Session) {
	h.registry.Register(s.ID, s)
	h.log.Debug().Str("connection_id", s.ID).Int("connections", h.registry.Count()).Msg("connection registered")
}

// Identify attaches handshake identity to a connection. The cursor color is
// derived from the user id so it is stable across tabs and reconnects.
func (h *Hub) Identify(connID, userID, userName string) {
	h.registry.Identify(connID, userID, userName, colorForUser(userID))
}

// Disconnect tears a connection down across the registry, both scope
// indices, and (when it was the user's last connection on that page) the
// presence store, then broadcasts departure notices to the former scopes.
// Idempotent: a connection already removed produces no further broadcasts.
func (h *Hub) Disconnect(connID string) {
	sess, _ := h.registry.SessionOf(connID)
	snap := h.registry.Remove(connID)
	if snap == nil {
		return
	}
	if sess != nil {
		sess.close()
	}

	if snap.WorkspaceID != "" {
		h.scopes.LeaveWorkspace(snap.WorkspaceID, connID)
	}
	if snap.PageID != "" {
		h.scopes.LeavePage(snap.PageID, connID)
		if snap.UserID != "" && h.registry.UserConnectionsOnPage(snap.UserID, snap.PageID) == 0 {
			h.presence.ClearUserOnPage(snap.UserID, snap.PageID)
		}
	}

	if snap.UserID == "" {
		// Never identified; nobody saw this connection join.
		return
	}

	user := models.UserInfo{ID: snap.UserID, Name: snap.UserName, Color: snap.Color}
	if snap.WorkspaceID != "" {
		h.Broadcast(ScopeWorkspace, snap.WorkspaceID,
			outbound{Type: EvtUserLeft, Data: userEvent{User: user, WorkspaceID: snap.WorkspaceID}}.encode(), connID)
	}
	if snap.PageID != "" {
		h.Broadcast(ScopePage, snap.PageID,
			outbound{Type: EvtUserLeft, Data: userEvent{User: user, PageID: snap.PageID}}.encode(), connID)
	}

	h.log.Debug().
		Str("connection_id", connID).
		Str("user_id", snap.UserID).
		Int("connections", h.registry.Count()).
		Msg("connection removed")
}

// Broadcast fans payload out to every member of the scope except
// excludeConnID. Delivery is best-effort: a member whose send buffer is full
// or whose session is gone is evicted as an implicit disconnect.
func (h *Hub) Broadcast(kind ScopeKind, scopeID string, payload []byte, excludeConnID string) {
	var dead []string
	for _, connID := range h.scopes.MembersOf(kind, scopeID) {
		if connID == excludeConnID {
			continue
		}
		sess, ok := h.registry.SessionOf(connID)
		if !ok {
			// Scope entry without a registry entry; scrub it.
			h.leaveScope(kind, scopeID, connID)
			continue
		}
		if !sess.enqueue(payload) {
			dead = append(dead, connID)
		}
	}
	for _, connID := range dead {
		h.log.Warn().Str("connection_id", connID).Str("scope", kind.String()).Msg("send buffer full, evicting connection")
		h.Disconnect(connID)
	}
}

// Unicast sends payload to a single connection, evicting it on failure.
func (h *Hub) Unicast(connID string, payload []byte) {
	sess, ok := h.registry.SessionOf(connID)
	if !ok {
		return
	}
	if !sess.enqueue(payload) {
		h.Disconnect(connID)
	}
}

func (h *Hub) leaveScope(kind ScopeKind, scopeID, connID string) {
	if kind == ScopeWorkspace {
		h.scopes.LeaveWorkspace(scopeID, connID)
	} else {
		h.scopes.LeavePage(scopeID, connID)
	}
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	return h.registry.Count()
}

// Shutdown closes every live connection. Each session's read pump runs the
// normal disconnect teardown as its transport closes.
func (h *Hub) Shutdown() {
	sessions := h.registry.All()
	for _, s := range sessions {
		s.close()
	}
	h.log.Info().Int("connections", len(sessions)).Msg("hub shut down")
}
