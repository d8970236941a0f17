package collaboration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pagespace/internal/models"
	"pagespace/internal/repository"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fake persistence collaborator ------------------------------------------

type fakePageStore struct {
	mu    sync.Mutex
	pages map[string]*models.Page
	err   error
}

func newFakePageStore() *fakePageStore {
	return &fakePageStore{pages: make(map[string]*models.Page)}
}

func (f *fakePageStore) failWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakePageStore) CreatePage(ctx context.Context, in *models.PageCreate) (*models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := &models.Page{
		ID:          ksuid.New().String(),
		WorkspaceID: in.WorkspaceID,
		Title:       in.Title,
		Icon:        in.Icon,
		CreatedBy:   in.CreatedBy,
	}
	f.pages[p.ID] = p
	cp := *p
	return &cp, nil
}

func (f *fakePageStore) UpdatePage(ctx context.Context, id string, in *models.PageUpdate) (*models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.pages[id]
	if !ok {
		return nil, fmt.Errorf("page %s: %w", id, repository.ErrNotFound)
	}
	if in.Title != nil {
		p.Title = *in.Title
	}
	if in.Icon != nil {
		p.Icon = *in.Icon
	}
	cp := *p
	return &cp, nil
}

func (f *fakePageStore) DeletePage(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.pages[id]; !ok {
		return fmt.Errorf("page %s: %w", id, repository.ErrNotFound)
	}
	delete(f.pages, id)
	return nil
}

type fakeBlockStore struct {
	mu       sync.Mutex
	blocks   map[string]*models.Block
	reorders [][]string
	err      error
}

func newFakeBlockStore() *fakeBlockStore {
	return &fakeBlockStore{blocks: make(map[string]*models.Block)}
}

func (f *fakeBlockStore) seed(pageID string, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range ids {
		f.blocks[id] = &models.Block{ID: id, PageID: pageID, Type: models.BlockParagraph, Position: i}
	}
}

func (f *fakeBlockStore) CreateBlock(ctx context.Context, in *models.BlockCreate) (*models.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	b := &models.Block{
		ID:       ksuid.New().String(),
		PageID:   in.PageID,
		Type:     in.Type,
		Content:  in.Content,
		Position: in.Position,
	}
	if b.Type == "" {
		b.Type = models.BlockParagraph
	}
	f.blocks[b.ID] = b
	cb := *b
	return &cb, nil
}

func (f *fakeBlockStore) UpdateBlock(ctx context.Context, id string, in *models.BlockUpdate) (*models.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.blocks[id]
	if !ok {
		return nil, fmt.Errorf("block %s: %w", id, repository.ErrNotFound)
	}
	if in.Type != nil {
		b.Type = *in.Type
	}
	if in.Content != nil {
		b.Content = *in.Content
	}
	if in.Position != nil {
		b.Position = *in.Position
	}
	cb := *b
	return &cb, nil
}

func (f *fakeBlockStore) DeleteBlock(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.blocks[id]; !ok {
		return fmt.Errorf("block %s: %w", id, repository.ErrNotFound)
	}
	delete(f.blocks, id)
	return nil
}

func (f *fakeBlockStore) ReorderBlocks(ctx context.Context, pageID string, blockIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, id := range blockIDs {
		b, ok := f.blocks[id]
		if !ok || b.PageID != pageID {
			return fmt.Errorf("block %s on page %s: %w", id, pageID, repository.ErrNotFound)
		}
	}
	f.reorders = append(f.reorders, blockIDs)
	return nil
}

// --- helpers ----------------------------------------------------------------

func startCollabServer(t *testing.T, pages PageStore, blocks BlockStore) (wsURL string, hub *Hub) {
	t.Helper()
	hub = NewHub(pages, blocks)
	handler := NewWebSocketHandler(hub, 1024, 1024, 256)
	srv := httptest.NewServer(http.HandlerFunc(handler.HandleConnection))
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "dial %s", wsURL)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err, "reading event")
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func expectEvent(t *testing.T, conn *websocket.Conn, wantType string) map[string]interface{} {
	t.Helper()
	m := readEvent(t, conn)
	require.Equal(t, wantType, m["type"], "unexpected event: %v", m)
	return m
}

// expectSilence asserts no frame arrives within d. The read deadline leaves
// the connection unusable afterwards, so call it last on a connection.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(d))
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, got %s", raw)
	}
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout(), "expected read timeout, got %v", err)
}

func joinWorkspace(t *testing.T, conn *websocket.Conn, workspaceID, userID, userName string) {
	t.Helper()
	send(t, conn, map[string]interface{}{
		"type":         MsgJoinWorkspace,
		"workspace_id": workspaceID,
		"user_id":      userID,
		"user_name":    userName,
	})
}

// joinPage joins and consumes the presence_state reply so the connection's
// read stream stays aligned for the caller.
func joinPage(t *testing.T, conn *websocket.Conn, pageID string) map[string]interface{} {
	t.Helper()
	send(t, conn, map[string]interface{}{"type": MsgJoinPage, "page_id": pageID})
	return expectEvent(t, conn, EvtPresenceState)
}

func eventData(t *testing.T, m map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := m["data"].(map[string]interface{})
	require.True(t, ok, "event has no data object: %v", m)
	return data
}

// --- tests ------------------------------------------------------------------

func TestCursorMove_FansOutToPageExcludingSender(t *testing.T) {
	wsURL, _ := startCollabServer(t, newFakePageStore(), newFakeBlockStore())

	c1 := dial(t, wsURL)
	joinWorkspace(t, c1, "w1", "u1", "Alice")
	joinPage(t, c1, "p1")

	c2 := dial(t, wsURL)
	joinWorkspace(t, c2, "w1", "u2", "Bob")
	expectEvent(t, c1, EvtUserJoined) // Bob joined the workspace
	joinPage(t, c2, "p1")
	expectEvent(t, c1, EvtUserJoined) // Bob joined the page

	send(t, c1, map[string]interface{}{"type": MsgCursorMove, "x": 10, "y": 20})

	m := expectEvent(t, c2, EvtCursorUpdate)
	data := eventData(t, m)
	assert.Equal(t, "u1", data["user_id"])
	assert.Equal(t, float64(10), data["x"])
	assert.Equal(t, float64(20), data["y"])
	assert.Equal(t, "p1", data["page_id"])
	assert.NotEmpty(t, data["color"])

	// Self-exclusion: the sender gets nothing back.
	expectSilence(t, c1, 150*time.Millisecond)
}

func TestCursorMove_NeverLeaksAcrossPages(t *testing.T) {
	wsURL, _ := startCollabServer(t, newFakePageStore(), newFakeBlockStore())

	c1 := dial(t, wsURL)
	joinWorkspace(t, c1, "w1", "u1", "Alice")
	joinPage(t, c1, "p1")

	// Same workspace, different page.
	c3 := dial(t, wsURL)
	joinWorkspace(t, c3, "w1", "u3", "Carol")
	expectEvent(t, c1, EvtUserJoined)
	joinPage(t, c3, "p2")

	send(t, c1, map[string]interface{}{"type": MsgCursorMove, "x": 1, "y": 2})

	expectSilence(t, c3, 150*time.Millisecond)
}

func TestTwoTabs_CursorSurvivesFirstDisconnect(t *testing.T) {
	wsURL, hub := startCollabServer(t, newFakePageStore(), newFakeBlockStore())

	c1 := dial(t, wsURL)
	joinWorkspace(t, c1, "w1", "u1", "Alice")
	joinPage(t, c1, "p1")

	c2 := dial(t, wsURL)
	joinWorkspace(t, c2, "w1", "u1", "Alice")
	expectEvent(t, c1, EvtUserJoined)
	joinPage(t, c2, "p1")
	expectEvent(t, c1, EvtUserJoined)

	send(t, c1, map[string]interface{}{"type": MsgCursorMove, "x": 5, "y": 6})
	expectEvent(t, c2, EvtCursorUpdate)

	c1.Close()
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// The user still has a live tab on p1; the cursor must survive.
	require.Len(t, hub.presence.CursorsForPage("p1", ""), 1)

	c2.Close()
	require.Eventually(t, func() bool {
		return hub.ConnectionCount() == 0 && len(hub.presence.CursorsForPage("p1", "")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUpdatePage_NotFoundIsUnicastErrorWithoutBroadcast(t *testing.T) {
	wsURL, _ := startCollabServer(t, newFakePageStore(), newFakeBlockStore())

	c1 := dial(t, wsURL)
	joinWorkspace(t, c1, "w1", "u1", "Alice")
	c2 := dial(t, wsURL)
	joinWorkspace(t, c2, "w1", "u2", "Bob")
	expectEvent(t, c1, EvtUserJoined)

	send(t, c1, map[string]interface{}{
		"type":       MsgUpdatePage,
		"page_id":    "missing",
		"title":      "X",
		"request_id": "req-1",
	})

	m := expectEvent(t, c1, EvtError)
	assert.Contains(t, m["error"], "not found")
	assert.Equal(t, "req-1", m["request_id"])

	expectSilence(t, c2, 150*time.Millisecond)
}

func TestUpdatePage_BroadcastsServerConfirmedEntity(t *testing.T) {
	pages := newFakePageStore()
	wsURL, _ := startCollabServer(t, pages, newFakeBlockStore())

	c1 := dial(t, wsURL)
	joinWorkspace(t, c1, "w1", "u1", "Alice")
	c2 := dial(t, wsURL)
	joinWorkspace(t, c2, "w1", "u2", "Bob")
	expectEvent(t, c1, EvtUserJoined)

	seeded, err := pages.CreatePage(context.Background(), &models.PageCreate{WorkspaceID: "w1", Title: "Old"})
	require.NoError(t, err)

	send(t, c1, map[string]interface{}{
		"type":    MsgUpdatePage,
		"page_id": seeded.ID,
		"title":   "New title",
	})

	// Both workspace members receive the persisted entity, sender included.
	for _, conn := range []*websocket.Conn{c1, c2} {
		m := expectEvent(t, conn, EvtPageUpdated)
		data := eventData(t, m)
		assert.Equal(t, seeded.ID, data["id"])
		assert.Equal(t, "New title", data["title"])
		assert.Equal(t, "w1", data["workspace_id"])
	}
}

func TestCreatePage_FailureIsUnicastOnly(t *testing.T) {
	pages := newFakePageStore()
	wsURL, _ := startCollabServer(t, pages, newFakeBlockStore())

	c1 := dial(t, wsURL)
	joinWorkspace(t, c1, "w1", "u1", "Alice")
	c2 := dial(t, wsURL)
	joinWorkspace(t, c2, "w1", "u2", "Bob")
	expectEvent(t, c1, EvtUserJoined)

	pages.failWith(errors.New("database down"))
	send(t, c1, map[string]interface{}{"type": MsgCreatePage, "title": "Roadmap", "request_id": "req-7"})

	m := expectEvent(t, c1, EvtError)
	assert.Equal(t, "req-7", m["request_id"])
	expectSilence(t, c2, 150*time.Millisecond)
}

func TestReorderBlocks_BroadcastIncludesSender(t *testing.T) {
	blocks := newFakeBlockStore()
	blocks.seed("p1", "b1", "b2", "b3")
	wsURL, _ := startCollabServer(t, newFakePageStore(), blocks)

	c1 := dial(t, wsURL)
	joinWorkspace(t, c1, "w1", "u1", "Alice")
	joinPage(t, c1, "p1")
	c2 := dial(t, wsURL)
	joinWorkspace(t, c2, "w1", "u2", "Bob")
	expectEvent(t, c1, EvtUserJoined)
	joinPage(t, c2, "p1")
	expectEvent(t, c1, EvtUserJoined)

	send(t, c1, map[string]interface{}{
		"type":      MsgReorderBlocks,
		"page_id":   "p1",
		"block_ids": []string{"b3", "b1", "b2"},
	})

	for _, conn := range []*websocket.Conn{c1, c2} {
		m := expectEvent(t, conn, EvtBlocksReordered)
		data := eventData(t, m)
		assert.Equal(t, "p1", data["page_id"])
		assert.Equal(t, []interface{}{"b3", "b1", "b2"}, data["block_ids"])
	}

	blocks.mu.Lock()
	defer blocks.mu.Unlock()
	require.Len(t, blocks.reorders, 1)
}

func TestAbruptDisconnect_SingleUserLeftPerScope(t *testing.T) {
	wsURL, hub := startCollabServer(t, newFakePageStore(), newFakeBlockStore())

	c1 := dial(t, wsURL)
	joinWorkspace(t, c1, "w1", "u1", "Alice")
	joinPage(t, c1, "p1")
	c2 := dial(t, wsURL)
	joinWorkspace(t, c2, "w1", "u2", "Bob")
	expectEvent(t, c1, EvtUserJoined)
	joinPage(t, c2, "p1")
	expectEvent(t, c1, EvtUserJoined)

	// Abrupt transport loss for c1.
	c1.UnderlyingConn().Close()

	left := expectEvent(t, c2, EvtUserLeft)
	data := eventData(t, left)
	assert.Equal(t, "w1", data["workspace_id"])
	user, ok := data["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "u1", user["id"])

	left = expectEvent(t, c2, EvtUserLeft)
	data = eventData(t, left)
	assert.Equal(t, "p1", data["page_id"])

	require.Eventually(t, func() bool {
		return len(hub.scopes.MembersOf(ScopeWorkspace, "w1")) == 1 &&
			len(hub.scopes.MembersOf(ScopePage, "p1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Exactly once per scope: nothing further arrives.
	expectSilence(t, c2, 150*time.Millisecond)
}

func TestJoinPage_ImplicitlyLeavesPreviousPage(t *testing.T) {
	wsURL, hub := startCollabServer(t, newFakePageStore(), newFakeBlockStore())

	c1 := dial(t, wsURL)
	joinWorkspace(t, c1, "w1", "u1", "Alice")
	joinPage(t, c1, "p1")
	c2 := dial(t, wsURL)
	joinWorkspace(t, c2, "w1", "u2", "Bob")
	expectEvent(t, c1, EvtUserJoined)
	joinPage(t, c2, "p1")
	expectEvent(t, c1, EvtUserJoined)

	send(t, c1, map[string]interface{}{"type": MsgCursorMove, "x": 1, "y": 1})
	expectEvent(t, c2, EvtCursorUpdate)

	joinPage(t, c1, "p2")

	// The p1 members see Alice leave, and her p1 cursor is cleared.
	m := expectEvent(t, c2, EvtUserLeft)
	assert.Equal(t, "p1", eventData(t, m)["page_id"])
	assert.Empty(t, hub.presence.CursorsForPage("p1", ""))

	// Scope invariant: every member's registry entry matches the scope.
	for _, scope := range []struct {
		kind ScopeKind
		id   string
	}{{ScopePage, "p1"}, {ScopePage, "p2"}, {ScopeWorkspace, "w1"}} {
		for _, connID := range hub.scopes.MembersOf(scope.kind, scope.id) {
			snap, ok := hub.registry.Snapshot(connID)
			require.True(t, ok, "scope %s/%s holds unknown connection", scope.kind, scope.id)
			if scope.kind == ScopePage {
				assert.Equal(t, scope.id, snap.PageID)
			} else {
				assert.Equal(t, scope.id, snap.WorkspaceID)
			}
		}
	}
	assert.Len(t, hub.scopes.MembersOf(ScopePage, "p1"), 1)
	assert.Len(t, hub.scopes.MembersOf(ScopePage, "p2"), 1)
}

func TestJoinPage_SnapshotContainsExistingCursors(t *testing.T) {
	wsURL, _ := startCollabServer(t, newFakePageStore(), newFakeBlockStore())

	c1 := dial(t, wsURL)
	joinWorkspace(t, c1, "w1", "u1", "Alice")
	joinPage(t, c1, "p1")
	send(t, c1, map[string]interface{}{"type": MsgCursorMove, "x": 3, "y": 4})
	// Frames on one connection are handled in order, so the heartbeat reply
	// proves the cursor is stored before the second client joins.
	send(t, c1, map[string]interface{}{"type": MsgHeartbeat})
	expectEvent(t, c1, EvtHeartbeatResponse)

	c2 := dial(t, wsURL)
	joinWorkspace(t, c2, "w1", "u2", "Bob")
	expectEvent(t, c1, EvtUserJoined)

	state := joinPage(t, c2, "p1")
	data := eventData(t, state)
	cursors, ok := data["cursors"].([]interface{})
	require.True(t, ok)
	require.Len(t, cursors, 1)
	cursor := cursors[0].(map[string]interface{})
	assert.Equal(t, "u1", cursor["user_id"])
	assert.Equal(t, float64(3), cursor["x"])
}

func TestHeartbeat_EchoesRequestID(t *testing.T) {
	wsURL, _ := startCollabServer(t, newFakePageStore(), newFakeBlockStore())

	c1 := dial(t, wsURL)
	send(t, c1, map[string]interface{}{"type": MsgHeartbeat, "request_id": "hb-1"})

	m := expectEvent(t, c1, EvtHeartbeatResponse)
	assert.Equal(t, "hb-1", m["request_id"])
}

func TestUnknownType_ErrorKeepsConnectionOpen(t *testing.T) {
	wsURL, _ := startCollabServer(t, newFakePageStore(), newFakeBlockStore())

	c1 := dial(t, wsURL)
	send(t, c1, map[string]interface{}{"type": "bogus", "request_id": "r1"})

	m := expectEvent(t, c1, EvtError)
	assert.Contains(t, m["error"], "bogus")
	assert.Equal(t, "r1", m["request_id"])

	// Still alive.
	send(t, c1, map[string]interface{}{"type": MsgHeartbeat})
	expectEvent(t, c1, EvtHeartbeatResponse)
}

func TestMalformedFrame_ErrorKeepsConnectionOpen(t *testing.T) {
	wsURL, _ := startCollabServer(t, newFakePageStore(), newFakeBlockStore())

	c1 := dial(t, wsURL)
	require.NoError(t, c1.WriteMessage(websocket.TextMessage, []byte("{not json")))

	m := expectEvent(t, c1, EvtError)
	assert.Contains(t, m["error"], "malformed")

	send(t, c1, map[string]interface{}{"type": MsgHeartbeat})
	expectEvent(t, c1, EvtHeartbeatResponse)
}

func TestCursorBeforeJoin_SilentlyIgnored(t *testing.T) {
	wsURL, hub := startCollabServer(t, newFakePageStore(), newFakeBlockStore())

	c1 := dial(t, wsURL)
	send(t, c1, map[string]interface{}{"type": MsgCursorMove, "x": 9, "y": 9})

	// No state mutation and no reply; the connection just stays open.
	send(t, c1, map[string]interface{}{"type": MsgHeartbeat})
	expectEvent(t, c1, EvtHeartbeatResponse)
	assert.Empty(t, hub.presence.CursorsForPage("p1", ""))
}

func TestTyping_ScopedToPageWhenInPage(t *testing.T) {
	wsURL, _ := startCollabServer(t, newFakePageStore(), newFakeBlockStore())

	c1 := dial(t, wsURL)
	joinWorkspace(t, c1, "w1", "u1", "Alice")
	joinPage(t, c1, "p1")
	c2 := dial(t, wsURL)
	joinWorkspace(t, c2, "w1", "u2", "Bob")
	expectEvent(t, c1, EvtUserJoined)
	joinPage(t, c2, "p1")
	expectEvent(t, c1, EvtUserJoined)

	send(t, c1, map[string]interface{}{"type": MsgTypingStart})
	m := expectEvent(t, c2, EvtUserTyping)
	data := eventData(t, m)
	assert.Equal(t, true, data["is_typing"])
	assert.Equal(t, "p1", data["page_id"])

	send(t, c1, map[string]interface{}{"type": MsgTypingStop})
	m = expectEvent(t, c2, EvtUserTyping)
	assert.Equal(t, false, eventData(t, m)["is_typing"])
}

func TestCreateBlock_UsesConnectionPageContext(t *testing.T) {
	blocks := newFakeBlockStore()
	wsURL, _ := startCollabServer(t, newFakePageStore(), blocks)

	c1 := dial(t, wsURL)
	joinWorkspace(t, c1, "w1", "u1", "Alice")
	joinPage(t, c1, "p1")

	send(t, c1, map[string]interface{}{"type": MsgCreateBlock, "content": "hello", "position": 0})

	m := expectEvent(t, c1, EvtBlockCreated)
	data := eventData(t, m)
	assert.Equal(t, "p1", data["page_id"])
	assert.Equal(t, "hello", data["content"])
	assert.NotEmpty(t, data["id"])
}

func TestHandshakeIdentity_UsedWithoutJoinWorkspace(t *testing.T) {
	wsURL, hub := startCollabServer(t, newFakePageStore(), newFakeBlockStore())

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?user_id=u9&user_name=Eve", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Identity from the handshake lets the connection join a page directly.
	send(t, conn, map[string]interface{}{"type": MsgJoinPage, "page_id": "p1"})
	state := expectEvent(t, conn, EvtPresenceState)
	assert.Equal(t, "p1", eventData(t, state)["page_id"])
}
