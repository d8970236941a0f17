package collaboration

import (
	"sync"
	"time"

	"pagespace/internal/models"
)

// PresenceStore holds ephemeral per-user collaboration state: last known
// cursor and presence/typing status. Entries are keyed by user id, not
// connection id, so a second tab or a reconnect does not duplicate state.
type PresenceStore struct {
	mu       sync.RWMutex
	cursors  map[string]*models.Cursor
	presence map[string]*models.PresenceRecord
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{
		cursors:  make(map[string]*models.Cursor),
		presence: make(map[string]*models.PresenceRecord),
	}
}

func (p *PresenceStore) SetCursor(userID string, c *models.Cursor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursors[userID] = c
}

func (p *PresenceStore) ClearCursor(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cursors, userID)
}

// CursorsForPage returns copies of the cursors currently on pageID,
// excluding excludeUserID when non-empty (a user never receives their own
// cursor back).
func (p *PresenceStore) CursorsForPage(pageID, excludeUserID string) []*models.Cursor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*models.Cursor, 0, len(p.cursors))
	for userID, c := range p.cursors {
		if c.PageID != pageID {
			continue
		}
		if excludeUserID != "" && userID == excludeUserID {
			continue
		}
		cc := *c
		out = append(out, &cc)
	}
	return out
}

func (p *PresenceStore) SetPresence(userID string, rec *models.PresenceRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presence[userID] = rec
}

func (p *PresenceStore) ClearPresence(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.presence, userID)
}

// PresenceForPage returns copies of the presence records on pageID, with the
// same exclusion rule as CursorsForPage.
func (p *PresenceStore) PresenceForPage(pageID, excludeUserID string) []*models.PresenceRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*models.PresenceRecord, 0, len(p.presence))
	for userID, rec := range p.presence {
		if rec.PageID != pageID {
			continue
		}
		if excludeUserID != "" && userID == excludeUserID {
			continue
		}
		rc := *rec
		out = append(out, &rc)
	}
	return out
}

// SetStatus updates only the status and last-seen fields of an existing
// presence record. A no-op when the user has no record yet.
func (p *PresenceStore) SetStatus(userID string, status models.PresenceStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec, ok := p.presence[userID]; ok {
		rec.Status = status
		rec.LastSeen = time.Now()
	}
}

// ClearUserOnPage drops the user's cursor and presence entries only if they
// refer to pageID. Called when the user's last connection on that page goes
// away; entries the user has since created on another page are left alone.
func (p *PresenceStore) ClearUserOnPage(userID, pageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.cursors[userID]; ok && c.PageID == pageID {
		delete(p.cursors, userID)
	}
	if rec, ok := p.presence[userID]; ok && rec.PageID == pageID {
		delete(p.presence, userID)
	}
}

// Cursor returns a copy of the user's cursor, if any.
func (p *PresenceStore) Cursor(userID string) (models.Cursor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.cursors[userID]
	if !ok {
		return models.Cursor{}, false
	}
	return *c, true
}
