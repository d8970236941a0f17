package collaboration

import "sync"

// ScopeKind selects which broadcast partition a scope id refers to.
type ScopeKind int

const (
	ScopeWorkspace ScopeKind = iota
	ScopePage
)

func (k ScopeKind) String() string {
	if k == ScopeWorkspace {
		return "workspace"
	}
	return "page"
}

// ScopeIndex maps workspace and page ids to the set of connection ids
// currently joined to them. Entries are created lazily on first join and
// removed when the member set becomes empty. Leaves are idempotent.
type ScopeIndex struct {
	mu         sync.RWMutex
	workspaces map[string]map[string]struct{}
	pages      map[string]map[string]struct{}
}

func NewScopeIndex() *ScopeIndex {
	return &ScopeIndex{
		workspaces: make(map[string]map[string]struct{}),
		pages:      make(map[string]map[string]struct{}),
	}
}

func (s *ScopeIndex) JoinWorkspace(workspaceID, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	join(s.workspaces, workspaceID, connID)
}

func (s *ScopeIndex) LeaveWorkspace(workspaceID, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	leave(s.workspaces, workspaceID, connID)
}

func (s *ScopeIndex) JoinPage(pageID, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	join(s.pages, pageID, connID)
}

func (s *ScopeIndex) LeavePage(pageID, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	leave(s.pages, pageID, connID)
}

// MembersOf returns a snapshot copy of the member set, safe to iterate while
// the broadcast engine prunes dead connections.
func (s *ScopeIndex) MembersOf(kind ScopeKind, scopeID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var set map[string]struct{}
	switch kind {
	case ScopeWorkspace:
		set = s.workspaces[scopeID]
	case ScopePage:
		set = s.pages[scopeID]
	}

	out := make([]string, 0, len(set))
	for connID := range set {
		out = append(out, connID)
	}
	return out
}

// Contains reports whether connID is a member of the given scope.
func (s *ScopeIndex) Contains(kind ScopeKind, scopeID, connID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var set map[string]struct{}
	if kind == ScopeWorkspace {
		set = s.workspaces[scopeID]
	} else {
		set = s.pages[scopeID]
	}
	_, ok := set[connID]
	return ok
}

func join(index map[string]map[string]struct{}, scopeID, connID string) {
	set, ok := index[scopeID]
	if !ok {
		set = make(map[string]struct{})
		index[scopeID] = set
	}
	set[connID] = struct{}{}
}

func leave(index map[string]map[string]struct{}, scopeID, connID string) {
	set, ok := index[scopeID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(index, scopeID)
	}
}
