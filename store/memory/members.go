package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ministerio/gestao-engine/members"
)

// =============================================================================
// MEMBERS STORE
// =============================================================================

type Members struct {
	mu      sync.RWMutex
	members map[members.MemberID]members.Member
}

var _ members.Store = (*Members)(nil)

func NewMembers() *Members {
	return &Members{members: make(map[members.MemberID]members.Member)}
}

func (m *Members) InsertMember(_ context.Context, mem members.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[mem.ID]; ok {
		return fmt.Errorf("member %s already exists", mem.ID)
	}
	m.members[mem.ID] = mem
	return nil
}

func (m *Members) GetMember(_ context.Context, id members.MemberID) (*members.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[id]
	if !ok {
		return nil, nil
	}
	return &mem, nil
}

func (m *Members) ListMembers(_ context.Context) ([]members.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]members.Member, 0, len(m.members))
	for _, mem := range m.members {
		out = append(out, mem)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Members) SetMemberActive(_ context.Context, id members.MemberID, active bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[id]
	if !ok {
		return fmt.Errorf("member %s does not exist", id)
	}
	mem.Active = active
	mem.UpdatedAt = at
	m.members[id] = mem
	return nil
}
