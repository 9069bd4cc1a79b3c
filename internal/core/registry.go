package core

import (
	"cmp"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Member is one registry entry as returned by Snapshot.
type Member struct {
	Conn     Conn
	Identity Identity
	seq      uint64
}

// Registry is the shared map from live connection to identity.
// Every read and write goes through its lock, and nothing is ever sent while it is held.
type Registry struct {
	mu      sync.RWMutex
	members map[Conn]Member
	nextSeq uint64
	log     *zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		members: make(map[Conn]Member),
		log:     orNop(logger),
	}
}

// Add registers conn under id. A handle that is already present is overwritten
// and keeps its join position; that should never happen and is logged.
func (r *Registry) Add(conn Conn, id Identity) (replaced bool) {
	r.mu.Lock()
	prev, replaced := r.members[conn]
	seq := prev.seq
	if !replaced {
		r.nextSeq++
		seq = r.nextSeq
	}
	r.members[conn] = Member{Conn: conn, Identity: id, seq: seq}
	r.mu.Unlock()

	if replaced {
		r.log.Warn().
			Str("conn_id", conn.ID()).
			Str("previous", prev.Identity.String()).
			Str("identity", id.String()).
			Msg("registry handle registered twice, overwriting")
	}
	return replaced
}

// Remove unregisters conn and returns the identity it held.
// Removing an absent handle is a no-op reported through ok == false.
func (r *Registry) Remove(conn Conn) (id Identity, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[conn]
	if !ok {
		return Identity{}, false
	}
	delete(r.members, conn)
	return m.Identity, true
}

// Lookup returns the identity registered for conn.
func (r *Registry) Lookup(conn Conn) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[conn]
	return m.Identity, ok
}

// Snapshot returns a point-in-time copy of all members in join order.
// The copy is safe to iterate without holding the registry lock.
func (r *Registry) Snapshot() []Member {
	r.mu.RLock()
	members := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m)
	}
	r.mu.RUnlock()

	slices.SortFunc(members, func(a, b Member) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return members
}

// Identities lists registered identities in join order.
func (r *Registry) Identities() []Identity {
	return lo.Map(r.Snapshot(), func(m Member, _ int) Identity {
		return m.Identity
	})
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func orNop(logger *zerolog.Logger) *zerolog.Logger {
	if logger != nil {
		return logger
	}
	nop := zerolog.Nop()
	return &nop
}
