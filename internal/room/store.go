// Package room implements the authoritative in-memory state engine for
// planning-poker rooms: participants, votes, and the reveal rule.
package room

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/planning-poker/backend/internal/model"
)

// Store owns the mapping from room ID to room state. All records are private
// to the store; callers only ever receive detached snapshots. Construct one
// per process with NewStore and inject it where needed.
//
// Mutations on the same room are totally ordered by the room's lock; rooms
// are independent and mutate in parallel.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*room

	cbMu      sync.RWMutex
	onUpdate  func(roomID string, snap *model.Snapshot)
	onDestroy func(roomID string)
}

type room struct {
	mu sync.Mutex
	// closed marks a room removed from the store map. A caller that raced
	// the removal must treat the room as gone.
	closed       bool
	participants map[string]model.Participant
	votes        map[string]*int
	showResults  bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{rooms: make(map[string]*room)}
}

// SetOnUpdate sets the callback invoked after every successful mutation with
// the post-mutation snapshot. It runs while the room's lock is held, so
// mutation order and callback order agree; the callback must not block and
// must not call back into the store.
func (s *Store) SetOnUpdate(fn func(roomID string, snap *model.Snapshot)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onUpdate = fn
}

// SetOnDestroy sets the callback invoked when a room's last participant
// leaves and the room is garbage-collected. Same restrictions as SetOnUpdate.
func (s *Store) SetOnDestroy(fn func(roomID string)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onDestroy = fn
}

// Join adds a participant to the room, creating the room first if the ID is
// unknown. It returns the generated participant ID and the room snapshot.
// Join has no failure modes: joining a just-destroyed room recreates it.
func (s *Store) Join(roomID, name string, role model.Role) (string, *model.Snapshot) {
	r := s.getOrCreate(roomID)
	defer r.mu.Unlock()

	id := newParticipantID()
	for {
		if _, taken := r.participants[id]; !taken {
			break
		}
		id = newParticipantID()
	}

	r.participants[id] = model.Participant{Name: name, Role: role}
	r.votes[id] = nil
	r.recompute()

	snap := r.snapshot()
	s.publish(roomID, snap)
	return id, snap
}

// ChangeRole updates a participant's role in place. Switching a voter to
// observer can reveal already-cast votes; switching back can hide them again.
func (s *Store) ChangeRole(roomID, participantID string, role model.Role) (*model.Snapshot, error) {
	r := s.lookup(roomID)
	if r == nil {
		return nil, model.ErrRoomNotFound
	}
	defer r.mu.Unlock()

	p, ok := r.participants[participantID]
	if !ok {
		return nil, model.ErrParticipantNotFound
	}
	p.Role = role
	r.participants[participantID] = p
	r.recompute()

	snap := r.snapshot()
	s.publish(roomID, snap)
	return snap, nil
}

// SubmitVote records a participant's current estimate. The store accepts a
// vote from an observer (it simply never counts toward the reveal rule);
// voting eligibility and scale validation are router policy.
func (s *Store) SubmitVote(roomID, participantID string, value int) (*model.Snapshot, error) {
	r := s.lookup(roomID)
	if r == nil {
		return nil, model.ErrRoomNotFound
	}
	defer r.mu.Unlock()

	if _, ok := r.participants[participantID]; !ok {
		return nil, model.ErrParticipantNotFound
	}
	v := value
	r.votes[participantID] = &v
	r.recompute()

	snap := r.snapshot()
	s.publish(roomID, snap)
	return snap, nil
}

// ResetVotes clears every participant's vote, observers included, and forces
// results hidden. It is idempotent.
func (s *Store) ResetVotes(roomID string) (*model.Snapshot, error) {
	r := s.lookup(roomID)
	if r == nil {
		return nil, model.ErrRoomNotFound
	}
	defer r.mu.Unlock()

	for id := range r.votes {
		r.votes[id] = nil
	}
	r.showResults = false

	snap := r.snapshot()
	s.publish(roomID, snap)
	return snap, nil
}

// Leave removes the participant and their vote. When the last participant
// leaves the room is destroyed and Leave reports destroyed=true with a nil
// snapshot; there is nothing left to broadcast.
func (s *Store) Leave(roomID, participantID string) (snap *model.Snapshot, destroyed bool, err error) {
	r := s.lookup(roomID)
	if r == nil {
		return nil, false, model.ErrRoomNotFound
	}
	defer r.mu.Unlock()

	if _, ok := r.participants[participantID]; !ok {
		return nil, false, model.ErrParticipantNotFound
	}
	delete(r.participants, participantID)
	delete(r.votes, participantID)

	if len(r.participants) == 0 {
		r.closed = true
		s.mu.Lock()
		if s.rooms[roomID] == r {
			delete(s.rooms, roomID)
		}
		s.mu.Unlock()
		s.destroyedCallback(roomID)
		return nil, true, nil
	}

	r.recompute()
	snap = r.snapshot()
	s.publish(roomID, snap)
	return snap, false, nil
}

// Snapshot returns a detached copy of the room's current state. Read-only
// surfaces must observe the store through this, never a live reference.
func (s *Store) Snapshot(roomID string) (*model.Snapshot, error) {
	r := s.lookup(roomID)
	if r == nil {
		return nil, model.ErrRoomNotFound
	}
	defer r.mu.Unlock()
	return r.snapshot(), nil
}

// Info summarizes one live room for the read-only admin surface.
type Info struct {
	ID           string `json:"id"`
	Participants int    `json:"participants"`
	ShowResults  bool   `json:"showResults"`
}

// Rooms lists all live rooms, ordered by ID.
func (s *Store) Rooms() []Info {
	s.mu.RLock()
	ids := make([]string, 0, len(s.rooms))
	byID := make(map[string]*room, len(s.rooms))
	for id, r := range s.rooms {
		ids = append(ids, id)
		byID[id] = r
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	infos := make([]Info, 0, len(ids))
	for _, id := range ids {
		r := byID[id]
		r.mu.Lock()
		if !r.closed {
			infos = append(infos, Info{ID: id, Participants: len(r.participants), ShowResults: r.showResults})
		}
		r.mu.Unlock()
	}
	return infos
}

// getOrCreate returns the room locked, creating it if missing. A room marked
// closed by a concurrent Leave is retried until the map entry settles.
func (s *Store) getOrCreate(roomID string) *room {
	for {
		s.mu.Lock()
		r, ok := s.rooms[roomID]
		if !ok {
			r = &room{
				participants: make(map[string]model.Participant),
				votes:        make(map[string]*int),
			}
			s.rooms[roomID] = r
		}
		s.mu.Unlock()

		r.mu.Lock()
		if !r.closed {
			return r
		}
		r.mu.Unlock()
	}
}

// lookup returns the room locked, or nil if it does not exist.
func (s *Store) lookup(roomID string) *room {
	for {
		s.mu.RLock()
		r := s.rooms[roomID]
		s.mu.RUnlock()
		if r == nil {
			return nil
		}

		r.mu.Lock()
		if !r.closed {
			return r
		}
		r.mu.Unlock()
	}
}

func (s *Store) publish(roomID string, snap *model.Snapshot) {
	s.cbMu.RLock()
	fn := s.onUpdate
	s.cbMu.RUnlock()
	if fn != nil {
		fn(roomID, snap)
	}
}

func (s *Store) destroyedCallback(roomID string) {
	s.cbMu.RLock()
	fn := s.onDestroy
	s.cbMu.RUnlock()
	if fn != nil {
		fn(roomID)
	}
}

// recompute re-derives showResults from scratch after a mutation: visible
// iff the room has at least one voter and every voter has a set vote.
// Observer votes never count. Deliberately not incremental.
func (r *room) recompute() {
	voters := 0
	for id, p := range r.participants {
		if p.Role != model.RoleVoter {
			continue
		}
		voters++
		if r.votes[id] == nil {
			r.showResults = false
			return
		}
	}
	r.showResults = voters > 0
}

// snapshot deep-copies the room state. Vote values are copied so later
// mutations cannot reach a snapshot already handed out.
func (r *room) snapshot() *model.Snapshot {
	participants := make(map[string]model.Participant, len(r.participants))
	for id, p := range r.participants {
		participants[id] = p
	}
	votes := make(map[string]*int, len(r.votes))
	for id, v := range r.votes {
		if v == nil {
			votes[id] = nil
			continue
		}
		c := *v
		votes[id] = &c
	}
	return &model.Snapshot{
		Participants: participants,
		Votes:        votes,
		ShowResults:  r.showResults,
	}
}

// newParticipantID generates an opaque participant ID. IDs only need to be
// unique within a room; Join still regenerates on the off chance of a clash.
func newParticipantID() string {
	return uuid.New().String()
}
