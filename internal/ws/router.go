package ws

import (
	"regexp"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/planning-poker/backend/internal/model"
	"github.com/planning-poker/backend/internal/room"
)

// roomIDPattern bounds the identifiers clients may create rooms under, so a
// misbehaving client cannot grow the store with garbage sessions.
var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// membership is the router's per-connection record of where a connection
// joined, needed to resolve the implicit disconnect event.
type membership struct {
	roomID        string
	participantID string
}

// Router maps inbound client events to store operations and triggers fan-out
// of the resulting snapshots. It holds no room state itself, only the
// connection registry.
type Router struct {
	store *room.Store
	hubs  *HubManager

	mu      sync.Mutex
	members map[*Client]membership
}

// NewRouter creates a new Router and installs the store hooks that broadcast
// each post-mutation snapshot in mutation order.
func NewRouter(store *room.Store, hubs *HubManager) *Router {
	rt := &Router{
		store:   store,
		hubs:    hubs,
		members: make(map[*Client]membership),
	}
	store.SetOnUpdate(rt.broadcastUpdate)
	store.SetOnDestroy(rt.roomDestroyed)
	return rt
}

// HandleMessage processes one inbound message from a client. Validation
// failures are acknowledged back to the originating connection only; nothing
// is broadcast and the store is left untouched.
func (rt *Router) HandleMessage(client *Client, msg *Message) {
	switch msg.Type {
	case MessageTypeJoin:
		rt.handleJoin(client, msg)
	case MessageTypeChangeRole:
		rt.handleChangeRole(client, msg)
	case MessageTypeSubmitVote:
		rt.handleSubmitVote(client, msg)
	case MessageTypeResetVotes:
		rt.handleResetVotes(client, msg)
	case MessageTypePing:
		client.SendMessage(&Message{Type: MessageTypePong})
	default:
		log.Debug().Str("conn", client.ID()).Str("event", string(msg.Type)).Msg("dropping unknown event")
	}
}

func (rt *Router) handleJoin(client *Client, msg *Message) {
	if !roomIDPattern.MatchString(msg.RoomID) {
		rt.reject(client, msg, model.ErrInvalidRoomID)
		return
	}
	role, err := model.ParseRole(msg.Role)
	if err != nil {
		rt.reject(client, msg, err)
		return
	}

	// A second join from the same connection moves it: leave the previous
	// room first so its participant does not linger until disconnect.
	rt.leaveCurrent(client)

	hub := rt.hubs.GetOrCreate(msg.RoomID)
	hub.Register(client)

	participantID, _ := rt.store.Join(msg.RoomID, msg.Name, role)

	rt.mu.Lock()
	rt.members[client] = membership{roomID: msg.RoomID, participantID: participantID}
	rt.mu.Unlock()

	client.SendMessage(&Message{Type: MessageTypeParticipantID, ParticipantID: participantID})
	log.Info().
		Str("conn", client.ID()).
		Str("room", msg.RoomID).
		Str("participant", participantID).
		Str("role", string(role)).
		Msg("participant joined")
}

func (rt *Router) handleChangeRole(client *Client, msg *Message) {
	if msg.Role == "" {
		rt.reject(client, msg, model.ErrInvalidRole)
		return
	}
	role, err := model.ParseRole(msg.Role)
	if err != nil {
		rt.reject(client, msg, err)
		return
	}

	if _, err := rt.store.ChangeRole(msg.RoomID, msg.ParticipantID, role); err != nil {
		rt.reject(client, msg, err)
	}
}

func (rt *Router) handleSubmitVote(client *Client, msg *Message) {
	if msg.Value == nil || !model.ValidVote(*msg.Value) {
		rt.reject(client, msg, model.ErrInvalidVote)
		return
	}

	// Voting eligibility is router policy: the store records observer votes
	// without complaint, so the role check happens here against a snapshot.
	snap, err := rt.store.Snapshot(msg.RoomID)
	if err != nil {
		rt.reject(client, msg, err)
		return
	}
	p, ok := snap.Participants[msg.ParticipantID]
	if !ok {
		rt.reject(client, msg, model.ErrParticipantNotFound)
		return
	}
	if p.Role == model.RoleObserver {
		rt.reject(client, msg, model.ErrObserverCannotVote)
		return
	}

	if _, err := rt.store.SubmitVote(msg.RoomID, msg.ParticipantID, *msg.Value); err != nil {
		rt.reject(client, msg, err)
	}
}

func (rt *Router) handleResetVotes(client *Client, msg *Message) {
	if _, err := rt.store.ResetVotes(msg.RoomID); err != nil {
		rt.reject(client, msg, err)
	}
}

// Disconnect handles the implicit transport-initiated disconnect event. It
// is an ordinary mutating event: the participant leaves their room, subject
// to the same per-room ordering as any other mutation.
func (rt *Router) Disconnect(client *Client) {
	rt.mu.Lock()
	m, joined := rt.members[client]
	delete(rt.members, client)
	rt.mu.Unlock()

	client.Close()
	if !joined {
		return
	}

	if hub := rt.hubs.Get(m.roomID); hub != nil {
		hub.Unregister(client)
	}

	if _, _, err := rt.store.Leave(m.roomID, m.participantID); err != nil {
		log.Debug().
			Str("conn", client.ID()).
			Str("room", m.roomID).
			Err(err).
			Msg("leave on disconnect targeted a missing room or participant")
		return
	}
	log.Info().
		Str("conn", client.ID()).
		Str("room", m.roomID).
		Str("participant", m.participantID).
		Msg("participant left")
}

// Membership reports the room and participant a connection is joined as.
func (rt *Router) Membership(client *Client) (roomID, participantID string, ok bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	m, ok := rt.members[client]
	return m.roomID, m.participantID, ok
}

// leaveCurrent removes a still-open connection from its current room, if any.
func (rt *Router) leaveCurrent(client *Client) {
	rt.mu.Lock()
	m, joined := rt.members[client]
	delete(rt.members, client)
	rt.mu.Unlock()

	if !joined {
		return
	}
	if hub := rt.hubs.Get(m.roomID); hub != nil {
		hub.Unregister(client)
	}
	rt.store.Leave(m.roomID, m.participantID)
}

// reject acknowledges a validation failure to the originating connection so
// stale clients can resynchronize. The event itself is dropped.
func (rt *Router) reject(client *Client, msg *Message, err error) {
	log.Debug().
		Str("conn", client.ID()).
		Str("event", string(msg.Type)).
		Str("room", msg.RoomID).
		Err(err).
		Msg("dropping invalid event")
	client.SendMessage(&Message{Type: MessageTypeError, Error: err.Error()})
}

// broadcastUpdate is installed as the store's OnUpdate hook. It only enqueues
// onto per-client buffers, so running under the room lock never blocks.
func (rt *Router) broadcastUpdate(roomID string, snap *model.Snapshot) {
	hub := rt.hubs.Get(roomID)
	if hub == nil {
		return
	}
	hub.BroadcastMessage(&Message{Type: MessageTypeRoomUpdate, Room: snap})
}

// roomDestroyed is installed as the store's OnDestroy hook. The hub is kept
// if a late joiner is already registered and about to recreate the room.
func (rt *Router) roomDestroyed(roomID string) {
	if rt.hubs.RemoveIfEmpty(roomID) {
		log.Info().Str("room", roomID).Msg("room destroyed")
	}
}
