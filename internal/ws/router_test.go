package ws

import (
	"encoding/json"
	"testing"

	"github.com/planning-poker/backend/internal/model"
	"github.com/planning-poker/backend/internal/room"
)

// newTestClient builds a Client without a real WebSocket connection.
func newTestClient() *Client {
	return &Client{
		id:   newConnID(),
		conn: nil,
		send: make(chan []byte, 256),
	}
}

func newTestRouter() (*room.Store, *HubManager, *Router) {
	store := room.NewStore()
	hubs := NewHubManager()
	return store, hubs, NewRouter(store, hubs)
}

// drain decodes every message currently queued for the client.
func drain(t *testing.T, c *Client) []Message {
	t.Helper()
	var msgs []Message
	for {
		select {
		case data := <-c.send:
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("failed to unmarshal queued message: %v", err)
			}
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

// joinRoom drives a join event and returns the assigned participant ID.
func joinRoom(t *testing.T, rt *Router, c *Client, roomID, name, role string) string {
	t.Helper()
	rt.HandleMessage(c, &Message{Type: MessageTypeJoin, RoomID: roomID, Name: name, Role: role})

	var participantID string
	for _, msg := range drain(t, c) {
		if msg.Type == MessageTypeParticipantID {
			participantID = msg.ParticipantID
		}
	}
	if participantID == "" {
		t.Fatal("join should unicast a participantId")
	}
	return participantID
}

func intPtr(v int) *int { return &v }

func TestRouter_Join(t *testing.T) {
	_, hubs, rt := newTestRouter()

	alice := newTestClient()
	rt.HandleMessage(alice, &Message{Type: MessageTypeJoin, RoomID: "AB12", Name: "Alice", Role: "voter"})

	msgs := drain(t, alice)
	if len(msgs) != 2 {
		t.Fatalf("expected roomUpdate + participantId, got %d messages", len(msgs))
	}
	if msgs[0].Type != MessageTypeRoomUpdate {
		t.Errorf("first message should be roomUpdate, got %s", msgs[0].Type)
	}
	if msgs[1].Type != MessageTypeParticipantID || msgs[1].ParticipantID == "" {
		t.Errorf("second message should carry the participant ID, got %+v", msgs[1])
	}
	if msgs[0].Room == nil || msgs[0].Room.ShowResults {
		t.Error("initial snapshot should exist with results hidden")
	}

	if hub := hubs.Get("AB12"); hub == nil || hub.ClientCount() != 1 {
		t.Error("joining should register the connection with the room hub")
	}

	roomID, participantID, ok := rt.Membership(alice)
	if !ok || roomID != "AB12" || participantID != msgs[1].ParticipantID {
		t.Errorf("registry should map the connection to its join, got %s/%s ok=%v", roomID, participantID, ok)
	}

	t.Run("empty role defaults to voter", func(t *testing.T) {
		bob := newTestClient()
		id := joinRoom(t, rt, bob, "AB12", "Bob", "")
		snap, _ := rt.store.Snapshot("AB12")
		if snap.Participants[id].Role != model.RoleVoter {
			t.Errorf("expected default role voter, got %s", snap.Participants[id].Role)
		}
	})

	t.Run("join is broadcast to everyone already in the room", func(t *testing.T) {
		drain(t, alice)
		carol := newTestClient()
		joinRoom(t, rt, carol, "AB12", "Carol", "observer")

		msgs := drain(t, alice)
		if len(msgs) != 1 || msgs[0].Type != MessageTypeRoomUpdate {
			t.Fatalf("existing member should see exactly one roomUpdate, got %v", msgs)
		}
		if len(msgs[0].Room.Participants) != 3 {
			t.Errorf("snapshot should have 3 participants, got %d", len(msgs[0].Room.Participants))
		}
	})
}

func TestRouter_JoinValidation(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"malformed room id", Message{Type: MessageTypeJoin, RoomID: "no spaces!", Name: "A"}},
		{"empty room id", Message{Type: MessageTypeJoin, RoomID: "", Name: "A"}},
		{"oversized room id", Message{Type: MessageTypeJoin, RoomID: "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", Name: "A"}},
		{"bad role", Message{Type: MessageTypeJoin, RoomID: "ok", Name: "A", Role: "admin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _, rt := newTestRouter()
			c := newTestClient()
			rt.HandleMessage(c, &tt.msg)

			msgs := drain(t, c)
			if len(msgs) != 1 || msgs[0].Type != MessageTypeError {
				t.Fatalf("expected a single error ack, got %v", msgs)
			}
			if len(store.Rooms()) != 0 {
				t.Error("a rejected join must not create a room")
			}
			if _, _, ok := rt.Membership(c); ok {
				t.Error("a rejected join must not register the connection")
			}
		})
	}
}

func TestRouter_SubmitVote(t *testing.T) {
	_, _, rt := newTestRouter()

	alice := newTestClient()
	bob := newTestClient()
	p1 := joinRoom(t, rt, alice, "AB12", "Alice", "voter")
	p2 := joinRoom(t, rt, bob, "AB12", "Bob", "voter")
	drain(t, alice)
	drain(t, bob)

	t.Run("valid vote broadcasts the updated snapshot", func(t *testing.T) {
		rt.HandleMessage(alice, &Message{Type: MessageTypeSubmitVote, RoomID: "AB12", ParticipantID: p1, Value: intPtr(5)})

		for _, c := range []*Client{alice, bob} {
			msgs := drain(t, c)
			if len(msgs) != 1 || msgs[0].Type != MessageTypeRoomUpdate {
				t.Fatalf("expected one roomUpdate, got %v", msgs)
			}
			snap := msgs[0].Room
			if snap.Votes[p1] == nil || *snap.Votes[p1] != 5 {
				t.Error("snapshot should carry Alice's vote")
			}
			if snap.Votes[p2] != nil || snap.ShowResults {
				t.Error("Bob has not voted; results must stay hidden")
			}
		}
	})

	t.Run("final vote flips showResults", func(t *testing.T) {
		rt.HandleMessage(bob, &Message{Type: MessageTypeSubmitVote, RoomID: "AB12", ParticipantID: p2, Value: intPtr(8)})

		msgs := drain(t, alice)
		if len(msgs) != 1 || !msgs[0].Room.ShowResults {
			t.Fatalf("all voters voted; snapshot should show results, got %v", msgs)
		}
	})

	t.Run("out-of-scale value is rejected before the store", func(t *testing.T) {
		drain(t, bob)
		rt.HandleMessage(alice, &Message{Type: MessageTypeSubmitVote, RoomID: "AB12", ParticipantID: p1, Value: intPtr(4)})

		msgs := drain(t, alice)
		if len(msgs) != 1 || msgs[0].Type != MessageTypeError {
			t.Fatalf("expected an error ack, got %v", msgs)
		}
		if msgs := drain(t, bob); len(msgs) != 0 {
			t.Errorf("a rejected vote must not broadcast, got %v", msgs)
		}
		snap, _ := rt.store.Snapshot("AB12")
		if *snap.Votes[p1] != 5 {
			t.Error("the store must be untouched by a rejected vote")
		}
	})

	t.Run("missing value is rejected", func(t *testing.T) {
		rt.HandleMessage(alice, &Message{Type: MessageTypeSubmitVote, RoomID: "AB12", ParticipantID: p1})
		msgs := drain(t, alice)
		if len(msgs) != 1 || msgs[0].Type != MessageTypeError {
			t.Fatalf("expected an error ack, got %v", msgs)
		}
	})

	t.Run("observer vote is rejected by router policy", func(t *testing.T) {
		eve := newTestClient()
		o := joinRoom(t, rt, eve, "AB12", "Eve", "observer")
		drain(t, alice)
		drain(t, bob)
		drain(t, eve)

		rt.HandleMessage(eve, &Message{Type: MessageTypeSubmitVote, RoomID: "AB12", ParticipantID: o, Value: intPtr(3)})

		msgs := drain(t, eve)
		if len(msgs) != 1 || msgs[0].Type != MessageTypeError {
			t.Fatalf("expected an error ack, got %v", msgs)
		}
		snap, _ := rt.store.Snapshot("AB12")
		if snap.Votes[o] != nil {
			t.Error("a rejected observer vote must not be recorded")
		}
	})

	t.Run("stale participant is dropped with an ack", func(t *testing.T) {
		rt.HandleMessage(alice, &Message{Type: MessageTypeSubmitVote, RoomID: "AB12", ParticipantID: "ghost", Value: intPtr(5)})
		msgs := drain(t, alice)
		if len(msgs) != 1 || msgs[0].Type != MessageTypeError {
			t.Fatalf("expected an error ack, got %v", msgs)
		}
	})

	t.Run("stale room is dropped with an ack", func(t *testing.T) {
		rt.HandleMessage(alice, &Message{Type: MessageTypeSubmitVote, RoomID: "gone", ParticipantID: p1, Value: intPtr(5)})
		msgs := drain(t, alice)
		if len(msgs) != 1 || msgs[0].Type != MessageTypeError {
			t.Fatalf("expected an error ack, got %v", msgs)
		}
	})
}

func TestRouter_ChangeRole(t *testing.T) {
	_, _, rt := newTestRouter()

	alice := newTestClient()
	bob := newTestClient()
	p1 := joinRoom(t, rt, alice, "r", "Alice", "voter")
	p2 := joinRoom(t, rt, bob, "r", "Bob", "voter")
	rt.HandleMessage(alice, &Message{Type: MessageTypeSubmitVote, RoomID: "r", ParticipantID: p1, Value: intPtr(2)})
	drain(t, alice)
	drain(t, bob)

	t.Run("role change broadcasts and can reveal", func(t *testing.T) {
		rt.HandleMessage(bob, &Message{Type: MessageTypeChangeRole, RoomID: "r", ParticipantID: p2, Role: "observer"})

		msgs := drain(t, alice)
		if len(msgs) != 1 || msgs[0].Type != MessageTypeRoomUpdate {
			t.Fatalf("expected one roomUpdate, got %v", msgs)
		}
		if !msgs[0].Room.ShowResults {
			t.Error("demoting the unvoted voter should reveal results")
		}
	})

	t.Run("empty role is rejected", func(t *testing.T) {
		drain(t, bob)
		rt.HandleMessage(bob, &Message{Type: MessageTypeChangeRole, RoomID: "r", ParticipantID: p2})
		msgs := drain(t, bob)
		if len(msgs) != 1 || msgs[0].Type != MessageTypeError {
			t.Fatalf("expected an error ack, got %v", msgs)
		}
	})

	t.Run("unknown room is rejected", func(t *testing.T) {
		rt.HandleMessage(bob, &Message{Type: MessageTypeChangeRole, RoomID: "missing", ParticipantID: p2, Role: "voter"})
		msgs := drain(t, bob)
		if len(msgs) != 1 || msgs[0].Type != MessageTypeError {
			t.Fatalf("expected an error ack, got %v", msgs)
		}
	})
}

func TestRouter_ResetVotes(t *testing.T) {
	_, _, rt := newTestRouter()

	alice := newTestClient()
	p1 := joinRoom(t, rt, alice, "r", "Alice", "voter")
	rt.HandleMessage(alice, &Message{Type: MessageTypeSubmitVote, RoomID: "r", ParticipantID: p1, Value: intPtr(13)})
	drain(t, alice)

	rt.HandleMessage(alice, &Message{Type: MessageTypeResetVotes, RoomID: "r"})
	msgs := drain(t, alice)
	if len(msgs) != 1 || msgs[0].Type != MessageTypeRoomUpdate {
		t.Fatalf("expected one roomUpdate, got %v", msgs)
	}
	if msgs[0].Room.Votes[p1] != nil || msgs[0].Room.ShowResults {
		t.Error("reset should clear votes and hide results")
	}

	t.Run("unknown room is rejected", func(t *testing.T) {
		rt.HandleMessage(alice, &Message{Type: MessageTypeResetVotes, RoomID: "missing"})
		msgs := drain(t, alice)
		if len(msgs) != 1 || msgs[0].Type != MessageTypeError {
			t.Fatalf("expected an error ack, got %v", msgs)
		}
	})
}

func TestRouter_Disconnect(t *testing.T) {
	store, hubs, rt := newTestRouter()

	alice := newTestClient()
	bob := newTestClient()
	joinRoom(t, rt, alice, "r", "Alice", "voter")
	p2 := joinRoom(t, rt, bob, "r", "Bob", "voter")
	drain(t, alice)
	drain(t, bob)

	t.Run("disconnect leaves the room and broadcasts to the rest", func(t *testing.T) {
		rt.Disconnect(bob)

		msgs := drain(t, alice)
		if len(msgs) != 1 || msgs[0].Type != MessageTypeRoomUpdate {
			t.Fatalf("expected one roomUpdate, got %v", msgs)
		}
		if _, ok := msgs[0].Room.Participants[p2]; ok {
			t.Error("Bob should be gone from the snapshot")
		}
		if !bob.IsClosed() {
			t.Error("the disconnected client should be closed")
		}
		if _, _, ok := rt.Membership(bob); ok {
			t.Error("the registry entry should be cleared")
		}
		if hubs.Get("r").ClientCount() != 1 {
			t.Error("the hub should only hold Alice now")
		}
	})

	t.Run("last disconnect destroys the room and its hub", func(t *testing.T) {
		rt.Disconnect(alice)

		if len(store.Rooms()) != 0 {
			t.Error("the room should be destroyed")
		}
		if hubs.Get("r") != nil {
			t.Error("the hub should be removed with the room")
		}
	})

	t.Run("disconnect before join is a no-op", func(t *testing.T) {
		c := newTestClient()
		rt.Disconnect(c)
		if !c.IsClosed() {
			t.Error("the client should still be closed")
		}
	})
}

func TestRouter_RejoinMovesConnection(t *testing.T) {
	store, hubs, rt := newTestRouter()

	alice := newTestClient()
	joinRoom(t, rt, alice, "old", "Alice", "voter")
	drain(t, alice)

	p2 := joinRoom(t, rt, alice, "new", "Alice", "voter")

	if len(store.Rooms()) != 1 {
		t.Errorf("the emptied previous room should be destroyed, got %v", store.Rooms())
	}
	if hubs.Get("old") != nil {
		t.Error("the previous room's hub should be removed")
	}
	roomID, participantID, ok := rt.Membership(alice)
	if !ok || roomID != "new" || participantID != p2 {
		t.Errorf("registry should track the new room, got %s/%s", roomID, participantID)
	}
	if alice.IsClosed() {
		t.Error("moving rooms must not close the connection")
	}
}

func TestRouter_PingPong(t *testing.T) {
	_, _, rt := newTestRouter()
	c := newTestClient()

	rt.HandleMessage(c, &Message{Type: MessageTypePing})
	msgs := drain(t, c)
	if len(msgs) != 1 || msgs[0].Type != MessageTypePong {
		t.Fatalf("expected a pong, got %v", msgs)
	}
}

func TestRouter_UnknownEventIsDropped(t *testing.T) {
	_, _, rt := newTestRouter()
	c := newTestClient()

	rt.HandleMessage(c, &Message{Type: "upgrade"})
	if msgs := drain(t, c); len(msgs) != 0 {
		t.Errorf("unknown events are dropped silently, got %v", msgs)
	}
}
