package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/syncrospace/office-server/internal/chat"
	"github.com/syncrospace/office-server/internal/office"
	"nhooyr.io/websocket"
)

func newTestStack(t *testing.T) (*office.Manager, *httptest.Server) {
	t.Helper()
	reg := NewRegistry()
	manager := office.NewManager(chat.NewMemoryStore(), func(roomID string) office.Sender {
		return reg.RoomSender(roomID)
	})
	t.Cleanup(manager.Shutdown)

	handler := NewHandler(manager, reg, nil)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return manager, ts
}

// sendJoin writes the join envelope for the given room.
func sendJoin(t *testing.T, conn *websocket.Conn, payload map[string]any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal join payload: %v", err)
	}
	env, err := json.Marshal(Envelope{Type: "join", Payload: data})
	if err != nil {
		t.Fatalf("marshal join envelope: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, env); err != nil {
		t.Fatalf("write join: %v", err)
	}
}

// readUntil reads envelopes until one of the given type arrives,
// skipping everything else (proximity ticks in particular).
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		_, data, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("read while waiting for %s: %v", eventType, err)
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.Type == eventType {
			return env.Payload
		}
	}
	t.Fatalf("never received %s", eventType)
	return nil
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env, err := json.Marshal(Envelope{Type: msgType, Payload: data})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, env); err != nil {
		t.Fatalf("write envelope: %v", err)
	}
}

// expectRejected reads past the error envelope and asserts the server
// closed the connection with a policy violation.
func expectRejected(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusPolicyViolation {
				t.Errorf("expected policy violation close, got %v (%v)", status, err)
			}
			return
		}
		var env Envelope
		if jsonErr := json.Unmarshal(data, &env); jsonErr != nil || env.Type != "error" {
			t.Fatalf("expected an error envelope before close, got %s", data)
		}
	}
}

func TestJoinUnknownRoomRejected(t *testing.T) {
	_, ts := newTestStack(t)

	conn := dialWS(t, ts.URL)
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendJoin(t, conn, map[string]any{"room_id": "nope"})
	expectRejected(t, conn)
}

func TestJoinPasswordGate(t *testing.T) {
	manager, ts := newTestStack(t)
	room := manager.Create(office.Settings{Name: "Locked", Password: "s3cret"})

	wrong := dialWS(t, ts.URL)
	defer wrong.Close(websocket.StatusNormalClosure, "")
	sendJoin(t, wrong, map[string]any{"room_id": room.ID(), "password": "nope"})
	expectRejected(t, wrong)

	right := dialWS(t, ts.URL)
	defer right.Close(websocket.StatusNormalClosure, "")
	sendJoin(t, right, map[string]any{"room_id": room.ID(), "password": "s3cret", "username": "Alice"})

	// A successful join hands the client the global chat history.
	payload := readUntil(t, right, office.EvtGetGlobalChat)
	var history []*chat.Message
	if err := json.Unmarshal(payload, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history) != 1 || history[0].Type != chat.TypePlayerJoined {
		t.Errorf("expected own join message in history, got %+v", history)
	}
}

func TestJoinFirstMessageMustBeJoin(t *testing.T) {
	_, ts := newTestStack(t)

	conn := dialWS(t, ts.URL)
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendEnvelope(t, conn, "UPDATE_PLAYER", map[string]any{"x": 1})
	expectRejected(t, conn)
}

func TestJoinFullRoomRejected(t *testing.T) {
	manager, ts := newTestStack(t)
	room := manager.Create(office.Settings{Name: "Tiny", MaxPlayers: 1})

	first := dialWS(t, ts.URL)
	defer first.Close(websocket.StatusNormalClosure, "")
	sendJoin(t, first, map[string]any{"room_id": room.ID(), "username": "Alice"})
	readUntil(t, first, office.EvtGetGlobalChat)

	second := dialWS(t, ts.URL)
	defer second.Close(websocket.StatusNormalClosure, "")
	sendJoin(t, second, map[string]any{"room_id": room.ID(), "username": "Bob"})
	expectRejected(t, second)
}

func TestGlobalChatFanout(t *testing.T) {
	manager, ts := newTestStack(t)
	room := manager.Create(office.Settings{Name: "Chatty"})

	alice := dialWS(t, ts.URL)
	defer alice.Close(websocket.StatusNormalClosure, "")
	sendJoin(t, alice, map[string]any{"room_id": room.ID(), "username": "Alice"})
	readUntil(t, alice, office.EvtGetGlobalChat)

	bob := dialWS(t, ts.URL)
	defer bob.Close(websocket.StatusNormalClosure, "")
	sendJoin(t, bob, map[string]any{"room_id": room.ID(), "username": "Bob"})
	readUntil(t, bob, office.EvtGetGlobalChat)

	sendEnvelope(t, alice, office.MsgSendGlobalMessage, map[string]any{
		"username": "Alice", "message": "hello everyone",
	})

	payload := readUntil(t, bob, office.EvtNewGlobalMessage)
	var m chat.Message
	if err := json.Unmarshal(payload, &m); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	// Bob also sees Alice's own join broadcast; skip to the regular one.
	for m.Type != chat.TypeRegular {
		payload = readUntil(t, bob, office.EvtNewGlobalMessage)
		if err := json.Unmarshal(payload, &m); err != nil {
			t.Fatalf("unmarshal message: %v", err)
		}
	}
	if m.Username != "Alice" || m.Message != "hello everyone" {
		t.Errorf("unexpected message: %+v", m)
	}
}

func TestProximityScenario(t *testing.T) {
	manager, ts := newTestStack(t)
	room := manager.Create(office.Settings{Name: "Test Office", MaxPlayers: 10})

	alice := dialWS(t, ts.URL)
	defer alice.Close(websocket.StatusNormalClosure, "")
	sendJoin(t, alice, map[string]any{"room_id": room.ID(), "username": "Alice", "x": 0, "y": 0})
	readUntil(t, alice, office.EvtGetGlobalChat)

	bob := dialWS(t, ts.URL)
	defer bob.Close(websocket.StatusNormalClosure, "")
	sendJoin(t, bob, map[string]any{"room_id": room.ID(), "username": "Bob", "x": 10, "y": 0})
	readUntil(t, bob, office.EvtGetGlobalChat)

	for _, conn := range []*websocket.Conn{alice, bob} {
		var update office.ProximityUpdate
		deadline := time.Now().Add(3 * time.Second)
		for len(update.NearbyPlayers) == 0 {
			if !time.Now().Before(deadline) {
				t.Fatal("never received a proximity update with a neighbor")
			}
			payload := readUntil(t, conn, office.EvtProximityUpdate)
			if err := json.Unmarshal(payload, &update); err != nil {
				t.Fatalf("unmarshal proximity update: %v", err)
			}
		}
		if update.ProximityThreshold != office.ProximityThreshold {
			t.Errorf("expected threshold %v, got %v", office.ProximityThreshold, update.ProximityThreshold)
		}
		if len(update.NearbyPlayers) != 1 {
			t.Fatalf("expected exactly one neighbor, got %+v", update.NearbyPlayers)
		}
		n := update.NearbyPlayers[0]
		if n.Distance != 10 {
			t.Errorf("expected distance 10, got %v", n.Distance)
		}
		if n.Volume < 0.93 || n.Volume > 0.94 {
			t.Errorf("expected volume ~0.933, got %v", n.Volume)
		}
	}
}

func TestDisconnectLeavesRoom(t *testing.T) {
	manager, ts := newTestStack(t)
	room := manager.Create(office.Settings{Name: "Leavers"})

	alice := dialWS(t, ts.URL)
	defer alice.Close(websocket.StatusNormalClosure, "")
	sendJoin(t, alice, map[string]any{"room_id": room.ID(), "username": "Alice"})
	readUntil(t, alice, office.EvtGetGlobalChat)

	bob := dialWS(t, ts.URL)
	sendJoin(t, bob, map[string]any{"room_id": room.ID(), "username": "Bob"})
	readUntil(t, bob, office.EvtGetGlobalChat)

	bob.Close(websocket.StatusNormalClosure, "")

	// Alice observes Bob's departure as a global PLAYER_LEFT message.
	for {
		payload := readUntil(t, alice, office.EvtNewGlobalMessage)
		var m chat.Message
		if err := json.Unmarshal(payload, &m); err != nil {
			t.Fatalf("unmarshal message: %v", err)
		}
		if m.Type == chat.TypePlayerLeft {
			if m.Username != "Bob" {
				t.Errorf("expected Bob's leave message, got %+v", m)
			}
			return
		}
	}
}
