package websocket

import (
	"encoding/json"
	"testing"
	"time"
)

func mockClient(hub *Hub) *Client {
	return &Client{
		hub:         hub,
		send:        make(chan []byte, 256),
		sessions:    make(map[string]bool),
		id:          "test-client",
		connectedAt: time.Now(),
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub.clients == nil {
		t.Error("clients map is nil")
	}
	if hub.sessions == nil {
		t.Error("sessions map is nil")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", hub.ClientCount())
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub)

	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount after register = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	time.Sleep(10 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount after unregister = %d, want 0", hub.ClientCount())
	}
}

func TestHubSubscribeUnsubscribe(t *testing.T) {
	hub := NewHub()
	client := mockClient(hub)

	hub.Subscribe(client, "session-1")

	if !client.sessions["session-1"] {
		t.Error("client.sessions does not contain session-1")
	}
	if !hub.sessions["session-1"][client] {
		t.Error("hub.sessions[session-1] does not contain client")
	}

	hub.Unsubscribe(client, "session-1")

	if client.sessions["session-1"] {
		t.Error("client.sessions still contains session-1")
	}
	if _, ok := hub.sessions["session-1"]; ok {
		t.Error("hub.sessions still contains session-1")
	}
}

func TestHubBroadcastToSubscribers(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	subscribed := mockClient(hub)
	other := mockClient(hub)

	hub.Register(subscribed)
	hub.Register(other)
	time.Sleep(10 * time.Millisecond)

	hub.Subscribe(subscribed, "session-1")

	hub.Broadcast("session-1", []byte(`{"hello":1}`))

	select {
	case data := <-subscribed.send:
		if string(data) != `{"hello":1}` {
			t.Errorf("payload = %s", data)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive broadcast")
	}

	select {
	case <-other.send:
		t.Error("unsubscribed client received session broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubBroadcastAll(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastAll([]byte("ping"))

	for _, c := range []*Client{c1, c2} {
		select {
		case <-c.send:
		case <-time.After(time.Second):
			t.Fatal("client did not receive global broadcast")
		}
	}
}

func TestHubBroadcastEvent(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub)
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)
	hub.Subscribe(client, "session-1")

	if err := hub.BroadcastEvent("session-1", map[string]any{"kind": "compression"}); err != nil {
		t.Fatalf("BroadcastEvent error: %v", err)
	}

	select {
	case data := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal error: %v", err)
		}
		if msg.Type != TypeEvent {
			t.Errorf("type = %s, want %s", msg.Type, TypeEvent)
		}
		if msg.Session != "session-1" {
			t.Errorf("session = %s, want session-1", msg.Session)
		}
		var payload map[string]any
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			t.Fatalf("payload unmarshal error: %v", err)
		}
		if payload["kind"] != "compression" {
			t.Errorf("payload kind = %v", payload["kind"])
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
}
