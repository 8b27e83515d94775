package websocket

import (
	"encoding/json"
	"testing"
)

func TestHandleMessageSubscribe(t *testing.T) {
	hub := NewHub()
	client := mockClient(hub)

	data, _ := json.Marshal(WSMessage{Type: TypeSubscribe, Session: "session-1"})
	client.handleMessage(data)

	if !client.sessions["session-1"] {
		t.Error("client not subscribed to session-1")
	}

	data, _ = json.Marshal(WSMessage{Type: TypeUnsubscribe, Session: "session-1"})
	client.handleMessage(data)

	if client.sessions["session-1"] {
		t.Error("client still subscribed to session-1")
	}
}

func TestHandleMessagePing(t *testing.T) {
	hub := NewHub()
	client := mockClient(hub)

	data, _ := json.Marshal(WSMessage{Type: TypePing})
	client.handleMessage(data)

	select {
	case out := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(out, &msg); err != nil {
			t.Fatalf("unmarshal error: %v", err)
		}
		if msg.Type != TypePong {
			t.Errorf("type = %s, want %s", msg.Type, TypePong)
		}
	default:
		t.Fatal("no pong queued")
	}
}

func TestHandleMessageInvalid(t *testing.T) {
	hub := NewHub()
	client := mockClient(hub)

	client.handleMessage([]byte("not json"))

	select {
	case out := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(out, &msg); err != nil {
			t.Fatalf("unmarshal error: %v", err)
		}
		if msg.Type != TypeError {
			t.Errorf("type = %s, want %s", msg.Type, TypeError)
		}
	default:
		t.Fatal("no error queued")
	}
}

func TestHandleMessageSubscribeEmptySession(t *testing.T) {
	hub := NewHub()
	client := mockClient(hub)

	data, _ := json.Marshal(WSMessage{Type: TypeSubscribe})
	client.handleMessage(data)

	if len(client.sessions) != 0 {
		t.Error("empty session name should not subscribe")
	}
}
