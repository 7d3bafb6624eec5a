package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func recv(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case payload, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var msg Message
		require.NoError(t, json.Unmarshal(payload, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestConnectSendsConfirmation(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := NewClient(hub, nil, "c1", 0, 8)
	hub.RegisterClient(client)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "client not registered")

	msg := recv(t, client)
	assert.Equal(t, TypeConnected, msg.Type)
	assert.NotEmpty(t, msg.Timestamp)
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	a := NewClient(hub, nil, "a", 0, 8)
	b := NewClient(hub, nil, "b", 0, 8)
	hub.RegisterClient(a)
	hub.RegisterClient(b)
	waitFor(t, func() bool { return hub.ClientCount() == 2 }, "clients not registered")

	// Drain connection confirmations.
	recv(t, a)
	recv(t, b)

	hub.Broadcast(TypeZoneUpdate, map[string]interface{}{"zone_code": "A1"})

	for _, c := range []*Client{a, b} {
		msg := recv(t, c)
		assert.Equal(t, TypeZoneUpdate, msg.Type)
	}
}

func TestBroadcastPrunesOnlyFailingSubscriber(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	healthy := NewClient(hub, nil, "healthy", 0, 8)
	// Buffer of one: the connection confirmation fills it and nothing drains
	// it, so every later delivery fails.
	failing := NewClient(hub, nil, "failing", 0, 1)

	hub.RegisterClient(healthy)
	hub.RegisterClient(failing)
	waitFor(t, func() bool { return hub.ClientCount() == 2 }, "clients not registered")
	recv(t, healthy)

	hub.Broadcast(TypeEvent, map[string]interface{}{"event_type": "entry"})

	msg := recv(t, healthy)
	assert.Equal(t, TypeEvent, msg.Type, "healthy subscriber still receives")

	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "failing subscriber not pruned")

	// The healthy subscriber keeps receiving after the prune.
	hub.Broadcast(TypeEvent, map[string]interface{}{"event_type": "exit"})
	msg = recv(t, healthy)
	assert.Equal(t, TypeEvent, msg.Type)
}

func TestInboundFromPrunedSubscriberIsDropped(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// Buffer of one: the connection confirmation fills it, so the next
	// broadcast prunes the subscriber and closes its send channel.
	slow := NewClient(hub, nil, "slow", 0, 1)
	hub.RegisterClient(slow)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "client not registered")

	hub.Broadcast(TypeZoneUpdate, map[string]interface{}{"zone_code": "A1"})
	waitFor(t, func() bool { return hub.ClientCount() == 0 }, "slow subscriber not pruned")

	// A late subscribe from the read pump after the prune must be dropped
	// quietly, not sent on the closed channel.
	hub.HandleInbound(slow, []byte(`{"type":"subscribe","zones":["A1"]}`))
	assert.Equal(t, 0, hub.ClientCount())

	// The hub keeps serving other subscribers.
	healthy := NewClient(hub, nil, "healthy", 0, 8)
	hub.RegisterClient(healthy)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "healthy client not registered")
	recv(t, healthy)

	hub.Broadcast(TypeEvent, map[string]interface{}{"event_type": "entry"})
	msg := recv(t, healthy)
	assert.Equal(t, TypeEvent, msg.Type)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := NewClient(hub, nil, "c1", 0, 8)
	hub.RegisterClient(client)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "client not registered")

	hub.UnregisterClient(client)
	waitFor(t, func() bool { return hub.ClientCount() == 0 }, "client not removed")
	hub.UnregisterClient(client)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHandleInboundSubscribe(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := NewClient(hub, nil, "c1", 0, 8)
	hub.RegisterClient(client)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "client not registered")
	recv(t, client)

	hub.HandleInbound(client, []byte(`{"type":"subscribe","zones":["A1","B2"]}`))

	assert.Equal(t, []string{"A1", "B2"}, client.Zones())

	ack := recv(t, client)
	assert.Equal(t, TypeSubscribed, ack.Type)
	data, ok := ack.Data.(map[string]interface{})
	require.True(t, ok)
	assert.ElementsMatch(t, []interface{}{"A1", "B2"}, data["zones"])
}

func TestHandleInboundIgnoresMalformed(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := NewClient(hub, nil, "c1", 0, 8)
	hub.RegisterClient(client)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "client not registered")
	recv(t, client)

	hub.HandleInbound(client, []byte("not json"))
	hub.HandleInbound(client, []byte(`{"type":"noop"}`))

	select {
	case payload := <-client.Send:
		t.Fatalf("unexpected message: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, hub.ClientCount())
}
