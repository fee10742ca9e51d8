package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(hub *Hub, userID string) *Client {
	return &Client{hub: hub, UserID: userID, Send: make(chan []byte, sendBuffer)}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_Delivery(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	alice := newTestClient(hub, "alice")
	bob := newTestClient(hub, "bob")
	require.True(t, hub.Join(alice))
	require.True(t, hub.Join(bob))

	hub.Broadcast(Message{Action: "tweet.created", Payload: "t1"})
	assert.Equal(t, "tweet.created", receive(t, alice).Action)
	assert.Equal(t, "tweet.created", receive(t, bob).Action)

	hub.BroadcastTo("bob", Message{Action: ActionNotification, Payload: "followed"})
	msg := receive(t, bob)
	assert.Equal(t, ActionNotification, msg.Action)
	assert.Equal(t, "followed", msg.Payload)
	assertSilent(t, alice)

	hub.Reply(alice, NewErrorMessage("nope"))
	assert.Equal(t, ActionError, receive(t, alice).Action)
	assertSilent(t, bob)

	hub.Leave(bob)
	hub.Broadcast(Message{Action: "tweet.deleted"})
	assert.Equal(t, "tweet.deleted", receive(t, alice).Action)
	_, ok := <-bob.Send
	assert.False(t, ok)
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	slow := &Client{hub: hub, UserID: "slow", Send: make(chan []byte, 1)}
	require.True(t, hub.Join(slow))

	observer := newTestClient(hub, "observer")
	require.True(t, hub.Join(observer))

	hub.Broadcast(Message{Action: "a"})
	hub.Broadcast(Message{Action: "b"})
	hub.Broadcast(Message{Action: "c"})
	receive(t, observer)
	receive(t, observer)
	assert.Equal(t, "c", receive(t, observer).Action)

	assert.Equal(t, "a", receive(t, slow).Action)
	_, ok := <-slow.Send
	assert.False(t, ok)
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	c := newTestClient(hub, "alice")
	require.True(t, hub.Join(c))
	hub.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	_, ok := <-c.Send
	assert.False(t, ok)
	assert.False(t, hub.Join(newTestClient(hub, "late")))
	hub.Leave(c)
}
