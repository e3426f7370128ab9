package main

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T) (*httptest.Server, *RoomStore) {
	t.Helper()

	cfg := &Config{metadataTimeout: time.Second}
	store := newRoomStore(0)
	gw := newGateway(cfg, store)

	mux := httprouter.New()
	mux.GET("/ws", serveWS(cfg, gw))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, store
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

// recv reads the next message with a deadline so a missing broadcast
// fails the test instead of hanging it.
func recv(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func roomOf(t *testing.T, msg map[string]any) map[string]any {
	t.Helper()

	room, ok := msg["room"].(map[string]any)
	require.True(t, ok, "message %v carries no room", msg["type"])
	return room
}

func playersOf(t *testing.T, msg map[string]any) []any {
	t.Helper()

	players, ok := roomOf(t, msg)["players"].([]any)
	require.True(t, ok)
	return players
}

func TestGatewayCreateRoom(t *testing.T) {
	srv, store := newTestGateway(t)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type:     "create_room",
		Nickname: "alice",
		Avatar:   "cat",
	}))

	ack := recv(t, conn)
	assert.Equal(t, "create_room_ack", ack["type"])
	assert.Equal(t, true, ack["success"])

	roomId, _ := ack["roomId"].(string)
	require.Len(t, roomId, roomCodeLength)
	assert.Len(t, playersOf(t, ack), 1)

	_, ok := store.Get(roomId)
	assert.True(t, ok)
}

func TestGatewayJoinBroadcastsToAllMembers(t *testing.T) {
	srv, _ := newTestGateway(t)

	host := dialWS(t, srv)
	require.NoError(t, host.WriteJSON(ClientMessage{Type: "create_room", Nickname: "alice"}))
	roomId := recv(t, host)["roomId"].(string)

	guest := dialWS(t, srv)
	require.NoError(t, guest.WriteJSON(ClientMessage{
		Type:     "join_room",
		RoomId:   roomId,
		Nickname: "bob",
	}))

	ack := recv(t, guest)
	assert.Equal(t, "join_room_ack", ack["type"])
	assert.Equal(t, true, ack["success"])
	assert.Len(t, playersOf(t, ack), 2)

	// Both members get the refreshed snapshot.
	update := recv(t, guest)
	assert.Equal(t, "room_updated", update["type"])

	update = recv(t, host)
	assert.Equal(t, "room_updated", update["type"])
	assert.Len(t, playersOf(t, update), 2)
}

func TestGatewayJoinUnknownRoom(t *testing.T) {
	srv, _ := newTestGateway(t)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type:     "join_room",
		RoomId:   "ZZZZ",
		Nickname: "bob",
	}))

	ack := recv(t, conn)
	assert.Equal(t, "join_room_ack", ack["type"])
	assert.Equal(t, false, ack["success"])
	assert.Equal(t, ErrRoomNotFound.Error(), ack["error"])
}

func TestGatewayKickNotifiesTarget(t *testing.T) {
	srv, _ := newTestGateway(t)

	host := dialWS(t, srv)
	require.NoError(t, host.WriteJSON(ClientMessage{Type: "create_room", Nickname: "alice"}))
	roomId := recv(t, host)["roomId"].(string)

	guest := dialWS(t, srv)
	require.NoError(t, guest.WriteJSON(ClientMessage{
		Type:     "join_room",
		RoomId:   roomId,
		Nickname: "bob",
	}))
	recv(t, guest) // join ack
	recv(t, guest) // room_updated

	update := recv(t, host)
	var guestId string
	for _, entry := range playersOf(t, update) {
		player := entry.(map[string]any)
		if player["nickname"] == "bob" {
			guestId = player["id"].(string)
		}
	}
	require.NotEmpty(t, guestId)

	require.NoError(t, host.WriteJSON(ClientMessage{
		Type:     "kick_player",
		RoomId:   roomId,
		TargetId: guestId,
	}))

	kicked := recv(t, guest)
	assert.Equal(t, "kicked", kicked["type"])

	update = recv(t, host)
	assert.Equal(t, "room_updated", update["type"])
	assert.Len(t, playersOf(t, update), 1)
}

func TestGatewayDisconnectActsAsLeave(t *testing.T) {
	srv, store := newTestGateway(t)

	host := dialWS(t, srv)
	require.NoError(t, host.WriteJSON(ClientMessage{Type: "create_room", Nickname: "alice"}))
	roomId := recv(t, host)["roomId"].(string)

	guest := dialWS(t, srv)
	require.NoError(t, guest.WriteJSON(ClientMessage{
		Type:     "join_room",
		RoomId:   roomId,
		Nickname: "bob",
	}))
	recv(t, host) // room_updated with two players

	require.NoError(t, guest.Close())

	update := recv(t, host)
	assert.Equal(t, "room_updated", update["type"])
	assert.Len(t, playersOf(t, update), 1)

	room, ok := store.Get(roomId)
	require.True(t, ok)
	assert.Len(t, room.Snapshot().Players, 1)
}

func TestGatewayVoteAckOnRejection(t *testing.T) {
	srv, _ := newTestGateway(t)

	host := dialWS(t, srv)
	require.NoError(t, host.WriteJSON(ClientMessage{Type: "create_room", Nickname: "alice"}))
	roomId := recv(t, host)["roomId"].(string)

	// No round is underway, so any vote is rejected.
	require.NoError(t, host.WriteJSON(ClientMessage{
		Type:            "vote",
		RoomId:          roomId,
		GuessedPlayerId: "whoever",
	}))

	ack := recv(t, host)
	assert.Equal(t, "vote_ack", ack["type"])
	assert.Equal(t, false, ack["success"])
	assert.Equal(t, ErrVoteRejected.Error(), ack["error"])
}
