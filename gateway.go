package main

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Messages coming from clients
type ClientMessage struct {
	Type            string        `json:"type"`                      // "create_room", "join_room", "leave_room", "kick_player", "update_settings", "start_game", "submit_tracks", "vote", "skip_track", "next_round", "get_metadata"
	Nickname        string        `json:"nickname,omitempty"`        // create_room / join_room
	Avatar          string        `json:"avatar,omitempty"`          // create_room / join_room
	RoomId          string        `json:"roomId,omitempty"`          // everything else
	TargetId        string        `json:"targetId,omitempty"`        // kick_player
	Settings        *GameSettings `json:"settings,omitempty"`        // update_settings / start_game
	Tracks          []TrackInput  `json:"tracks,omitempty"`          // submit_tracks
	GuessedPlayerId string        `json:"guessedPlayerId,omitempty"` // vote
	Url             string        `json:"url,omitempty"`             // get_metadata
}

// RoomUpdatedMessage carries a full room snapshot to every member on
// each state change. The contract is full-state replication, no deltas.
type RoomUpdatedMessage struct {
	Type string       `json:"type"` // "room_updated"
	Room RoomSnapshot `json:"room"`
}

// CreateRoomAck is the reply to "create_room".
type CreateRoomAck struct {
	Type    string       `json:"type"` // "create_room_ack"
	Success bool         `json:"success"`
	RoomId  string       `json:"roomId"`
	Room    RoomSnapshot `json:"room"`
}

// JoinRoomAck is the reply to "join_room".
type JoinRoomAck struct {
	Type    string        `json:"type"` // "join_room_ack"
	Success bool          `json:"success"`
	Room    *RoomSnapshot `json:"room,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// VoteAck is the reply to "vote" and "skip_track".
type VoteAck struct {
	Type    string `json:"type"` // "vote_ack" / "skip_ack"
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// MetadataAck is the reply to "get_metadata".
type MetadataAck struct {
	Type       string `json:"type"` // "metadata_ack"
	Success    bool   `json:"success"`
	Title      string `json:"title,omitempty"`
	AuthorName string `json:"author_name,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SimpleMessage is for generic notifications ("kicked", "room_closed").
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

// Gateway maps ephemeral connection identities to players and routes
// typed messages into room operations. It is the only component that
// knows about sockets; the room logic never touches a connection.
type Gateway struct {
	cfg      *Config
	store    *RoomStore
	metadata *metadataClient

	mu      sync.RWMutex
	clients map[string]*Client // playerID -> client
}

func newGateway(cfg *Config, store *RoomStore) *Gateway {
	gw := &Gateway{
		cfg:      cfg,
		store:    store,
		metadata: newMetadataClient(cfg.metadataTimeout),
		clients:  make(map[string]*Client),
	}

	store.onTimeout = gw.broadcastRoom
	store.onEvict = gw.notifyRoomClosed

	return gw
}

// newPlayerID generates the ephemeral identity for one connection.
func newPlayerID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	return hex.EncodeToString(buf)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func serveWS(cfg *Config, gw *Gateway) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID := newPlayerID()
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
		}

		gw.mu.Lock()
		gw.clients[playerID] = client
		gw.mu.Unlock()

		logf(cfg, "GAMES: Connection %s established from %s", playerID, realIP(r))

		go client.writePump()
		client.readPump(gw)
	}
}

func (c *Client) readPump(gw *Gateway) {
	defer func() {
		gw.disconnect(c)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		gw.dispatch(c, msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// trySend queues a message for one client without ever blocking the
// caller. A client too slow to drain its buffer is dropped.
func (gw *Gateway) trySend(playerID string, msg any) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	client, ok := gw.clients[playerID]
	if !ok {
		return
	}

	select {
	case client.send <- msg:
	default:
		delete(gw.clients, playerID)
		close(client.send)
	}
}

// broadcastRoom sends a fresh full snapshot to every room member.
func (gw *Gateway) broadcastRoom(room *Room) {
	snap := room.Snapshot()

	msg := RoomUpdatedMessage{
		Type: "room_updated",
		Room: snap,
	}

	for _, p := range snap.Players {
		gw.trySend(p.Id, msg)
	}
}

// notifyRoomClosed tells members their room was reaped for inactivity.
func (gw *Gateway) notifyRoomClosed(room *Room) {
	snap := room.Snapshot()

	msg := SimpleMessage{
		Type:    "room_closed",
		Message: "The room was closed due to inactivity.",
	}

	for _, p := range snap.Players {
		gw.trySend(p.Id, msg)
	}
}

// disconnect treats an abrupt connection loss identically to leaving
// every room the identity belongs to.
func (gw *Gateway) disconnect(c *Client) {
	gw.mu.Lock()
	if current, ok := gw.clients[c.playerID]; ok && current == c {
		delete(gw.clients, c.playerID)
		close(c.send)
	}
	gw.mu.Unlock()

	for _, room := range gw.store.Rooms() {
		room.mu.Lock()
		member := room.playerLocked(c.playerID) != nil
		code := room.Id
		room.mu.Unlock()

		if !member {
			continue
		}

		updated, destroyed, err := gw.store.Leave(code, c.playerID)
		if err != nil || destroyed {
			continue
		}
		gw.broadcastRoom(updated)
	}

	logf(gw.cfg, "GAMES: Connection %s closed", c.playerID)
}

func (gw *Gateway) dispatch(c *Client, msg ClientMessage) {
	switch msg.Type {
	case "create_room":
		gw.handleCreateRoom(c, msg)
	case "join_room":
		gw.handleJoinRoom(c, msg)
	case "leave_room":
		gw.handleLeaveRoom(c, msg)
	case "kick_player":
		gw.handleKickPlayer(c, msg)
	case "update_settings":
		gw.handleUpdateSettings(c, msg)
	case "start_game":
		gw.handleStartGame(c, msg)
	case "submit_tracks":
		gw.handleSubmitTracks(c, msg)
	case "vote":
		gw.handleVote(c, msg)
	case "skip_track":
		gw.handleSkipTrack(c, msg)
	case "next_round":
		gw.handleNextRound(c, msg)
	case "get_metadata":
		gw.handleGetMetadata(c, msg)
	default:
		// ignore unknown types
	}
}

func (gw *Gateway) handleCreateRoom(c *Client, msg ClientMessage) {
	room := gw.store.CreateRoom(c.playerID, msg.Nickname, msg.Avatar)

	logf(gw.cfg, "GAMES: Player %q created room %s", msg.Nickname, room.Id)

	gw.trySend(c.playerID, CreateRoomAck{
		Type:    "create_room_ack",
		Success: true,
		RoomId:  room.Id,
		Room:    room.Snapshot(),
	})
}

func (gw *Gateway) handleJoinRoom(c *Client, msg ClientMessage) {
	room, err := gw.store.Join(msg.RoomId, c.playerID, msg.Nickname, msg.Avatar)
	if err != nil {
		gw.trySend(c.playerID, JoinRoomAck{
			Type:  "join_room_ack",
			Error: err.Error(),
		})
		return
	}

	logf(gw.cfg, "GAMES: Player %q joined %s", msg.Nickname, msg.RoomId)

	snap := room.Snapshot()
	gw.trySend(c.playerID, JoinRoomAck{
		Type:    "join_room_ack",
		Success: true,
		Room:    &snap,
	})
	gw.broadcastRoom(room)
}

func (gw *Gateway) handleLeaveRoom(c *Client, msg ClientMessage) {
	room, destroyed, err := gw.store.Leave(msg.RoomId, c.playerID)
	if err != nil || destroyed {
		return
	}

	gw.broadcastRoom(room)
}

func (gw *Gateway) handleKickPlayer(c *Client, msg ClientMessage) {
	room, err := gw.store.Kick(msg.RoomId, c.playerID, msg.TargetId)
	if err != nil {
		return
	}

	logf(gw.cfg, "GAMES: Player %s kicked from %s", msg.TargetId, msg.RoomId)

	gw.broadcastRoom(room)
	gw.trySend(msg.TargetId, SimpleMessage{
		Type:    "kicked",
		Message: "You have been removed by the host.",
	})
}

func (gw *Gateway) handleUpdateSettings(c *Client, msg ClientMessage) {
	if msg.Settings == nil {
		return
	}

	room, err := gw.store.UpdateSettings(msg.RoomId, c.playerID, *msg.Settings)
	if err != nil {
		return
	}

	gw.broadcastRoom(room)
}

func (gw *Gateway) handleStartGame(c *Client, msg ClientMessage) {
	room, err := gw.store.StartGame(msg.RoomId, msg.Settings)
	if err != nil {
		return
	}

	logf(gw.cfg, "GAMES: Game started in %s", msg.RoomId)

	gw.broadcastRoom(room)
}

func (gw *Gateway) handleSubmitTracks(c *Client, msg ClientMessage) {
	room, err := gw.store.SubmitTracks(msg.RoomId, c.playerID, msg.Tracks)
	if err != nil {
		return
	}

	gw.broadcastRoom(room)
}

func (gw *Gateway) handleVote(c *Client, msg ClientMessage) {
	room, err := gw.store.Vote(msg.RoomId, c.playerID, msg.GuessedPlayerId)
	if err != nil {
		gw.trySend(c.playerID, VoteAck{
			Type:  "vote_ack",
			Error: err.Error(),
		})
		return
	}

	gw.trySend(c.playerID, VoteAck{
		Type:    "vote_ack",
		Success: true,
	})
	gw.broadcastRoom(room)
}

func (gw *Gateway) handleSkipTrack(c *Client, msg ClientMessage) {
	room, err := gw.store.SkipTrack(msg.RoomId, c.playerID)
	if err != nil {
		gw.trySend(c.playerID, VoteAck{
			Type:  "skip_ack",
			Error: err.Error(),
		})
		return
	}

	gw.trySend(c.playerID, VoteAck{
		Type:    "skip_ack",
		Success: true,
	})
	gw.broadcastRoom(room)
}

func (gw *Gateway) handleNextRound(c *Client, msg ClientMessage) {
	room, err := gw.store.NextRound(msg.RoomId, c.playerID)
	if err != nil {
		return
	}

	gw.broadcastRoom(room)
}

// handleGetMetadata is a pure side lookup: it runs off the read loop
// and never holds any room lock while the request is in flight.
func (gw *Gateway) handleGetMetadata(c *Client, msg ClientMessage) {
	go func() {
		meta, err := gw.metadata.Lookup(msg.Url)
		if err != nil {
			gw.trySend(c.playerID, MetadataAck{
				Type:  "metadata_ack",
				Error: err.Error(),
			})
			return
		}

		gw.trySend(c.playerID, MetadataAck{
			Type:       "metadata_ack",
			Success:    true,
			Title:      meta.Title,
			AuthorName: meta.AuthorName,
		})
	}()
}
