package main

import (
	"crypto/rand"
	"sync"
	"time"
)

// roomCodeAlphabet deliberately omits lowercase so codes survive being
// read aloud or typed in either case.
const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const roomCodeLength = 4

// RoomStore holds every live room keyed by its share code, so each code
// is its own isolated session.
type RoomStore struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	idleTimeout time.Duration

	// onEvict is invoked outside the store lock for every room removed
	// by the reaper, so the gateway can close member connections.
	onEvict func(*Room)

	// onTimeout is invoked after a round timer fires and actually moved
	// the room into VOTING, so the gateway can broadcast the new state.
	onTimeout func(*Room)
}

func newRoomStore(idleTimeout time.Duration) *RoomStore {
	rs := &RoomStore{
		rooms:       make(map[string]*Room),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go rs.reaperLoop()
	}
	return rs
}

// newRoomCode generates a crypto-random room code and ensures it doesn't
// collide with an existing room. The code space is large relative to the
// live room count, so retries terminate quickly.
func (rs *RoomStore) newRoomCode() string {
	for {
		buf := make([]byte, roomCodeLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, roomCodeLength)
		for i := range out {
			out[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
		}
		code := string(out)

		rs.mu.Lock()
		_, exists := rs.rooms[code]
		rs.mu.Unlock()

		if !exists {
			return code
		}
	}
}

// CreateRoom creates a room in LOBBY with the creator as its sole,
// host-privileged player and default settings.
func (rs *RoomStore) CreateRoom(hostId, nickname, avatar string) *Room {
	code := rs.newRoomCode()

	host := &Player{
		Id:              hostId,
		Nickname:        nickname,
		Avatar:          avatar,
		IsHost:          true,
		SubmittedTracks: []Track{},
	}

	room := &Room{
		Id:           code,
		HostId:       hostId,
		Players:      []*Player{host},
		Phase:        PhaseLobby,
		Settings:     defaultSettings(),
		Tracks:       []*Track{},
		RoundHistory: []RoundResult{},
		lastActive:   time.Now(),
	}

	rs.mu.Lock()
	rs.rooms[code] = room
	rs.mu.Unlock()

	return room
}

func (rs *RoomStore) Get(code string) (*Room, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	room, ok := rs.rooms[code]
	return room, ok
}

func (rs *RoomStore) Remove(code string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	delete(rs.rooms, code)
}

// Rooms returns the live rooms at the time of the call. Used for
// disconnect sweeps, which must check every room an identity could
// belong to.
func (rs *RoomStore) Rooms() []*Room {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rooms := make([]*Room, 0, len(rs.rooms))
	for _, room := range rs.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// reaperLoop periodically removes rooms that have been idle longer than
// idleTimeout.
func (rs *RoomStore) reaperLoop() {
	ticker := time.NewTicker(rs.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-rs.idleTimeout)

		var evicted []*Room

		rs.mu.Lock()
		for code, room := range rs.rooms {
			room.mu.Lock()
			last := room.lastActive
			if last.Before(cutoff) && room.roundTimer != nil {
				room.roundTimer.Stop()
			}
			room.mu.Unlock()

			if last.Before(cutoff) {
				delete(rs.rooms, code)
				evicted = append(evicted, room)
			}
		}
		onEvict := rs.onEvict
		rs.mu.Unlock()

		if onEvict != nil {
			for _, room := range evicted {
				onEvict(room)
			}
		}
	}
}
