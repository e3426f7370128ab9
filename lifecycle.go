package main

import (
	"time"
)

// Membership operations. Each one locks a single room, applies its
// change, and returns the room so the caller can broadcast a snapshot.
// On error the room is untouched.

// Join appends a non-host player. Late joins are rejected, not queued.
func (rs *RoomStore) Join(code, playerId, nickname, avatar string) (*Room, error) {
	room, ok := rs.Get(code)
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Phase != PhaseLobby {
		return nil, ErrPhaseClosed
	}

	// An identity is seated at most once per room.
	if room.playerLocked(playerId) != nil {
		return nil, ErrInvalidTarget
	}

	room.Players = append(room.Players, &Player{
		Id:              playerId,
		Nickname:        nickname,
		Avatar:          avatar,
		SubmittedTracks: []Track{},
	})
	room.lastActive = time.Now()

	return room, nil
}

// Leave removes the player regardless of phase. The returned bool is
// true when the room was destroyed because no players remain. If the
// departing player held host status, the role hands off to the earliest
// remaining joiner.
func (rs *RoomStore) Leave(code, playerId string) (*Room, bool, error) {
	room, ok := rs.Get(code)
	if !ok {
		return nil, false, ErrRoomNotFound
	}

	room.mu.Lock()

	dst := room.Players[:0]
	for _, p := range room.Players {
		if p.Id == playerId {
			continue
		}
		dst = append(dst, p)
	}
	room.Players = dst

	if len(room.Players) == 0 {
		if room.roundTimer != nil {
			room.roundTimer.Stop()
		}
		room.mu.Unlock()
		rs.Remove(code)
		return nil, true, nil
	}

	if room.HostId == playerId {
		room.HostId = room.Players[0].Id
		room.Players[0].IsHost = true
	}
	room.lastActive = time.Now()

	room.mu.Unlock()
	return room, false, nil
}

// Kick removes a target player on the host's behalf. A host cannot kick
// itself through this operation, so the removed player is never the
// host and no handoff is needed.
func (rs *RoomStore) Kick(code, requesterId, targetId string) (*Room, error) {
	room, ok := rs.Get(code)
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.HostId != requesterId {
		return nil, ErrNotHost
	}
	if requesterId == targetId {
		return nil, ErrInvalidTarget
	}

	dst := room.Players[:0]
	for _, p := range room.Players {
		if p.Id == targetId {
			continue
		}
		dst = append(dst, p)
	}
	room.Players = dst
	room.lastActive = time.Now()

	return room, nil
}

// UpdateSettings replaces the room settings wholesale. Host-only, but
// deliberately not phase-gated: the UI only offers the form in the
// lobby, and the core accepts writes any time.
func (rs *RoomStore) UpdateSettings(code, requesterId string, settings GameSettings) (*Room, error) {
	room, ok := rs.Get(code)
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.HostId != requesterId {
		return nil, ErrNotHost
	}

	room.Settings = settings.normalized()
	room.lastActive = time.Now()

	return room, nil
}

// StartGame moves a lobby into the submission phase. Outside the lobby
// it is an idempotent no-op that still returns the room unchanged. A
// non-nil settings overwrite is applied atomically with the transition.
func (rs *RoomStore) StartGame(code string, settings *GameSettings) (*Room, error) {
	room, ok := rs.Get(code)
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if settings != nil {
		room.Settings = settings.normalized()
	}

	if room.Phase == PhaseLobby {
		room.Phase = PhaseSubmission
	}
	room.lastActive = time.Now()

	return room, nil
}
