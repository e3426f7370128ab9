package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoomCodeShape(t *testing.T) {
	rs := newRoomStore(0)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := rs.newRoomCode()
		require.Len(t, code, roomCodeLength)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(roomCodeAlphabet, c),
				"unexpected character %q in code %q", c, code)
		}
		seen[code] = true
	}

	// 100 draws from a 36^4 space should essentially never collide.
	assert.Greater(t, len(seen), 95)
}

func TestCreateRoomDefaults(t *testing.T) {
	rs := newRoomStore(0)

	room := rs.CreateRoom("host-1", "alice", "cat")

	assert.Equal(t, PhaseLobby, room.Phase)
	assert.Equal(t, "host-1", room.HostId)
	require.Len(t, room.Players, 1)
	assert.True(t, room.Players[0].IsHost)
	assert.Equal(t, "alice", room.Players[0].Nickname)
	assert.Equal(t, "cat", room.Players[0].Avatar)
	assert.Zero(t, room.Players[0].Score)
	assert.Empty(t, room.Tracks)
	assert.Empty(t, room.RoundHistory)

	assert.Equal(t, defaultSettings(), room.Settings)

	got, ok := rs.Get(room.Id)
	require.True(t, ok)
	assert.Same(t, room, got)
}

func TestCreateRoomCodesAreUnique(t *testing.T) {
	rs := newRoomStore(0)

	codes := make(map[string]bool)
	for i := 0; i < 50; i++ {
		room := rs.CreateRoom("h", "n", "a")
		assert.False(t, codes[room.Id], "duplicate room code %q", room.Id)
		codes[room.Id] = true
	}
}

func TestRemoveRoom(t *testing.T) {
	rs := newRoomStore(0)

	room := rs.CreateRoom("host-1", "alice", "cat")
	rs.Remove(room.Id)

	_, ok := rs.Get(room.Id)
	assert.False(t, ok)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	rs := newRoomStore(0)

	room := rs.CreateRoom("host-1", "alice", "cat")
	snap := room.Snapshot()

	snap.Players[0].Score = 99
	snap.Settings.RoundDuration = 5

	assert.Zero(t, room.Players[0].Score)
	assert.Equal(t, 30, room.Settings.RoundDuration)
}
