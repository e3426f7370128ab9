// Mystery Tracks
//
// Players join a room via a short code, each submits one or more music
// links, then the room listens to the pooled tracks in shuffled order
// and guesses who submitted each one.
//
// Features:
// - Rooms keyed by 4-character share codes, collision-checked
// - Host-controlled lobby: settings, kick, game start
// - Host role hands off automatically when the host leaves
// - Track pool shuffled once when every player has submitted
// - Round timer per room, replaced on every new round
// - Voting with last-write-wins, owners barred from their own track
// - Skip votes end playback early when every eligible voter agrees
// - Scores conserved per round: every eligible voter is worth one point
// - Full room snapshots broadcast to all members on every change
// - In-browser QR button to share the room code, backed by go-qrcode

package main

import (
	"sync"
	"time"
)

// Phase is the room's current stage in the round lifecycle. Transitions
// only move forward, except RESULTS looping back into PLAYING.
type Phase string

const (
	PhaseLobby      Phase = "LOBBY"
	PhaseSubmission Phase = "SUBMISSION"
	PhasePlaying    Phase = "PLAYING"
	PhaseVoting     Phase = "VOTING"
	PhaseResults    Phase = "RESULTS"
	PhaseGameOver   Phase = "GAME_OVER"
)

type GameSettings struct {
	TracksPerPlayer int  `json:"tracksPerPlayer"`
	RoundDuration   int  `json:"roundDuration"` // seconds
	FastMode        bool `json:"fastMode"`
	AllowSkip       bool `json:"allowSkip"`
}

func defaultSettings() GameSettings {
	return GameSettings{
		TracksPerPlayer: 1,
		RoundDuration:   30,
		FastMode:        false,
		AllowSkip:       true,
	}
}

// normalized clamps client-supplied settings to sane values: at least
// one track per player and a positive round duration.
func (s GameSettings) normalized() GameSettings {
	if s.TracksPerPlayer < 1 {
		s.TracksPerPlayer = 1
	}
	if s.RoundDuration < 1 {
		s.RoundDuration = defaultSettings().RoundDuration
	}
	return s
}

type Platform string

const (
	PlatformYoutube Platform = "youtube"
	PlatformSpotify Platform = "spotify"
)

// Track is owned by the room; OwnerId is a back-reference to the player
// who submitted it, never an ownership edge.
type Track struct {
	Id       string   `json:"id"`
	Url      string   `json:"url"`
	Title    string   `json:"title,omitempty"`
	Platform Platform `json:"platform"`
	OwnerId  string   `json:"ownerId"`
	Played   bool     `json:"played"`
}

type Player struct {
	Id              string  `json:"id"`
	Nickname        string  `json:"nickname"`
	Avatar          string  `json:"avatar"`
	Score           int     `json:"score"`
	IsHost          bool    `json:"isHost"`
	IsReady         bool    `json:"isReady"`
	SubmittedTracks []Track `json:"submittedTracks"`
}

// Round is the active-round state, present only between the first
// PLAYING transition and GAME_OVER.
type Round struct {
	TrackId   string            `json:"trackId"`
	StartTime int64             `json:"startTime"` // unix milliseconds
	Votes     map[string]string `json:"votes"`     // voterId -> guessedPlayerId
	SkipVotes []string          `json:"skipVotes"`
}

type RoundResult struct {
	Track           Track    `json:"track"`
	CorrectGuessers []string `json:"correctGuessers"`
	OwnerPoints     int      `json:"ownerPoints"`
}

// Room is the aggregate root and the unit of isolation: every mutation
// happens under mu, and cross-room operations never share state.
type Room struct {
	Id           string        `json:"id"`
	HostId       string        `json:"hostId"`
	Players      []*Player     `json:"players"` // join order
	Phase        Phase         `json:"phase"`
	Settings     GameSettings  `json:"settings"`
	Tracks       []*Track      `json:"tracks"`
	CurrentRound *Round        `json:"currentRound,omitempty"`
	RoundHistory []RoundResult `json:"roundHistory"`

	mu         sync.Mutex
	lastActive time.Time
	roundTimer *time.Timer
	roundGen   int // bumped per round so stale timers are provably no-ops
}

func (r *Room) playerLocked(id string) *Player {
	for _, p := range r.Players {
		if p.Id == id {
			return p
		}
	}
	return nil
}

func (r *Room) trackLocked(id string) *Track {
	for _, t := range r.Tracks {
		if t.Id == id {
			return t
		}
	}
	return nil
}

// eligibleVotersLocked counts every current player except the owner of
// the given track. Computed from the live player list, so a mid-round
// leave shrinks the quorum for everyone else.
func (r *Room) eligibleVotersLocked(ownerId string) int {
	count := 0
	for _, p := range r.Players {
		if p.Id != ownerId {
			count++
		}
	}
	return count
}

// RoomSnapshot is a deep copy of a room, safe to marshal after the lock
// is released.
type RoomSnapshot struct {
	Id           string        `json:"id"`
	HostId       string        `json:"hostId"`
	Players      []Player      `json:"players"`
	Phase        Phase         `json:"phase"`
	Settings     GameSettings  `json:"settings"`
	Tracks       []Track       `json:"tracks"`
	CurrentRound *Round        `json:"currentRound,omitempty"`
	RoundHistory []RoundResult `json:"roundHistory"`
}

func (r *Room) snapshotLocked() RoomSnapshot {
	snap := RoomSnapshot{
		Id:           r.Id,
		HostId:       r.HostId,
		Phase:        r.Phase,
		Settings:     r.Settings,
		Players:      make([]Player, 0, len(r.Players)),
		Tracks:       make([]Track, 0, len(r.Tracks)),
		RoundHistory: append([]RoundResult(nil), r.RoundHistory...),
	}

	for _, p := range r.Players {
		cp := *p
		cp.SubmittedTracks = append([]Track(nil), p.SubmittedTracks...)
		snap.Players = append(snap.Players, cp)
	}

	for _, t := range r.Tracks {
		snap.Tracks = append(snap.Tracks, *t)
	}

	if r.CurrentRound != nil {
		round := Round{
			TrackId:   r.CurrentRound.TrackId,
			StartTime: r.CurrentRound.StartTime,
			Votes:     make(map[string]string, len(r.CurrentRound.Votes)),
			SkipVotes: append([]string(nil), r.CurrentRound.SkipVotes...),
		}
		for voter, guess := range r.CurrentRound.Votes {
			round.Votes[voter] = guess
		}
		snap.CurrentRound = &round
	}

	return snap
}

// Snapshot locks the room and returns a consistent deep copy.
func (r *Room) Snapshot() RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}
