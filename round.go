package main

import (
	"math/rand"
	"slices"
	"time"

	"github.com/google/uuid"
)

// TrackInput is a track as submitted by a client, before the room
// assigns it an id and an owner.
type TrackInput struct {
	Url      string   `json:"url"`
	Title    string   `json:"title,omitempty"`
	Platform Platform `json:"platform"`
}

// SubmitTracks replaces the player's submitted set. Once every player
// has submitted at least settings.tracksPerPlayer tracks, the pooled
// tracks are shuffled and the first round starts.
func (rs *RoomStore) SubmitTracks(code, playerId string, tracks []TrackInput) (*Room, error) {
	room, ok := rs.Get(code)
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	player := room.playerLocked(playerId)
	if player == nil {
		return nil, ErrInvalidTarget
	}

	submitted := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		submitted = append(submitted, Track{
			Id:       uuid.NewString(),
			Url:      t.Url,
			Title:    t.Title,
			Platform: t.Platform,
			OwnerId:  playerId,
		})
	}
	player.SubmittedTracks = submitted
	room.lastActive = time.Now()

	rs.checkAllSubmittedLocked(room)

	return room, nil
}

// checkAllSubmittedLocked pools and shuffles every player's tracks once
// all submissions are in, then starts the first round. The shuffle is a
// uniform permutation, so the play order carries no trace of submission
// order.
func (rs *RoomStore) checkAllSubmittedLocked(room *Room) {
	if room.Phase != PhaseSubmission {
		return
	}

	for _, p := range room.Players {
		if len(p.SubmittedTracks) < room.Settings.TracksPerPlayer {
			return
		}
	}

	pool := make([]*Track, 0, len(room.Players)*room.Settings.TracksPerPlayer)
	for _, p := range room.Players {
		for i := range p.SubmittedTracks {
			track := p.SubmittedTracks[i]
			pool = append(pool, &track)
		}
	}

	rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	room.Tracks = pool
	rs.startNextRoundLocked(room)
}

// startNextRoundLocked selects the next unplayed track in shuffled
// order and opens a fresh round for it. With no unplayed track left the
// room is finished and no round starts.
func (rs *RoomStore) startNextRoundLocked(room *Room) {
	var next *Track
	for _, t := range room.Tracks {
		if !t.Played {
			next = t
			break
		}
	}

	if next == nil {
		room.Phase = PhaseGameOver
		if room.roundTimer != nil {
			room.roundTimer.Stop()
		}
		return
	}

	next.Played = true

	// The pool holds copies, so flip the flag on the owner's submitted
	// copy too; snapshots show both in sync, as clients expect.
	if owner := room.playerLocked(next.OwnerId); owner != nil {
		for i := range owner.SubmittedTracks {
			if owner.SubmittedTracks[i].Id == next.Id {
				owner.SubmittedTracks[i].Played = true
			}
		}
	}

	room.CurrentRound = &Round{
		TrackId:   next.Id,
		StartTime: time.Now().UnixMilli(),
		Votes:     make(map[string]string),
		SkipVotes: []string{},
	}
	room.Phase = PhasePlaying
	room.roundGen++

	rs.scheduleRoundTimerLocked(room)
}

// roundDurationLocked is the wall-clock length of the playback phase.
// Fast mode halves it.
func roundDurationLocked(room *Room) time.Duration {
	d := time.Duration(room.Settings.RoundDuration) * time.Second
	if room.Settings.FastMode {
		d /= 2
	}
	return d
}

// scheduleRoundTimerLocked replaces any previously scheduled timer for
// this room. The fired callback re-checks both the phase and the round
// generation it was scheduled for, so a stale timer is provably a
// no-op rather than merely unlikely to race.
func (rs *RoomStore) scheduleRoundTimerLocked(room *Room) {
	if room.roundTimer != nil {
		room.roundTimer.Stop()
	}

	gen := room.roundGen
	code := room.Id

	room.roundTimer = time.AfterFunc(roundDurationLocked(room), func() {
		current, ok := rs.Get(code)
		if !ok || current != room {
			return
		}

		room.mu.Lock()
		if room.Phase != PhasePlaying || room.roundGen != gen {
			room.mu.Unlock()
			return
		}
		room.Phase = PhaseVoting
		room.lastActive = time.Now()
		room.mu.Unlock()

		if rs.onTimeout != nil {
			rs.onTimeout(room)
		}
	})
}

// EndPlayback forces the PLAYING -> VOTING transition. Outside PLAYING
// it is a silent no-op, which also guards against stale timers.
func (rs *RoomStore) EndPlayback(code string) (*Room, error) {
	room, ok := rs.Get(code)
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Phase != PhasePlaying {
		return room, nil
	}

	room.Phase = PhaseVoting
	room.lastActive = time.Now()

	return room, nil
}

// Vote records a guess at the current track's owner. A voter may change
// their vote until the round ends; only the last one counts. The track
// owner may not vote. Once every eligible voter has voted the round
// ends immediately, timer or not.
func (rs *RoomStore) Vote(code, voterId, guessedPlayerId string) (*Room, error) {
	room, ok := rs.Get(code)
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	// A tallied round is closed: votes arriving during RESULTS or after
	// the game ended must not re-run the tally or move the phase back.
	if room.Phase == PhaseResults || room.Phase == PhaseGameOver {
		return nil, ErrVoteRejected
	}
	if room.CurrentRound == nil {
		return nil, ErrVoteRejected
	}
	if room.playerLocked(voterId) == nil {
		return nil, ErrVoteRejected
	}

	track := room.trackLocked(room.CurrentRound.TrackId)
	if track != nil && track.OwnerId == voterId {
		return nil, ErrVoteRejected
	}

	room.CurrentRound.Votes[voterId] = guessedPlayerId
	room.lastActive = time.Now()

	var ownerId string
	if track != nil {
		ownerId = track.OwnerId
	}
	if len(room.CurrentRound.Votes) >= room.eligibleVotersLocked(ownerId) {
		rs.endRoundLocked(room)
	}

	return room, nil
}

// SkipTrack records a vote to skip the current playback. When every
// eligible voter wants out, playback ends early and voting opens.
func (rs *RoomStore) SkipTrack(code, playerId string) (*Room, error) {
	room, ok := rs.Get(code)
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Phase != PhasePlaying || room.CurrentRound == nil {
		return nil, ErrVoteRejected
	}
	if !room.Settings.AllowSkip {
		return nil, ErrVoteRejected
	}
	if room.playerLocked(playerId) == nil {
		return nil, ErrVoteRejected
	}

	track := room.trackLocked(room.CurrentRound.TrackId)
	if track != nil && track.OwnerId == playerId {
		return nil, ErrVoteRejected
	}

	for _, id := range room.CurrentRound.SkipVotes {
		if id == playerId {
			return room, nil
		}
	}
	room.CurrentRound.SkipVotes = append(room.CurrentRound.SkipVotes, playerId)
	room.lastActive = time.Now()

	var ownerId string
	if track != nil {
		ownerId = track.OwnerId
	}
	if len(room.CurrentRound.SkipVotes) >= room.eligibleVotersLocked(ownerId) {
		room.Phase = PhaseVoting
	}

	return room, nil
}

// endRoundLocked tallies the current round. Each correct guesser earns
// a point; the owner earns one point per eligible voter who failed to
// identify them, voters who never voted included. Every eligible voter
// is therefore worth exactly one point.
func (rs *RoomStore) endRoundLocked(room *Room) {
	// Tallying only ever moves PLAYING or VOTING forward; a finished
	// round is a no-op no matter how the call was reached.
	if room.Phase != PhasePlaying && room.Phase != PhaseVoting {
		return
	}
	if room.CurrentRound == nil {
		return
	}

	track := room.trackLocked(room.CurrentRound.TrackId)
	if track == nil {
		return
	}

	correctGuessers := []string{}
	for voterId, guessedId := range room.CurrentRound.Votes {
		if guessedId != track.OwnerId {
			continue
		}
		correctGuessers = append(correctGuessers, voterId)
		if voter := room.playerLocked(voterId); voter != nil {
			voter.Score++
		}
	}
	// Map iteration order is random; keep the wire payload stable.
	slices.Sort(correctGuessers)

	ownerPoints := 0
	if owner := room.playerLocked(track.OwnerId); owner != nil {
		ownerPoints = room.eligibleVotersLocked(track.OwnerId) - len(correctGuessers)
		owner.Score += ownerPoints
	}

	room.RoundHistory = append(room.RoundHistory, RoundResult{
		Track:           *track,
		CorrectGuessers: correctGuessers,
		OwnerPoints:     ownerPoints,
	})

	room.Phase = PhaseResults

	if room.roundTimer != nil {
		room.roundTimer.Stop()
	}
}

// NextRound advances RESULTS into the next round, or GAME_OVER once the
// track pool is exhausted. Host-only; anywhere outside RESULTS the call
// is rejected without touching the room.
func (rs *RoomStore) NextRound(code, requesterId string) (*Room, error) {
	room, ok := rs.Get(code)
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.HostId != requesterId {
		return nil, ErrNotHost
	}
	if room.Phase != PhaseResults {
		return nil, ErrPhaseClosed
	}

	rs.startNextRoundLocked(room)
	room.lastActive = time.Now()

	return room, nil
}
