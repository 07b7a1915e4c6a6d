package domain

import "time"

// DefaultRating is the starting rating for every mode a player has not
// yet played.
const DefaultRating = 1000

// MinRating is the floor every rating update clamps to.
const MinRating = 100

// Counters tracks a player's game outcomes. gamesPlayed = wins + losses
// + draws always holds.
type Counters struct {
	GamesPlayed int `json:"gamesPlayed"`
	Wins        int `json:"wins"`
	Losses      int `json:"losses"`
	Draws       int `json:"draws"`
}

// Player is the persistent record the Player Store owns exclusively.
type Player struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Ratings    map[Mode]int     `json:"ratings"`
	Counters   Counters         `json:"counters"`
	CreatedAt  time.Time        `json:"createdAt"`
	LastActive time.Time        `json:"lastActive"`
}

// RatingFor returns the player's rating in mode, defaulting to
// DefaultRating if the mode has never been recorded.
func (p *Player) RatingFor(mode Mode) int {
	if p.Ratings == nil {
		return DefaultRating
	}
	if r, ok := p.Ratings[mode]; ok {
		return r
	}
	return DefaultRating
}

// NewPlayer allocates a fresh player record with every mode rating
// initialized to DefaultRating.
func NewPlayer(id, name string, now time.Time) *Player {
	ratings := make(map[Mode]int, len(AllModes()))
	for _, m := range AllModes() {
		ratings[m] = DefaultRating
	}
	return &Player{
		ID:         id,
		Name:       name,
		Ratings:    ratings,
		CreatedAt:  now,
		LastActive: now,
	}
}
