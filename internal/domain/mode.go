package domain

import "strings"

// Mode is a fixed head-count battle variant.
type Mode string

const (
	ModeDuel       Mode = "duel"
	ModeTeam       Mode = "team"
	ModeFreeForAll Mode = "ffa"
)

// Team identifies a side in team mode.
type Team string

const (
	TeamA Team = "A"
	TeamB Team = "B"
)

// ModeRules describes the head-count and readiness constraints of a mode.
type ModeRules struct {
	MinPlayers   int
	MaxPlayers   int
	RequireReady bool
	Teams        bool
}

var modeRules = map[Mode]ModeRules{
	ModeDuel:       {MinPlayers: 2, MaxPlayers: 2, RequireReady: true},
	ModeTeam:       {MinPlayers: 4, MaxPlayers: 4, RequireReady: true, Teams: true},
	ModeFreeForAll: {MinPlayers: 2, MaxPlayers: 4},
}

// ParseMode normalizes a mode name, accepting a few common aliases.
func ParseMode(raw string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "duel", "1v1", "2p":
		return ModeDuel, true
	case "team", "2v2", "4p-team":
		return ModeTeam, true
	case "ffa", "4p", "free-for-all":
		return ModeFreeForAll, true
	}
	return "", false
}

// Rules returns the rules for m; ok is false for an unknown mode.
func (m Mode) Rules() (ModeRules, bool) {
	r, ok := modeRules[m]
	return r, ok
}
