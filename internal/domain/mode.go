package domain

// Mode identifies one of the four supported game modes. Strings, not an
// enum, because they round-trip through Redis keys and JSON untouched.
type Mode string

const (
	ModeFPS   Mode = "fps"
	ModeChess Mode = "chess"
	ModeMOBA  Mode = "moba"
	ModeRTS   Mode = "rts"
)

// ModeConfig is the static, read-only configuration returned alongside a
// Match. Instances live in modeConfigs and are shared by reference —
// never cloned per request.
type ModeConfig struct {
	Mode       Mode     `json:"mode"`
	MaxPlayers int      `json:"maxPlayers"`
	MapSize    string   `json:"mapSize,omitempty"`
	GameTime   int64    `json:"gameTimeMs,omitempty"`
	TeamSize   int      `json:"teamSize,omitempty"`
	Resources  []string `json:"resources,omitempty"`

	// Chess-only fields.
	TimeControl string `json:"timeControl,omitempty"`
	Increment   int    `json:"increment,omitempty"`
}

var modeConfigs = map[Mode]*ModeConfig{
	ModeFPS: {
		Mode:       ModeFPS,
		MaxPlayers: 10,
		MapSize:    "1000x1000",
		GameTime:   600_000,
	},
	ModeChess: {
		Mode:        ModeChess,
		MaxPlayers:  2,
		TimeControl: "10+0",
		Increment:   0,
	},
	ModeMOBA: {
		Mode:       ModeMOBA,
		MaxPlayers: 10,
		TeamSize:   5,
		GameTime:   1_800_000,
	},
	ModeRTS: {
		Mode:       ModeRTS,
		MaxPlayers: 2,
		MapSize:    "128x128",
		Resources:  []string{"minerals", "gas"},
	},
}

// ConfigFor returns the shared, immutable config for mode, or nil if the
// mode is unrecognized.
func ConfigFor(mode Mode) *ModeConfig {
	return modeConfigs[mode]
}

// IsValidMode reports whether mode is one of the four supported modes.
func IsValidMode(mode Mode) bool {
	return modeConfigs[mode] != nil
}

// PlayersPerMatch returns the group size a tick must assemble before it
// can commit a match for mode. Zero if the mode is unrecognized.
func PlayersPerMatch(mode Mode) int {
	cfg := modeConfigs[mode]
	if cfg == nil {
		return 0
	}
	return cfg.MaxPlayers
}

// AllModes lists the modes the Matchmaking Engine runs a tick for.
func AllModes() []Mode {
	return []Mode{ModeFPS, ModeChess, ModeMOBA, ModeRTS}
}

// IsRated reports whether settlement applies rating updates for mode.
// Only chess two-player games are rated in the core; other modes finish
// without touching ratings (spec §4.5, eligible for later extension).
func IsRated(mode Mode) bool {
	return mode == ModeChess
}
