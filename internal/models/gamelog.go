package models

import "time"

// Outcome of one side of a finished match.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLose Outcome = "lose"
	OutcomeDraw Outcome = "draw"
)

// PlayerResult is one player's final line in a game log.
type PlayerResult struct {
	Name         string  `json:"name"`
	Score        int     `json:"score"`
	Lines        int     `json:"lines"`
	Level        int     `json:"level"`
	Outcome      Outcome `json:"outcome"`
	Disconnected bool    `json:"disconnected,omitempty"`
}

// GameLog is the append-only record written once per completed match.
type GameLog struct {
	Room       string       `json:"room"`
	HostResult PlayerResult `json:"hostResult"`
	OppoResult PlayerResult `json:"oppoResult"`
	EndedAt    time.Time    `json:"endedAt"`
}

// Winner returns the winning player's name, or "" on a draw.
func (g GameLog) Winner() string {
	switch {
	case g.HostResult.Outcome == OutcomeWin:
		return g.HostResult.Name
	case g.OppoResult.Outcome == OutcomeWin:
		return g.OppoResult.Name
	}
	return ""
}
