package game

import "github.com/toshiishere/network-programming/internal/models"

// standing is one side's position when a match ends.
type standing struct {
	score     int
	toppedOut bool
	gone      bool
}

// decide picks the outcome for both sides. A player who left loses to one who
// stayed. A player who topped out loses to one who did not. Anything else is
// settled by score, with a tie being a draw.
func decide(a, b standing) (models.Outcome, models.Outcome) {
	switch {
	case a.gone != b.gone:
		return loser(a.gone)
	case !a.gone && a.toppedOut != b.toppedOut:
		return loser(a.toppedOut)
	case a.score > b.score:
		return models.OutcomeWin, models.OutcomeLose
	case a.score < b.score:
		return models.OutcomeLose, models.OutcomeWin
	}
	return models.OutcomeDraw, models.OutcomeDraw
}

func loser(first bool) (models.Outcome, models.Outcome) {
	if first {
		return models.OutcomeLose, models.OutcomeWin
	}
	return models.OutcomeWin, models.OutcomeLose
}
