package parser

import "strings"

// ExtractActions classifies each player's first chosen action per turn.
// Turn 0 is excluded: the opening switch-in is always forced. A player with
// no move or switch line in a turn was incapacitated (full-turn status lock,
// fainted and not replaced, and similar).
func ExtractActions(log *BattleLog) []ActionEvent {
	var actions []ActionEvent
	for _, t := range log.Turns {
		if t.Number == 0 {
			continue
		}
		for _, player := range []PlayerNumber{1, 2} {
			actions = append(actions, ActionEvent{
				Turn:   t.Number,
				Player: player,
				Action: firstAction(t, player),
			})
		}
	}
	return actions
}

func firstAction(t Turn, player PlayerNumber) ActionKind {
	for _, line := range t.Lines {
		cmd := line.Command()
		if cmd != "move" && cmd != "switch" {
			continue
		}
		owner, _, err := parsePosition(line.Field(0))
		if err != nil || owner != player {
			continue
		}
		if cmd == "move" {
			return ActionMove
		}
		// A switch line with a [from] trailer was forced by a move, not
		// chosen; it does not count as the player's action.
		if ann := parseAnnotations(lineExtras(line.Text)); ann.from != "" {
			continue
		}
		return ActionSwitch
	}
	return ActionIncapacitated
}

// ExtractPivots records every change of active combatant. A [from] move
// trailer marks a forced pivot (roar-like or baton-pass-like); everything
// else, the turn-0 openers included, is a voluntary action.
func ExtractPivots(log *BattleLog, dir *Directory) []PivotEvent {
	var pivots []PivotEvent
	for _, t := range log.Turns {
		for _, line := range t.Lines {
			if !entranceCommands[line.Command()] {
				continue
			}
			entity, err := dir.Resolve(line.Field(0))
			if err != nil {
				continue
			}
			cause := PivotCauseAction
			if ann := parseAnnotations(lineExtras(line.Text)); ann.from != "" {
				cause = strings.TrimPrefix(ann.from, "move: ")
			}
			pivots = append(pivots, PivotEvent{
				Turn:     t.Number,
				Player:   entity.Owner,
				Entering: entity.Name,
				Cause:    cause,
			})
		}
	}
	return pivots
}
