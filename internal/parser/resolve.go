package parser

import (
	"errors"
	"math"
	"strings"
)

// The fixed hazard and status cause sets. Everything else annotated but not
// item/ability falls through to the passive catch-all (leech seed, weather,
// terrain, drain and the rest).
var hazardSet = map[string]bool{
	"stealth rock":     true,
	"spikes":           true,
	"g-max steelsurge": true,
}

var statusSet = map[string]bool{
	"psn": true, "poison": true,
	"tox": true, "toxic": true,
	"brn": true, "burn": true,
}

// annotations are the bracketed trailers of a health line.
type annotations struct {
	from string
	of   string
}

// lineExtras returns the fields after the position and detail slots, where
// bracketed trailers live.
func lineExtras(text string) []string {
	parts := strings.Split(text, "|")
	if len(parts) <= 4 {
		return nil
	}
	return parts[4:]
}

func parseAnnotations(fields []string) annotations {
	var ann annotations
	for _, f := range fields {
		if rest, ok := strings.CutPrefix(f, "[from]"); ok {
			ann.from = strings.TrimSpace(rest)
		} else if rest, ok := strings.CutPrefix(f, "[of]"); ok {
			ann.of = strings.TrimSpace(rest)
		}
	}
	return ann
}

// classify maps a [from] cause to a mechanism category and name. First match
// wins: no annotation means a directly-used move, then item, ability, the
// hazard set, the status set, and finally the passive catch-all.
func classify(from string) (MechanismCategory, string) {
	if from == "" {
		return CategoryMove, ""
	}
	if rest, ok := strings.CutPrefix(from, "item: "); ok {
		return CategoryItem, rest
	}
	if rest, ok := strings.CutPrefix(from, "ability: "); ok {
		return CategoryAbility, rest
	}
	low := strings.ToLower(from)
	if hazardSet[low] {
		return CategoryHazard, from
	}
	if statusSet[low] {
		return CategoryStatus, from
	}
	return CategoryPassive, strings.TrimPrefix(from, "move: ")
}

// InferredHealMechanism names the synthetic heal emitted when an entity
// re-enters with more health than the ledger last saw, the signature of a
// regenerator-style hidden ability.
const InferredHealMechanism = "regenerator-equivalent"

// eventWalker folds the turn sequence into damage and heal events against
// one ledger. Single-threaded by design: the ledger value at any line
// depends on every prior line.
type eventWalker struct {
	log     *BattleLog
	dir     *Directory
	ledger  *HPLedger
	lenient bool
	entered map[*Pokemon]bool
	res     *Result
}

func newEventWalker(log *BattleLog, dir *Directory, ledger *HPLedger, lenient bool, res *Result) *eventWalker {
	return &eventWalker{
		log:     log,
		dir:     dir,
		ledger:  ledger,
		lenient: lenient,
		entered: make(map[*Pokemon]bool),
		res:     res,
	}
}

// walk runs the full battle. In lenient mode per-line failures are recorded
// in the stats and skipped; in strict mode the first failure is returned.
func (w *eventWalker) walk() error {
	for ti, t := range w.log.Turns {
		for _, line := range t.Lines {
			var err error
			switch line.Command() {
			case "switch", "drag", "replace":
				err = w.handleEntrance(t, line)
			case "-damage":
				err = w.handleHealthLine(ti, t, line, false)
			case "-heal":
				err = w.handleHealthLine(ti, t, line, true)
			}
			if err == nil {
				continue
			}
			var ambiguous *DirectoryBuildError
			if !w.lenient || errors.As(err, &ambiguous) {
				return err
			}
			w.res.Stats.Skipped = append(w.res.Stats.Skipped, SkippedLine{
				Turn:   t.Number,
				Line:   line.Text,
				Reason: err.Error(),
			})
		}
	}
	return nil
}

// handleEntrance applies the entrance HP fraction and, when an entity comes
// back healthier than the ledger last saw it, emits the inferred-ability
// heal. That inference is the only event not sourced from a dedicated line.
func (w *eventWalker) handleEntrance(t Turn, line Line) error {
	parts := strings.Split(line.Text, "|")
	if len(parts) < 5 {
		// Entrance without an HP fraction carries no ledger information.
		return nil
	}
	entity, err := w.dir.Resolve(parts[2])
	if err != nil {
		return err
	}
	newVal, err := ParseHPPercent(parts[4])
	if err != nil {
		return &LineParseError{Turn: t.Number, Line: line.Text, Msg: err.Error()}
	}
	returning := w.entered[entity]
	w.entered[entity] = true
	delta := w.ledger.Apply(entity, newVal)
	if returning && delta > 0 {
		w.res.Heals = append(w.res.Heals, HealEvent{
			Turn:      t.Number,
			Category:  CategoryAbility,
			Mechanism: InferredHealMechanism,
			Source:    SourceRef{Player: entity.Owner, Name: entity.Name},
			Receiver:  SourceRef{Player: entity.Owner, Name: entity.Name},
			Magnitude: delta,
		})
		w.res.Stats.InferredHeals++
	}
	return nil
}

func (w *eventWalker) handleHealthLine(turnIdx int, t Turn, line Line, heal bool) error {
	parts := strings.Split(line.Text, "|")
	if len(parts) < 4 {
		return &LineParseError{Turn: t.Number, Line: line.Text, Msg: "missing hp field"}
	}
	receiver, err := w.dir.Resolve(parts[2])
	if err != nil {
		return err
	}
	newVal, err := ParseHPPercent(parts[3])
	if err != nil {
		return &LineParseError{Turn: t.Number, Line: line.Text, Msg: err.Error()}
	}

	ann := parseAnnotations(parts[4:])
	category, mechanism := classify(ann.from)
	receiverRef := SourceRef{Player: receiver.Owner, Name: receiver.Name}

	var dealer SourceRef
	var lowConfidence bool

	switch category {
	case CategoryMove:
		src, name, fallback, rerr := w.resolveMoveSource(turnIdx, t, line, receiver)
		if rerr != nil {
			// Keep the ledger honest even when attribution fails, so the
			// magnitudes of later events stay correct.
			w.ledger.Apply(receiver, newVal)
			return rerr
		}
		dealer, mechanism, lowConfidence = src, name, fallback
	case CategoryItem, CategoryAbility:
		// The carrier is the receiver unless an [of] clause names the entity
		// whose item or ability did the damage (contact punishers).
		dealer = receiverRef
		if ann.of != "" {
			owner, rerr := w.dir.Resolve(ann.of)
			if rerr != nil {
				return rerr
			}
			dealer = SourceRef{Player: owner.Owner, Name: owner.Name}
		}
	case CategoryStatus, CategoryHazard:
		// Hazards and status are laid by the opposing side's field or action.
		dealer = SourceRef{Player: receiver.Owner.Opponent(), Name: mechanism}
	case CategoryPassive:
		if ann.of != "" {
			owner, rerr := w.dir.Resolve(ann.of)
			if rerr != nil {
				return rerr
			}
			dealer = SourceRef{Player: owner.Owner, Name: owner.Name}
		} else {
			// Opposite-side default with no game-rule guarantee behind it;
			// flagged so downstream consumers can weigh it accordingly.
			dealer = SourceRef{Player: receiver.Owner.Opponent(), Name: mechanism}
			lowConfidence = true
			w.res.Stats.LowConfidencePassives++
		}
	}

	delta := w.ledger.Apply(receiver, newVal)
	magnitude := math.Abs(delta)

	if heal {
		w.res.Stats.HealLines++
		w.res.Heals = append(w.res.Heals, HealEvent{
			Turn:          t.Number,
			Category:      category,
			Mechanism:     mechanism,
			Source:        dealer,
			Receiver:      receiverRef,
			Magnitude:     magnitude,
			LowConfidence: lowConfidence,
		})
	} else {
		w.res.Stats.DamageLines++
		w.res.Damage = append(w.res.Damage, DamageEvent{
			Turn:          t.Number,
			Category:      category,
			Mechanism:     mechanism,
			Dealer:        dealer,
			Receiver:      receiverRef,
			Magnitude:     magnitude,
			LowConfidence: lowConfidence,
		})
	}
	return nil
}

// moveLine is a parsed "|move|DEALER|Name|TARGET|..." indicator.
type moveLine struct {
	dealer *Pokemon
	name   string
	target *Pokemon
	spread bool
}

func (w *eventWalker) parseMoveLine(line Line) (*moveLine, error) {
	parts := strings.Split(line.Text, "|")
	if len(parts) < 4 {
		return nil, nil
	}
	dealer, err := w.dir.Resolve(parts[2])
	if err != nil {
		return nil, err
	}
	ml := &moveLine{dealer: dealer, name: parts[3]}
	for _, extra := range parts[4:] {
		if strings.HasPrefix(extra, "[spread]") {
			ml.spread = true
		}
	}
	if len(parts) >= 5 && strings.HasPrefix(parts[4], "p") {
		if target, err := w.dir.Resolve(parts[4]); err == nil {
			ml.target = target
		}
	}
	return ml, nil
}

// resolveMoveSource finds the move and dealer behind an unannotated health
// line by scanning backward for the nearest qualifying indicator. Shape
// precedence: a spread marker or a receiver-matching animation at the
// nearest indicator wins outright; otherwise the most recent move declaring
// this receiver as target; with no same-turn indicator at all, the delayed
// path; and as a last resort the nearest move regardless of target, flagged
// low-confidence and counted in the stats.
func (w *eventWalker) resolveMoveSource(turnIdx int, t Turn, damage Line, receiver *Pokemon) (SourceRef, string, bool, error) {
	var nearest *moveLine
	sawIndicator := false

	for j := damage.Index - 1; j >= 0; j-- {
		line := t.Lines[j]
		switch line.Command() {
		case "-anim":
			// Multi-hit animation: one line per victim, immediately before
			// that victim's damage line. Matched by exact receiver, never by
			// the original declaration's target.
			parts := strings.Split(line.Text, "|")
			if len(parts) >= 5 {
				target, err := w.dir.Resolve(parts[4])
				if err == nil && target == receiver {
					dealer, err := w.dir.Resolve(parts[2])
					if err == nil {
						return SourceRef{Player: dealer.Owner, Name: dealer.Name}, parts[3], false, nil
					}
				}
			}
			sawIndicator = true
		case "move":
			ml, err := w.parseMoveLine(line)
			if err != nil || ml == nil {
				sawIndicator = true
				continue
			}
			if !sawIndicator && ml.spread {
				// A spread declaration absorbs every damage line until the
				// next indicator; per-victim target lists are not parsed.
				return SourceRef{Player: ml.dealer.Owner, Name: ml.dealer.Name}, ml.name, false, nil
			}
			if ml.target == receiver {
				return SourceRef{Player: ml.dealer.Owner, Name: ml.dealer.Name}, ml.name, false, nil
			}
			if nearest == nil {
				nearest = ml
			}
			sawIndicator = true
		}
	}

	if !sawIndicator {
		if src, name, ok := w.resolveDelayed(turnIdx, t, receiver); ok {
			return src, name, false, nil
		}
	}
	if nearest != nil {
		w.res.Stats.FallbackResolutions++
		return SourceRef{Player: nearest.dealer.Owner, Name: nearest.dealer.Name}, nearest.name, true, nil
	}
	return SourceRef{}, "", false, &UnresolvedSourceError{
		Turn:     t.Number,
		Receiver: receiver.Name,
		Line:     damage.Text,
	}
}

// resolveDelayed handles moves that land turns after their use. The same
// turn carries an "|-end|RECEIVER|move: X" line; the declaring entity is
// found by scanning every prior turn backward for the move's use.
func (w *eventWalker) resolveDelayed(turnIdx int, t Turn, receiver *Pokemon) (SourceRef, string, bool) {
	var moveName string
	for _, line := range t.Lines {
		if line.Command() != "-end" {
			continue
		}
		parts := strings.Split(line.Text, "|")
		if len(parts) < 4 {
			continue
		}
		target, err := w.dir.Resolve(parts[2])
		if err != nil || target != receiver {
			continue
		}
		moveName = strings.TrimPrefix(parts[3], "move: ")
		break
	}
	if moveName == "" {
		return SourceRef{}, "", false
	}

	for ti := turnIdx - 1; ti >= 0; ti-- {
		lines := w.log.Turns[ti].Lines
		for j := len(lines) - 1; j >= 0; j-- {
			line := lines[j]
			switch line.Command() {
			case "move":
				ml, err := w.parseMoveLine(line)
				if err == nil && ml != nil && ml.name == moveName {
					return SourceRef{Player: ml.dealer.Owner, Name: ml.dealer.Name}, moveName, true
				}
			case "-start":
				parts := strings.Split(line.Text, "|")
				if len(parts) >= 4 && strings.TrimPrefix(parts[3], "move: ") == moveName {
					if dealer, err := w.dir.Resolve(parts[2]); err == nil {
						return SourceRef{Player: dealer.Owner, Name: dealer.Name}, moveName, true
					}
				}
			}
		}
	}
	return SourceRef{}, "", false
}
