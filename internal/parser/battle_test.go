package parser

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

const fullBattleLog = `|j|☆railbird
|player|p1|Alice|265|1502
|player|p2|Bob|266|1463
|gen|9
|tier|[Gen 9] OU
|poke|p1|Garchomp, F|
|poke|p1|Slowking, M|
|poke|p2|Blissey, F|
|poke|p2|Ferrothorn, M|
|start
|switch|p1a: Chompy|Garchomp, F|100/100
|switch|p2a: Eggy|Blissey, F|100/100
|turn|1
|move|p1a: Chompy|Stealth Rock|p2a: Eggy
|-sidestart|p2: Bob|move: Stealth Rock
|move|p2a: Eggy|Toxic|p1a: Chompy
|-status|p1a: Chompy|tox
|turn|2
|move|p1a: Chompy|Earthquake|p2a: Eggy
|-damage|p2a: Eggy|58/100
|move|p2a: Eggy|Seismic Toss|p1a: Chompy
|-damage|p1a: Chompy|77/100
|-damage|p1a: Chompy|71/100 tox|[from] psn
|-heal|p2a: Eggy|64/100|[from] item: Leftovers
|turn|3
|switch|p2a: Thorny|Ferrothorn, M|100/100
|-damage|p2a: Thorny|94/100|[from] Stealth Rock
|move|p1a: Chompy|Earthquake|p2a: Thorny
|-damage|p2a: Thorny|55/100
|win|Alice
`

func fullBattleInput() Input {
	return Input{
		BattleID:   "battle-gen9ou-424242",
		Format:     "gen9ou",
		Log:        fullBattleLog,
		Rating:     0,
		UploadedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestParse_FullBattle(t *testing.T) {
	res, err := ParseWithOptions(fullBattleInput(), Options{Strict: true})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if res.Meta.Player1 != "Alice" || res.Meta.Player2 != "Bob" {
		t.Errorf("players = %q / %q", res.Meta.Player1, res.Meta.Player2)
	}
	if res.Meta.Winner != "Alice" {
		t.Errorf("winner = %q", res.Meta.Winner)
	}
	if res.Meta.Rank != 1502 {
		t.Errorf("rank = %d, want 1502 from the first player line", res.Meta.Rank)
	}
	if res.Meta.BattleID != "battle-gen9ou-424242" || res.Meta.Format != "gen9ou" {
		t.Errorf("meta identity = %+v", res.Meta)
	}

	if len(res.Damage) != 5 {
		t.Fatalf("expected 5 damage events, got %d", len(res.Damage))
	}
	if len(res.Heals) != 1 {
		t.Fatalf("expected 1 heal event, got %d", len(res.Heals))
	}
	if len(res.Teams) != 4 {
		t.Errorf("expected 4 team members, got %d", len(res.Teams))
	}
	if res.Stats.Turns != 4 {
		t.Errorf("turns = %d, want 4", res.Stats.Turns)
	}

	// Event turn numbers never decrease along the walk.
	last := 0
	for _, d := range res.Damage {
		if d.Turn < last {
			t.Errorf("damage turns out of order: %d after %d", d.Turn, last)
		}
		last = d.Turn
	}
}

func TestParse_TieWhenNoWinMarker(t *testing.T) {
	in := fullBattleInput()
	in.Log = `|player|p1|Alice|265|
|player|p2|Bob|266|
|start
|switch|p1a: Chompy|Garchomp, F|100/100
|switch|p2a: Eggy|Blissey, F|100/100
`
	res, err := Parse(in)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if res.Meta.Winner != "tie" {
		t.Errorf("winner = %q, want tie", res.Meta.Winner)
	}
}

func TestParse_Idempotent(t *testing.T) {
	a, err := Parse(fullBattleInput())
	if err != nil {
		t.Fatalf("first parse failed: %v", err)
	}
	b, err := Parse(fullBattleInput())
	if err != nil {
		t.Fatalf("second parse failed: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("identical input produced different results")
	}
}

// Every entity must end at 100 minus its damage plus its heals: the ledger
// reflects only logged changes, applied exactly once each.
func TestParse_HPConservation(t *testing.T) {
	res, err := ParseWithOptions(fullBattleInput(), Options{Strict: true})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	expected := make(map[SourceRef]float64)
	for _, m := range res.Teams {
		expected[SourceRef{Player: m.Owner, Name: m.Name}] = 100
	}
	for _, d := range res.Damage {
		expected[d.Receiver] -= d.Magnitude
	}
	for _, h := range res.Heals {
		expected[h.Receiver] += h.Magnitude
	}
	for _, m := range res.Teams {
		key := SourceRef{Player: m.Owner, Name: m.Name}
		if math.Abs(expected[key]-m.FinalHP) > 1e-6 {
			t.Errorf("%s: 100 + signed deltas = %v, final ledger = %v", m.Name, expected[key], m.FinalHP)
		}
	}
}

// Every dealer and receiver that names a real combatant must exist in the
// directory output.
func TestParse_NoOrphanEvents(t *testing.T) {
	res, err := ParseWithOptions(fullBattleInput(), Options{Strict: true})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	known := make(map[SourceRef]bool)
	for _, m := range res.Teams {
		known[SourceRef{Player: m.Owner, Name: m.Name}] = true
	}
	for _, d := range res.Damage {
		if !known[d.Receiver] {
			t.Errorf("orphan receiver %+v", d.Receiver)
		}
		if d.Category == CategoryMove && !known[d.Dealer] {
			t.Errorf("orphan dealer %+v", d.Dealer)
		}
	}
	for _, h := range res.Heals {
		if !known[h.Receiver] {
			t.Errorf("orphan receiver %+v", h.Receiver)
		}
	}
}

func TestParse_LenientSkipsMalformedLine(t *testing.T) {
	in := fullBattleInput()
	in.Log = `|start
|switch|p1a: Chompy|Garchomp, F|100/100
|switch|p2a: Eggy|Blissey, F|100/100
|turn|1
|move|p1a: Chompy|Earthquake|p2a: Eggy
|-damage|p2a: Eggy|garbage-token
|move|p2a: Eggy|Seismic Toss|p1a: Chompy
|-damage|p1a: Chompy|67/100
`
	res, err := Parse(in)
	if err != nil {
		t.Fatalf("lenient parse should survive a bad line, got %v", err)
	}
	if len(res.Damage) != 1 {
		t.Errorf("expected 1 damage event after skip, got %d", len(res.Damage))
	}
	if len(res.Stats.Skipped) != 1 {
		t.Fatalf("expected 1 skipped line, got %d", len(res.Stats.Skipped))
	}
	if res.Stats.Skipped[0].Turn != 1 {
		t.Errorf("skip recorded for turn %d", res.Stats.Skipped[0].Turn)
	}
}

func TestParse_StrictFailsOnMalformedLine(t *testing.T) {
	in := fullBattleInput()
	in.Log = `|start
|switch|p1a: Chompy|Garchomp, F|100/100
|turn|1
|move|p1a: Chompy|Earthquake|p2a: Eggy
|-damage|p2a: Eggy|garbage-token
`
	_, err := ParseWithOptions(in, Options{Strict: true})
	var f *BattleFailure
	if !errors.As(err, &f) {
		t.Fatalf("expected *BattleFailure, got %v", err)
	}
	if f.Stage != "events" || f.Turn != 1 || f.Line == "" {
		t.Errorf("failure context = %+v", f)
	}
	if f.BattleID != in.BattleID {
		t.Errorf("failure battle = %q", f.BattleID)
	}
}

func TestParse_EmptyLogPropagates(t *testing.T) {
	in := fullBattleInput()
	in.Log = "|player|p1|Alice|265|\n|player|p2|Bob|266|\n"
	_, err := Parse(in)
	var empty *EmptyLogError
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptyLogError, got %v", err)
	}
}
