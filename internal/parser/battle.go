package parser

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Input is the engine's entire contract with the fetch collaborator: one
// opaque log string plus the battle's stable identity. The engine makes no
// network calls and keeps no state between battles, so identical input
// always re-derives identical output.
type Input struct {
	BattleID   string
	Format     string
	Log        string
	Rating     int
	UploadedAt time.Time
}

// Options tune per-line failure policy. Strict aborts the battle on the
// first malformed line; the default lenient mode records and skips it.
type Options struct {
	Strict bool
}

// Parse runs one battle with default options.
func Parse(in Input) (*Result, error) {
	return ParseWithOptions(in, Options{})
}

// ParseWithOptions drives the fixed pass order over one battle: directory,
// meta, action and pivot extraction, then the event walk against one shared
// ledger. It returns either the complete result bundle or a *BattleFailure;
// partially-applied state is never reported as success.
func ParseWithOptions(in Input, opts Options) (*Result, error) {
	log, err := ParseLog(in.BattleID, in.Log)
	if err != nil {
		var empty *EmptyLogError
		if errors.As(err, &empty) {
			return nil, err
		}
		return nil, failure(in.BattleID, "tokenize", err)
	}

	dir, err := BuildDirectory(in.Log)
	if err != nil {
		return nil, failure(in.BattleID, "directory", err)
	}

	res := &Result{
		Meta: extractMeta(in),
		Stats: ParseStats{
			Turns: len(log.Turns),
		},
	}

	res.Actions = ExtractActions(log)
	res.Pivots = ExtractPivots(log, dir)

	ledger := NewHPLedger(dir)
	walker := newEventWalker(log, dir, ledger, !opts.Strict, res)
	if err := walker.walk(); err != nil {
		return nil, failure(in.BattleID, "events", err)
	}

	for _, e := range dir.All() {
		res.Teams = append(res.Teams, TeamMember{
			Name:     e.Name,
			Nickname: e.Nickname,
			Owner:    e.Owner,
			FinalHP:  e.HP,
		})
	}
	return res, nil
}

func failure(battleID, stage string, err error) *BattleFailure {
	f := &BattleFailure{BattleID: battleID, Stage: stage, Message: err.Error()}
	var lpe *LineParseError
	var use *UnresolvedSourceError
	switch {
	case errors.As(err, &lpe):
		f.Turn, f.Line = lpe.Turn, lpe.Line
	case errors.As(err, &use):
		f.Turn, f.Line = use.Turn, use.Line
	}
	return f
}

// extractMeta reads the battle header from fixed structural markers. A
// missing win marker resolves to "tie", never to an error.
func extractMeta(in Input) BattleMeta {
	meta := BattleMeta{
		BattleID:    in.BattleID,
		Format:      in.Format,
		Rank:        in.Rating,
		Winner:      "tie",
		SubmittedAt: in.UploadedAt,
	}
	eachRawLine(in.Log, func(text string) {
		parts := strings.Split(text, "|")
		if len(parts) < 2 {
			return
		}
		switch parts[1] {
		case "player":
			if len(parts) < 4 || parts[3] == "" {
				return
			}
			switch parts[2] {
			case "p1":
				meta.Player1 = parts[3]
			case "p2":
				meta.Player2 = parts[3]
			}
			// The player line may carry an Elo in its last slot.
			if meta.Rank == 0 && len(parts) >= 5 {
				if elo, err := strconv.Atoi(parts[len(parts)-1]); err == nil && elo > 0 {
					meta.Rank = elo
				}
			}
		case "win":
			if len(parts) >= 3 {
				meta.Winner = parts[2]
			}
		case "tie":
			meta.Winner = "tie"
		}
	})
	return meta
}
