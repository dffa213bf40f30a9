package parser

import "fmt"

// EmptyLogError means the log has no battle-start marker. Battles abandoned
// during team selection look like this; it is a "nothing happened" signal,
// not a corrupt input.
type EmptyLogError struct {
	BattleID string
}

func (e *EmptyLogError) Error() string {
	return fmt.Sprintf("battle %s: no |start marker in log", e.BattleID)
}

// DirectoryBuildError means two irreconcilable directory entries match one
// in-battle reference and the ambiguity cannot be resolved at lookup time.
type DirectoryBuildError struct {
	Owner PlayerNumber
	Ref   string
}

func (e *DirectoryBuildError) Error() string {
	return fmt.Sprintf("ambiguous entity reference %q for player %d", e.Ref, e.Owner)
}

// LineParseError tags a single malformed line with enough context to replay
// and debug the battle without re-fetching it.
type LineParseError struct {
	Turn int
	Line string
	Msg  string
}

func (e *LineParseError) Error() string {
	return fmt.Sprintf("turn %d: %s: %q", e.Turn, e.Msg, e.Line)
}

// UnresolvedSourceError means the move-shape resolver exhausted every
// strategy, including the nearest-move fallback.
type UnresolvedSourceError struct {
	Turn     int
	Receiver string
	Line     string
}

func (e *UnresolvedSourceError) Error() string {
	return fmt.Sprintf("turn %d: no move source found for damage to %s: %q", e.Turn, e.Receiver, e.Line)
}

// BattleFailure is the terminal failure state of a battle parse. Stage names
// the pass that failed so a batch operator can triage without the raw log.
type BattleFailure struct {
	BattleID string
	Stage    string
	Message  string
	Turn     int
	Line     string
}

func (f *BattleFailure) Error() string {
	if f.Line != "" {
		return fmt.Sprintf("battle %s failed at %s (turn %d): %s [%s]", f.BattleID, f.Stage, f.Turn, f.Message, f.Line)
	}
	return fmt.Sprintf("battle %s failed at %s: %s", f.BattleID, f.Stage, f.Message)
}
