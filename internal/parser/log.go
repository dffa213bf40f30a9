package parser

import (
	"strconv"
	"strings"
)

const startMarker = "|start"

// Line is one retained protocol line inside a turn. Index is the 0-based
// position among the turn's retained lines.
type Line struct {
	Index int
	Text  string
}

// Command returns the protocol command of the line, e.g. "move" for
// "|move|p1a: Garchomp|Earthquake|p2a: Heatran".
func (l Line) Command() string {
	return lineCommand(l.Text)
}

// Field returns the n-th pipe-delimited field after the command, or "".
func (l Line) Field(n int) string {
	parts := strings.Split(l.Text, "|")
	// parts[0] is the empty prefix, parts[1] the command
	idx := n + 2
	if idx < 0 || idx >= len(parts) {
		return ""
	}
	return parts[idx]
}

// Turn groups the retained lines between two turn boundaries. Turn 0 holds
// everything between the start marker and the first |turn| line, which is
// where the opening switch-ins live.
type Turn struct {
	Number  int
	RawText string
	Lines   []Line
}

// BattleLog is the tokenized form of one raw replay log.
type BattleLog struct {
	// Preamble is everything before the start marker: player declarations,
	// team preview, format and rule lines.
	Preamble string
	Turns    []Turn
}

// chat, spectator presence and raw-markup commands carry no battle state and
// are dropped at tokenization time.
var droppedCommands = map[string]bool{
	"c": true, "c:": true, "chat": true,
	"j": true, "J": true, "join": true,
	"l": true, "L": true, "leave": true,
	"n": true, "N": true, "name": true,
	"raw": true, "html": true, "uhtml": true, "uhtmlchange": true,
	"inactive": true, "inactiveoff": true,
}

func lineCommand(text string) string {
	if !strings.HasPrefix(text, "|") {
		return ""
	}
	rest := text[1:]
	if i := strings.IndexByte(rest, '|'); i >= 0 {
		return rest[:i]
	}
	return rest
}

// ParseLog tokenizes a raw replay log into ordered turns. It returns
// *EmptyLogError when no start marker is present. Tokenization is a pure
// function of the input: re-parsing identical input yields identical output.
func ParseLog(battleID, raw string) (*BattleLog, error) {
	idx := findStartMarker(raw)
	if idx < 0 {
		return nil, &EmptyLogError{BattleID: battleID}
	}

	log := &BattleLog{Preamble: raw[:idx]}

	body := raw[idx:]
	current := Turn{Number: 0}
	flush := func(rawText string) {
		current.RawText = rawText
		log.Turns = append(log.Turns, current)
	}

	var rawBuf strings.Builder
	for _, text := range strings.Split(body, "\n") {
		text = strings.TrimRight(text, "\r")
		if cmd := lineCommand(text); cmd == "turn" {
			n, err := strconv.Atoi(strings.TrimPrefix(text, "|turn|"))
			if err != nil {
				return nil, &LineParseError{Turn: current.Number, Line: text, Msg: "bad turn number"}
			}
			flush(rawBuf.String())
			rawBuf.Reset()
			current = Turn{Number: n}
			continue
		}
		rawBuf.WriteString(text)
		rawBuf.WriteString("\n")
		if !keepLine(text) {
			continue
		}
		current.Lines = append(current.Lines, Line{Index: len(current.Lines), Text: text})
	}
	flush(rawBuf.String())

	return log, nil
}

// findStartMarker locates a line that is exactly the start marker.
func findStartMarker(raw string) int {
	offset := 0
	for _, text := range strings.Split(raw, "\n") {
		if strings.TrimRight(text, "\r") == startMarker {
			return offset
		}
		offset += len(text) + 1
	}
	return -1
}

func keepLine(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if !strings.HasPrefix(text, "|") {
		return false
	}
	cmd := lineCommand(text)
	if cmd == "" || cmd == "start" {
		return false
	}
	return !droppedCommands[cmd]
}

// eachRawLine walks every line of a raw log, preamble included, in order.
func eachRawLine(raw string, fn func(text string)) {
	for _, text := range strings.Split(raw, "\n") {
		fn(strings.TrimRight(text, "\r"))
	}
}
