package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// HPLedger is the single writer of entity health. Every health-changing
// event funnels through Apply exactly once, in log order; no other code path
// touches Pokemon.HP.
type HPLedger struct {
	dir *Directory
}

// NewHPLedger wraps a directory whose entities all start at 100 percent.
func NewHPLedger(dir *Directory) *HPLedger {
	for _, e := range dir.All() {
		e.HP = 100
	}
	return &HPLedger{dir: dir}
}

// Current returns the entity's health percentage as of the last Apply.
func (l *HPLedger) Current(p *Pokemon) float64 {
	return p.HP
}

// Apply moves the entity to a new health percentage and returns the signed
// delta. Fainted entities still accept applies: self-sacrifice effects can
// land after an entity hits zero.
func (l *HPLedger) Apply(p *Pokemon, newValue float64) float64 {
	delta := newValue - p.HP
	p.HP = newValue
	p.LastDelta = delta
	return delta
}

// ParseHPPercent reads a protocol HP token into a percentage. Tokens look
// like "67/100", "94/100 brn" (trailing status label), "0 fnt", or a bare
// "0". The status suffix is not part of the denominator.
func ParseHPPercent(token string) (float64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, fmt.Errorf("empty hp token")
	}
	if i := strings.IndexByte(token, ' '); i >= 0 {
		token = token[:i]
	}
	if !strings.ContainsRune(token, '/') {
		n, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return 0, fmt.Errorf("bad hp token %q", token)
		}
		return n, nil
	}
	curStr, maxStr, _ := strings.Cut(token, "/")
	cur, err := strconv.ParseFloat(curStr, 64)
	if err != nil {
		return 0, fmt.Errorf("bad hp numerator %q", token)
	}
	max, err := strconv.ParseFloat(maxStr, 64)
	if err != nil || max <= 0 {
		return 0, fmt.Errorf("bad hp denominator %q", token)
	}
	return cur / max * 100, nil
}
