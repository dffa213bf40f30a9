package parser

import "time"

// MechanismCategory is the six-way classification of what caused a health
// change.
type MechanismCategory int

const (
	CategoryMove MechanismCategory = iota
	CategoryItem
	CategoryAbility
	CategoryStatus
	CategoryHazard
	CategoryPassive
)

func (c MechanismCategory) String() string {
	switch c {
	case CategoryMove:
		return "move"
	case CategoryItem:
		return "item"
	case CategoryAbility:
		return "ability"
	case CategoryStatus:
		return "status"
	case CategoryHazard:
		return "hazard"
	case CategoryPassive:
		return "passive"
	}
	return "unknown"
}

// SourceRef names one end of an event. For a real combatant Name is the
// canonical species; for synthetic dealers (hazards, status) Name is the
// mechanism itself and Player is the side it is attributed to.
type SourceRef struct {
	Player PlayerNumber `json:"player"`
	Name   string       `json:"name"`
}

// DamageEvent is one closed fact: in this turn, this mechanism took this
// many health-percentage points from the receiver. Magnitude comes from the
// ledger at resolution time and is never re-derived.
type DamageEvent struct {
	Turn          int               `json:"turn"`
	Category      MechanismCategory `json:"category"`
	Mechanism     string            `json:"mechanism"`
	Dealer        SourceRef         `json:"dealer"`
	Receiver      SourceRef         `json:"receiver"`
	Magnitude     float64           `json:"magnitude"`
	LowConfidence bool              `json:"lowConfidence,omitempty"`
}

// HealEvent mirrors DamageEvent for health gained.
type HealEvent struct {
	Turn          int               `json:"turn"`
	Category      MechanismCategory `json:"category"`
	Mechanism     string            `json:"mechanism"`
	Source        SourceRef         `json:"source"`
	Receiver      SourceRef         `json:"receiver"`
	Magnitude     float64           `json:"magnitude"`
	LowConfidence bool              `json:"lowConfidence,omitempty"`
}

// ActionKind is what a player chose to do with a turn.
type ActionKind int

const (
	ActionMove ActionKind = iota
	ActionSwitch
	ActionIncapacitated
)

func (a ActionKind) String() string {
	switch a {
	case ActionMove:
		return "move"
	case ActionSwitch:
		return "switch"
	case ActionIncapacitated:
		return "incapacitated"
	}
	return "unknown"
}

// ActionEvent records the first action attributable to a player in one turn.
type ActionEvent struct {
	Turn   int          `json:"turn"`
	Player PlayerNumber `json:"player"`
	Action ActionKind   `json:"action"`
}

// PivotCauseAction tags a voluntary switch (or the turn-0 opener); forced
// pivots carry the forcing move's name instead.
const PivotCauseAction = "action"

// PivotEvent records a change of active combatant.
type PivotEvent struct {
	Turn     int          `json:"turn"`
	Player   PlayerNumber `json:"player"`
	Entering string       `json:"entering"`
	Cause    string       `json:"cause"`
}

// BattleMeta is the battle-level header data. Rank 0 means no rating was
// present; Winner is "tie" when the log carries no win marker.
type BattleMeta struct {
	BattleID    string    `json:"battleId"`
	Format      string    `json:"format"`
	Player1     string    `json:"player1"`
	Player2     string    `json:"player2"`
	Rank        int       `json:"rank,omitempty"`
	Winner      string    `json:"winner"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// TeamMember is the serializable view of one directory entity after the
// full walk. FinalHP is the ledger's last value.
type TeamMember struct {
	Name     string       `json:"name"`
	Nickname string       `json:"nickname"`
	Owner    PlayerNumber `json:"owner"`
	FinalHP  float64      `json:"finalHp"`
}

// SkippedLine records a line dropped in lenient mode.
type SkippedLine struct {
	Turn   int    `json:"turn"`
	Line   string `json:"line"`
	Reason string `json:"reason"`
}

// ParseStats exposes parser-health counters. FallbackResolutions counts uses
// of the nearest-move-regardless-of-target guess; a rising rate on a corpus
// is a signal the shape matchers are missing something.
type ParseStats struct {
	Turns                 int           `json:"turns"`
	DamageLines           int           `json:"damageLines"`
	HealLines             int           `json:"healLines"`
	FallbackResolutions   int           `json:"fallbackResolutions"`
	LowConfidencePassives int           `json:"lowConfidencePassives"`
	InferredHeals         int           `json:"inferredHeals"`
	Skipped               []SkippedLine `json:"skipped,omitempty"`
}

// Result is the success bundle for one battle: plain data, safe to hand to
// storage or serialization without dragging engine internals along.
type Result struct {
	Meta    BattleMeta    `json:"meta"`
	Teams   []TeamMember  `json:"teams"`
	Actions []ActionEvent `json:"actions"`
	Pivots  []PivotEvent  `json:"pivots"`
	Damage  []DamageEvent `json:"damage"`
	Heals   []HealEvent   `json:"heals"`
	Stats   ParseStats    `json:"stats"`
}
