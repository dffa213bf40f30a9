package showdown

import (
	"time"

	"replay-analyzer/internal/parser"
)

// ReplayRef is one entry of a replay search page.
type ReplayRef struct {
	ID         string   `json:"id"`
	Format     string   `json:"format"`
	Players    []string `json:"players"`
	UploadTime int64    `json:"uploadtime"`
	Rating     int      `json:"rating"`
	Private    int      `json:"private"`
}

// Replay is a full replay payload, raw battle log included.
type Replay struct {
	ID         string   `json:"id"`
	Format     string   `json:"format"`
	FormatID   string   `json:"formatid"`
	Players    []string `json:"players"`
	Log        string   `json:"log"`
	UploadTime int64    `json:"uploadtime"`
	Rating     int      `json:"rating"`
	Views      int      `json:"views"`
}

// ParserInput adapts a replay to the engine's input contract.
func (r *Replay) ParserInput() parser.Input {
	format := r.FormatID
	if format == "" {
		format = r.Format
	}
	return parser.Input{
		BattleID:   r.ID,
		Format:     format,
		Log:        r.Log,
		Rating:     r.Rating,
		UploadedAt: time.Unix(r.UploadTime, 0).UTC(),
	}
}
