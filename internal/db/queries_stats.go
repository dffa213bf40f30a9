package db

import "context"

// MechanismStats aggregates damage output per mechanism across the corpus.
type MechanismStats struct {
	Category    string  `json:"category"`
	Mechanism   string  `json:"mechanism"`
	Events      int     `json:"events"`
	TotalDamage float64 `json:"totalDamage"`
	AvgDamage   float64 `json:"avgDamage"`
}

// GetMechanismStats returns damage totals grouped by mechanism
func (db *DB) GetMechanismStats(ctx context.Context, limit int) ([]MechanismStats, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT
			category,
			mechanism,
			COUNT(*) as events,
			SUM(magnitude) as total_damage
		FROM damage_events
		GROUP BY category, mechanism
		ORDER BY total_damage DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []MechanismStats
	for rows.Next() {
		var s MechanismStats
		if err := rows.Scan(&s.Category, &s.Mechanism, &s.Events, &s.TotalDamage); err != nil {
			return nil, err
		}
		if s.Events > 0 {
			s.AvgDamage = s.TotalDamage / float64(s.Events)
		}
		stats = append(stats, s)
	}
	return stats, nil
}

// SpeciesStats aggregates a species' record across the corpus.
type SpeciesStats struct {
	Species     string  `json:"species"`
	Battles     int     `json:"battles"`
	DamageDealt float64 `json:"damageDealt"`
	DamageTaken float64 `json:"damageTaken"`
	HealingDone float64 `json:"healingDone"`
}

// GetSpeciesStats returns per-species damage dealt, taken and healing
func (db *DB) GetSpeciesStats(ctx context.Context, limit int) ([]SpeciesStats, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT
			t.species,
			COUNT(DISTINCT t.battle_id) as battles,
			COALESCE((SELECT SUM(magnitude) FROM damage_events d
				WHERE d.dealer_name = t.species AND d.category = 'move'), 0) as damage_dealt,
			COALESCE((SELECT SUM(magnitude) FROM damage_events d
				WHERE d.receiver_name = t.species), 0) as damage_taken,
			COALESCE((SELECT SUM(magnitude) FROM heal_events h
				WHERE h.receiver_name = t.species), 0) as healing_done
		FROM team_members t
		GROUP BY t.species
		ORDER BY battles DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []SpeciesStats
	for rows.Next() {
		var s SpeciesStats
		if err := rows.Scan(&s.Species, &s.Battles, &s.DamageDealt, &s.DamageTaken, &s.HealingDone); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, nil
}

// BattleSummary is the header row for listing stored battles.
type BattleSummary struct {
	BattleID string `json:"battleId"`
	Format   string `json:"format"`
	Player1  string `json:"player1"`
	Player2  string `json:"player2"`
	Rank     int    `json:"rank"`
	Winner   string `json:"winner"`
}

// GetRecentBattles returns the most recently submitted battles
func (db *DB) GetRecentBattles(ctx context.Context, limit int) ([]BattleSummary, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT battle_id, format, player1, player2, rank, winner
		FROM battles
		ORDER BY submitted_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var battles []BattleSummary
	for rows.Next() {
		var b BattleSummary
		if err := rows.Scan(&b.BattleID, &b.Format, &b.Player1, &b.Player2, &b.Rank, &b.Winner); err != nil {
			return nil, err
		}
		battles = append(battles, b)
	}
	return battles, nil
}

// PivotCauseStats counts how often each forcing move triggered a pivot.
type PivotCauseStats struct {
	Cause string `json:"cause"`
	Count int    `json:"count"`
}

// GetPivotCauses returns pivot counts grouped by cause, forced moves first
func (db *DB) GetPivotCauses(ctx context.Context, limit int) ([]PivotCauseStats, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT cause, COUNT(*) as count
		FROM pivots
		WHERE cause != 'action'
		GROUP BY cause
		ORDER BY count DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []PivotCauseStats
	for rows.Next() {
		var s PivotCauseStats
		if err := rows.Scan(&s.Cause, &s.Count); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, nil
}
