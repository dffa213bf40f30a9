package db

import (
	"context"
	"fmt"

	"replay-analyzer/internal/parser"
)

// InsertBattle inserts a battle header if it doesn't exist. Returns true
// when the row was inserted, false when the battle was already stored.
func (db *DB) InsertBattle(ctx context.Context, meta *parser.BattleMeta) (bool, error) {
	tag, err := db.pool.Exec(ctx, `
		INSERT INTO battles (battle_id, format, player1, player2, rank, winner, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (battle_id) DO NOTHING
	`, meta.BattleID, meta.Format, meta.Player1, meta.Player2, meta.Rank, meta.Winner, meta.SubmittedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SaveBattle stores a parsed battle and all of its events in one
// transaction. A battle that is already present is left untouched and
// reported with inserted=false.
func (db *DB) SaveBattle(ctx context.Context, res *parser.Result) (bool, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	meta := res.Meta
	tag, err := tx.Exec(ctx, `
		INSERT INTO battles (battle_id, format, player1, player2, rank, winner, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (battle_id) DO NOTHING
	`, meta.BattleID, meta.Format, meta.Player1, meta.Player2, meta.Rank, meta.Winner, meta.SubmittedAt)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for _, m := range res.Teams {
		_, err := tx.Exec(ctx, `
			INSERT INTO team_members (battle_id, owner, species, nickname, final_hp)
			VALUES ($1, $2, $3, $4, $5)
		`, meta.BattleID, int(m.Owner), m.Name, m.Nickname, m.FinalHP)
		if err != nil {
			return false, err
		}
	}

	for _, d := range res.Damage {
		_, err := tx.Exec(ctx, `
			INSERT INTO damage_events (
				battle_id, turn, category, mechanism,
				dealer_player, dealer_name, receiver_player, receiver_name,
				magnitude, low_confidence
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, meta.BattleID, d.Turn, d.Category.String(), d.Mechanism,
			int(d.Dealer.Player), d.Dealer.Name, int(d.Receiver.Player), d.Receiver.Name,
			d.Magnitude, d.LowConfidence)
		if err != nil {
			return false, err
		}
	}

	for _, h := range res.Heals {
		_, err := tx.Exec(ctx, `
			INSERT INTO heal_events (
				battle_id, turn, category, mechanism,
				source_player, source_name, receiver_player, receiver_name,
				magnitude, low_confidence
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, meta.BattleID, h.Turn, h.Category.String(), h.Mechanism,
			int(h.Source.Player), h.Source.Name, int(h.Receiver.Player), h.Receiver.Name,
			h.Magnitude, h.LowConfidence)
		if err != nil {
			return false, err
		}
	}

	for _, a := range res.Actions {
		_, err := tx.Exec(ctx, `
			INSERT INTO actions (battle_id, turn, player, action)
			VALUES ($1, $2, $3, $4)
		`, meta.BattleID, a.Turn, int(a.Player), a.Action.String())
		if err != nil {
			return false, err
		}
	}

	for _, p := range res.Pivots {
		_, err := tx.Exec(ctx, `
			INSERT INTO pivots (battle_id, turn, player, entering, cause)
			VALUES ($1, $2, $3, $4, $5)
		`, meta.BattleID, p.Turn, int(p.Player), p.Entering, p.Cause)
		if err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

// BattleExists checks if a battle already exists in the database
func (db *DB) BattleExists(ctx context.Context, battleID string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM battles WHERE battle_id = $1)
	`, battleID).Scan(&exists)
	return exists, err
}

// GetBattleCount returns the total number of stored battles
func (db *DB) GetBattleCount(ctx context.Context) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM battles`).Scan(&count)
	return count, err
}

// GetDamageEventCount returns the total number of damage events
func (db *DB) GetDamageEventCount(ctx context.Context) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM damage_events`).Scan(&count)
	return count, err
}
