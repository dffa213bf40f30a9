package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"replay-analyzer/internal/cache"
	"replay-analyzer/internal/collector"
	"replay-analyzer/internal/db"
	"replay-analyzer/internal/parser"
	"replay-analyzer/internal/showdown"

	"github.com/joho/godotenv"
)

func main() {
	// Flags
	format := flag.String("format", "gen9ou", "Battle format to backfill")
	pages := flag.Int("pages", 25, "Search pages to walk")
	workers := flag.Int("workers", 4, "Number of fetch workers")
	minRating := flag.Int("min-rating", 0, "Skip replays below this rating (0 = keep all)")
	reparseOnly := flag.Bool("reparse-only", false, "Skip fetching, re-parse cached replays")
	strict := flag.Bool("strict", false, "Fail battles on the first unparseable line")
	flag.Parse()

	// Load .env
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			fmt.Printf("Loaded .env from: %s\n", path)
			break
		}
	}

	ctx := collector.SignalContext(context.Background())
	startTime := time.Now()

	database, err := db.New(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.CreateTables(ctx); err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}

	cachePath := os.Getenv("REPLAY_CACHE_PATH")
	if cachePath == "" {
		cachePath = "replays.db"
	}
	cachePath = strings.Trim(cachePath, "\"")
	store, err := cache.Open(cachePath)
	if err != nil {
		log.Fatalf("Failed to open replay cache: %v", err)
	}
	defer store.Close()

	// Step 1: Collect (unless reparse-only)
	if !*reparseOnly {
		fmt.Println("\n========================================")
		fmt.Println("STEP 1: COLLECTING REPLAYS")
		fmt.Println("========================================")

		runner := collector.NewRunner(showdown.NewClient(""), database, collector.Config{
			Format:      *format,
			Pages:       *pages,
			WorkerCount: *workers,
			MinRating:   *minRating,
			Strict:      *strict,
		}).WithCache(store)

		if _, err := runner.Run(ctx); err != nil {
			log.Fatalf("Collection failed: %v", err)
		}
		fmt.Printf("\nCollection completed in %s\n", time.Since(startTime).Round(time.Second))
	}

	// Step 2: Re-parse everything in the cache. Battles already stored are
	// skipped by the insert-once contract, so this only fills gaps left by
	// earlier parser versions.
	fmt.Println("\n========================================")
	fmt.Println("STEP 2: REPARSING CACHED REPLAYS")
	fmt.Println("========================================")

	reparsed, failed, err := reparseCache(ctx, store, database, *format, *strict)
	if err != nil {
		log.Fatalf("Reparse failed: %v", err)
	}

	totalTime := time.Since(startTime).Round(time.Second)
	fmt.Println("\n========================================")
	fmt.Println("PIPELINE COMPLETE")
	fmt.Println("========================================")
	fmt.Printf("Total time: %s\n", totalTime)
	fmt.Printf("Battles stored from cache: %d\n", reparsed)
	fmt.Printf("Cache entries that failed to parse: %d\n", failed)
}

func reparseCache(ctx context.Context, store *cache.Store, database *db.DB, format string, strict bool) (int, int, error) {
	ids, err := store.IDs(ctx, format)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list cache: %w", err)
	}
	fmt.Printf("Cache holds %d replays for %s\n", len(ids), format)

	stored := 0
	failed := 0
	for i, id := range ids {
		select {
		case <-ctx.Done():
			return stored, failed, ctx.Err()
		default:
		}

		cached, ok, err := store.Get(ctx, id)
		if err != nil || !ok {
			log.Printf("  [%d/%d] Cache read failed for %s: %v", i+1, len(ids), id, err)
			continue
		}

		res, err := parser.ParseWithOptions(parser.Input{
			BattleID:   cached.ID,
			Format:     cached.Format,
			Log:        cached.Log,
			Rating:     cached.Rating,
			UploadedAt: time.Unix(cached.UploadTime, 0).UTC(),
		}, parser.Options{Strict: strict})
		if err != nil {
			failed++
			log.Printf("  [%d/%d] Parse failed for %s: %v", i+1, len(ids), id, err)
			continue
		}

		inserted, err := database.SaveBattle(ctx, res)
		if err != nil {
			log.Printf("  [%d/%d] Store failed for %s: %v", i+1, len(ids), id, err)
			continue
		}
		if inserted {
			stored++
		}
	}
	return stored, failed, nil
}
