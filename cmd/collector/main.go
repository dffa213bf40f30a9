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
	"replay-analyzer/internal/discord"
	"replay-analyzer/internal/showdown"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file - try multiple locations
	envPaths := []string{".env", "../.env", "../../.env"}
	envLoaded := false
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			fmt.Printf("Loaded .env from: %s\n", path)
			envLoaded = true
			break
		}
	}
	if !envLoaded {
		log.Println("No .env file found, using environment variables")
	}

	// Parse flags
	format := flag.String("format", "gen9ou", "Battle format to collect (e.g. gen9ou)")
	pages := flag.Int("pages", 5, "Search pages per collection pass")
	workers := flag.Int("workers", 4, "Number of fetch workers")
	minRating := flag.Int("min-rating", 0, "Skip replays below this rating (0 = keep all)")
	interval := flag.Duration("interval", 10*time.Minute, "Wait between collection passes")
	once := flag.Bool("once", false, "Run a single pass and exit")
	strict := flag.Bool("strict", false, "Fail battles on the first unparseable line")
	flag.Parse()

	ctx := collector.SignalContext(context.Background())

	// Connect to database
	database, err := db.New(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.CreateTables(ctx); err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}

	// Local replay cache so failed battles can be reparsed offline
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
	fmt.Printf("Using replay cache: %s\n", cachePath)

	client := showdown.NewClient("")

	runner := collector.NewRunner(client, database, collector.Config{
		Format:      *format,
		Pages:       *pages,
		WorkerCount: *workers,
		MinRating:   *minRating,
		Strict:      *strict,
	}).WithCache(store)

	if webhookURL := os.Getenv("DISCORD_WEBHOOK_URL"); webhookURL != "" {
		runner = runner.WithNotifier(discord.NewWebhookClient(webhookURL))
		fmt.Println("Discord notifications enabled")
	}

	// Room listener feeds freshly finished battles between search passes
	rooms := make(chan string, 100)
	listener := showdown.NewRoomListener("", *format)
	go func() {
		if err := listener.Listen(ctx, rooms); err != nil && ctx.Err() == nil {
			log.Printf("[Rooms] Listener stopped: %v", err)
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case id := <-rooms:
				runner.Enqueue(id)
			}
		}
	}()

	// Collection loop
	pass := 0
	for {
		pass++
		fmt.Printf("\n========================================\n")
		fmt.Printf("COLLECTION PASS %d (%s)\n", pass, *format)
		fmt.Printf("========================================\n")

		if _, err := runner.Run(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Printf("[Main] Pass %d failed: %v", pass, err)
		}

		if *once {
			break
		}

		fmt.Printf("\nNext pass in %s\n", *interval)
		select {
		case <-ctx.Done():
		case <-time.After(*interval):
			// The bloom filter carries across passes so only new
			// replays cost API calls.
			continue
		}
		if ctx.Err() != nil {
			break
		}
	}

	fmt.Println("\n[Main] Collector stopped")
}
