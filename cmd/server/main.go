package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"replay-analyzer/internal/db"

	"github.com/joho/godotenv"
)

var database *db.DB

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

	ctx := context.Background()

	// Connect to database
	var err error
	database, err = db.New(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// API routes
	http.HandleFunc("/api/stats", handleStats)
	http.HandleFunc("/api/battles", handleBattles)
	http.HandleFunc("/api/mechanisms", handleMechanisms)
	http.HandleFunc("/api/species", handleSpecies)
	http.HandleFunc("/api/pivots", handlePivots)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	fmt.Printf("Server starting on http://localhost:%s\n", port)
	log.Fatal(http.ListenAndServe(":"+port, nil))
}

func queryLimit(r *http.Request, fallback int) int {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return fallback
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

func handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	battleCount, err := database.GetBattleCount(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	damageCount, err := database.GetDamageEventCount(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"battles":      battleCount,
		"damageEvents": damageCount,
	})
}

func handleBattles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	battles, err := database.GetRecentBattles(ctx, queryLimit(r, 50))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(battles)
}

func handleMechanisms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := database.GetMechanismStats(ctx, queryLimit(r, 50))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Optional category filter, e.g. /api/mechanisms?category=hazard
	if category := strings.ToLower(r.URL.Query().Get("category")); category != "" {
		filtered := stats[:0]
		for _, s := range stats {
			if s.Category == category {
				filtered = append(filtered, s)
			}
		}
		stats = filtered
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func handleSpecies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := database.GetSpeciesStats(ctx, queryLimit(r, 50))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func handlePivots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := database.GetPivotCauses(ctx, queryLimit(r, 25))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
