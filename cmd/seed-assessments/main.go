package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/exstem-sessions/internal/config"
	"github.com/stemsi/exstem-sessions/internal/database"
	"github.com/stemsi/exstem-sessions/internal/logger"
	"github.com/stemsi/exstem-sessions/internal/repository"
)

func main() {
	cfg := config.Load()

	var seedFile string
	flag.StringVar(&seedFile, "file", cfg.SeedFile, "Path to the assessments JSON file")
	flag.Parse()

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	assessments, err := repository.LoadAssessments(seedFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", seedFile).Msg("Failed to load seed file")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	assessmentRepo := repository.NewAssessmentRepository(pool)

	fmt.Printf("=== Seeding %d assessments from %s ===\n", len(assessments), seedFile)

	successCount := 0
	for i := range assessments {
		a := &assessments[i]
		if err := assessmentRepo.Upsert(ctx, a); err != nil {
			fmt.Printf("Error seeding %q (%s): %v\n", a.Title, a.ID, err)
			continue
		}
		successCount++
		fmt.Printf("Seeded %q (%s) with %d questions\n", a.Title, a.ID, len(a.Questions))
	}

	fmt.Printf("\nSeed completed! Successfully wrote %d/%d assessments.\n", successCount, len(assessments))
}
