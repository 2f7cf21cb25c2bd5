package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"funda-finder/internal/app"
	"funda-finder/internal/config"
	"funda-finder/internal/database"
	"funda-finder/internal/etl"
)

// One-shot pipeline run over the configured scopes, or the ones given on the
// command line. Exits non-zero when any scope failed.
func main() {
	configPath := flag.String("config", "config/funda.yaml", "path to the YAML config")
	cities := flag.String("city", "", "comma separated cities, overrides scraping.cities")
	types := flag.String("type", "", "comma separated listing types (buy, rent), overrides scraping.listing_types")
	memory := flag.Bool("memory", false, "use a throwaway in-memory SQLite database")
	output := flag.String("output", "", "write the run results as JSON to this file")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *cities != "" {
		cfg.Scraping.Cities = strings.Split(*cities, ",")
	}
	if *types != "" {
		cfg.Scraping.ListingTypes = strings.Split(*types, ",")
	}

	plan, err := etl.PlanFromConfig(cfg.Scraping)
	if err != nil {
		log.Fatalf("Invalid scrape plan: %v", err)
	}

	var a *app.App
	if *memory {
		gdb, err := database.NewInMemory()
		if err != nil {
			log.Fatalf("Failed to open in-memory database: %v", err)
		}
		a, err = app.Wire(cfg, gdb)
		if err != nil {
			log.Fatalf("Failed to start: %v", err)
		}
	} else {
		a, err = app.New(cfg)
		if err != nil {
			log.Fatalf("Failed to start: %v", err)
		}
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if age := cfg.Cleanup.GetStaleRunAge(); age > 0 {
		if _, err := a.Cleanup.ReapStaleRuns(ctx, age); err != nil {
			log.Printf("Warning: Failed to reap stale runs: %v", err)
		}
	}

	log.Printf("Running %d scopes", plan.Scopes())
	results := a.Pipeline.RunBatch(ctx, plan.Cities, plan.Types, plan.Base)

	failed := 0
	for _, r := range results {
		status := "ok"
		if !r.Success {
			status = "FAILED: " + r.ErrorMessage
			failed++
		}
		fmt.Printf("%-24s found=%-4d new=%-4d updated=%-4d inactive=%-4d validation_errors=%-3d db_errors=%-3d %s\n",
			r.Scope, r.Found, r.New, r.Updated, r.Inactive, r.ValidationErrors, r.DBErrors, status)
	}

	if *output != "" {
		if err := saveResults(*output, results); err != nil {
			log.Printf("Failed to write results: %v", err)
		}
	}

	if failed > 0 || len(results) < plan.Scopes() {
		a.Close()
		os.Exit(1)
	}
}

func saveResults(path string, results []etl.RunResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
