package app

import (
	"fmt"
	"log"

	"funda-finder/internal/analysis"
	"funda-finder/internal/cleanup"
	"funda-finder/internal/config"
	"funda-finder/internal/database"
	"funda-finder/internal/etl"
	"funda-finder/internal/history"
	"funda-finder/internal/reconcile"
	"funda-finder/internal/runs"
	"funda-finder/internal/search"
	"funda-finder/internal/source"
)

// App holds the services shared by the API server and the one-shot command
type App struct {
	Config   *config.Config
	DB       *database.GormDB
	Tracker  *runs.Tracker
	History  *history.Service
	Analyzer *analysis.Analyzer
	Cleanup  *cleanup.Service
	Pipeline *etl.Pipeline
	// Search is nil when Meilisearch is not configured
	Search *search.SearchClient
}

// New opens the database, applies the schema and wires every service
func New(cfg *config.Config) (*App, error) {
	gdb, err := database.NewGormDB(cfg.Database, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Database.Type, err)
	}
	if err := gdb.InitSchema(); err != nil {
		gdb.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return Wire(cfg, gdb)
}

// Wire builds the services on an already opened database. The App owns
// gdb from here on: it is closed when wiring fails.
func Wire(cfg *config.Config, gdb *database.GormDB) (*App, error) {
	db := gdb.DB()

	src, err := source.FromConfig(cfg.Scraping)
	if err != nil {
		gdb.Close()
		return nil, err
	}

	a := &App{
		Config:  cfg,
		DB:      gdb,
		Tracker: runs.NewTracker(db, nil),
		History: history.NewService(db),
		Analyzer: analysis.NewAnalyzer(db, nil, analysis.Options{
			MaxYearDiff:         cfg.Analysis.MaxYearDiff,
			PriceDropWindowDays: cfg.Analysis.PriceDropWindowDays,
			Concurrency:         cfg.Analysis.Concurrency,
		}),
	}
	a.Cleanup = cleanup.NewService(db, a.Tracker, nil)

	opts := etl.Options{}
	if meili := cfg.Search.Meilisearch; meili.Host != "" {
		a.Search = search.NewSearchClient(meili.Host, meili.APIKey, meili.Index, db)
		if err := a.Search.InitIndex(); err != nil {
			log.Printf("Warning: Failed to initialize search index: %v", err)
		}
		opts.Indexer = a.Search
	}

	a.Pipeline = etl.NewPipeline(src,
		reconcile.New(db, reconcile.Options{BatchSize: cfg.ETL.BatchSize}),
		a.Tracker,
		opts,
	)
	return a, nil
}

// PurgeDefaults returns the purge settings from the cleanup section, dry run on
func (a *App) PurgeDefaults() cleanup.PurgeConfig {
	cfg := cleanup.DefaultPurgeConfig()
	if a.Config.Cleanup.RetentionDays > 0 {
		cfg.RetentionDays = a.Config.Cleanup.RetentionDays
	}
	if a.Config.Cleanup.MaxDeletionCount > 0 {
		cfg.MaxDeletionCount = a.Config.Cleanup.MaxDeletionCount
	}
	return cfg
}

// Close releases the database
func (a *App) Close() error {
	return a.DB.Close()
}
