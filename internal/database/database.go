package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"funda-finder/internal/config"
	"funda-finder/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned by lookups that match no row
var ErrNotFound = errors.New("not found")

type GormDB struct {
	db *gorm.DB
}

// NewGormDB opens the database selected by cfg.Type
func NewGormDB(cfg config.DatabaseConfig, logLevel string) (*GormDB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Type) {
	case "", "sqlite":
		d, err := sqliteDialector(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		dialector = d
	case "mysql":
		dialector = mysqlDialector(cfg.MySQL)
	case "postgres", "postgresql":
		dialector = postgresDialector(cfg.Postgres)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(parseLogLevel(logLevel)),
		NowFunc: func() time.Time {
			return time.Now().UTC().Truncate(time.Millisecond)
		},
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if isSQLite(cfg.Type) {
		// one writer; also keeps an in-memory database alive on a single connection
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	return &GormDB{db: db}, nil
}

// NewInMemory opens a private in-memory SQLite database with the schema applied
func NewInMemory() (*GormDB, error) {
	gdb, err := NewGormDB(config.DatabaseConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	}, "silent")
	if err != nil {
		return nil, err
	}
	if err := gdb.InitSchema(); err != nil {
		gdb.Close()
		return nil, err
	}
	return gdb, nil
}

// NewGormDBFromDB creates a GormDB wrapper from an existing gorm.DB instance
func NewGormDBFromDB(db *gorm.DB) *GormDB {
	return &GormDB{db: db}
}

// DB returns the underlying gorm.DB instance
func (gdb *GormDB) DB() *gorm.DB {
	return gdb.db
}

func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InitSchema creates tables using GORM AutoMigrate
func (gdb *GormDB) InitSchema() error {
	return gdb.db.AutoMigrate(
		&models.Property{},
		&models.PriceHistory{},
		&models.ScrapeMeta{},
	)
}

// GetPropertyByID retrieves a property by its surrogate key
func (gdb *GormDB) GetPropertyByID(id uint) (*models.Property, error) {
	var property models.Property
	err := gdb.db.Where("id = ?", id).Take(&property).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &property, nil
}

// GetPropertyByExternalID retrieves a property by the upstream listing id
func (gdb *GormDB) GetPropertyByExternalID(externalID string) (*models.Property, error) {
	var property models.Property
	err := gdb.db.Where("external_id = ?", externalID).Take(&property).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &property, nil
}

// PropertyFilters narrows ListProperties
type PropertyFilters struct {
	City        string
	ListingType models.ListingType
	Status      models.PropertyStatus
	SortBy      string
	Limit       int
	Offset      int
}

// ListProperties returns properties matching filters
func (gdb *GormDB) ListProperties(filters PropertyFilters) ([]models.Property, error) {
	query := gdb.db.Model(&models.Property{})
	if filters.City != "" {
		query = query.Where("LOWER(city) = ?", strings.ToLower(filters.City))
	}
	if filters.ListingType != "" {
		query = query.Where("listing_type = ?", filters.ListingType)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}

	limit := filters.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var properties []models.Property
	err := query.Order(orderClause(filters.SortBy)).
		Limit(limit).
		Offset(filters.Offset).
		Find(&properties).Error
	return properties, err
}

// orderClause maps a sort key to ORDER BY, keeping NULLs last
func orderClause(sortBy string) string {
	switch sortBy {
	case "scraped_at_asc":
		return "scraped_at ASC, id ASC"
	case "price_asc":
		return "CASE WHEN price IS NULL THEN 1 ELSE 0 END, price ASC, id ASC"
	case "price_desc":
		return "CASE WHEN price IS NULL THEN 1 ELSE 0 END, price DESC, id ASC"
	case "living_area_desc":
		return "CASE WHEN living_area IS NULL THEN 1 ELSE 0 END, living_area DESC, id ASC"
	case "updated_at_desc":
		return "updated_at DESC, id DESC"
	default:
		return "scraped_at DESC, id DESC"
	}
}

// StatusCounts returns the number of properties per status
func (gdb *GormDB) StatusCounts() (map[models.PropertyStatus]int64, error) {
	var rows []struct {
		Status models.PropertyStatus
		Count  int64
	}
	err := gdb.db.Model(&models.Property{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := map[models.PropertyStatus]int64{
		models.PropertyStatusActive:   0,
		models.PropertyStatusInactive: 0,
	}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info", "debug":
		return logger.Info
	default:
		return logger.Warn
	}
}

func isSQLite(dbType string) bool {
	t := strings.ToLower(dbType)
	return t == "" || t == "sqlite"
}
