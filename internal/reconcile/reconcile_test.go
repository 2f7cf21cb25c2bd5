package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"funda-finder/internal/database"
	"funda-finder/internal/models"
	"funda-finder/internal/validation"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	day0  = time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	scope = models.Scope{City: "Amsterdam", ListingType: models.ListingTypeBuy}
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func setup(t *testing.T, batchSize int) (*Reconciler, *gorm.DB, *clock) {
	t.Helper()
	gdb, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { gdb.Close() })

	c := &clock{t: day0}
	return New(gdb.DB(), Options{BatchSize: batchSize, Now: c.Now}), gdb.DB(), c
}

func intPtr(v int) *int { return &v }

func listing(id string, price int, scrapedAt time.Time) validation.Listing {
	return validation.Listing{
		ExternalID:  id,
		URL:         "https://www.funda.nl/koop/amsterdam/" + id + "/",
		Address:     "Damrak " + id,
		City:        "Amsterdam",
		ListingType: models.ListingTypeBuy,
		Price:       price,
		LivingArea:  intPtr(80),
		Rooms:       intPtr(3),
		Raw:         map[string]any{"id": id},
		ScrapedAt:   scrapedAt,
	}
}

func property(t *testing.T, db *gorm.DB, externalID string) models.Property {
	t.Helper()
	var p models.Property
	require.NoError(t, db.Where("external_id = ?", externalID).Take(&p).Error)
	return p
}

func ledger(t *testing.T, db *gorm.DB, propertyID uint) []int {
	t.Helper()
	var rows []models.PriceHistory
	require.NoError(t, db.Where("property_id = ?", propertyID).Order("observed_at ASC").Find(&rows).Error)
	prices := make([]int, len(rows))
	for i, r := range rows {
		prices[i] = r.Price
	}
	return prices
}

func TestReconcileInsertsNewListings(t *testing.T) {
	r, db, _ := setup(t, 100)

	res, err := r.Reconcile(context.Background(), scope, []validation.Listing{
		listing("a", 500000, day0),
		listing("b", 300000, day0),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.New)
	assert.Zero(t, res.Updated)
	assert.Zero(t, res.DBErrors)

	p := property(t, db, "a")
	assert.Equal(t, models.PropertyStatusActive, p.Status)
	assert.Equal(t, 500000, *p.Price)
	assert.True(t, p.FirstSeenAt.Equal(day0))
	assert.True(t, p.ScrapedAt.Equal(day0))
	assert.JSONEq(t, `{"id":"a"}`, string(p.RawJSON))
	assert.Equal(t, []int{500000}, ledger(t, db, p.ID))
}

func TestReconcileIsIdempotent(t *testing.T) {
	r, db, c := setup(t, 100)
	input := []validation.Listing{listing("a", 500000, day0), listing("b", 300000, day0)}

	_, err := r.Reconcile(context.Background(), scope, input)
	require.NoError(t, err)
	before := property(t, db, "a")

	c.t = day0.Add(time.Hour)
	res, err := r.Reconcile(context.Background(), scope, input)
	require.NoError(t, err)

	assert.Zero(t, res.New)
	assert.Zero(t, res.Updated)
	assert.Zero(t, res.Inactive)
	assert.Equal(t, 2, res.Unchanged)

	after := property(t, db, "a")
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt), "no write means no updated_at bump")
	assert.Len(t, ledger(t, db, after.ID), 1)
}

func TestReconcilePriceLedger(t *testing.T) {
	r, db, c := setup(t, 100)
	ctx := context.Background()

	for i, price := range []int{500000, 475000, 450000} {
		at := day0.Add(time.Duration(i) * 7 * 24 * time.Hour)
		c.t = at
		res, err := r.Reconcile(ctx, scope, []validation.Listing{listing("a", price, at)})
		require.NoError(t, err)
		if i == 0 {
			assert.Equal(t, 1, res.New)
		} else {
			assert.Equal(t, 1, res.Updated)
		}
	}

	p := property(t, db, "a")
	assert.Equal(t, []int{500000, 475000, 450000}, ledger(t, db, p.ID))
	assert.Equal(t, 450000, *p.Price)
	assert.True(t, p.FirstSeenAt.Equal(day0), "first sighting is kept")
	assert.True(t, p.UpdatedAt.Equal(day0.Add(14*24*time.Hour)))
}

func TestReconcileNonPriceChangeSkipsLedger(t *testing.T) {
	r, db, _ := setup(t, 100)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, scope, []validation.Listing{listing("a", 500000, day0)})
	require.NoError(t, err)

	changed := listing("a", 500000, day0)
	label := "B"
	changed.EnergyLabel = &label
	res, err := r.Reconcile(ctx, scope, []validation.Listing{changed})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	p := property(t, db, "a")
	assert.Equal(t, "B", *p.EnergyLabel)
	assert.Len(t, ledger(t, db, p.ID), 1)
}

func TestReconcileDelistAndRelist(t *testing.T) {
	r, db, c := setup(t, 100)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, scope, []validation.Listing{listing("a", 500000, day0), listing("b", 300000, day0)})
	require.NoError(t, err)

	day1 := day0.Add(24 * time.Hour)
	c.t = day1
	res, err := r.Reconcile(ctx, scope, []validation.Listing{listing("a", 500000, day1)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inactive)

	b := property(t, db, "b")
	assert.Equal(t, models.PropertyStatusInactive, b.Status)
	assert.True(t, b.UpdatedAt.Equal(day1))

	day2 := day1.Add(24 * time.Hour)
	c.t = day2
	res, err = r.Reconcile(ctx, scope, []validation.Listing{listing("a", 500000, day1), listing("b", 300000, day0)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated, "reactivation counts as an update even without field changes")
	assert.Equal(t, 1, res.Unchanged)
	assert.Zero(t, res.Inactive)

	b = property(t, db, "b")
	assert.Equal(t, models.PropertyStatusActive, b.Status)
	assert.Len(t, ledger(t, db, b.ID), 1)
}

func TestReconcileDelistingStaysInScope(t *testing.T) {
	r, db, _ := setup(t, 100)
	ctx := context.Background()

	rent := listing("r", 1500, day0)
	rent.ListingType = models.ListingTypeRent
	_, err := r.Reconcile(ctx, models.Scope{City: "Amsterdam", ListingType: models.ListingTypeRent}, []validation.Listing{rent})
	require.NoError(t, err)

	haag := listing("h", 400000, day0)
	haag.City = "Den Haag"
	_, err = r.Reconcile(ctx, models.Scope{City: "den-haag", ListingType: models.ListingTypeBuy}, []validation.Listing{haag})
	require.NoError(t, err)

	res, err := r.Reconcile(ctx, scope, []validation.Listing{listing("a", 500000, day0)})
	require.NoError(t, err)
	assert.Zero(t, res.Inactive)

	res, err = r.Reconcile(ctx, models.Scope{City: "Den Haag", ListingType: models.ListingTypeBuy}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inactive, "slug and display name address the same scope")

	assert.Equal(t, models.PropertyStatusActive, property(t, db, "r").Status)
	assert.Equal(t, models.PropertyStatusInactive, property(t, db, "h").Status)
}

func TestReconcileDuplicateExternalIDLastWins(t *testing.T) {
	r, db, _ := setup(t, 100)

	res, err := r.Reconcile(context.Background(), scope, []validation.Listing{
		listing("dup", 400000, day0),
		listing("dup", 390000, day0.Add(time.Minute)),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.New)
	assert.Equal(t, 1, res.Updated)

	var count int64
	require.NoError(t, db.Model(&models.Property{}).Where("external_id = ?", "dup").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	p := property(t, db, "dup")
	assert.Equal(t, 390000, *p.Price)
	assert.Equal(t, []int{400000, 390000}, ledger(t, db, p.ID))
}

func TestReconcileItemFailureIsIsolated(t *testing.T) {
	r, db, _ := setup(t, 100)

	// the trigger fails one insert inside its savepoint
	require.NoError(t, db.Exec(`CREATE TRIGGER reject_bad BEFORE INSERT ON properties
		WHEN NEW.external_id = 'bad'
		BEGIN SELECT RAISE(ABORT, 'rejected by trigger'); END`).Error)

	res, err := r.Reconcile(context.Background(), scope, []validation.Listing{
		listing("a", 500000, day0),
		listing("bad", 1, day0),
		listing("c", 300000, day0),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.New)
	assert.Equal(t, 1, res.DBErrors)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "bad")

	var count int64
	require.NoError(t, db.Model(&models.Property{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
	require.NoError(t, db.Model(&models.PriceHistory{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestReconcileBatchesCommitIndependently(t *testing.T) {
	r, db, _ := setup(t, 2)

	input := make([]validation.Listing, 5)
	for i := range input {
		input[i] = listing(fmt.Sprintf("p%d", i), 100000+i, day0)
	}
	res, err := r.Reconcile(context.Background(), scope, input)
	require.NoError(t, err)
	assert.Equal(t, 5, res.New)

	var count int64
	require.NoError(t, db.Model(&models.Property{}).Count(&count).Error)
	assert.Equal(t, int64(5), count)
}

func TestReconcileCancelledBeforeStart(t *testing.T) {
	r, db, _ := setup(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.Reconcile(ctx, scope, []validation.Listing{listing("a", 1, day0)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Zero(t, res.New)

	var count int64
	require.NoError(t, db.Model(&models.Property{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReconcileCancelledMidLoadKeepsCommittedBatches(t *testing.T) {
	r, db, _ := setup(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	err := db.Callback().Create().After("gorm:create").Register("test:cancel_after_insert", func(tx *gorm.DB) {
		if tx.Statement.Table == "properties" {
			once.Do(cancel)
		}
	})
	require.NoError(t, err)

	res, err := r.Reconcile(ctx, scope, []validation.Listing{
		listing("a", 500000, day0),
		listing("b", 400000, day0),
		listing("c", 300000, day0),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "interrupted after 1 of 3 listings")
	require.NotNil(t, res)
	assert.Equal(t, 1, res.New)
	assert.Zero(t, res.DBErrors)
	assert.Zero(t, res.Inactive)

	var count int64
	require.NoError(t, db.Model(&models.Property{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, []int{500000}, ledger(t, db, property(t, db, "a").ID))
}

// refusingPool hands out transactions whose commit number refuse fails
type refusingPool struct {
	*sql.DB
	refuse  int
	commits int
}

func (p *refusingPool) BeginTx(ctx context.Context, opts *sql.TxOptions) (gorm.ConnPool, error) {
	tx, err := p.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &refusingTx{Tx: tx, pool: p}, nil
}

type refusingTx struct {
	*sql.Tx
	pool *refusingPool
}

func (t *refusingTx) Commit() error {
	t.pool.commits++
	if t.pool.commits == t.pool.refuse {
		t.Tx.Rollback()
		return errors.New("disk I/O error")
	}
	return t.Tx.Commit()
}

func TestReconcileFailedCommitCountsWholeBatch(t *testing.T) {
	gdb, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { gdb.Close() })
	sqlDB, err := gdb.DB().DB()
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Dialector{Conn: &refusingPool{DB: sqlDB, refuse: 2}},
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	r := New(db, Options{BatchSize: 2, Now: func() time.Time { return day0 }})

	input := make([]validation.Listing, 5)
	for i := range input {
		input[i] = listing(fmt.Sprintf("p%d", i), 100000+i, day0)
	}
	res, err := r.Reconcile(context.Background(), scope, input)
	require.NoError(t, err)

	assert.Equal(t, 3, res.New)
	assert.Equal(t, 2, res.DBErrors, "both listings of the refused batch")
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "batch 2-4: commit failed")

	var ids []string
	require.NoError(t, db.Model(&models.Property{}).Order("external_id").Pluck("external_id", &ids).Error)
	assert.Equal(t, []string{"p0", "p1", "p4"}, ids)
}
