package predictors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/modelforge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/modelforge-backend/internal/domain"
	"github.com/yungbote/modelforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/modelforge-backend/internal/pkg/errors"
)

func TestPredictorRepoCRUD(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewPredictorRepo(db, testutil.Logger(t))

	name := testutil.UniqueName("home_rentals")
	created, err := repo.Create(dbctx.Context{Ctx: ctx}, &types.Predictor{
		CompanyID: 7,
		Name:      name,
		ToPredict: types.JSONOf([]string{"rental_price"}),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == 0 || created.UpdateStatus != types.UpdateStatusNone {
		t.Fatalf("Create: id=%d update_status=%q", created.ID, created.UpdateStatus)
	}

	if _, err := repo.Create(dbctx.Context{Ctx: ctx}, &types.Predictor{CompanyID: 7, Name: name}); !errors.Is(err, pkgerrors.ErrConflict) {
		t.Fatalf("Create duplicate: want ErrConflict got=%v", err)
	}
	// Names are unique per tenant only.
	if _, err := repo.Create(dbctx.Context{Ctx: ctx}, &types.Predictor{CompanyID: 8, Name: name}); err != nil {
		t.Fatalf("Create other tenant: %v", err)
	}

	got, err := repo.GetByName(dbctx.Context{Ctx: ctx}, 7, name)
	if err != nil || got.ID != created.ID {
		t.Fatalf("GetByName: err=%v got=%+v", err, got)
	}
	if got.Target() != "rental_price" {
		t.Fatalf("Target: want=rental_price got=%q", got.Target())
	}
	if _, err := repo.GetByName(dbctx.Context{Ctx: ctx}, 7, "missing"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("GetByName missing: want ErrNotFound got=%v", err)
	}
	if _, err := repo.GetByID(dbctx.Context{Ctx: ctx}, created.ID+100000); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("GetByID missing: want ErrNotFound got=%v", err)
	}

	if err := repo.UpdateFields(dbctx.Context{Ctx: ctx}, created.ID, map[string]interface{}{
		"data": types.TrainingData(),
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	training, err := repo.ListTraining(dbctx.Context{Ctx: ctx})
	if err != nil {
		t.Fatalf("ListTraining: %v", err)
	}
	found := false
	for _, p := range training {
		if p.ID == created.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("ListTraining: record %d missing", created.ID)
	}

	list, err := repo.List(dbctx.Context{Ctx: ctx}, 7)
	if err != nil || len(list) == 0 {
		t.Fatalf("List: err=%v len=%d", err, len(list))
	}
}

func TestLockByIDRequiresTransaction(t *testing.T) {
	db := testutil.DB(t)
	repo := NewPredictorRepo(db, testutil.Logger(t))
	if _, err := repo.LockByID(dbctx.Context{Ctx: context.Background()}, 1); err == nil {
		t.Fatalf("LockByID without tx: expected error")
	}
}

func TestWithLockRollsBackOnError(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewPredictorRepo(db, testutil.Logger(t))
	p := testutil.SeedPredictor(t, ctx, db, 1, nil, "y")

	sentinel := errors.New("stage failed")
	err := repo.WithLock(ctx, p.ID, func(tx *gorm.DB, rec *types.Predictor) error {
		if err := repo.UpdateFields(dbctx.Context{Ctx: ctx, Tx: tx}, rec.ID, map[string]interface{}{"code": "half-written"}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("WithLock: want sentinel got=%v", err)
	}
	after, err := repo.GetByID(dbctx.Context{Ctx: ctx}, p.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if after.Code != "" {
		t.Fatalf("rollback: code want=\"\" got=%q", after.Code)
	}

	if err := repo.WithLock(ctx, p.ID+100000, func(*gorm.DB, *types.Predictor) error { return nil }); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("WithLock missing: want ErrNotFound got=%v", err)
	}
}

func TestWithLockSerializesSameRecord(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewPredictorRepo(db, testutil.Logger(t))
	p := testutil.SeedPredictor(t, ctx, db, 1, nil, "y")

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}

	entered := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return repo.WithLock(gctx, p.ID, func(tx *gorm.DB, rec *types.Predictor) error {
			close(entered)
			time.Sleep(150 * time.Millisecond)
			record("first")
			return repo.UpdateFields(dbctx.Context{Ctx: gctx, Tx: tx}, rec.ID, map[string]interface{}{"code": "first"})
		})
	})
	g.Go(func() error {
		<-entered
		return repo.WithLock(gctx, p.ID, func(tx *gorm.DB, rec *types.Predictor) error {
			record("second")
			if rec.Code != "first" {
				return fmt.Errorf("second holder saw code=%q", rec.Code)
			}
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("lock order: want=[first second] got=%v", order)
	}
}

func TestCountByDatasourceExcludesSelf(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewPredictorRepo(db, testutil.Logger(t))
	ds := testutil.SeedDatasource(t, ctx, db, 1, "/tmp/data.csv")

	a := testutil.SeedPredictor(t, ctx, db, 1, &ds.ID, "y")
	n, err := repo.CountByDatasource(dbctx.Context{Ctx: ctx}, ds.ID, a.ID)
	if err != nil || n != 0 {
		t.Fatalf("CountByDatasource: want=0 got=%d err=%v", n, err)
	}
	testutil.SeedPredictor(t, ctx, db, 1, &ds.ID, "y")
	n, err = repo.CountByDatasource(dbctx.Context{Ctx: ctx}, ds.ID, a.ID)
	if err != nil || n != 1 {
		t.Fatalf("CountByDatasource: want=1 got=%d err=%v", n, err)
	}
}

func TestDatasourceRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewDatasourceRepo(db, testutil.Logger(t))
	tx := testutil.Tx(t, db)

	d, err := repo.Create(dbctx.Context{Ctx: ctx, Tx: tx}, &types.Datasource{CompanyID: 2, Name: "rentals", Location: "gs://bucket/rentals.csv"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := repo.GetByID(dbctx.Context{Ctx: ctx, Tx: tx}, d.ID)
	if err != nil || got.Location != "gs://bucket/rentals.csv" {
		t.Fatalf("GetByID: err=%v got=%+v", err, got)
	}
	if err := repo.Delete(dbctx.Context{Ctx: ctx, Tx: tx}, d.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(dbctx.Context{Ctx: ctx, Tx: tx}, d.ID); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("GetByID after delete: want ErrNotFound got=%v", err)
	}
	if err := repo.Delete(dbctx.Context{Ctx: ctx, Tx: tx}, d.ID); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("Delete twice: want ErrNotFound got=%v", err)
	}
}
