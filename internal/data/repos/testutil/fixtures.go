package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/modelforge-backend/internal/domain"
)

var seq atomic.Int64

// UniqueName keeps fixtures distinct when tests share a Postgres database.
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d_%d", prefix, seq.Add(1), uniqueBase)
}

var uniqueBase = time.Now().UnixNano() % 1_000_000_007

func SeedDatasource(tb testing.TB, ctx context.Context, tx *gorm.DB, companyID int64, location string) *types.Datasource {
	tb.Helper()
	d := &types.Datasource{
		CompanyID: companyID,
		Name:      UniqueName("ds"),
		Location:  location,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed datasource: %v", err)
	}
	return d
}

func SeedPredictor(tb testing.TB, ctx context.Context, tx *gorm.DB, companyID int64, datasourceID *int64, target string) *types.Predictor {
	tb.Helper()
	p := &types.Predictor{
		CompanyID:    companyID,
		Name:         UniqueName("predictor"),
		DatasourceID: datasourceID,
		LearnArgs:    types.JSONOf(map[string]any{"target": target}),
		ToPredict:    types.JSONOf([]string{target}),
		Data:         datatypes.JSON([]byte("null")),
		UpdateStatus: types.UpdateStatusNone,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed predictor: %v", err)
	}
	return p
}
