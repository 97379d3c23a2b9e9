package predictors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/modelforge-backend/internal/domain"
	"github.com/yungbote/modelforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/modelforge-backend/internal/pkg/errors"
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
)

// LockedFunc runs inside the transaction that holds the predictor row lock.
type LockedFunc func(tx *gorm.DB, rec *types.Predictor) error

type PredictorRepo interface {
	Create(dbc dbctx.Context, p *types.Predictor) (*types.Predictor, error)
	GetByID(dbc dbctx.Context, id int64) (*types.Predictor, error)
	GetByName(dbc dbctx.Context, companyID int64, name string) (*types.Predictor, error)
	List(dbc dbctx.Context, companyID int64) ([]*types.Predictor, error)
	ListTraining(dbc dbctx.Context) ([]*types.Predictor, error)
	LockByID(dbc dbctx.Context, id int64) (*types.Predictor, error)
	UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error
	CountByDatasource(dbc dbctx.Context, datasourceID int64, excludeID int64) (int64, error)
	WithLock(ctx context.Context, id int64, fn LockedFunc) error
}

type predictorRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPredictorRepo(db *gorm.DB, baseLog *logger.Logger) PredictorRepo {
	return &predictorRepo{
		db:  db,
		log: baseLog.With("repo", "PredictorRepo"),
	}
}

func (r *predictorRepo) Create(dbc dbctx.Context, p *types.Predictor) (*types.Predictor, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if p == nil {
		return nil, fmt.Errorf("create predictor: %w", pkgerrors.ErrInvalidArgument)
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("create predictor: empty name: %w", pkgerrors.ErrInvalidArgument)
	}
	if p.UpdateStatus == "" {
		p.UpdateStatus = types.UpdateStatusNone
	}
	if err := transaction.WithContext(dbc.Context()).Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("predictor %q: %w", p.Name, pkgerrors.ErrConflict)
		}
		return nil, err
	}
	return p, nil
}

func (r *predictorRepo) GetByID(dbc dbctx.Context, id int64) (*types.Predictor, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.Predictor
	err := transaction.WithContext(dbc.Context()).
		Where("id = ?", id).
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, fmt.Errorf("predictor %d: %w", id, pkgerrors.ErrNotFound)
	}
	return &out, nil
}

func (r *predictorRepo) GetByName(dbc dbctx.Context, companyID int64, name string) (*types.Predictor, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.Predictor
	err := transaction.WithContext(dbc.Context()).
		Where("company_id = ? AND name = ?", companyID, name).
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, fmt.Errorf("predictor %q: %w", name, pkgerrors.ErrNotFound)
	}
	return &out, nil
}

func (r *predictorRepo) List(dbc dbctx.Context, companyID int64) ([]*types.Predictor, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Predictor
	if err := transaction.WithContext(dbc.Context()).
		Where("company_id = ?", companyID).
		Order("name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListTraining returns every record whose data still carries the training
// marker. The JSON test happens in Go so the query stays portable across
// drivers.
func (r *predictorRepo) ListTraining(dbc dbctx.Context) ([]*types.Predictor, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var all []*types.Predictor
	if err := transaction.WithContext(dbc.Context()).
		Order("id ASC").
		Find(&all).Error; err != nil {
		return nil, err
	}
	out := make([]*types.Predictor, 0, len(all))
	for _, p := range all {
		if p.IsTraining() {
			out = append(out, p)
		}
	}
	return out, nil
}

// LockByID reads the row with SELECT ... FOR UPDATE. dbc.Tx must be set; the
// lock lives until that transaction ends.
func (r *predictorRepo) LockByID(dbc dbctx.Context, id int64) (*types.Predictor, error) {
	if dbc.Tx == nil {
		return nil, fmt.Errorf("lock predictor %d: transaction required", id)
	}
	var out types.Predictor
	err := dbc.Tx.WithContext(dbc.Context()).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("predictor %d: %w", id, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *predictorRepo) UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == 0 {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(dbc.Context()).
		Model(&types.Predictor{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *predictorRepo) CountByDatasource(dbc dbctx.Context, datasourceID int64, excludeID int64) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Context()).
		Model(&types.Predictor{}).
		Where("datasource_id = ? AND id <> ?", datasourceID, excludeID).
		Count(&n).Error
	return n, err
}

// WithLock opens a transaction, locks the predictor row, and runs fn. The
// transaction commits when fn returns nil and rolls back otherwise.
func (r *predictorRepo) WithLock(ctx context.Context, id int64, fn LockedFunc) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := r.LockByID(dbctx.Context{Ctx: ctx, Tx: tx}, id)
		if err != nil {
			return err
		}
		return fn(tx, rec)
	})
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") || strings.Contains(msg, "sqlstate 23505")
}
