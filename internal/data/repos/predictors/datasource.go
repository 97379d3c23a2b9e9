package predictors

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/modelforge-backend/internal/domain"
	"github.com/yungbote/modelforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/modelforge-backend/internal/pkg/errors"
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
)

type DatasourceRepo interface {
	Create(dbc dbctx.Context, d *types.Datasource) (*types.Datasource, error)
	GetByID(dbc dbctx.Context, id int64) (*types.Datasource, error)
	Delete(dbc dbctx.Context, id int64) error
}

type datasourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDatasourceRepo(db *gorm.DB, baseLog *logger.Logger) DatasourceRepo {
	return &datasourceRepo{
		db:  db,
		log: baseLog.With("repo", "DatasourceRepo"),
	}
}

func (r *datasourceRepo) Create(dbc dbctx.Context, d *types.Datasource) (*types.Datasource, error) {
	if d == nil {
		return nil, fmt.Errorf("create datasource: %w", pkgerrors.ErrInvalidArgument)
	}
	if err := dbc.Conn(r.db).Create(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

func (r *datasourceRepo) GetByID(dbc dbctx.Context, id int64) (*types.Datasource, error) {
	var out types.Datasource
	if err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, fmt.Errorf("datasource %d: %w", id, pkgerrors.ErrNotFound)
	}
	return &out, nil
}

func (r *datasourceRepo) Delete(dbc dbctx.Context, id int64) error {
	res := dbc.Conn(r.db).Where("id = ?", id).Delete(&types.Datasource{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("datasource %d: %w", id, pkgerrors.ErrNotFound)
	}
	r.log.Debug("Deleted datasource", "datasource_id", id)
	return nil
}
