package datastore

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/yungbote/modelforge-backend/internal/data/repos"
	"github.com/yungbote/modelforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/modelforge-backend/internal/pkg/errors"
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
	"github.com/yungbote/modelforge-backend/internal/platform/gcp"
)

type Loader interface {
	Load(ctx context.Context, datasourceID int64) (*Frame, error)
}

// ObjectOpener is the slice of the bucket service the loader needs.
type ObjectOpener interface {
	OpenURI(ctx context.Context, uri string) (io.ReadCloser, error)
}

// RecordLoader resolves the datasource record and reads the CSV at its
// location: a gs:// URI through the bucket service, anything else from the
// local filesystem.
type RecordLoader struct {
	Datasources repos.DatasourceRepo
	Objects     ObjectOpener
	Log         *logger.Logger
}

func NewRecordLoader(datasources repos.DatasourceRepo, objects ObjectOpener, baseLog *logger.Logger) *RecordLoader {
	return &RecordLoader{
		Datasources: datasources,
		Objects:     objects,
		Log:         baseLog.With("service", "RecordLoader"),
	}
}

func (l *RecordLoader) Load(ctx context.Context, datasourceID int64) (*Frame, error) {
	ds, err := l.Datasources.GetByID(dbctx.Context{Ctx: ctx}, datasourceID)
	if err != nil {
		return nil, fmt.Errorf("load datasource %d: %w", datasourceID, err)
	}
	rc, err := l.open(ctx, ds.Location)
	if err != nil {
		return nil, fmt.Errorf("open datasource %d: %w", datasourceID, err)
	}
	defer rc.Close()

	f, err := ReadCSV(rc)
	if err != nil {
		return nil, fmt.Errorf("read datasource %d: %w", datasourceID, err)
	}
	l.Log.Debug("Loaded datasource", "datasource_id", datasourceID, "rows", f.Len(), "columns", len(f.Columns))
	return f, nil
}

func (l *RecordLoader) open(ctx context.Context, location string) (io.ReadCloser, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("empty location: %w", pkgerrors.ErrInvalidArgument)
	}
	if strings.HasPrefix(location, "gs://") {
		if l.Objects == nil {
			return nil, fmt.Errorf("%s: object storage not configured", location)
		}
		return l.Objects.OpenURI(ctx, location)
	}
	f, err := os.Open(strings.TrimPrefix(location, "file://"))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", location, pkgerrors.ErrNotFound)
	}
	return f, err
}

var _ ObjectOpener = (gcp.BucketService)(nil)
