package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/modelforge-backend/internal/data/repos"
	types "github.com/yungbote/modelforge-backend/internal/domain"
	"github.com/yungbote/modelforge-backend/internal/jobs/markers"
	jobrt "github.com/yungbote/modelforge-backend/internal/jobs/runtime"
	"github.com/yungbote/modelforge-backend/internal/jobs/supervisor"
	"github.com/yungbote/modelforge-backend/internal/modules/training/synth"
	"github.com/yungbote/modelforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/modelforge-backend/internal/pkg/errors"
	"github.com/yungbote/modelforge-backend/internal/pkg/jsontree"
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
)

// AbandonedMessage is written by Reconcile to records whose worker is gone.
const AbandonedMessage = "training worker exited without reporting a result"

// Launcher starts stage workers. *supervisor.Supervisor implements it.
type Launcher interface {
	Start(ctx context.Context, spec jobrt.JobSpec) (*supervisor.Handle, error)
	Join(h *supervisor.Handle, timeout time.Duration) bool
	Running() []*supervisor.Handle
	KillPID(pid int) error
}

type CreatePredictorInput struct {
	CompanyID    int64
	Name         string
	DatasourceID *int64
	LearnArgs    map[string]any
	ToPredict    []string
	Override     jsontree.Value
}

type LearnRequest struct {
	CompanyID              int64
	Name                   string
	DatasourceID           int64
	ProblemDefinition      map[string]any
	Override               jsontree.Value
	DeleteDatasourceOnFail bool
	Join                   bool
	// JoinTimeout bounds Join; zero or less waits until the worker exits.
	JoinTimeout time.Duration
}

type RetrainRequest struct {
	CompanyID   int64
	Name        string
	Join        bool
	JoinTimeout time.Duration
}

type LaunchResult struct {
	RunID  string
	Handle *supervisor.Handle
	// Exited is true when the caller asked to join and the worker finished
	// within the timeout.
	Exited    bool
	Predictor *types.Predictor
}

type WorkerInfo struct {
	PID         int       `json:"pid"`
	RunID       string    `json:"run_id"`
	Stage       string    `json:"stage"`
	PredictorID int64     `json:"predictor_id,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	// Supervised is true for workers started by this process.
	Supervised bool `json:"supervised"`
	HasMarker  bool `json:"has_marker"`
}

type AbandonedRun struct {
	PredictorID int64  `json:"predictor_id"`
	CompanyID   int64  `json:"company_id"`
	Name        string `json:"name"`
	RunID       string `json:"run_id"`
	Fixed       bool   `json:"fixed"`
}

type PredictorService interface {
	Create(ctx context.Context, in CreatePredictorInput) (*types.Predictor, error)
	Learn(ctx context.Context, req LearnRequest) (*LaunchResult, error)
	Retrain(ctx context.Context, req RetrainRequest) (*LaunchResult, error)
	EditJSONAI(ctx context.Context, companyID int64, name string, tree jsontree.Value) (*types.Predictor, error)
	Get(ctx context.Context, companyID int64, name string) (*types.Predictor, error)
	List(ctx context.Context, companyID int64) ([]*types.Predictor, error)
	Workers(ctx context.Context) ([]WorkerInfo, error)
	Kill(ctx context.Context, pid int) error
	JoinAll(ctx context.Context, timeout time.Duration) error
	Reconcile(ctx context.Context, fix bool) ([]AbandonedRun, error)
}

type predictorService struct {
	log         *logger.Logger
	predictors  repos.PredictorRepo
	datasources repos.DatasourceRepo
	engine      synth.Engine
	launcher    Launcher
	markers     *markers.Dir
}

func NewPredictorService(
	baseLog *logger.Logger,
	predictors repos.PredictorRepo,
	datasources repos.DatasourceRepo,
	engine synth.Engine,
	launcher Launcher,
	markerDir *markers.Dir,
) PredictorService {
	return &predictorService{
		log:         baseLog.With("service", "PredictorService"),
		predictors:  predictors,
		datasources: datasources,
		engine:      engine,
		launcher:    launcher,
		markers:     markerDir,
	}
}

func (s *predictorService) Create(ctx context.Context, in CreatePredictorInput) (*types.Predictor, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("create predictor: name is required: %w", pkgerrors.ErrInvalidArgument)
	}
	p := &types.Predictor{
		CompanyID:      in.CompanyID,
		Name:           name,
		DatasourceID:   in.DatasourceID,
		LearnArgs:      types.JSONOf(in.LearnArgs),
		ToPredict:      types.JSONOf(in.ToPredict),
		JSONAIOverride: types.JSONOf(in.Override),
		Data:           types.JSONOf(nil),
		UpdateStatus:   types.UpdateStatusNone,
	}
	return s.predictors.Create(dbctx.Context{Ctx: ctx}, p)
}

// Learn stores the request on the record (creating it when needed), claims
// it for a new run id, and starts a learn worker.
func (s *predictorService) Learn(ctx context.Context, req LearnRequest) (*LaunchResult, error) {
	if s.launcher == nil {
		return nil, errors.New("learn: no worker launcher configured")
	}
	pd, err := synth.ProblemDefinitionFromMap(req.ProblemDefinition)
	if err != nil {
		return nil, fmt.Errorf("learn: %v: %w", err, pkgerrors.ErrInvalidArgument)
	}
	if req.DatasourceID <= 0 {
		return nil, fmt.Errorf("learn: datasource_id is required: %w", pkgerrors.ErrInvalidArgument)
	}
	ds, err := s.datasources.GetByID(dbctx.Context{Ctx: ctx}, req.DatasourceID)
	if err != nil {
		return nil, err
	}
	if ds.CompanyID != req.CompanyID {
		return nil, fmt.Errorf("datasource %d: %w", req.DatasourceID, pkgerrors.ErrNotFound)
	}

	rec, err := s.predictors.GetByName(dbctx.Context{Ctx: ctx}, req.CompanyID, req.Name)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		rec, err = s.Create(ctx, CreatePredictorInput{CompanyID: req.CompanyID, Name: req.Name})
	}
	if err != nil {
		return nil, err
	}

	learnArgs := pd.Map()
	learnArgs["join_learn_process"] = req.Join
	runID := jobrt.NewRunID()

	err = s.predictors.WithLock(ctx, rec.ID, func(tx *gorm.DB, locked *types.Predictor) error {
		if err := s.checkNotBusy(locked); err != nil {
			return err
		}
		return s.predictors.UpdateFields(dbctx.Context{Ctx: ctx, Tx: tx}, locked.ID, map[string]interface{}{
			"datasource_id":    req.DatasourceID,
			"learn_args":       types.JSONOf(learnArgs),
			"to_predict":       types.JSONOf([]string{pd.Target}),
			"json_ai_override": types.JSONOf(req.Override),
			"data":             types.TrainingData(),
			"run_id":           runID,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.launch(ctx, rec, jobrt.JobSpec{
		RunID:                  runID,
		Stage:                  jobrt.StageLearn,
		PredictorID:            rec.ID,
		DatasourceID:           req.DatasourceID,
		CompanyID:              req.CompanyID,
		Name:                   rec.Name,
		ProblemDefinition:      pd.Map(),
		Override:               req.Override,
		DeleteDatasourceOnFail: req.DeleteDatasourceOnFail,
	}, req.Join, req.JoinTimeout)
}

// Retrain starts an update worker for an existing predictor.
func (s *predictorService) Retrain(ctx context.Context, req RetrainRequest) (*LaunchResult, error) {
	if s.launcher == nil {
		return nil, errors.New("retrain: no worker launcher configured")
	}
	rec, err := s.predictors.GetByName(dbctx.Context{Ctx: ctx}, req.CompanyID, req.Name)
	if err != nil {
		return nil, err
	}
	if rec.DatasourceID == nil {
		return nil, fmt.Errorf("predictor %q has no datasource to retrain on: %w", rec.Name, pkgerrors.ErrInvalidArgument)
	}
	runID := jobrt.NewRunID()
	err = s.predictors.WithLock(ctx, rec.ID, func(tx *gorm.DB, locked *types.Predictor) error {
		if err := s.checkNotBusy(locked); err != nil {
			return err
		}
		return s.predictors.UpdateFields(dbctx.Context{Ctx: ctx, Tx: tx}, locked.ID, map[string]interface{}{
			"run_id": runID,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.launch(ctx, rec, jobrt.JobSpec{
		RunID:       runID,
		Stage:       jobrt.StageUpdate,
		PredictorID: rec.ID,
		CompanyID:   rec.CompanyID,
		Name:        rec.Name,
	}, req.Join, req.JoinTimeout)
}

func (s *predictorService) launch(ctx context.Context, rec *types.Predictor, spec jobrt.JobSpec, join bool, timeout time.Duration) (*LaunchResult, error) {
	log := s.log.With("predictor_id", rec.ID, "run_id", spec.RunID, "stage", spec.Stage)
	h, err := s.launcher.Start(ctx, spec)
	if err != nil {
		log.Error("Failed to start worker", "error", err)
		s.recordLaunchFailure(ctx, rec.ID, spec, err)
		return nil, err
	}
	out := &LaunchResult{RunID: spec.RunID, Handle: h}
	if join {
		out.Exited = s.launcher.Join(h, timeout)
		if !out.Exited {
			log.Warn("Join timed out; worker keeps running", "pid", h.PID, "timeout", timeout.String())
		}
	}
	out.Predictor, err = s.predictors.GetByID(dbctx.Context{Ctx: ctx}, rec.ID)
	if err != nil {
		return out, err
	}
	return out, nil
}

// recordLaunchFailure leaves the record in a terminal state when no worker
// could be started for this run.
func (s *predictorService) recordLaunchFailure(ctx context.Context, id int64, spec jobrt.JobSpec, cause error) {
	werr := s.predictors.WithLock(ctx, id, func(tx *gorm.DB, locked *types.Predictor) error {
		if locked.RunID != spec.RunID {
			return nil
		}
		updates := map[string]interface{}{}
		switch spec.Stage {
		case jobrt.StageUpdate:
			updates["update_status"] = types.UpdateStatusUpdateFailed
		default:
			updates["data"] = types.ErrorData(fmt.Sprintf("failed to start %s worker: %v", spec.Stage, cause))
		}
		return s.predictors.UpdateFields(dbctx.Context{Ctx: ctx, Tx: tx}, locked.ID, updates)
	})
	if werr != nil {
		s.log.Error("Failed to record launch failure", "predictor_id", id, "error", werr)
	}
}

// EditJSONAI replaces the model description and recompiles code from it in
// the same locked transaction.
func (s *predictorService) EditJSONAI(ctx context.Context, companyID int64, name string, tree jsontree.Value) (*types.Predictor, error) {
	if s.engine == nil {
		return nil, errors.New("edit json_ai: no engine configured")
	}
	if !tree.IsMap() {
		return nil, fmt.Errorf("json_ai must be an object: %w", pkgerrors.ErrInvalidArgument)
	}
	rec, err := s.predictors.GetByName(dbctx.Context{Ctx: ctx}, companyID, name)
	if err != nil {
		return nil, err
	}
	err = s.predictors.WithLock(ctx, rec.ID, func(tx *gorm.DB, locked *types.Predictor) error {
		code, cerr := s.engine.Compile(ctx, tree)
		if cerr != nil {
			return fmt.Errorf("compile json_ai: %v: %w", cerr, pkgerrors.ErrInvalidArgument)
		}
		return s.predictors.UpdateFields(dbctx.Context{Ctx: ctx, Tx: tx}, locked.ID, map[string]interface{}{
			"json_ai": types.JSONOf(tree),
			"code":    code,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("json_ai edited", "predictor_id", rec.ID, "company_id", companyID)
	return s.predictors.GetByID(dbctx.Context{Ctx: ctx}, rec.ID)
}

func (s *predictorService) Get(ctx context.Context, companyID int64, name string) (*types.Predictor, error) {
	return s.predictors.GetByName(dbctx.Context{Ctx: ctx}, companyID, name)
}

func (s *predictorService) List(ctx context.Context, companyID int64) ([]*types.Predictor, error) {
	return s.predictors.List(dbctx.Context{Ctx: ctx}, companyID)
}

// Workers merges the workers this process supervises with the marker files
// left by any worker on the host.
func (s *predictorService) Workers(ctx context.Context) ([]WorkerInfo, error) {
	byPID := map[int]*WorkerInfo{}
	if s.launcher != nil {
		for _, h := range s.launcher.Running() {
			byPID[h.PID] = &WorkerInfo{
				PID:         h.PID,
				RunID:       h.RunID,
				Stage:       h.Stage,
				PredictorID: h.PredictorID,
				StartedAt:   h.StartedAt,
				Supervised:  true,
			}
		}
	}
	if s.markers != nil {
		list, err := s.markers.List()
		if err != nil {
			return nil, err
		}
		for _, m := range list {
			w, ok := byPID[m.PID]
			if !ok {
				w = &WorkerInfo{PID: m.PID, RunID: m.RunID, Stage: m.Stage, PredictorID: m.PredictorID, StartedAt: m.StartedAt}
				byPID[m.PID] = w
			}
			w.HasMarker = true
		}
	}
	out := make([]WorkerInfo, 0, len(byPID))
	for _, w := range byPID {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

func (s *predictorService) Kill(ctx context.Context, pid int) error {
	if s.launcher == nil {
		return fmt.Errorf("worker %d: %w", pid, pkgerrors.ErrNotFound)
	}
	return s.launcher.KillPID(pid)
}

// JoinAll waits for every supervised worker. It returns an error when some
// worker is still running after timeout.
func (s *predictorService) JoinAll(ctx context.Context, timeout time.Duration) error {
	if s.launcher == nil {
		return nil
	}
	g, _ := errgroup.WithContext(ctx)
	for _, h := range s.launcher.Running() {
		g.Go(func() error {
			if !s.launcher.Join(h, timeout) {
				return fmt.Errorf("worker %d (%s, run %s) still running", h.PID, h.Stage, h.RunID)
			}
			return nil
		})
	}
	return g.Wait()
}

// Reconcile reports records still marked as training whose run has no live
// worker. With fix set it records a failure on them. Success is never
// inferred.
func (s *predictorService) Reconcile(ctx context.Context, fix bool) ([]AbandonedRun, error) {
	training, err := s.predictors.ListTraining(dbctx.Context{Ctx: ctx})
	if err != nil {
		return nil, err
	}
	var out []AbandonedRun
	for _, rec := range training {
		if s.runIsLive(rec) {
			continue
		}
		ab := AbandonedRun{PredictorID: rec.ID, CompanyID: rec.CompanyID, Name: rec.Name, RunID: rec.RunID}
		if fix {
			runID := rec.RunID
			err := s.predictors.WithLock(ctx, rec.ID, func(tx *gorm.DB, locked *types.Predictor) error {
				if !locked.IsTraining() || locked.RunID != runID {
					return nil
				}
				ab.Fixed = true
				return s.predictors.UpdateFields(dbctx.Context{Ctx: ctx, Tx: tx}, locked.ID, map[string]interface{}{
					"data": types.ErrorData(AbandonedMessage),
				})
			})
			if err != nil {
				return out, err
			}
		}
		s.log.Warn("Abandoned training run", "predictor_id", rec.ID, "run_id", rec.RunID, "fixed", ab.Fixed)
		out = append(out, ab)
	}
	return out, nil
}

// checkNotBusy rejects a claim while a worker still runs the record's
// current run, whichever stage it is in. A worker that has not yet written
// its training marker or update status still counts.
func (s *predictorService) checkNotBusy(rec *types.Predictor) error {
	if !s.runIsLive(rec) {
		return nil
	}
	what := "training"
	if rec.UpdateStatus == types.UpdateStatusUpdating {
		what = "updating"
	}
	return fmt.Errorf("predictor %q is already %s (run %s): %w", rec.Name, what, rec.RunID, pkgerrors.ErrConflict)
}

// runIsLive reports whether a supervised worker or a marker matches the
// record's current run.
func (s *predictorService) runIsLive(rec *types.Predictor) bool {
	matches := func(runID string, predictorID int64) bool {
		if rec.RunID != "" {
			return runID == rec.RunID
		}
		return predictorID == rec.ID
	}
	if s.launcher != nil {
		for _, h := range s.launcher.Running() {
			if matches(h.RunID, h.PredictorID) {
				return true
			}
		}
	}
	if s.markers != nil {
		list, err := s.markers.List()
		if err != nil {
			s.log.Warn("Marker listing failed", "error", err)
			return false
		}
		for _, m := range list {
			if matches(m.RunID, m.PredictorID) {
				return true
			}
		}
	}
	return false
}
