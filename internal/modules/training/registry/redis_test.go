package registry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
)

type fakeRedis struct {
	hashes    map[string]map[string]string
	published []string
	failHSet  error
}

func (f *fakeRedis) HSet(ctx context.Context, key string, values ...interface{}) *goredis.IntCmd {
	if f.failHSet != nil {
		return goredis.NewIntResult(0, f.failHSet)
	}
	if f.hashes[key] == nil {
		f.hashes[key] = map[string]string{}
	}
	f.hashes[key][values[0].(string)] = string(values[1].([]byte))
	return goredis.NewIntResult(1, nil)
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd {
	f.published = append(f.published, channel+":"+string(message.([]byte)))
	return goredis.NewIntResult(1, nil)
}

func (f *fakeRedis) Ping(ctx context.Context) *goredis.StatusCmd {
	return goredis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisRegistrarRegister(t *testing.T) {
	fr := &fakeRedis{hashes: map[string]map[string]string{}}
	r := newRedisRegistrar(logger.Nop(), fr, "models")

	err := r.Register(context.Background(), ModelMetadata{
		CompanyID:   4,
		PredictorID: 9,
		Name:        "rentals",
		Status:      "complete",
		ArtifactKey: "predictor_4_9",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	raw, ok := fr.hashes["modelforge:models:4"]["rentals"]
	if !ok {
		t.Fatalf("HSet: missing entry, got=%v", fr.hashes)
	}
	var got ModelMetadata
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("stored metadata: %v", err)
	}
	if got.ArtifactKey != "predictor_4_9" || got.RegisteredAt.IsZero() {
		t.Fatalf("stored metadata: got=%+v", got)
	}
	if len(fr.published) != 1 {
		t.Fatalf("Publish: want 1 message got=%d", len(fr.published))
	}
}

func TestRedisRegistrarPropagatesErrors(t *testing.T) {
	boom := errors.New("connection refused")
	fr := &fakeRedis{hashes: map[string]map[string]string{}, failHSet: boom}
	r := newRedisRegistrar(logger.Nop(), fr, "models")
	if err := r.Register(context.Background(), ModelMetadata{Name: "x"}); !errors.Is(err, boom) {
		t.Fatalf("Register: want wrapped boom got=%v", err)
	}
	if len(fr.published) != 0 {
		t.Fatalf("Publish: must not publish after HSet failure")
	}
}
