package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uclouvain/osis-score-encoding/internal/models"
)

type fakeBroker struct {
	mu       sync.Mutex
	incoming []string
	popErr   error
	popDelay time.Duration
	pushErr  error
	pushed   map[string][]string
}

func newFakeBroker(payloads ...string) *fakeBroker {
	return &fakeBroker{incoming: payloads, pushed: map[string][]string{}}
}

func (f *fakeBroker) BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	if f.popDelay > 0 {
		time.Sleep(f.popDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.incoming) > 0 {
		next := f.incoming[0]
		f.incoming = f.incoming[1:]
		return redis.NewStringSliceResult([]string{keys[0], next}, nil)
	}
	if f.popErr != nil {
		return redis.NewStringSliceResult(nil, f.popErr)
	}
	return redis.NewStringSliceResult(nil, redis.Nil)
}

func (f *fakeBroker) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return redis.NewIntResult(0, f.pushErr)
	}
	for _, v := range values {
		f.pushed[key] = append(f.pushed[key], string(v.([]byte)))
	}
	return redis.NewIntResult(int64(len(f.pushed[key])), nil)
}

type stubAssembler struct {
	sheets []models.ScoreSheet
	err    error
	seen   []string
}

func (s *stubAssembler) AssembleForTutor(ctx context.Context, globalID string) ([]models.ScoreSheet, error) {
	s.seen = append(s.seen, globalID)
	return s.sheets, s.err
}

type countingMetrics struct {
	mu       sync.Mutex
	requests int
	restarts int
}

func (c *countingMetrics) RecordBridgeRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++
}

func (c *countingMetrics) RecordBridgeRestart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restarts++
}

func (c *countingMetrics) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests, c.restarts
}

func bridgeConfig() BridgeConfig {
	return BridgeConfig{
		RequestQueue:    "osis.score_encoding.pdf_request",
		ConsumerTimeout: 50 * time.Millisecond,
		BackoffMin:      time.Millisecond,
		BackoffMax:      5 * time.Millisecond,
	}
}

func TestConsumePublishesSheetsToResponseQueue(t *testing.T) {
	request, err := json.Marshal(models.ScoreSheetRequest{
		GlobalID:      "00123456",
		ResponseQueue: "osis.score_encoding.pdf_response.00123456",
	})
	require.NoError(t, err)

	brk := newFakeBroker(string(request))
	brk.popErr = errors.New("connection reset")

	sheets := &stubAssembler{sheets: []models.ScoreSheet{{
		SessionNumber:       1,
		AcademicYear:        2024,
		LearningUnitAcronym: "LDROI1001",
		OfferAcronym:        "DROI1BA",
	}}}
	metrics := &countingMetrics{}

	bridge := NewBridge(brk, sheets, metrics, bridgeConfig(), zap.NewNop())
	err = bridge.Consume(context.Background())
	require.Error(t, err)

	require.Equal(t, []string{"00123456"}, sheets.seen)
	requests, _ := metrics.counts()
	assert.Equal(t, 1, requests)

	published := brk.pushed["osis.score_encoding.pdf_response.00123456"]
	require.Len(t, published, 1)

	var response models.ScoreSheetResponse
	require.NoError(t, json.Unmarshal([]byte(published[0]), &response))
	assert.Equal(t, "00123456", response.GlobalID)
	require.Len(t, response.Sheets, 1)
	assert.Equal(t, "LDROI1001", response.Sheets[0].LearningUnitAcronym)
}

func TestConsumeDefaultsResponseQueue(t *testing.T) {
	request, err := json.Marshal(models.ScoreSheetRequest{GlobalID: "00999999"})
	require.NoError(t, err)

	brk := newFakeBroker(string(request))
	brk.popErr = errors.New("connection reset")

	bridge := NewBridge(brk, &stubAssembler{}, nil, bridgeConfig(), zap.NewNop())
	require.Error(t, bridge.Consume(context.Background()))

	assert.Len(t, brk.pushed["osis.score_encoding.pdf_request.response"], 1)
}

func TestConsumeDropsMalformedEnvelope(t *testing.T) {
	brk := newFakeBroker("{not json")
	brk.popErr = errors.New("connection reset")

	sheets := &stubAssembler{}
	bridge := NewBridge(brk, sheets, nil, bridgeConfig(), zap.NewNop())
	require.Error(t, bridge.Consume(context.Background()))

	assert.Empty(t, sheets.seen)
	assert.Empty(t, brk.pushed)
}

func TestConsumeAnswersEmptySheetsOnAssemblyError(t *testing.T) {
	request, err := json.Marshal(models.ScoreSheetRequest{
		GlobalID:      "00123456",
		ResponseQueue: "resp",
	})
	require.NoError(t, err)

	brk := newFakeBroker(string(request))
	brk.popErr = errors.New("connection reset")

	sheets := &stubAssembler{err: errors.New("database down")}
	bridge := NewBridge(brk, sheets, nil, bridgeConfig(), zap.NewNop())
	require.Error(t, bridge.Consume(context.Background()))

	published := brk.pushed["resp"]
	require.Len(t, published, 1)

	var response models.ScoreSheetResponse
	require.NoError(t, json.Unmarshal([]byte(published[0]), &response))
	assert.Empty(t, response.Sheets)
}

func TestConsumeStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bridge := NewBridge(newFakeBroker(), &stubAssembler{}, nil, bridgeConfig(), zap.NewNop())
	err := bridge.Consume(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSuperviseRestartsAfterBrokerFailure(t *testing.T) {
	brk := newFakeBroker()
	brk.popErr = errors.New("connection reset")
	metrics := &countingMetrics{}

	bridge := NewBridge(brk, &stubAssembler{}, metrics, bridgeConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bridge.Supervise(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, restarts := metrics.counts()
		return restarts >= 2
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop on cancel")
	}
}

func TestSuperviseResetsBackoffAfterLongRun(t *testing.T) {
	brk := newFakeBroker()
	brk.popErr = errors.New("connection reset")
	brk.popDelay = 10 * time.Millisecond
	metrics := &countingMetrics{}

	cfg := bridgeConfig()
	cfg.BackoffMax = 500 * time.Millisecond
	bridge := NewBridge(brk, &stubAssembler{}, metrics, cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bridge.Supervise(ctx)
		close(done)
	}()

	// Every run outlives the 1ms floor, so the delay must snap back to
	// it each time. A delay that only ever doubled would cap restarts
	// at around a dozen within this window.
	assert.Eventually(t, func() bool {
		_, restarts := metrics.counts()
		return restarts >= 30
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop on cancel")
	}
}
