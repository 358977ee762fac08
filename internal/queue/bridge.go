package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/uclouvain/osis-score-encoding/internal/models"
)

type sheetAssembler interface {
	AssembleForTutor(ctx context.Context, globalID string) ([]models.ScoreSheet, error)
}

type bridgeMetrics interface {
	RecordBridgeRequest()
	RecordBridgeRestart()
}

type broker interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// BridgeConfig drives the consumer loop and its supervisor.
type BridgeConfig struct {
	RequestQueue    string
	ConsumerTimeout time.Duration
	BackoffMin      time.Duration
	BackoffMax      time.Duration
}

// Bridge consumes score sheet requests from the broker and publishes the
// assembled sheets onto the per-request response queue. A request naming
// no response queue is answered on "<request queue>.response".
type Bridge struct {
	client  broker
	sheets  sheetAssembler
	metrics bridgeMetrics
	cfg     BridgeConfig
	logger  *zap.Logger
}

// NewBridge constructs the bridge.
func NewBridge(client broker, sheets sheetAssembler, metrics bridgeMetrics, cfg BridgeConfig, logger *zap.Logger) *Bridge {
	if cfg.ConsumerTimeout <= 0 {
		cfg.ConsumerTimeout = 5 * time.Second
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = time.Second
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{client: client, sheets: sheets, metrics: metrics, cfg: cfg, logger: logger}
}

// Consume blocks on the request queue until the context is cancelled or
// the broker fails. Malformed envelopes are dropped with a log line;
// broker errors end the loop so the supervisor can restart it.
func (b *Bridge) Consume(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		values, err := b.client.BLPop(ctx, b.cfg.ConsumerTimeout, b.cfg.RequestQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("consume %s: %w", b.cfg.RequestQueue, err)
		}
		if len(values) < 2 {
			continue
		}

		b.handle(ctx, []byte(values[1]))
	}
}

func (b *Bridge) handle(ctx context.Context, payload []byte) {
	if b.metrics != nil {
		b.metrics.RecordBridgeRequest()
	}

	var request models.ScoreSheetRequest
	if err := json.Unmarshal(payload, &request); err != nil {
		b.logger.Warn("dropping malformed score sheet request", zap.Error(err))
		return
	}

	sheets, err := b.sheets.AssembleForTutor(ctx, request.GlobalID)
	if err != nil {
		b.logger.Error("score sheet assembly failed",
			zap.String("global_id", request.GlobalID),
			zap.Error(err),
		)
		sheets = []models.ScoreSheet{}
	}

	response := models.ScoreSheetResponse{GlobalID: request.GlobalID, Sheets: sheets}
	body, err := json.Marshal(response)
	if err != nil {
		b.logger.Error("score sheet response not serialisable", zap.Error(err))
		return
	}

	target := request.ResponseQueue
	if target == "" {
		target = b.cfg.RequestQueue + ".response"
	}
	if err := b.client.RPush(ctx, target, body).Err(); err != nil {
		b.logger.Error("score sheet response not published",
			zap.String("queue", target),
			zap.Error(err),
		)
	}
}

// Supervise runs Consume in a loop, restarting it after broker failures
// with capped exponential backoff. A clean context cancellation stops the
// supervisor without a restart.
func (b *Bridge) Supervise(ctx context.Context) {
	backoff := b.cfg.BackoffMin
	for {
		started := time.Now()
		err := b.Consume(ctx)
		if ctx.Err() != nil {
			b.logger.Info("queue bridge stopped")
			return
		}
		// A run that outlived the current delay counts as healthy, so
		// the next restart starts from the minimum again.
		if time.Since(started) > backoff {
			backoff = b.cfg.BackoffMin
		}

		if b.metrics != nil {
			b.metrics.RecordBridgeRestart()
		}
		b.logger.Warn("queue bridge consumer exited, restarting",
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			b.logger.Info("queue bridge stopped")
			return
		case <-timer.C:
		}

		backoff *= 2
		if backoff > b.cfg.BackoffMax {
			backoff = b.cfg.BackoffMax
		}
	}
}
