package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kengibson1111/go-test-content-cache/internal"
)

// SweepState is a state of the bulk invalidation state machine.
type SweepState int

const (
	SweepStart SweepState = iota
	SweepScanning
	SweepDeleting
	SweepDone
	SweepAborted
)

func (s SweepState) String() string {
	switch s {
	case SweepStart:
		return "start"
	case SweepScanning:
		return "scanning"
	case SweepDeleting:
		return "deleting"
	case SweepDone:
		return "done"
	case SweepAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s SweepState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further steps will run.
func (s SweepState) Terminal() bool {
	return s == SweepDone || s == SweepAborted
}

// Sweeper deletes every key of a namespace with cursor-based SCAN, one
// bounded batch at a time. It is not atomic: keys written while a sweep is
// in progress may survive it.
type Sweeper struct {
	client    internal.RedisClientInterface
	keyGen    internal.KeyGenerator
	validator *internal.InputValidator
	logger    *zap.Logger
	metrics   *Metrics
}

// NewSweeper creates a sweeper for the namespace of keyGen.
func NewSweeper(client internal.RedisClientInterface, keyGen internal.KeyGenerator, logger *zap.Logger, metrics *Metrics) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		client:    client,
		keyGen:    keyGen,
		validator: internal.NewInputValidator(),
		logger:    logger.With(zap.String("component", "sweeper")),
		metrics:   metrics,
	}
}

// DefaultSweepOptions returns options using the configured scan batch size.
func DefaultSweepOptions(config *RedisConfig) *SweepOptions {
	batch := int64(100)
	if config != nil && config.ScanBatchSize > 0 {
		batch = config.ScanBatchSize
	}
	return &SweepOptions{BatchSize: batch}
}

// sweep is one pass of the state machine.
type sweep struct {
	sweeper *Sweeper
	opts    SweepOptions
	pattern string

	state  SweepState
	cursor Cursor
	batch  []string
	result SweepResult
}

func (s *Sweeper) newSweep(opts *SweepOptions) *sweep {
	o := SweepOptions{BatchSize: 100}
	if opts != nil {
		o = *opts
		if o.BatchSize <= 0 {
			o.BatchSize = 100
		}
	}
	return &sweep{
		sweeper: s,
		opts:    o,
		pattern: s.keyGen.Pattern(),
		state:   SweepStart,
		cursor:  internal.InitialCursor,
	}
}

// step performs exactly one transition.
func (sw *sweep) step(ctx context.Context) {
	if sw.state.Terminal() {
		return
	}
	if err := ctx.Err(); err != nil {
		sw.abort(err)
		return
	}

	switch sw.state {
	case SweepStart:
		sw.cursor = internal.InitialCursor
		sw.state = SweepScanning

	case SweepScanning:
		keys, next, err := sw.sweeper.client.Scan(ctx, sw.cursor, sw.pattern, sw.opts.BatchSize)
		if err != nil {
			sw.abort(err)
			return
		}
		sw.result.Batches++
		sw.result.KeysScanned += int64(len(keys))
		sw.cursor = next

		if len(keys) > 0 && !sw.opts.DryRun {
			sw.batch = keys
			sw.state = SweepDeleting
			return
		}
		sw.advance()

	case SweepDeleting:
		deleted, err := sw.sweeper.client.Del(ctx, sw.batch...)
		if err != nil {
			sw.abort(err)
			return
		}
		sw.result.KeysDeleted += deleted
		sw.sweeper.metrics.addSweepDeleted(deleted)
		sw.batch = nil
		sw.advance()
	}
}

// advance picks the state after a batch has been handled.
func (sw *sweep) advance() {
	switch {
	case sw.cursor.IsInitial():
		sw.state = SweepDone
		sw.result.Completed = true
	case sw.opts.MaxKeys > 0 && sw.result.KeysScanned >= sw.opts.MaxKeys:
		sw.state = SweepDone
	default:
		sw.state = SweepScanning
	}
}

func (sw *sweep) abort(err error) {
	sw.state = SweepAborted
	sw.result.Err = err
	sw.result.Error = err.Error()
}

// Run drives a sweep to a terminal state. Failures abort the sweep and are
// reported in the result; the caller decides whether to run it again.
func (s *Sweeper) Run(ctx context.Context, opts *SweepOptions) *SweepResult {
	start := time.Now()
	sw := s.newSweep(opts)
	if err := s.validator.ValidateContext(ctx); err != nil {
		sw.abort(err)
	} else if err := s.validator.ValidateSweepPattern(sw.pattern, s.keyGen.Namespace()); err != nil {
		sw.abort(err)
	}

	for !sw.state.Terminal() {
		sw.step(ctx)
	}

	result := sw.result
	result.State = sw.state
	result.Duration = time.Since(start)

	fields := []zap.Field{
		zap.String("pattern", sw.pattern),
		zap.Bool("dry_run", sw.opts.DryRun),
		zap.Int64("keys_scanned", result.KeysScanned),
		zap.Int64("keys_deleted", result.KeysDeleted),
		zap.Int("batches", result.Batches),
		zap.Duration("duration", result.Duration),
	}
	if result.Err != nil {
		s.logger.Warn("sweep aborted, invalidation is partial", append(fields, zap.Error(result.Err))...)
	} else if !sw.opts.DryRun {
		s.logger.Info("sweep finished", append(fields, zap.Bool("completed", result.Completed))...)
	}

	return &result
}

// Count walks the namespace without deleting anything.
func (s *Sweeper) Count(ctx context.Context, batchSize int64) *SweepResult {
	return s.Run(ctx, &SweepOptions{BatchSize: batchSize, DryRun: true})
}
