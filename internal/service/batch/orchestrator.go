// Package batch runs several extractions in paced, concurrent chunks.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"repairscribe/internal/apperr"
	"repairscribe/internal/logging"
	"repairscribe/internal/models"
	"repairscribe/internal/service/extraction"
	"repairscribe/internal/worker"
)

const (
	DefaultMaxItems  = 10
	DefaultChunkSize = 3
)

// Extractor runs one extraction.
type Extractor interface {
	Extract(ctx context.Context, req *models.ExtractionRequest) (*models.ExtractionResult, error)
}

// Submitter schedules jobs on the shared worker pool and withdraws the ones
// that have not started.
type Submitter interface {
	Submit(job worker.Job) error
	CancelGroup(owner, group string) int
}

// Config tunes chunking.
type Config struct {
	MaxItems  int
	ChunkSize int
}

// Orchestrator fans a batch out chunk by chunk.
type Orchestrator struct {
	extractor Extractor
	workers   Submitter
	pacer     Pacer
	maxItems  int
	chunkSize int
	logger    logging.Logger
	now       func() time.Time
}

func NewOrchestrator(extractor Extractor, workers Submitter, pacer Pacer, cfg Config, logger logging.Logger) *Orchestrator {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if pacer == nil {
		pacer = FixedDelay(0)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Orchestrator{
		extractor: extractor,
		workers:   workers,
		pacer:     pacer,
		maxItems:  cfg.MaxItems,
		chunkSize: cfg.ChunkSize,
		logger:    logger,
		now:       time.Now,
	}
}

// ExtractBatch extracts every item and returns results in input order.
// Item failures are reported per item and never abort the batch.
func (o *Orchestrator) ExtractBatch(ctx context.Context, owner string, items []models.BatchItem, typ models.ExtractionType, custom *models.CustomSchema) (*models.BatchResult, error) {
	if len(items) == 0 || len(items) > o.maxItems {
		return nil, apperr.Validation("Validation failed", apperr.FieldError{
			Field:   "transcriptions",
			Message: fmt.Sprintf("must contain between 1 and %d items", o.maxItems),
		})
	}
	if err := extraction.CheckType(typ, custom); err != nil {
		return nil, err
	}

	start := o.now()
	group := uuid.NewString()
	results := make([]models.BatchItemResult, len(items))
	for i, item := range items {
		results[i].ID = item.ID
	}

	chunks := 0
	for lo := 0; lo < len(items); lo += o.chunkSize {
		if lo > 0 {
			if err := o.pacer.Wait(ctx); err != nil {
				for i := lo; i < len(items); i++ {
					results[i].Error = err.Error()
				}
				break
			}
		}
		hi := min(lo+o.chunkSize, len(items))
		o.runChunk(ctx, owner, group, items[lo:hi], results[lo:hi], typ, custom)
		chunks++
	}

	out := &models.BatchResult{Items: results, ProcessingTimeMs: o.now().Sub(start).Milliseconds()}
	ok, failed := out.Counts()
	o.logger.Info(ctx, "batch extraction finished",
		"owner", owner, "items", len(items), "chunks", chunks,
		"succeeded", ok, "failed", failed, "ms", out.ProcessingTimeMs)
	return out, nil
}

// runChunk dispatches every item of the chunk and waits for all of them.
// Each item writes only its own slot of results. When ctx ends first, the
// chunk's jobs that have not started are withdrawn from the pool.
func (o *Orchestrator) runChunk(ctx context.Context, owner, group string, items []models.BatchItem, results []models.BatchItemResult, typ models.ExtractionType, custom *models.CustomSchema) {
	var wg sync.WaitGroup
	for i := range items {
		item, slot := items[i], &results[i]
		var once sync.Once
		finish := func(res *models.ExtractionResult, err error) {
			once.Do(func() {
				if err != nil {
					slot.Error = err.Error()
				} else {
					slot.Result = res
				}
				wg.Done()
			})
		}

		wg.Add(1)
		job := worker.Job{
			Owner: owner,
			Group: group,
			Run: func() {
				res, err := o.extractItem(ctx, item, typ, custom)
				finish(res, err)
			},
			Drop: func(err error) { finish(nil, err) },
		}
		if err := o.workers.Submit(job); err != nil {
			o.logger.Warn(ctx, "batch item not scheduled", "owner", owner, "id", item.ID, "error", err)
			finish(nil, err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if n := o.workers.CancelGroup(owner, group); n > 0 {
			o.logger.Info(ctx, "batch cancelled", "owner", owner, "withdrawn", n)
		}
		<-done
	}
}

func (o *Orchestrator) extractItem(ctx context.Context, item models.BatchItem, typ models.ExtractionType, custom *models.CustomSchema) (res *models.ExtractionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error(ctx, "batch item panicked", "id", item.ID, "panic", r)
			res, err = nil, fmt.Errorf("extraction panicked: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return o.extractor.Extract(ctx, &models.ExtractionRequest{
		Transcript:   item.Text,
		Type:         typ,
		CustomSchema: custom,
	})
}
