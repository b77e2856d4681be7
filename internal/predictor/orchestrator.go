package predictor

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"finsight/internal/indicator"
	"finsight/internal/provider"
	"finsight/internal/store"
	"finsight/pkg/model"
)

// fetchBars is how much daily history is requested per symbol. The snapshot
// needs 200 closes for the slowest moving average; the extra covers holidays
// and short listings discovered only after the fetch.
const fetchBars = 250

// ProgressCallback is called with progress updates
type ProgressCallback func(done, total int)

// Skip records a symbol that could not be predicted and why. A skip never
// aborts the run; the remaining symbols are still processed.
type Skip struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// RunResult is the outcome of one prediction run
type RunResult struct {
	Predictions []model.Prediction `json:"predictions"`
	Skips       []Skip             `json:"skips"`
	Duration    time.Duration      `json:"duration"`
}

// Orchestrator fetches history, computes indicator snapshots, and fuses them
// into stored predictions for a batch of symbols
type Orchestrator struct {
	provider     provider.Provider
	store        store.Store
	workers      int
	timeout      time.Duration
	progressFunc ProgressCallback
}

// NewOrchestrator creates a prediction orchestrator
func NewOrchestrator(p provider.Provider, s store.Store, workers int, timeout time.Duration) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		provider: p,
		store:    s,
		workers:  workers,
		timeout:  timeout,
	}
}

// SetProgressCallback sets the progress callback function
func (o *Orchestrator) SetProgressCallback(fn ProgressCallback) {
	o.progressFunc = fn
}

// Run predicts every symbol in the batch. Symbols with unavailable or too
// short history are reported as skips, not errors; the run only fails when
// the context expires or the batch is empty.
func (o *Orchestrator) Run(ctx context.Context, symbols []string) (*RunResult, error) {
	startTime := time.Now()

	if len(symbols) == 0 {
		return nil, fmt.Errorf("predict: no symbols given")
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	jobChan := make(chan string, len(symbols))
	predChan := make(chan model.Prediction, len(symbols))
	skipChan := make(chan Skip, len(symbols))

	for _, sym := range symbols {
		jobChan <- sym
	}
	close(jobChan)

	var doneCount int64

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for sym := range jobChan {
				select {
				case <-ctx.Done():
					return
				default:
					pred, err := o.predictOne(ctx, sym)
					if err != nil {
						log.Printf("[PREDICT] skipping %s: %v", sym, err)
						skipChan <- Skip{Symbol: sym, Reason: err.Error()}
					} else {
						predChan <- *pred
					}

					count := atomic.AddInt64(&doneCount, 1)
					if o.progressFunc != nil {
						o.progressFunc(int(count), len(symbols))
					}
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(predChan)
		close(skipChan)
	}()

	var predictions []model.Prediction
	for pred := range predChan {
		predictions = append(predictions, pred)
	}
	var skips []Skip
	for skip := range skipChan {
		skips = append(skips, skip)
	}

	sort.Slice(predictions, func(i, j int) bool {
		return predictions[i].Symbol < predictions[j].Symbol
	})
	sort.Slice(skips, func(i, j int) bool {
		return skips[i].Symbol < skips[j].Symbol
	})

	return &RunResult{
		Predictions: predictions,
		Skips:       skips,
		Duration:    time.Since(startTime),
	}, nil
}

// predictOne produces and persists one symbol's prediction
func (o *Orchestrator) predictOne(ctx context.Context, symbol string) (*model.Prediction, error) {
	bars, err := o.provider.GetDailyHistory(ctx, symbol, fetchBars)
	if err != nil {
		return nil, fmt.Errorf("history unavailable: %w", err)
	}

	snap, err := indicator.Snapshot(bars)
	if err != nil {
		return nil, fmt.Errorf("%d bars: %w", len(bars), err)
	}

	pred := Fuse(symbol, snap, time.Now())

	if o.store != nil {
		if err := o.store.SavePricePoints(ctx, symbol, bars); err != nil {
			log.Printf("[PREDICT] failed to persist %s history: %v", symbol, err)
		}
		if err := o.store.SavePrediction(ctx, pred); err != nil {
			return nil, fmt.Errorf("persist prediction: %w", err)
		}
	}

	return &pred, nil
}
