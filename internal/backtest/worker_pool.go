package backtest

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/ducminhle1904/signal-backtest/internal/logger"
	"github.com/ducminhle1904/signal-backtest/internal/trading"
	"github.com/ducminhle1904/signal-backtest/pkg/data"
	"github.com/ducminhle1904/signal-backtest/pkg/types"
)

// RunnerFactory builds a fresh runner for one job
type RunnerFactory func() (*Runner, error)

// WorkerPool manages parallel backtest execution
type WorkerPool struct {
	workerCount int
	jobQueue    chan Job
	resultQueue chan JobResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// Job represents a single backtest task
type Job struct {
	ID        string
	Index     int
	InstID    string
	Bars      []types.Bar
	Risk      trading.RiskConfig
	NewRunner RunnerFactory
}

// JobResult represents the result of a backtest job
type JobResult struct {
	ID       string
	Index    int
	InstID   string
	Result   *Result
	Duration time.Duration
	Error    error
}

// NewWorkerPool creates a new worker pool for parallel backtesting
func NewWorkerPool(workerCount int, jobBufferSize int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workerCount: workerCount,
		jobQueue:    make(chan Job, jobBufferSize),
		resultQueue: make(chan JobResult, jobBufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the worker pool
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Stop stops the worker pool gracefully
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
}

// Cancel abandons queued jobs; running jobs finish but are not reported.
func (wp *WorkerPool) Cancel() {
	wp.cancel()
}

// SubmitJob submits a backtest job to the pool
func (wp *WorkerPool) SubmitJob(job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	}
}

// GetResults returns the result channel for collecting completed jobs
func (wp *WorkerPool) GetResults() <-chan JobResult {
	return wp.resultQueue
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for {
		select {
		case job, ok := <-wp.jobQueue:
			if !ok {
				return
			}

			result := wp.processJob(job)

			select {
			case wp.resultQueue <- result:
			case <-wp.ctx.Done():
				return
			}

		case <-wp.ctx.Done():
			return
		}
	}
}

// processJob runs one job on its own runner
func (wp *WorkerPool) processJob(job Job) JobResult {
	startTime := time.Now()
	result := JobResult{ID: job.ID, Index: job.Index, InstID: job.InstID}

	runner, err := job.NewRunner()
	if err != nil {
		result.Error = err
		result.Duration = time.Since(startTime)
		return result
	}
	result.Result, result.Error = runner.Run(job.Bars, job.InstID, job.Risk)
	result.Duration = time.Since(startTime)
	return result
}

// BatchRequest describes one run of a batch
type BatchRequest struct {
	Symbol   string
	Interval string
	Start    time.Time
	End      time.Time
	Risk     trading.RiskConfig
}

// BatchProcessor loads candles and runs many backtests in parallel
type BatchProcessor struct {
	workerCount   int
	jobBufferSize int
	repo          data.CandleRepository
	log           *logger.Logger

	mu       sync.RWMutex
	progress *ProgressTracker
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(workerCount, jobBufferSize int, repo data.CandleRepository, log *logger.Logger) *BatchProcessor {
	if log == nil {
		log = logger.Nop()
	}
	return &BatchProcessor{
		workerCount:   workerCount,
		jobBufferSize: jobBufferSize,
		repo:          repo,
		log:           log,
	}
}

// Progress returns the tracker of the running batch, nil before the first batch.
func (bp *BatchProcessor) Progress() *ProgressTracker {
	bp.mu.RLock()
	defer bp.mu.RUnlock()
	return bp.progress
}

// ProcessBatch runs every request and returns the results in request order.
// A request whose candles cannot be loaded is reported with its error.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, requests []BatchRequest, factory RunnerFactory) ([]JobResult, error) {
	pool := NewWorkerPool(bp.workerCount, bp.jobBufferSize)
	pool.Start()
	progress := NewProgressTracker(len(requests))
	bp.mu.Lock()
	bp.progress = progress
	bp.mu.Unlock()

	results := make([]JobResult, 0, len(requests))
	var (
		mu        sync.Mutex
		collected sync.WaitGroup
	)
	collected.Add(1)
	go func() {
		defer collected.Done()
		for res := range pool.GetResults() {
			progress.Increment()
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}
	}()

	var submitErr error
	for i, req := range requests {
		id := generateJobID(req, i)
		bars, err := bp.repo.GetCandles(ctx, req.Symbol, req.Interval, req.Start, req.End)
		if err != nil {
			bp.log.LogError("load candles for "+id, err)
			progress.Increment()
			mu.Lock()
			results = append(results, JobResult{ID: id, Index: i, InstID: req.Symbol, Error: err})
			mu.Unlock()
			continue
		}
		job := Job{ID: id, Index: i, InstID: req.Symbol, Bars: bars, Risk: req.Risk, NewRunner: factory}
		if err := pool.SubmitJob(job); err != nil {
			submitErr = err
			break
		}
		if ctx.Err() != nil {
			submitErr = ctx.Err()
			break
		}
	}

	pool.Stop()
	collected.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].Index < results[b].Index })
	return results, submitErr
}

// generateJobID generates a stable job ID
func generateJobID(req BatchRequest, index int) string {
	return fmt.Sprintf("%s_%s_%d", req.Symbol, req.Interval, index)
}

// ProgressTracker tracks the progress of batch processing
type ProgressTracker struct {
	total     int
	completed int
	startTime time.Time
	mutex     sync.RWMutex
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(total int) *ProgressTracker {
	return &ProgressTracker{
		total:     total,
		startTime: time.Now(),
	}
}

// Increment increments the completion count
func (pt *ProgressTracker) Increment() {
	pt.mutex.Lock()
	defer pt.mutex.Unlock()
	pt.completed++
}

// GetProgress returns completed, total, percent done and elapsed time
func (pt *ProgressTracker) GetProgress() (int, int, float64, time.Duration) {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()

	elapsed := time.Since(pt.startTime)
	progress := 0.0
	if pt.total > 0 {
		progress = float64(pt.completed) / float64(pt.total) * 100
	}
	return pt.completed, pt.total, progress, elapsed
}

// EstimateTimeRemaining estimates the remaining time based on current progress
func (pt *ProgressTracker) EstimateTimeRemaining() time.Duration {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()

	if pt.completed == 0 {
		return 0
	}

	elapsed := time.Since(pt.startTime)
	avgTimePerItem := elapsed / time.Duration(pt.completed)
	remaining := pt.total - pt.completed

	return avgTimePerItem * time.Duration(remaining)
}
