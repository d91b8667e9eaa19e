package timedcall

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"DeepResearch/internal/domain/models"
	"DeepResearch/internal/domain/repository"
	"DeepResearch/pkg/logger"
)

const DefaultTimeout = 2 * time.Second

var ErrTimeout = errors.New("call timed out")

// Report collects one entry per external call of a research run.
// Entries are ordered by the moment each call started.
type Report struct {
	mu      sync.Mutex
	seq     int
	entries []models.APICallReportEntry
}

func NewReport() *Report { return &Report{} }

func (r *Report) next() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq
}

func (r *Report) add(e models.APICallReportEntry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Entries returns a sorted copy.
func (r *Report) Entries() []models.APICallReportEntry {
	r.mu.Lock()
	out := make([]models.APICallReportEntry, len(r.entries))
	copy(out, r.entries)
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Call describes one external request.
type Call struct {
	Name     string
	Provider string
	Timeout  time.Duration
}

// Result is the outcome of a timed call. When IsFallback is true Value is the
// fallback passed in, never data from the source.
type Result[T any] struct {
	Value      T
	Success    bool
	IsFallback bool
	Duration   time.Duration
	Err        error
}

// Executor carries the observability hooks shared by all calls.
type Executor struct {
	metrics repository.Metrics
	log     *logger.Logger
}

func NewExecutor(metrics repository.Metrics, log *logger.Logger) *Executor {
	if log == nil {
		log = logger.Nop()
	}
	return &Executor{metrics: metrics, log: log}
}

// Execute runs fn under its own deadline derived from ctx. Errors, panics and
// timeouts all produce the fallback; nothing is propagated. The derived
// context is cancelled when Execute returns so adapters can stop work.
func Execute[T any](ctx context.Context, ex *Executor, report *Report, call Call, fallback T, fn func(ctx context.Context) (T, error)) Result[T] {
	if call.Timeout <= 0 {
		call.Timeout = DefaultTimeout
	}
	seq := 0
	if report != nil {
		seq = report.next()
	}
	start := time.Now()

	cctx, cancel := context.WithTimeout(ctx, call.Timeout)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("panic in %s: %v", call.Name, p)}
			}
		}()
		v, err := fn(cctx)
		done <- outcome{v: v, err: err}
	}()

	var res Result[T]
	select {
	case o := <-done:
		res.Err = o.err
		if o.err == nil {
			res.Value, res.Success = o.v, true
		}
	case <-cctx.Done():
		res.Err = fmt.Errorf("%w after %s: %v", ErrTimeout, call.Timeout, cctx.Err())
	}
	res.Duration = time.Since(start)
	if !res.Success {
		res.Value, res.IsFallback = fallback, true
	}

	ex.record(report, seq, call, res.Success, res.Duration, res.Err)
	return res
}

// Skip records a call that was not attempted, e.g. a capability the adapter lacks.
func Skip(ex *Executor, report *Report, call Call, reason string) {
	if report != nil {
		report.add(models.APICallReportEntry{
			Seq:        report.next(),
			Name:       call.Name,
			Status:     models.CallSkipped,
			Provider:   call.Provider,
			Message:    reason,
			IsFallback: true,
		})
	}
	if ex != nil && ex.metrics != nil {
		ex.metrics.RecordProviderCall(call.Provider, call.Name, models.CallSkipped, 0)
	}
}

func (ex *Executor) record(report *Report, seq int, call Call, ok bool, d time.Duration, err error) {
	status := models.CallSuccess
	msg := ""
	if !ok {
		status = models.CallFailed
		if err != nil {
			msg = err.Error()
		}
	}
	if report != nil {
		report.add(models.APICallReportEntry{
			Seq:        seq,
			Name:       call.Name,
			Status:     status,
			DurationMs: d.Milliseconds(),
			Provider:   call.Provider,
			Message:    msg,
			IsFallback: !ok,
		})
	}
	if ex == nil {
		return
	}
	if ex.metrics != nil {
		ex.metrics.RecordProviderCall(call.Provider, call.Name, status, d.Seconds())
	}
	if !ok {
		ex.log.Warn("provider call fell back",
			logger.String("call", call.Name),
			logger.String("provider", call.Provider),
			logger.Duration("duration_ms", d),
			logger.Error(err))
	}
}
