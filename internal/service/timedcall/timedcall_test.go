package timedcall

import (
	"context"
	"errors"
	"testing"
	"time"

	"DeepResearch/internal/domain/models"
)

func TestExecuteSuccess(t *testing.T) {
	rep := NewReport()
	res := Execute(context.Background(), NewExecutor(nil, nil), rep, Call{Name: "ticker", Provider: "fake", Timeout: time.Second}, -1,
		func(ctx context.Context) (int, error) { return 42, nil })

	if !res.Success || res.IsFallback || res.Value != 42 {
		t.Fatalf("result = %+v", res)
	}
	e := rep.Entries()
	if len(e) != 1 || e[0].Status != models.CallSuccess || e[0].IsFallback {
		t.Fatalf("report = %+v", e)
	}
}

func TestExecuteTimeoutCancelsAndFallsBack(t *testing.T) {
	rep := NewReport()
	cancelled := make(chan struct{})
	res := Execute(context.Background(), NewExecutor(nil, nil), rep, Call{Name: "candles", Timeout: 20 * time.Millisecond}, []int{7},
		func(ctx context.Context) ([]int, error) {
			<-ctx.Done()
			close(cancelled)
			time.Sleep(50 * time.Millisecond)
			return []int{1, 2, 3}, nil
		})

	if res.Success || !res.IsFallback || len(res.Value) != 1 || res.Value[0] != 7 {
		t.Fatalf("result = %+v", res)
	}
	if !errors.Is(res.Err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", res.Err)
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatalf("adapter context was not cancelled")
	}
	if res.Duration > 500*time.Millisecond {
		t.Fatalf("execute waited for the abandoned call: %v", res.Duration)
	}
	if e := rep.Entries(); e[0].Status != models.CallFailed || !e[0].IsFallback {
		t.Fatalf("report = %+v", e)
	}
}

func TestExecuteErrorAndPanicNeverPropagate(t *testing.T) {
	rep := NewReport()
	ex := NewExecutor(nil, nil)
	ctx := context.Background()

	r1 := Execute(ctx, ex, rep, Call{Name: "orderbook"}, "fallback",
		func(context.Context) (string, error) { return "", errors.New("boom") })
	r2 := Execute(ctx, ex, rep, Call{Name: "sentiment"}, "fallback",
		func(context.Context) (string, error) { panic("adapter bug") })

	for _, r := range []Result[string]{r1, r2} {
		if r.Success || r.Value != "fallback" || r.Err == nil {
			t.Fatalf("result = %+v", r)
		}
	}
	e := rep.Entries()
	if len(e) != 2 || e[0].Name != "orderbook" || e[1].Name != "sentiment" {
		t.Fatalf("report order = %+v", e)
	}
}

func TestExecuteRespectsParentDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res := Execute(ctx, NewExecutor(nil, nil), nil, Call{Name: "slow", Timeout: time.Minute}, 0,
		func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 1, ctx.Err()
		})
	if res.Success || res.Duration > time.Second {
		t.Fatalf("result = %+v", res)
	}
}

func TestSkipRecordsEntry(t *testing.T) {
	rep := NewReport()
	Skip(nil, rep, Call{Name: "derivatives", Provider: "warehouse"}, "adapter has no derivatives data")
	e := rep.Entries()
	if len(e) != 1 || e[0].Status != models.CallSkipped || e[0].Message == "" {
		t.Fatalf("report = %+v", e)
	}
}
