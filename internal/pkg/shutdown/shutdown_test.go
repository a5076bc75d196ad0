package shutdown

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"scenecap/internal/pkg/logger"
)

func TestNewManagerDefaultTimeout(t *testing.T) {
	mgr := NewManager(logger.NewNop(), 0)
	if mgr.timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %s", mgr.timeout)
	}
}

func TestRegister(t *testing.T) {
	mgr := NewManager(logger.NewNop(), 5*time.Second)

	mgr.Register("dispatcher", func(ctx context.Context) error { return nil })

	if len(mgr.handlers) != 1 || mgr.handlers[0].Name != "dispatcher" {
		t.Errorf("unexpected handlers: %+v", mgr.handlers)
	}
}

func TestShutdownRunsLIFOSequentially(t *testing.T) {
	mgr := NewManager(logger.NewNop(), 5*time.Second)

	var order []string
	mgr.RegisterSimple("dispatcher", func() { order = append(order, "dispatcher") })
	mgr.Register("http", func(ctx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		order = append(order, "http")
		return nil
	})

	mgr.Shutdown()

	want := []string{"http", "dispatcher"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("expected order %v, got %v", want, order)
	}
}

func TestShutdownContinuesAfterFailure(t *testing.T) {
	mgr := NewManager(logger.NewNop(), 5*time.Second)

	var ran bool
	mgr.RegisterSimple("first", func() { ran = true })
	mgr.Register("failing", func(ctx context.Context) error { return errors.New("boom") })

	mgr.Shutdown()

	if !ran {
		t.Error("expected handler after a failure to still run")
	}
}

func TestShutdownOnce(t *testing.T) {
	mgr := NewManager(logger.NewNop(), 5*time.Second)

	calls := 0
	mgr.RegisterSimple("count", func() { calls++ })

	mgr.Shutdown()
	mgr.Shutdown()

	if calls != 1 {
		t.Errorf("expected handler to run once, ran %d times", calls)
	}
}

func TestShutdownSharesDeadline(t *testing.T) {
	mgr := NewManager(logger.NewNop(), 50*time.Millisecond)

	mgr.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	mgr.Shutdown()

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected shutdown to respect timeout, took %s", elapsed)
	}
}

func TestDoneAndContext(t *testing.T) {
	mgr := NewManager(logger.NewNop(), time.Second)
	ctx := mgr.Context()

	select {
	case <-mgr.Done():
		t.Fatal("done closed before shutdown")
	default:
	}

	mgr.Shutdown()

	select {
	case <-mgr.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed after shutdown")
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not canceled after shutdown")
	}
}

func TestWaitReturnsOnContextCancel(t *testing.T) {
	mgr := NewManager(logger.NewNop(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mgr.Wait(ctx)

	select {
	case <-mgr.Done():
	default:
		t.Error("expected shutdown to run after Wait returns")
	}
}
