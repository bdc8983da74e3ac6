package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// blockingService runs until stopped and records the order stops happen in.
type blockingService struct {
	name    string
	order   *stopOrder
	started chan struct{}
	stop    chan struct{}
	once    sync.Once
}

type stopOrder struct {
	mu    sync.Mutex
	names []string
}

func (o *stopOrder) add(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names = append(o.names, name)
}

func (o *stopOrder) get() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.names...)
}

func newBlocking(name string, order *stopOrder) *blockingService {
	return &blockingService{name: name, order: order, started: make(chan struct{}), stop: make(chan struct{})}
}

func (b *blockingService) Start() error {
	close(b.started)
	<-b.stop
	return nil
}

func (b *blockingService) Stop() {
	b.once.Do(func() {
		b.order.add(b.name)
		close(b.stop)
	})
}

func waitStarted(t *testing.T, svcs ...*blockingService) {
	t.Helper()
	for _, s := range svcs {
		select {
		case <-s.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s did not start", s.name)
		}
	}
}

func TestLifecycle_StopsInReverseOrderOnCancel(t *testing.T) {
	order := &stopOrder{}
	lc := NewLifecycle(zaptest.NewLogger(t), time.Second)
	archive, ws, health := newBlocking("archive", order), newBlocking("websocket", order), newBlocking("health", order)
	lc.Add("archive", archive)
	lc.Add("websocket", ws)
	lc.Add("health", health)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()
	waitStarted(t, archive, ws, health)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}
	assert.Equal(t, []string{"health", "websocket", "archive"}, order.get())
}

func TestLifecycle_ServiceFailureStopsTheRest(t *testing.T) {
	order := &stopOrder{}
	lc := NewLifecycle(zaptest.NewLogger(t), time.Second)
	survivor := newBlocking("survivor", order)
	lc.Add("survivor", survivor)
	lc.Add("broken", &FuncService{
		StartFn: func() error { return errors.New("address already in use") },
		StopFn:  func() { order.add("broken") },
	})

	err := lc.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "service broken")
	assert.Equal(t, []string{"broken", "survivor"}, order.get())
}

func TestLifecycle_StopTimeoutMovesOn(t *testing.T) {
	order := &stopOrder{}
	lc := NewLifecycle(zaptest.NewLogger(t), 20*time.Millisecond)
	first := newBlocking("first", order)
	release := make(chan struct{})
	defer close(release)
	lc.Add("first", first)
	lc.Add("stuck", &FuncService{
		StartFn: func() error { <-release; return nil },
		StopFn:  func() { <-release },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()
	waitStarted(t, first)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stuck Stop blocked shutdown")
	}
	assert.Equal(t, []string{"first"}, order.get())
}

func TestFuncService(t *testing.T) {
	var started, stopped bool
	svc := &FuncService{
		StartFn: func() error { started = true; return nil },
		StopFn:  func() { stopped = true },
	}

	assert.NoError(t, svc.Start())
	assert.True(t, started)
	svc.Stop()
	assert.True(t, stopped)
}
