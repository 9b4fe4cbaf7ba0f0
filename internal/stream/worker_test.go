package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fieldops/internal/activity/models"
)

// recordingPublisher captures published addenda and can be scripted to fail.
type recordingPublisher struct {
	mu        sync.Mutex
	published []models.Addendum
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, add models.Addendum) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, add)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type WorkerSuite struct {
	suite.Suite
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) TestDrainsInbox() {
	pub := &recordingPublisher{}
	inbox := make(chan models.Addendum, 4)
	worker := NewWorker(pub, inbox, slog.New(slog.DiscardHandler), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	inbox <- models.Addendum{ID: "add1"}
	inbox <- models.Addendum{ID: "add2"}

	s.Eventually(func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func (s *WorkerSuite) TestPublishFailureIsCounted() {
	pub := &recordingPublisher{err: errors.New("broker down")}
	inbox := make(chan models.Addendum, 1)

	var mu sync.Mutex
	failures := 0
	worker := NewWorker(pub, inbox, slog.New(slog.DiscardHandler), func() {
		mu.Lock()
		failures++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	inbox <- models.Addendum{ID: "add1"}

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return failures == 1
	}, time.Second, 5*time.Millisecond)
}

func (s *WorkerSuite) TestNoopPublisher() {
	s.NoError(Noop{}.Publish(context.Background(), models.Addendum{ID: "x"}))
}
