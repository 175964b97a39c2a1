package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tcmkb/internal/models"
	"github.com/hyperjump/tcmkb/pkg/utils"
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("processing queue is full")
	// ErrPoolClosed is returned by Submit after Close.
	ErrPoolClosed = errors.New("processing pool is closed")
)

// Runner processes one document. *Processor implements it.
type Runner interface {
	Run(ctx context.Context, doc *models.Document) error
	// Fail records a terminal failure for a document whose Run panicked.
	Fail(ctx context.Context, doc *models.Document, cause error)
}

// Pool runs documents through a Runner on a fixed number of workers.
type Pool struct {
	runner  Runner
	timeout time.Duration
	logger  *zap.Logger

	jobs chan *models.Document
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines reading from a queue of queueSize
// documents. A positive timeout bounds each document.
func NewPool(runner Runner, workers, queueSize int, timeout time.Duration, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		runner:  runner,
		timeout: timeout,
		logger:  utils.LoggerOrNop(logger),
		jobs:    make(chan *models.Document, queueSize),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	return p
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for doc := range p.jobs {
		p.run(id, doc)
	}
}

func (p *Pool) run(id int, doc *models.Document) {
	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("document worker panicked",
				zap.Int("worker", id), zap.String("document_id", doc.ID), zap.Any("panic", r))
			p.runner.Fail(context.Background(), doc, fmt.Errorf("processing panicked: %v", r))
		}
	}()
	start := time.Now()
	if err := p.runner.Run(ctx, doc); err != nil {
		p.logger.Warn("document processing error",
			zap.Int("worker", id), zap.String("document_id", doc.ID), zap.Error(err))
		return
	}
	p.logger.Debug("document job done",
		zap.Int("worker", id), zap.String("document_id", doc.ID), zap.Duration("took", time.Since(start)))
}

// Submit queues doc without blocking.
func (p *Pool) Submit(doc *models.Document) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- doc:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting documents and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
