package authcore

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type mailJob struct {
	ctx       context.Context
	operation string
	send      func(context.Context, Mailer) error
}

// mailDispatcher moves delivery off the request path so a slow or unknown
// recipient cannot be told apart by response time. A full queue drops the
// message rather than blocking the caller.
type mailDispatcher struct {
	mailer  Mailer
	timeout time.Duration
	ch      chan mailJob
	done    chan struct{}
	wg      sync.WaitGroup
	pending sync.WaitGroup

	onFailure func()
	onDrop    func()
	logger    *slog.Logger

	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newMailDispatcher(cfg MailConfig, mailer Mailer, logger *slog.Logger, onFailure, onDrop func()) *mailDispatcher {
	if mailer == nil {
		return nil
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	d := &mailDispatcher{
		mailer:    mailer,
		timeout:   cfg.SendTimeout,
		ch:        make(chan mailJob, cfg.QueueSize),
		done:      make(chan struct{}),
		onFailure: onFailure,
		onDrop:    onDrop,
		logger:    logger,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *mailDispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.ch:
			d.deliver(job)
		case <-d.done:
			d.drain()
			return
		}
	}
}

func (d *mailDispatcher) drain() {
	for {
		select {
		case job := <-d.ch:
			d.deliver(job)
		default:
			return
		}
	}
}

func (d *mailDispatcher) deliver(job mailJob) {
	defer d.pending.Done()

	ctx := job.ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := job.send(ctx, d.mailer); err != nil {
		if d.onFailure != nil {
			d.onFailure()
		}
		d.logger.WarnContext(ctx, "email delivery failed",
			"operation", job.operation,
			"outcome", "failure",
			"error", err,
		)
	}
}

// Enqueue never blocks. The request context is detached from cancellation
// so delivery outlives the request but keeps its values for logging.
func (d *mailDispatcher) Enqueue(ctx context.Context, operation string, send func(context.Context, Mailer) error) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	job := mailJob{ctx: context.WithoutCancel(ctx), operation: operation, send: send}

	d.pending.Add(1)
	select {
	case d.ch <- job:
		return
	default:
	}
	d.pending.Done()
	d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop()
	}
	d.logger.WarnContext(ctx, "email dropped, queue full",
		"operation", operation,
		"outcome", "dropped",
	)
}

// wait blocks until every accepted message has been handed to the mailer.
func (d *mailDispatcher) wait() {
	if d != nil {
		d.pending.Wait()
	}
}

// Close stops accepting messages, delivers what is queued, and waits for the
// worker. It is idempotent.
func (d *mailDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *mailDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
