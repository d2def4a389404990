package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/apresai/newsletter-podcaster/internal/config"
	"github.com/apresai/newsletter-podcaster/internal/observability"
)

const (
	// ackWait bounds how long a worker may go silent before its task is
	// redelivered; running tasks report progress well inside it.
	ackWait        = 30 * time.Second
	maxDeliver     = 5
	fetchWait      = 2 * time.Second
	publishTimeout = 5 * time.Second
)

// NATS distributes tasks through a JetStream work-queue stream. Tasks are
// stored until a worker acknowledges them, so a task published while no
// worker runs, or left unfetched at shutdown, is picked up by the next one.
type NATS struct {
	conn     *nats.Conn
	js       nats.JetStreamContext
	embedded *server.Server
	subject  string
	stream   string
	durable  string
	workers  int
	log      *slog.Logger
}

// NewNATS connects to the configured servers, starting an embedded server
// with JetStream first when cfg.Embedded is set, and makes sure the stream
// and its durable consumer exist.
func NewNATS(cfg config.NATSConfig, workers int, logger *slog.Logger) (*NATS, error) {
	if workers <= 0 {
		workers = 2
	}
	q := &NATS{subject: cfg.Subject, stream: cfg.Stream, durable: cfg.QueueGroup, workers: workers, log: logger}

	servers := cfg.Servers
	if cfg.Embedded {
		port := cfg.Port
		if port == 0 {
			port = server.RANDOM_PORT
		}
		ns, err := server.NewServer(&server.Options{
			Host:      "127.0.0.1",
			Port:      port,
			NoSigs:    true,
			JetStream: true,
			StoreDir:  cfg.StoreDir,
		})
		if err != nil {
			return nil, fmt.Errorf("create embedded NATS server: %w", err)
		}
		go ns.Start()
		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return nil, errors.New("embedded NATS server failed to start within 5 seconds")
		}
		q.embedded = ns
		servers = []string{ns.ClientURL()}
		logger.Info("embedded NATS server started", "url", ns.ClientURL(), "store_dir", cfg.StoreDir)
	}
	if len(servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	opts := []nats.Option{nats.Name("newsletter-podcaster")}
	if cfg.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(time.Duration(cfg.ConnectTimeout)*time.Millisecond))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	conn, err := nats.Connect(strings.Join(servers, ","), opts...)
	if err != nil {
		q.shutdownServer()
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	q.conn = conn

	js, err := conn.JetStream()
	if err != nil {
		q.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	q.js = js
	if err := q.ensureStream(); err != nil {
		q.Close()
		return nil, err
	}
	logger.Info("connected to NATS", "servers", strings.Join(servers, ","), "stream", q.stream, "subject", q.subject)
	return q, nil
}

// ensureStream creates the work-queue stream and the shared durable
// consumer. Both calls are idempotent for an unchanged configuration.
func (q *NATS) ensureStream() error {
	if _, err := q.js.StreamInfo(q.stream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("look up stream %s: %w", q.stream, err)
		}
		if _, err := q.js.AddStream(&nats.StreamConfig{
			Name:      q.stream,
			Subjects:  []string{q.subject},
			Retention: nats.WorkQueuePolicy,
			Storage:   nats.FileStorage,
		}); err != nil {
			return fmt.Errorf("create stream %s: %w", q.stream, err)
		}
	}
	if _, err := q.js.AddConsumer(q.stream, &nats.ConsumerConfig{
		Durable:    q.durable,
		AckPolicy:  nats.AckExplicitPolicy,
		AckWait:    ackWait,
		MaxDeliver: maxDeliver,
	}); err != nil {
		return fmt.Errorf("create consumer %s: %w", q.durable, err)
	}
	return nil
}

// Enqueue stores the task in the stream with the caller's trace context in
// headers. It returns once the server has persisted the task.
func (q *NATS) Enqueue(ctx context.Context, task Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	msg := nats.NewMsg(q.subject)
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(http.Header(msg.Header)))

	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if _, err := q.js.PublishMsg(msg, nats.Context(pctx)); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return ErrClosed
		}
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Run pulls tasks on a fixed set of workers until ctx is cancelled. Each
// worker fetches one task at a time, so nothing is held client side when
// Run returns.
func (q *NATS) Run(ctx context.Context, h Handler) error {
	subs := make([]*nats.Subscription, 0, q.workers)
	defer func() {
		for _, sub := range subs {
			if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
				q.log.Warn("unsubscribe failed", "error", err)
			}
		}
	}()
	for range q.workers {
		sub, err := q.js.PullSubscribe(q.subject, q.durable, nats.Bind(q.stream, q.durable))
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", q.subject, err)
		}
		subs = append(subs, sub)
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx, sub, h)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (q *NATS) work(ctx context.Context, sub *nats.Subscription, h Handler) {
	for ctx.Err() == nil {
		fctx, cancel := context.WithTimeout(ctx, fetchWait)
		msgs, err := sub.Fetch(1, nats.Context(fctx))
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
				continue
			}
			q.log.Warn("fetch task failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for _, msg := range msgs {
			q.handle(ctx, msg, h)
		}
	}
}

// handle runs one task and acknowledges it once the handler returns, even
// when the handler panicked; the job record carries the outcome.
func (q *NATS) handle(ctx context.Context, msg *nats.Msg, h Handler) {
	var task Task
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		q.log.ErrorContext(ctx, "drop malformed task", "subject", msg.Subject, "error", err)
		if err := msg.Term(); err != nil {
			q.log.WarnContext(ctx, "terminate malformed task", "error", err)
		}
		return
	}
	if msg.Header != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(http.Header(msg.Header)))
	}
	if meta, err := msg.Metadata(); err == nil && meta.NumDelivered > 1 {
		q.log.WarnContext(ctx, "task redelivered", "job_id", task.JobID, "deliveries", meta.NumDelivered)
	}

	stop := keepAlive(msg, ackWait/3)
	defer func() {
		stop()
		if r := recover(); r != nil {
			q.log.ErrorContext(ctx, "job handler panicked", "job_id", task.JobID, "panic", fmt.Sprint(r))
		}
		if err := msg.Ack(); err != nil {
			q.log.WarnContext(ctx, "ack task", "job_id", task.JobID, "error", err)
		}
	}()
	h(observability.WithJobID(ctx, task.JobID), task)
}

// keepAlive tells the server the task is still being worked on until the
// returned stop function is called.
func keepAlive(msg *nats.Msg, every time.Duration) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				_ = msg.InProgress()
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// Close drains the connection and stops any embedded server.
func (q *NATS) Close() error {
	var err error
	if q.conn != nil && !q.conn.IsClosed() {
		err = q.conn.Drain()
		q.conn.Close()
	}
	q.shutdownServer()
	return err
}

func (q *NATS) shutdownServer() {
	if q.embedded != nil {
		q.embedded.Shutdown()
		q.embedded.WaitForShutdown()
		q.embedded = nil
	}
}
