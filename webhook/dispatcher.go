package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/renderqueue/core/internal"
	"github.com/sony/gobreaker"
)

// envelope is the JSON body of every delivery POST: the opaque
// event payload plus the metadata a receiver needs to interpret it
// without inspecting headers.
type envelope struct {
	Event       Event           `json:"event"`
	DeliveredAt time.Time       `json:"delivered_at"`
	DeliveryId  uuid.UUID       `json:"delivery_id"`
	Payload     json.RawMessage `json:"payload"`
}

// notification is the envelope Dispatcher fans out internally; it
// carries everything needed to sign and POST a Delivery without a
// second round trip to Store.
type notification struct {
	sub     *Subscription
	delivery *Delivery
}

// DispatcherConfig controls Dispatcher runtime behavior.
//
// Concurrency is the number of concurrent deliveries in flight.
// Queue is the internal buffering capacity ahead of the worker pool.
// MaxAttempts bounds the retry count per delivery before it is marked
// DeliveryExhausted.
// RequestTimeout bounds a single HTTP POST attempt.
// BreakerMaxFailures is the consecutive-failure count after which the
// circuit breaker for a target host opens, shedding load onto a
// fast-fail path instead of piling up slow timeouts.
type DispatcherConfig struct {
	Concurrency         int
	Queue               int
	MaxAttempts         uint32
	RequestTimeout      time.Duration
	BreakerMaxFailures  uint32
}

// Dispatcher fans out lifecycle events to every matching Subscription
// and delivers each as a signed HTTP POST with independent retry and
// circuit-breaker protection per target host.
//
// Dispatcher has a strict lifecycle:
//   - Start may only be called once.
//   - Stop gracefully drains in-flight deliveries, subject to timeout.
type Dispatcher struct {
	lcBase
	store  Store
	client *http.Client
	pool   *internal.WorkerPool[*notification]
	log    *slog.Logger

	maxAttempts    uint32
	requestTimeout time.Duration
	breakersMu     sync.Mutex
	breakers       map[string]*gobreaker.CircuitBreaker
	breakerMax     uint32
}

// NewDispatcher creates a new Dispatcher. It is not started automatically.
func NewDispatcher(store Store, config *DispatcherConfig, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:          store,
		client:         &http.Client{Timeout: config.RequestTimeout},
		pool:           internal.NewWorkerPool[*notification](config.Concurrency, config.Queue, log),
		log:            log,
		maxAttempts:    config.MaxAttempts,
		requestTimeout: config.RequestTimeout,
		breakers:       make(map[string]*gobreaker.CircuitBreaker),
		breakerMax:     config.BreakerMaxFailures,
	}
}

func (d *Dispatcher) breakerFor(host string) *gobreaker.CircuitBreaker {
	d.breakersMu.Lock()
	defer d.breakersMu.Unlock()
	if cb, ok := d.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    host,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= d.breakerMax
		},
	})
	d.breakers[host] = cb
	return cb
}

// Notify enqueues delivery of event for jobID to every active
// subscription that wants it. Notify never blocks on the network; it
// only persists a pending Delivery row and pushes onto the internal
// worker pool.
func (d *Dispatcher) Notify(ctx context.Context, queue string, event Event, jobID uuid.UUID, payload []byte) error {
	subs, err := d.store.ListActiveFor(ctx, queue, event)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		delivery := &Delivery{
			Id:             uuid.New(),
			SubscriptionId: sub.Id,
			Event:          event,
			JobId:          jobID,
			Payload:        payload,
			Status:         DeliveryPending,
			CreatedAt:      time.Now(),
		}
		if err := d.store.RecordDelivery(ctx, delivery); err != nil {
			d.log.Error("cannot record delivery", "sub", sub.Id, "err", err)
			continue
		}
		if !d.pool.Push(&notification{sub: sub, delivery: delivery}) {
			d.log.Debug("delivery push interrupted via shutdown", "id", delivery.Id)
			return nil
		}
	}
	return nil
}

func (d *Dispatcher) post(ctx context.Context, sub *Subscription, delivery *Delivery) error {
	now := time.Now()
	body, err := json.Marshal(envelope{
		Event:       delivery.Event,
		DeliveredAt: now,
		DeliveryId:  delivery.Id,
		Payload:     json.RawMessage(delivery.Payload),
	})
	if err != nil {
		return backoff.Permanent(err)
	}
	signature := sign(sub.Secret, body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", string(delivery.Event))
	req.Header.Set("X-Webhook-Delivery", delivery.Id.String())
	req.Header.Set("X-Webhook-Timestamp", fmt.Sprintf("%d", now.Unix()))
	req.Header.Set("X-Webhook-Signature", signature)

	cb := d.breakerFor(req.URL.Host)
	resp, err := cb.Execute(func() (interface{}, error) {
		return d.client.Do(req)
	})
	if err != nil {
		return err
	}
	httpResp := resp.(*http.Response)
	defer httpResp.Body.Close()
	io.Copy(io.Discard, httpResp.Body)
	delivery.ResponseCode = httpResp.StatusCode
	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: subscriber returned status %d", httpResp.StatusCode)
}

func (d *Dispatcher) handle(ctx context.Context, n *notification) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 30 * time.Second
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = time.Hour
	eb.MaxElapsedTime = 0
	eb.Reset()
	policy := backoff.WithMaxRetries(eb, uint64(d.maxAttempts))
	var lastErr error
	attempt := uint32(0)
	err := backoff.Retry(func() error {
		attempt++
		n.delivery.Attempt = attempt
		reqCtx, cancel := context.WithTimeout(ctx, d.requestTimeout)
		defer cancel()
		lastErr = d.post(reqCtx, n.sub, n.delivery)
		return lastErr
	}, backoff.WithContext(policy, ctx))

	now := time.Now()
	n.delivery.DeliveredAt = &now
	if err == nil {
		n.delivery.Status = DeliveryDelivered
		if markErr := d.store.MarkSuccess(ctx, n.sub.Id); markErr != nil {
			d.log.Error("cannot mark delivery success", "sub", n.sub.Id, "err", markErr)
		}
	} else {
		n.delivery.Status = DeliveryExhausted
		n.delivery.Error = err.Error()
		failures, markErr := d.store.MarkFailure(ctx, n.sub.Id)
		if markErr != nil {
			d.log.Error("cannot mark delivery failure", "sub", n.sub.Id, "err", markErr)
		} else if failures >= DisableAfterFailures {
			d.log.Warn("subscription disabled after repeated failures", "sub", n.sub.Id, "failures", failures)
		}
	}
	if recErr := d.store.RecordDelivery(ctx, n.delivery); recErr != nil {
		d.log.Error("cannot record delivery outcome", "id", n.delivery.Id, "err", recErr)
	}
}

// SendTest immediately delivers a synthetic event to sub, bypassing
// ListActiveFor, so operators can verify a URL and secret without
// waiting for a real job event.
func (d *Dispatcher) SendTest(ctx context.Context, sub *Subscription, event Event, payload []byte) error {
	delivery := &Delivery{
		Id:             uuid.New(),
		SubscriptionId: sub.Id,
		Event:          event,
		Payload:        payload,
		Status:         DeliveryPending,
		CreatedAt:      time.Now(),
	}
	return d.post(ctx, sub, delivery)
}

// Start begins background delivery processing.
//
// Start returns ErrDoubleStarted if already started.
func (d *Dispatcher) Start(ctx context.Context) error {
	if err := d.tryStart(); err != nil {
		return err
	}
	d.pool.Start(ctx, d.handle)
	return nil
}

// Stop initiates graceful shutdown, waiting for in-flight deliveries
// to finish subject to timeout.
//
// Stop returns ErrStopTimeout if shutdown does not complete in time,
// or ErrDoubleStopped if not currently running.
func (d *Dispatcher) Stop(timeout time.Duration) error {
	return d.tryStop(timeout, d.pool.Stop)
}
