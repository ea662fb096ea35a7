package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/eventhost/internal/logging"
)

// Mode selects how a dispatch invokes plugins.
type Mode string

const (
	// ModeSequential invokes plugins one at a time in registry order.
	ModeSequential Mode = "sequential"
	// ModeConcurrent invokes all plugins for an event without waiting for
	// one another.
	ModeConcurrent Mode = "concurrent"
)

// ParseMode converts a config string into a Mode. Empty means sequential.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSequential:
		return ModeSequential, nil
	case ModeConcurrent:
		return ModeConcurrent, nil
	default:
		return "", fmt.Errorf("unknown dispatch mode %q", s)
	}
}

// DefaultQueueSize is the per-plugin backlog before enqueueing blocks.
const DefaultQueueSize = 64

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMode sets the delivery mode.
func WithMode(m Mode) DispatcherOption {
	return func(d *Dispatcher) {
		d.mode = m
	}
}

// WithProcessTimeout bounds how long a dispatch waits for one plugin. Zero
// waits until the plugin returns.
func WithProcessTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.processTimeout = timeout
	}
}

// WithOutcomeHook registers fn to run after every dispatch, while the event
// still counts as in flight. Close therefore never finishes draining before
// fn has returned.
func WithOutcomeHook(fn func(ctx context.Context, out Outcome)) DispatcherOption {
	return func(d *Dispatcher) {
		d.onOutcome = fn
	}
}

// WithQueueSize sets the per-plugin backlog.
func WithQueueSize(size int) DispatcherOption {
	return func(d *Dispatcher) {
		if size > 0 {
			d.queueSize = size
		}
	}
}

// Stats counts dispatch activity since the dispatcher was created.
type Stats struct {
	Events    uint64 `json:"events"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	TimedOut  uint64 `json:"timedOut"`
	Panicked  uint64 `json:"panicked"`
}

// Dispatcher delivers events to a fixed set of plugin instances.
//
// Every plugin has a lane: a goroutine draining a FIFO queue. All calls to a
// plugin happen on its lane, so a plugin never starts event N+1 before it
// has returned from event N. Events are placed on all lanes under one lock,
// which gives every lane the same relative order of events.
type Dispatcher struct {
	mode           Mode
	processTimeout time.Duration
	queueSize      int
	onOutcome      func(context.Context, Outcome)
	log            *logging.Logger

	lanes   []*lane
	laneWG  sync.WaitGroup
	order   sync.Mutex
	abandon chan struct{}
	once    sync.Once

	// base is cancelled when outstanding work is abandoned; every plugin
	// call runs under a context derived from it.
	base       context.Context
	cancelBase context.CancelFunc

	mu       sync.RWMutex // guards closed and inflight.Add
	closed   bool
	inflight sync.WaitGroup

	events    atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	timedOut  atomic.Uint64
	panicked  atomic.Uint64
}

type lane struct {
	inst *Instance
	jobs chan job
}

type job struct {
	ctx     context.Context
	payload Payload
	result  chan Result
}

// NewDispatcher starts one lane per instance, preserving the given order.
func NewDispatcher(instances []*Instance, log *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		mode:      ModeSequential,
		queueSize: DefaultQueueSize,
		log:       log.Sub("dispatch"),
		abandon:   make(chan struct{}),
	}
	d.base, d.cancelBase = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(d)
	}

	d.lanes = make([]*lane, len(instances))
	for i, inst := range instances {
		l := &lane{inst: inst, jobs: make(chan job, d.queueSize)}
		d.lanes[i] = l
		d.laneWG.Add(1)
		go d.run(l)
	}
	return d
}

// Mode returns the delivery mode.
func (d *Dispatcher) Mode() Mode { return d.mode }

// Stats returns a snapshot of the dispatch counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Events:    d.events.Load(),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		TimedOut:  d.timedOut.Load(),
		Panicked:  d.panicked.Load(),
	}
}

// Dispatch delivers payload to every plugin. Plugin failures are recorded in
// the Outcome; the only error is ErrShuttingDown once Close has been called.
func (d *Dispatcher) Dispatch(ctx context.Context, payload Payload) (Outcome, error) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return Outcome{}, ErrShuttingDown
	}
	d.inflight.Add(1)
	d.mu.RUnlock()
	defer d.inflight.Done()

	out := Outcome{
		EventID: uuid.NewString(),
		Results: make([]Result, len(d.lanes)),
	}
	d.events.Add(1)

	if d.mode == ModeConcurrent {
		d.fanOut(ctx, payload, out.Results)
	} else {
		d.sequential(ctx, payload, out.Results)
	}

	for _, r := range out.Results {
		if r.Status == StatusDelivered {
			d.delivered.Add(1)
			continue
		}
		d.failed.Add(1)
		d.log.Warn().
			Str("eventId", out.EventID).
			Str("plugin", r.Plugin).
			Str("reason", r.Reason).
			Msg("plugin failed to process event")
	}

	if d.onOutcome != nil {
		d.onOutcome(ctx, out)
	}
	return out, nil
}

func (d *Dispatcher) sequential(ctx context.Context, payload Payload, results []Result) {
	d.order.Lock()
	defer d.order.Unlock()

	for i, l := range d.lanes {
		ch, res := d.enqueue(ctx, l, payload)
		if ch == nil {
			results[i] = res
			continue
		}
		results[i] = d.await(ctx, l, ch)
	}
}

func (d *Dispatcher) fanOut(ctx context.Context, payload Payload, results []Result) {
	chans := make([]chan Result, len(d.lanes))

	d.order.Lock()
	for i, l := range d.lanes {
		chans[i], results[i] = d.enqueue(ctx, l, payload)
	}
	d.order.Unlock()

	var wg sync.WaitGroup
	for i, l := range d.lanes {
		if chans[i] == nil {
			continue
		}
		wg.Add(1)
		go func(i int, l *lane) {
			defer wg.Done()
			results[i] = d.await(ctx, l, chans[i])
		}(i, l)
	}
	wg.Wait()
}

// enqueue places a job on the lane. It returns a nil channel and a failed
// result when the job could not be queued.
func (d *Dispatcher) enqueue(ctx context.Context, l *lane, payload Payload) (chan Result, Result) {
	j := job{
		ctx:     ctx,
		payload: clonePayload(payload),
		result:  make(chan Result, 1),
	}
	select {
	case l.jobs <- j:
		return j.result, Result{}
	case <-d.abandon:
		d.timedOut.Add(1)
		return nil, failed(l.inst.Name(), ErrTimeout, 0)
	case <-ctx.Done():
		return nil, failed(l.inst.Name(), ctx.Err(), 0)
	}
}

func (d *Dispatcher) await(ctx context.Context, l *lane, ch chan Result) Result {
	var timeout <-chan time.Time
	if d.processTimeout > 0 {
		t := time.NewTimer(d.processTimeout)
		defer t.Stop()
		timeout = t.C
	}

	start := time.Now()
	select {
	case r := <-ch:
		return r
	case <-timeout:
		d.timedOut.Add(1)
		return failed(l.inst.Name(), ErrTimeout, time.Since(start))
	case <-d.abandon:
		d.timedOut.Add(1)
		return failed(l.inst.Name(), ErrTimeout, time.Since(start))
	case <-ctx.Done():
		return failed(l.inst.Name(), ctx.Err(), time.Since(start))
	}
}

func (d *Dispatcher) run(l *lane) {
	defer d.laneWG.Done()
	for j := range l.jobs {
		j.result <- d.invoke(l.inst, j)
	}
}

func (d *Dispatcher) invoke(inst *Instance, j job) Result {
	name := inst.Name()

	select {
	case <-d.abandon:
		return failed(name, ErrTimeout, 0)
	default:
	}
	if err := j.ctx.Err(); err != nil {
		return failed(name, err, 0)
	}

	ctx, cancel := context.WithCancel(j.ctx)
	defer cancel()
	stop := context.AfterFunc(d.base, cancel)
	defer stop()
	if d.processTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, d.processTimeout)
		defer cancelTimeout()
	}

	start := time.Now()
	err := safeCall(func() error { return inst.Plugin.ProcessEvent(ctx, j.payload) })
	elapsed := time.Since(start)
	if err == nil {
		return delivered(name, elapsed)
	}

	var pe *PanicError
	if errors.As(err, &pe) {
		d.panicked.Add(1)
		d.log.Error().
			Str("plugin", name).
			Interface("panic", pe.Value).
			Bytes("stack", pe.Stack).
			Msg("plugin panicked while processing event")
	}
	if j.ctx.Err() == nil && (d.base.Err() != nil || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		err = ErrTimeout
	}
	return failed(name, err, elapsed)
}

// Close stops accepting events and waits up to drainTimeout for in-flight
// dispatches and the plugin calls behind them. Whatever is still running
// after that is abandoned: pending results become Failed("timeout") and
// queued jobs are skipped, and the contexts of running plugin calls are
// cancelled. A drainTimeout of zero waits without bound.
// Close returns ErrTimeout when it had to abandon work, and nil on a clean
// drain. Subsequent calls return nil.
func (d *Dispatcher) Close(drainTimeout time.Duration) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	deadline := make(chan struct{})
	if drainTimeout > 0 {
		t := time.AfterFunc(drainTimeout, func() { close(deadline) })
		defer t.Stop()
	}

	drained := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-deadline:
		err = ErrTimeout
		d.abandonAll()
		<-drained
	}

	for _, l := range d.lanes {
		close(l.jobs)
	}
	if err != nil {
		return err
	}

	lanesDone := make(chan struct{})
	go func() {
		d.laneWG.Wait()
		close(lanesDone)
	}()

	select {
	case <-lanesDone:
		d.cancelBase()
		return nil
	case <-deadline:
		d.abandonAll()
		return ErrTimeout
	}
}

func (d *Dispatcher) abandonAll() {
	d.once.Do(func() {
		close(d.abandon)
		d.cancelBase()
		d.log.Warn().Msg("drain timeout exceeded, abandoning outstanding plugin calls")
	})
}
