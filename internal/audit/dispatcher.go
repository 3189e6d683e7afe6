package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config controls the dispatcher queue.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit drop and count events while the queue is full
	// instead of waiting for room.
	DropIfFull bool
}

// Dispatcher hands events to a sink from its own goroutine, so a slow sink
// never stalls a flow transition. A nil Dispatcher accepts and discards
// events.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	now        func() time.Time

	queue    chan Event
	stop     chan struct{}
	finished chan struct{}
	stopping atomic.Bool
	once     sync.Once

	delivered atomic.Uint64
	dropped   atomic.Uint64
	panicked  atomic.Uint64
}

// NewDispatcher starts the delivery goroutine, or returns nil when cfg is
// disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		now:        time.Now,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.finished)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// deliver isolates the loop from a panicking sink; such events count as
// dropped.
func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.panicked.Add(1)
			d.dropped.Add(1)
		}
	}()
	d.sink.Emit(context.Background(), ev)
	d.delivered.Add(1)
}

// Emit stamps ev with an ID and a UTC timestamp when missing and queues it.
// Without DropIfFull it waits for room until ctx ends, which drops the
// event, or the dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.stopping.Load() {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = d.now().UTC()
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	var done <-chan struct{}
	if ctx != nil {
		done = ctx.Done()
	}
	select {
	case d.queue <- ev:
	case <-done:
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close flushes queued events to the sink and waits for the goroutine. Later
// calls and Emits are no-ops.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.stopping.Store(true)
		close(d.stop)
	})
	<-d.finished
}

// Dropped counts events lost to a full queue, a cancelled context or a
// panicking sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
