package flux

import "context"

// Pipe is a standing subscription that applies every change event of a
// source view to a sink as it happens, without altering the source. Only
// the source is checked for divergence; the sink is accepted as a plain
// Writable[K,V] without checks, and an error from applying an event to it
// is discarded.
type Pipe[K, V any] struct {
	sub  *subscription[K, V]
	sink Writable[K, V]
	sync *Sync

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPipe subscribes to src and starts a goroutine that applies every
// subsequent event to sink. Pipe does not perform an initial fill: callers
// that want sink to start in sync with src's current contents should seed
// it themselves, or use Store/Load instead.
func NewPipe[K, V any](ctx context.Context, src View[K, V], sink Writable[K, V]) (*Pipe[K, V], error) {
	if src.diverged() {
		return nil, compositionErrf("pipe: source must be stored or loaded before piping")
	}
	pctx, cancel := context.WithCancel(ctx)
	sub, err := src.subscribe(pctx)
	if err != nil {
		cancel()
		return nil, err
	}
	p := &Pipe[K, V]{
		sub:    sub,
		sink:   sink,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.sync = newSync(sub.Len)
	go p.run(pctx)
	return p, nil
}

func (p *Pipe[K, V]) run(ctx context.Context) {
	defer close(p.done)
	for {
		ev, err := p.sub.Next(ctx)
		if err != nil {
			return
		}
		p.sync.inc()
		_ = applyChangeEvent(p.sink, ev)
		p.sync.dec()
	}
}

// Sync reports this pipe's propagation quiescence: how many received
// events have not yet been applied to the sink.
func (p *Pipe[K, V]) Sync() *Sync { return p.sync }

// Close stops the pipe's worker and releases its subscription.
func (p *Pipe[K, V]) Close() {
	p.cancel()
	p.sub.Close()
	<-p.done
}

func applyChangeEvent[K, V any](sink Writable[K, V], ev ChangeEvent[K, V]) error {
	switch ev.Kind {
	case ChangeInsert:
		_, _, err := sink.Insert(ev.Key, ev.New)
		return err
	case ChangeRemove:
		_, _, err := sink.Remove(ev.Key)
		return err
	case ChangeClear:
		return sink.Clear()
	default:
		return nil
	}
}
