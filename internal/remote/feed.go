package remote

import (
	"context"
	"sync"

	"github.com/dohr-michael/orbit/internal/events"
)

// Feed fans row changes out to subscribers over an event bus. Subscribers
// receive the changes of one table in commit order.
type Feed struct {
	bus   *events.Bus
	owned bool
}

// NewFeed publishes on bus, or on a private bus when bus is nil.
func NewFeed(bus *events.Bus) *Feed {
	if bus == nil {
		return &Feed{bus: events.NewBus(1024), owned: true}
	}
	return &Feed{bus: bus}
}

// Publish emits c. It waits for room on the bus until ctx is done.
func (f *Feed) Publish(ctx context.Context, c Change) error {
	return f.bus.PublishAsync(ctx, events.NewTypedEvent(events.SourceRemote, events.RemoteChangePayload{
		Table:  c.Table,
		Kind:   string(c.Kind),
		Record: c.Record,
		Old:    c.Old,
	}))
}

// Subscribe calls fn for each change of table whose row matches filter. The
// subscription ends when the returned function is called or ctx is done.
func (f *Feed) Subscribe(ctx context.Context, table string, filter Filter, fn func(Change)) func() {
	unsub := f.bus.Subscribe(func(e events.Event) {
		p, ok := events.GetRemoteChangePayload(e)
		if !ok || p.Table != table {
			return
		}
		c := Change{Kind: ChangeKind(p.Kind), Table: p.Table, Record: p.Record, Old: p.Old}
		if !filter.Match(c.Row()) {
			return
		}
		fn(c)
	}, events.EventRemoteChange)

	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			unsub()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()
	return cancel
}

// Close releases the private bus, if any.
func (f *Feed) Close() {
	if f.owned {
		f.bus.Close()
	}
}
