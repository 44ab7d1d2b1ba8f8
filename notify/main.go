// Package notify broadcasts values to zero or more subscriber channels
// without ever blocking the sender.
//
// Backpressure policy: a slow subscriber's mailbox holds exactly one
// pending value. A new Send that finds the mailbox still full drops the
// previously pending (stalest) value and replaces it with the new one
// (spec §5) — the sender is never starved by a slow subscriber, and a
// subscriber that falls behind simply skips ahead to the latest state
// instead of queuing an unbounded backlog. This replaces the teacher's
// Multiplexer, which instead blocked the sending goroutine for up to
// multiplexerTimeout and logged a warning on a slow subscriber — a policy
// this engine's single-threaded tick scheduler cannot afford: no
// operation within a tick may block on I/O (spec §5).
package notify

import (
	"sync"

	"golang.org/x/exp/slices"
)

type subscriber[E any] struct {
	ch      chan E
	comment string
}

// Multiplexer fans a stream of values out to subscribers, each with its
// own single-slot mailbox.
type Multiplexer[E any] struct {
	comment         string
	subscribersLock sync.Mutex
	subscribers     []subscriber[E]
}

// New creates an empty Multiplexer identified by comment, for diagnostics.
func New[E any](comment string) *Multiplexer[E] {
	return &Multiplexer[E]{comment: comment}
}

// Subscribe registers c to receive future Send values. c must have a
// buffer of at least 1; Subscribe panics otherwise, since an unbuffered
// channel cannot hold the one pending value the drop-stalest policy
// assumes.
func (m *Multiplexer[E]) Subscribe(comment string, c chan E) {
	if cap(c) < 1 {
		panic("notify: subscriber channel must be buffered")
	}
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	m.subscribers = append(m.subscribers, subscriber[E]{ch: c, comment: comment})
}

// Unsubscribe removes c from future broadcasts.
func (m *Multiplexer[E]) Unsubscribe(c chan E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	i := slices.IndexFunc(m.subscribers, func(sub subscriber[E]) bool { return sub.ch == c })
	if i == -1 {
		return
	}
	m.subscribers = slices.Delete(m.subscribers, i, i+1)
}

// Send delivers e to every subscriber without blocking. A subscriber whose
// mailbox is already full has its pending value discarded and replaced by
// e (drop-stalest).
func (m *Multiplexer[E]) Send(e E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	for _, sub := range m.subscribers {
		select {
		case sub.ch <- e:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- e:
			default:
				// Another goroutine raced us into the slot; whatever it
				// left behind is at least as fresh as e.
			}
		}
	}
}

// SubscriberCount reports how many subscribers are currently registered,
// for diagnostics and tests.
func (m *Multiplexer[E]) SubscriberCount() int {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	return len(m.subscribers)
}
