package sealbox

import (
	"context"
	"sync"
)

// InboxEvent is one email arriving in one monitored inbox.
type InboxEvent struct {
	Inbox *Inbox
	Email *Email
}

// InboxMonitor fans emails from several inboxes into one tagged
// stream. Per-inbox arrival order is preserved; no ordering is
// promised across inboxes. Events are queued without bound between
// arrival and consumption, so a slow consumer delays but never loses
// them.
type InboxMonitor struct {
	events chan *InboxEvent
	done   chan struct{}
	ready  chan struct{}
	unsubs []func()
	once   sync.Once

	mu      sync.Mutex
	backlog []*InboxEvent
}

// MonitorInboxes starts monitoring the given inboxes. Close the
// monitor to release the subscriptions.
func (c *Client) MonitorInboxes(inboxes ...*Inbox) *InboxMonitor {
	m := &InboxMonitor{
		events: make(chan *InboxEvent),
		done:   make(chan struct{}),
		ready:  make(chan struct{}, 1),
	}

	for _, inbox := range inboxes {
		inbox := inbox
		unsub := c.subs.subscribe(inbox.inboxHash, func(email *Email) {
			m.enqueue(&InboxEvent{Inbox: inbox, Email: email})
		})
		m.unsubs = append(m.unsubs, unsub)
	}

	go m.drain()
	return m
}

// Events returns the tagged event stream. The channel is never
// closed; stop consuming after Close.
func (m *InboxMonitor) Events() <-chan *InboxEvent {
	return m.events
}

// Close unsubscribes from every monitored inbox exactly once and stops
// the stream. Safe under concurrent arrival and repeated calls.
func (m *InboxMonitor) Close() {
	m.once.Do(func() {
		for _, unsub := range m.unsubs {
			unsub()
		}
		close(m.done)
	})
}

func (m *InboxMonitor) enqueue(ev *InboxEvent) {
	m.mu.Lock()
	m.backlog = append(m.backlog, ev)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// drain moves backlog entries to the events channel in FIFO order.
func (m *InboxMonitor) drain() {
	for {
		for {
			m.mu.Lock()
			if len(m.backlog) == 0 {
				m.mu.Unlock()
				break
			}
			ev := m.backlog[0]
			m.backlog = m.backlog[1:]
			m.mu.Unlock()

			select {
			case m.events <- ev:
			case <-m.done:
				return
			}
		}

		select {
		case <-m.ready:
		case <-m.done:
			return
		}
	}
}

// WatchInboxes monitors several inboxes for the life of ctx. The
// returned channel is never closed; select on ctx.Done() to detect
// cancellation.
//
// Example:
//
//	ch := client.WatchInboxes(ctx, inbox1, inbox2)
//	for {
//	    select {
//	    case <-ctx.Done():
//	        return
//	    case ev := <-ch:
//	        fmt.Printf("%s: %s\n", ev.Inbox.EmailAddress(), ev.Email.Subject)
//	    }
//	}
func (c *Client) WatchInboxes(ctx context.Context, inboxes ...*Inbox) <-chan *InboxEvent {
	m := c.MonitorInboxes(inboxes...)
	go func() {
		<-ctx.Done()
		m.Close()
	}()
	return m.Events()
}

// WatchInboxesFunc calls fn for each event across the given inboxes
// until ctx is cancelled.
func (c *Client) WatchInboxesFunc(ctx context.Context, fn func(*InboxEvent), inboxes ...*Inbox) {
	events := c.WatchInboxes(ctx, inboxes...)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev != nil {
				fn(ev)
			}
		}
	}
}
