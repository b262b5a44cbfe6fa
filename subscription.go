package sealbox

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// subscription is one registered email consumer for one inbox.
type subscription struct {
	id      string
	deliver func(*Email)
}

// emailQueue is an unbounded FIFO between a subscription and a waiting
// goroutine. Reliable transient subscriptions (the ones backing waits)
// use it so delivery can never be dropped by a full channel buffer.
type emailQueue struct {
	mu    sync.Mutex
	items []*Email
	ready chan struct{}
}

func newEmailQueue() *emailQueue {
	return &emailQueue{ready: make(chan struct{}, 1)}
}

func (q *emailQueue) push(e *Email) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *emailQueue) pop() (*Email, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	e := q.items[0]
	q.items = q.items[1:]
	return e, true
}

// subscriptionManager fans new-email notifications out to the
// subscribers of each inbox. It is the single pub/sub point shared by
// both transports; callers notify only for emails the tracker reported
// as new, which is what makes per-subscriber delivery exactly-once.
type subscriptionManager struct {
	mu      sync.RWMutex
	subs    map[string]map[string]*subscription // inboxHash -> id -> sub
	onError func(error)
}

func newSubscriptionManager(onError func(error)) *subscriptionManager {
	return &subscriptionManager{
		subs:    make(map[string]map[string]*subscription),
		onError: onError,
	}
}

// subscribe registers a consumer for one inbox and returns an
// unsubscribe function, safe to call more than once. The consumer
// decides its own delivery discipline: waits hand in an unbounded
// queue push so nothing can be dropped, watch channels may drop on a
// full buffer.
func (m *subscriptionManager) subscribe(inboxHash string, deliver func(*Email)) func() {
	sub := &subscription{
		id:      uuid.NewString(),
		deliver: deliver,
	}

	m.mu.Lock()
	if m.subs[inboxHash] == nil {
		m.subs[inboxHash] = make(map[string]*subscription)
	}
	m.subs[inboxHash][sub.id] = sub
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if inboxSubs, ok := m.subs[inboxHash]; ok {
				delete(inboxSubs, sub.id)
				if len(inboxSubs) == 0 {
					delete(m.subs, inboxHash)
				}
			}
		})
	}
}

// notify delivers one new email to every subscriber of the inbox,
// synchronously and in subscriber-registration-independent order.
// Synchronous delivery preserves per-inbox email order for each
// subscriber. A panic in one consumer is recovered and reported so it
// cannot take down the delivery loop or starve other subscribers.
func (m *subscriptionManager) notify(inboxHash string, email *Email) {
	m.mu.RLock()
	inboxSubs := m.subs[inboxHash]
	subs := make([]*subscription, 0, len(inboxSubs))
	for _, sub := range inboxSubs {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		m.invoke(sub.deliver, email)
	}
}

// invoke runs one consumer with panic isolation.
func (m *subscriptionManager) invoke(deliver func(*Email), email *Email) {
	defer func() {
		if r := recover(); r != nil && m.onError != nil {
			m.onError(fmt.Errorf("email callback panicked: %v", r))
		}
	}()
	deliver(email)
}

// drop removes every subscription for one inbox.
func (m *subscriptionManager) drop(inboxHash string) {
	m.mu.Lock()
	delete(m.subs, inboxHash)
	m.mu.Unlock()
}

// clear removes all subscriptions. Called from Client.Close.
func (m *subscriptionManager) clear() {
	m.mu.Lock()
	m.subs = make(map[string]map[string]*subscription)
	m.mu.Unlock()
}

// Subscription is a handle to a persistent OnNewEmail registration.
type Subscription struct {
	cancel func()
}

// Unsubscribe stops the callback. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.cancel()
}
