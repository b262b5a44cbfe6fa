package sealbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Watch returns a channel that receives emails as they arrive. The
// channel is never closed; select on ctx.Done() to detect
// cancellation. If the buffer fills, emails are dropped from the
// channel (waits use a reliable path and are unaffected).
//
// Example:
//
//	ch := inbox.Watch(ctx)
//	for {
//	    select {
//	    case <-ctx.Done():
//	        return
//	    case email := <-ch:
//	        fmt.Println(email.Subject)
//	    }
//	}
func (i *Inbox) Watch(ctx context.Context) <-chan *Email {
	ch := make(chan *Email, 16)

	unsubscribe := i.client.subs.subscribe(i.inboxHash, func(email *Email) {
		select {
		case ch <- email:
		default:
		}
	})

	// The channel is deliberately not closed here: an in-flight
	// notification could still be sending.
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return ch
}

// WatchFunc calls fn for each arriving email until ctx is cancelled.
func (i *Inbox) WatchFunc(ctx context.Context, fn func(*Email)) {
	emails := i.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case email := <-emails:
			if email != nil {
				fn(email)
			}
		}
	}
}

// WaitForEmail blocks until an email matching the filters arrives,
// the timeout elapses, or ctx is cancelled. Timeout surfaces as a
// *TimeoutError (errors.Is(err, ErrWaitTimeout)).
func (i *Inbox) WaitForEmail(ctx context.Context, opts ...WaitOption) (*Email, error) {
	cfg := newWaitConfig(opts)
	return i.waitForEmail(ctx, cfg, "WaitForEmail")
}

// TryWaitForEmail is WaitForEmail for optional emails: a timeout
// returns (nil, nil) instead of an error. Every other failure is
// still reported.
func (i *Inbox) TryWaitForEmail(ctx context.Context, opts ...WaitOption) (*Email, error) {
	cfg := newWaitConfig(opts)
	email, err := i.waitForEmail(ctx, cfg, "TryWaitForEmail")
	if errors.Is(err, ErrWaitTimeout) {
		return nil, nil
	}
	return email, err
}

// errWaitDeadline marks expiry of the wait's own timer, so a parent
// context deadline is never misreported as a wait timeout.
var errWaitDeadline = errors.New("wait deadline elapsed")

func (i *Inbox) waitForEmail(ctx context.Context, cfg *waitConfig, operation string) (*Email, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, cfg.timeout, errWaitDeadline)
	defer cancel()

	// Subscribe before scanning: an email arriving between the scan
	// and the subscription must not be missed.
	q := newEmailQueue()
	unsubscribe := i.client.subs.subscribe(i.inboxHash, q.push)
	defer unsubscribe()

	// The scan feeds the tracker, so the queue may redeliver the same
	// email; each id counts once.
	counted := make(map[string]struct{})

	existing, err := i.GetEmails(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		counted[e.ID] = struct{}{}
		if cfg.matches(e) {
			return e, nil
		}
	}

	for {
		for {
			e, ok := q.pop()
			if !ok {
				break
			}
			if _, dup := counted[e.ID]; dup {
				continue
			}
			counted[e.ID] = struct{}{}
			if cfg.matches(e) {
				return e, nil
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(context.Cause(ctx), errWaitDeadline) {
				return nil, &TimeoutError{Operation: operation, Timeout: cfg.timeout}
			}
			return nil, ctx.Err()
		case <-q.ready:
		}
	}
}

// WaitForEmailCount blocks until count emails matching the filters
// have been observed and returns them in first-observed order. Emails
// already present count toward the total, so an already-satisfied wait
// returns immediately.
func (i *Inbox) WaitForEmailCount(ctx context.Context, count int, opts ...WaitOption) ([]*Email, error) {
	if count < 0 {
		return nil, fmt.Errorf("count must be non-negative, got %d", count)
	}
	if count == 0 {
		return []*Email{}, nil
	}

	cfg := newWaitConfig(opts)

	ctx, cancel := context.WithTimeoutCause(ctx, cfg.timeout, errWaitDeadline)
	defer cancel()

	q := newEmailQueue()
	unsubscribe := i.client.subs.subscribe(i.inboxHash, q.push)
	defer unsubscribe()

	counted := make(map[string]struct{})
	var results []*Email

	collect := func(e *Email) bool {
		if _, dup := counted[e.ID]; dup {
			return false
		}
		counted[e.ID] = struct{}{}
		if !cfg.matches(e) {
			return false
		}
		results = append(results, e)
		return len(results) >= count
	}

	existing, err := i.GetEmails(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if collect(e) {
			return results, nil
		}
	}

	for {
		for {
			e, ok := q.pop()
			if !ok {
				break
			}
			if collect(e) {
				return results, nil
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(context.Cause(ctx), errWaitDeadline) {
				return nil, &TimeoutError{Operation: "WaitForEmailCount", Timeout: cfg.timeout}
			}
			return nil, ctx.Err()
		case <-q.ready:
		}
	}
}

// OnNewEmail registers a persistent callback invoked once per
// qualifying email for the life of the subscription. With
// markExistingSeen, emails already in the inbox are skipped; without
// it they are delivered first, in first-observed order. A panic in fn
// is recovered and reported to the client error handler; it never
// stops delivery to other subscribers.
func (i *Inbox) OnNewEmail(ctx context.Context, fn func(*Email), markExistingSeen bool, opts ...WaitOption) (*Subscription, error) {
	cfg := &waitConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var mu sync.Mutex
	delivered := make(map[string]struct{})

	handler := func(e *Email) {
		mu.Lock()
		if _, dup := delivered[e.ID]; dup {
			mu.Unlock()
			return
		}
		delivered[e.ID] = struct{}{}
		mu.Unlock()

		if cfg.matches(e) {
			fn(e)
		}
	}

	unsubscribe := i.client.subs.subscribe(i.inboxHash, handler)

	existing, err := i.GetEmails(ctx)
	if err != nil {
		unsubscribe()
		return nil, err
	}
	for _, e := range existing {
		if markExistingSeen {
			mu.Lock()
			delivered[e.ID] = struct{}{}
			mu.Unlock()
			continue
		}
		i.client.subs.invoke(handler, e)
	}

	return &Subscription{cancel: unsubscribe}, nil
}
