package hub

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSub struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingSub) Send(evt Event) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	return nil
}

func (r *recordingSub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestBroadcastDelivers(t *testing.T) {
	h := New()
	a, b := &recordingSub{}, &recordingSub{}
	h.Subscribe(a)
	h.Subscribe(b)

	h.Broadcast(Event{Type: "analysis", Data: "x"})
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
	assert.False(t, a.events[0].Time.IsZero(), "broadcast stamps missing times")
}

func TestBroadcastRemovesFailingSubscriber(t *testing.T) {
	h := New()
	a := &recordingSub{}
	bad := &recordingSub{err: errors.New("gone")}
	c := &recordingSub{}
	h.Subscribe(a)
	h.Subscribe(bad)
	h.Subscribe(c)

	h.Broadcast(Event{Type: "trade"})
	assert.Equal(t, 1, a.count(), "healthy subscribers still get the event")
	assert.Equal(t, 1, c.count())
	assert.Equal(t, 2, h.Count(), "only the failing subscriber is removed")

	h.Broadcast(Event{Type: "trade"})
	assert.Equal(t, 2, a.count())
	assert.Equal(t, 0, bad.count())
}

func TestUnsubscribe(t *testing.T) {
	h := New()
	a := &recordingSub{}
	h.Subscribe(a)
	assert.Equal(t, 1, h.Count())

	h.Unsubscribe(a)
	assert.Equal(t, 0, h.Count())
	h.Broadcast(Event{Type: "trade"})
	assert.Equal(t, 0, a.count())
}

func TestConcurrentSubscribeAndBroadcast(t *testing.T) {
	h := New()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Subscribe(&recordingSub{})
		}()
		go func() {
			defer wg.Done()
			h.Broadcast(Event{Type: "analysis"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, h.Count())
}
