// Package collector buffers the notes received by a peer until the coordinator consumes them.
package collector

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/maestro-performance/maestro-go/pkg/notes"
)

// Callback is invoked for every arriving note before it is buffered. Returning false drops the note.
type Callback func(note notes.Note) bool

type callbackEntry struct {
	id int
	cb Callback
}

type monitor struct {
	pred Predicate
	wake chan struct{}
}

// Collector is an ordered buffer of notes. The transport receive goroutine is its only producer; all other
// operations may be called concurrently from any goroutine.
type Collector struct {
	mu        sync.Mutex
	buf       []notes.Note
	callbacks []callbackEntry
	nextID    int
	monitors  map[*monitor]struct{}
}

func New() *Collector {
	return &Collector{monitors: map[*monitor]struct{}{}}
}

// NoteArrived runs the callbacks, in registration order, then buffers the note unless a callback rejected it.
func (c *Collector) NoteArrived(topic string, note notes.Note) {
	c.mu.Lock()
	callbacks := make([]callbackEntry, len(c.callbacks))
	copy(callbacks, c.callbacks)
	c.mu.Unlock()

	for _, e := range callbacks {
		if !e.cb(note) {
			log.Debugf("Note %s from %s dropped by callback", note.NoteHeader(), topic)
			return
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(c.buf, note)
	for m := range c.monitors {
		if m.pred(note) {
			select {
			case m.wake <- struct{}{}:
			default:
			}
		}
	}
}

// AddCallback registers cb and returns a function that removes it.
func (c *Collector) AddCallback(cb Callback) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.callbacks = append(c.callbacks, callbackEntry{id: id, cb: cb})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, e := range c.callbacks {
			if e.id == id {
				c.callbacks = append(c.callbacks[:i:i], c.callbacks[i+1:]...)
				return
			}
		}
	}
}

// Collect removes and returns every buffered note.
func (c *Collector) Collect() []notes.Note {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := c.buf
	c.buf = nil
	return ret
}

// CollectMatching removes and returns the buffered notes accepted by pred. The remaining notes keep their order.
func (c *Collector) CollectMatching(pred Predicate) []notes.Note {
	c.mu.Lock()
	defer c.mu.Unlock()
	var matched []notes.Note
	kept := c.buf[:0]
	for _, n := range c.buf {
		if pred(n) {
			matched = append(matched, n)
		} else {
			kept = append(kept, n)
		}
	}
	for i := len(kept); i < len(c.buf); i++ {
		c.buf[i] = nil
	}
	c.buf = kept
	return matched
}

// Peek returns a copy of the buffer without consuming it.
func (c *Collector) Peek() []notes.Note {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notes.Note(nil), c.buf...)
}

func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = nil
}

func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// Monitor returns a channel that receives a value whenever a note accepted by pred is buffered. Wake-ups are
// coalesced: the channel holds at most one pending signal. The returned function releases the monitor.
func (c *Collector) Monitor(pred Predicate) (<-chan struct{}, func()) {
	m := &monitor{pred: pred, wake: make(chan struct{}, 1)}
	c.mu.Lock()
	c.monitors[m] = struct{}{}
	c.mu.Unlock()
	return m.wake, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.monitors, m)
	}
}

// WaitFor consumes notes accepted by pred until at least n were consumed or ctx ends. It returns everything it
// consumed, together with ctx.Err() when the wait was cut short.
func (c *Collector) WaitFor(ctx context.Context, pred Predicate, n int) ([]notes.Note, error) {
	wake, release := c.Monitor(pred)
	defer release()

	var collected []notes.Note
	for {
		collected = append(collected, c.CollectMatching(pred)...)
		if len(collected) >= n {
			return collected, nil
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return collected, ctx.Err()
		}
	}
}

// Expect starts waiting for n notes accepted by pred and returns immediately.
func (c *Collector) Expect(ctx context.Context, pred Predicate, n int) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.notes, f.err = c.WaitFor(ctx, pred, n)
	}()
	return f
}

// CollectWait drains matching notes, sleeping wait between attempts, until expect notes were collected or retries
// attempts were made. Prefer WaitFor, which does not poll.
func (c *Collector) CollectWait(wait time.Duration, retries int, expect int, pred Predicate) []notes.Note {
	var collected []notes.Note
	for i := 0; i < retries; i++ {
		collected = append(collected, c.CollectMatching(pred)...)
		if len(collected) >= expect {
			break
		}
		time.Sleep(wait)
	}
	return collected
}

// Future is the pending result of Expect.
type Future struct {
	done  chan struct{}
	notes []notes.Note
	err   error
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Get blocks until the wait is over.
func (f *Future) Get() ([]notes.Note, error) {
	<-f.done
	return f.notes, f.err
}
