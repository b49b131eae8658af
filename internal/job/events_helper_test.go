package job

import (
	"sync"
	"testing"
	"time"

	"github.com/mikaelsundell/jobqueue/internal/events"
)

// chanCollector gathers every event delivered to it so tests can assert on
// the observed sequence without racing the bus's dispatcher goroutine.
type chanCollector struct {
	mu  sync.Mutex
	evs []events.Event
}

func (c *chanCollector) observe(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evs = append(c.evs, ev)
}

func (c *chanCollector) fieldValues(field events.FieldKind) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []any
	for _, ev := range c.evs {
		if ev.Kind == events.KindFieldChanged && ev.Field == field {
			out = append(out, ev.Value)
		}
	}
	return out
}

func (c *chanCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.evs)
}

// waitForEvents polls until at least n events have been observed or the test
// times out; the bus dispatches asynchronously on its own goroutine.
func waitForEvents(t *testing.T, c *chanCollector, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.count() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, got %d", n, c.count())
}
