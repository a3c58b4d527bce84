package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/theblitlabs/parity-monitor/internal/core/models"
)

type fakeConn struct {
	id      string
	sendErr error

	mu   sync.Mutex
	sent [][]byte

	closed     chan struct{}
	markOnce   sync.Once
	closeCalls atomic.Int32
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, closed: make(chan struct{})}
}

func (c *fakeConn) ID() string              { return c.id }
func (c *fakeConn) RemoteAddr() string      { return "10.0.0.1:5000" }
func (c *fakeConn) Closed() <-chan struct{} { return c.closed }

func (c *fakeConn) IsOpen() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

func (c *fakeConn) Send(data []byte) error {
	if !c.IsOpen() {
		return ErrConnectionClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.mu.Lock()
	c.sent = append(c.sent, data)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.closeCalls.Add(1)
	c.disconnect()
	return nil
}

// disconnect simulates the peer going away.
func (c *fakeConn) disconnect() {
	c.markOnce.Do(func() { close(c.closed) })
}

func (c *fakeConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

type fakeTicker struct {
	ch    chan time.Time
	stops atomic.Int32
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time)}
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stops.Add(1) }

// tickers hands out fake tickers and remembers them in creation order.
type tickers struct {
	mu  sync.Mutex
	all []*fakeTicker
}

func (ts *tickers) factory(time.Duration) Ticker {
	t := newFakeTicker()
	ts.mu.Lock()
	ts.all = append(ts.all, t)
	ts.mu.Unlock()
	return t
}

func (ts *tickers) get(i int) *fakeTicker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.all[i]
}

type collectorFunc func(ctx context.Context) (models.UtilizationSample, error)

func (f collectorFunc) Collect(ctx context.Context) (models.UtilizationSample, error) {
	return f(ctx)
}

func (f collectorFunc) Probe(context.Context) error { return nil }

func fixedSample() models.UtilizationSample {
	return models.UtilizationSample{
		CPUPercent: 42.5,
		Memory: models.MemoryUsage{
			TotalBytes: 16 << 30,
			UsedBytes:  12 << 30,
			FreeBytes:  4 << 30,
			Percent:    75,
		},
		Load: models.LoadAverages{Load1: 0.5, Load5: 0.25, Load15: 1.75},
	}
}
