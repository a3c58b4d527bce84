package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/parity-monitor/internal/core/models"
	"github.com/theblitlabs/parity-monitor/internal/core/ports"
	"github.com/theblitlabs/parity-monitor/internal/mocks"
	"github.com/theblitlabs/parity-monitor/internal/monitoring/metrics"
)

const waitFor = 2 * time.Second

func newTestServer(collector ports.MetricsCollector) (*Server, *tickers) {
	ts := &tickers{}
	s := NewServer(Config{CycleInterval: time.Second}, collector, WithTickerFunc(ts.factory))
	return s, ts
}

func tick(t *testing.T, ft *fakeTicker) {
	t.Helper()
	select {
	case ft.ch <- time.Now():
	case <-time.After(waitFor):
		t.Fatal("session did not receive tick")
	}
}

func TestSession_SendsFramePerTick(t *testing.T) {
	collector := &mocks.MockMetricsCollector{}
	collector.On("Collect", mock.Anything).Return(fixedSample(), nil)

	s, ts := newTestServer(collector)
	conn := newFakeConn("a")
	sess, err := s.Accept(conn)
	require.NoError(t, err)

	ticker := ts.get(0)
	tick(t, ticker)
	tick(t, ticker)

	require.Eventually(t, func() bool { return len(conn.frames()) == 2 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, StateActive, sess.State())
	assert.Equal(t, int32(0), ticker.stops.Load())

	var frame models.StatsFrame
	require.NoError(t, json.Unmarshal(conn.frames()[0], &frame))
	assert.Equal(t, "42.50%", frame.CPU)
	assert.Equal(t, "16.00 GB", frame.TotalMemory)
	assert.Equal(t, "12.00 GB", frame.UsedMemory)
	assert.Equal(t, "4.00 GB", frame.FreeMemory)
	assert.Equal(t, "75.00%", frame.MemoryUsage)
	assert.Equal(t, [3]string{"0.50", "0.25", "1.75"}, frame.LoadAvg)

	require.NoError(t, s.Shutdown(context.Background()))
}

func TestSession_CloseStopsTickerOnce(t *testing.T) {
	collector := &mocks.MockMetricsCollector{}
	s, ts := newTestServer(collector)
	conn := newFakeConn("a")
	sess, err := s.Accept(conn)
	require.NoError(t, err)

	sess.Close()
	sess.Close()
	conn.disconnect()

	require.Eventually(t, func() bool { return s.Count() == 0 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, StateClosed, sess.State())
	assert.Equal(t, int32(1), ts.get(0).stops.Load())
	assert.Equal(t, int32(1), conn.closeCalls.Load())

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, int32(1), ts.get(0).stops.Load())
	collector.AssertNotCalled(t, "Collect", mock.Anything)
}

func TestSession_ClientDisconnect(t *testing.T) {
	s, ts := newTestServer(&mocks.MockMetricsCollector{})
	conn := newFakeConn("a")
	sess, err := s.Accept(conn)
	require.NoError(t, err)

	conn.disconnect()

	select {
	case <-sess.Done():
	case <-time.After(waitFor):
		t.Fatal("session did not end")
	}
	require.Eventually(t, func() bool { return s.Count() == 0 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, int32(1), ts.get(0).stops.Load())
}

func TestSession_CloseDuringMeasurement(t *testing.T) {
	t.Run("peer_gone_skips_write", func(t *testing.T) {
		entered := make(chan struct{})
		release := make(chan struct{})
		collector := collectorFunc(func(ctx context.Context) (models.UtilizationSample, error) {
			close(entered)
			<-release
			return fixedSample(), nil
		})

		s, ts := newTestServer(collector)
		conn := newFakeConn("a")
		sess, err := s.Accept(conn)
		require.NoError(t, err)

		tick(t, ts.get(0))
		<-entered
		conn.disconnect()
		close(release)

		require.Eventually(t, func() bool { return sess.State() == StateClosed }, waitFor, 10*time.Millisecond)
		assert.Empty(t, conn.frames())
		assert.Equal(t, int32(1), ts.get(0).stops.Load())
		require.NoError(t, s.Shutdown(context.Background()))
	})

	t.Run("shutdown_cancels_wait", func(t *testing.T) {
		entered := make(chan struct{})
		collector := collectorFunc(func(ctx context.Context) (models.UtilizationSample, error) {
			close(entered)
			<-ctx.Done()
			return models.UtilizationSample{}, ctx.Err()
		})

		s, ts := newTestServer(collector)
		conn := newFakeConn("a")
		sess, err := s.Accept(conn)
		require.NoError(t, err)

		tick(t, ts.get(0))
		<-entered

		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		require.NoError(t, s.Shutdown(ctx))

		assert.Equal(t, StateClosed, sess.State())
		assert.Empty(t, conn.frames())
		assert.Equal(t, int32(1), ts.get(0).stops.Load())
	})
}

func TestSession_CyclesNeverOverlap(t *testing.T) {
	var inFlight, maxInFlight, calls atomic.Int32
	collector := collectorFunc(func(ctx context.Context) (models.UtilizationSample, error) {
		calls.Add(1)
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}

		// several ticker periods
		select {
		case <-time.After(50 * time.Millisecond):
			return fixedSample(), nil
		case <-ctx.Done():
			return models.UtilizationSample{}, ctx.Err()
		}
	})

	s := NewServer(Config{CycleInterval: 10 * time.Millisecond}, collector)
	conn := newFakeConn("a")
	_, err := s.Accept(conn)
	require.NoError(t, err)

	time.Sleep(400 * time.Millisecond)
	require.NoError(t, s.Shutdown(context.Background()))

	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
	assert.LessOrEqual(t, len(conn.frames()), int(calls.Load()))
	// a 10ms ticker would have fired ~40 times; slow cycles drop ticks
	assert.Less(t, calls.Load(), int32(20))
}

func TestSession_DegenerateIntervalKeepsStreaming(t *testing.T) {
	calls := 0
	collector := collectorFunc(func(ctx context.Context) (models.UtilizationSample, error) {
		calls++
		if calls == 1 {
			return models.UtilizationSample{}, fmt.Errorf("cycle: %w", metrics.ErrDegenerateInterval)
		}
		return fixedSample(), nil
	})

	s, ts := newTestServer(collector)
	conn := newFakeConn("a")
	sess, err := s.Accept(conn)
	require.NoError(t, err)

	ticker := ts.get(0)
	tick(t, ticker)
	tick(t, ticker)

	require.Eventually(t, func() bool { return len(conn.frames()) == 1 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, StateActive, sess.State())
	assert.Equal(t, int32(0), ticker.stops.Load())
	assert.Equal(t, 1, s.Count())

	require.NoError(t, s.Shutdown(context.Background()))
}

func TestSession_SendFailureCloses(t *testing.T) {
	collector := &mocks.MockMetricsCollector{}
	collector.On("Collect", mock.Anything).Return(fixedSample(), nil)

	s, ts := newTestServer(collector)
	conn := newFakeConn("a")
	conn.sendErr = fmt.Errorf("%w: broken pipe", ErrSendFailed)
	sess, err := s.Accept(conn)
	require.NoError(t, err)

	tick(t, ts.get(0))

	require.Eventually(t, func() bool { return sess.State() == StateClosed }, waitFor, 10*time.Millisecond)
	assert.Equal(t, int32(1), ts.get(0).stops.Load())
	assert.Equal(t, 0, s.Count())
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestSession_FatalErrorReported(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"host_unavailable", fmt.Errorf("%w: no /proc/stat", metrics.ErrHostMetricsUnavailable)},
		{"core_count_changed", metrics.ErrCoreCountMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := &mocks.MockMetricsCollector{}
			collector.On("Collect", mock.Anything).Return(models.UtilizationSample{}, tt.err)

			s, ts := newTestServer(collector)
			conn := newFakeConn("a")
			sess, err := s.Accept(conn)
			require.NoError(t, err)

			tick(t, ts.get(0))

			select {
			case got := <-s.Errors():
				assert.ErrorIs(t, got, tt.err)
			case <-time.After(waitFor):
				t.Fatal("fatal error not reported")
			}
			assert.Equal(t, StateClosed, sess.State())
			assert.Empty(t, conn.frames())
			assert.Equal(t, int32(1), ts.get(0).stops.Load())
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(9).String())
}
