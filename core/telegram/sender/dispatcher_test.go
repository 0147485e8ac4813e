package sender

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func fastDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1, MaxRetries: 2, RetryBackoff: time.Millisecond, MaxDuration: time.Second})
	t.Cleanup(d.Close)
	return d
}

func TestDoRetriesTransientErrors(t *testing.T) {
	d := fastDispatcher(t)
	calls := 0
	err := d.Do(context.Background(), "send.text", "sendMessage", func() error {
		calls++
		if calls < 3 {
			return &net.OpError{Op: "dial", Err: errors.New("refused")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Zero(t, d.ErrorCount())
}

func TestDoReturnsPermanentError(t *testing.T) {
	d := fastDispatcher(t)
	calls := 0
	apiErr := &tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}
	err := d.Do(context.Background(), "send.text", "sendMessage", func() error {
		calls++
		return apiErr
	})
	assert.ErrorIs(t, err, apiErr)
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestEnqueueRunsJob(t *testing.T) {
	d := fastDispatcher(t)
	var ran atomic.Bool
	done := make(chan struct{})
	require.NoError(t, d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		ran.Store(true)
		close(done)
		return nil
	}))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
	assert.True(t, ran.Load())
}

func TestEnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	d.Close()
	err := d.Enqueue(context.Background(), "send.text", "", func() error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "timeout", classifyError(context.DeadlineExceeded))
	assert.Equal(t, "dial", classifyError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.Equal(t, "http_4xx", classifyError(&tele.Error{Code: 400}))
	assert.Equal(t, "unknown", classifyError(errors.New("x")))
}

func TestDoStopsAfterMaxRetries(t *testing.T) {
	d := fastDispatcher(t)
	calls := 0
	err := d.Do(context.Background(), "send.photo", "sendPhoto", func() error {
		calls++
		return &net.OpError{Op: "dial", Err: errors.New("refused")}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestDoGivesUpWhenBackoffOutlivesDeadline(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 5, RetryBackoff: time.Hour, MaxDuration: 20 * time.Millisecond})
	t.Cleanup(d.Close)
	calls := 0
	start := time.Now()
	err := d.Do(context.Background(), "send.text", "sendMessage", func() error {
		calls++
		return &net.OpError{Op: "dial", Err: errors.New("refused")}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestApiStatus(t *testing.T) {
	assert.Equal(t, 502, apiStatus(&tele.Error{Code: 502}))
	assert.Equal(t, "http_5xx", classifyError(&tele.Error{Code: 502}))
	assert.Zero(t, apiStatus(errors.New("plain")))
}
