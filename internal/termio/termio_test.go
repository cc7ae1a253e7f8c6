package termio_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/programme-lv/proctor/api"
	"github.com/programme-lv/proctor/internal/termio"
	"github.com/stretchr/testify/require"
)

func waitForState(t *testing.T, ch *termio.Channel, want termio.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for ch.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("channel never reached state %s, stuck at %s", want, ch.State())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestAppendOrdering(t *testing.T) {
	var observed []api.LogEntry
	ch := termio.New(func(e api.LogEntry) { observed = append(observed, e) }, nil)

	ch.Append(api.LogOutput, "first")
	ch.Append(api.LogErrOutput, "second")
	ch.Append(api.LogSystem, "third")

	entries := ch.Entries()
	require.Len(t, entries, 3)
	require.Equal(t, "first", entries[0].Text)
	require.Equal(t, "second", entries[1].Text)
	require.Equal(t, "third", entries[2].Text)
	require.Equal(t, api.LogErrOutput, entries[1].Kind)
	require.Len(t, observed, 3)
	require.Equal(t, entries, observed)
}

func TestInputRequestResolvedBySubmit(t *testing.T) {
	ch := termio.New(nil, nil)
	ch.BeginRun()
	defer ch.EndRun()

	got := make(chan string, 1)
	go func() {
		line, err := ch.RequestInput(context.Background())
		require.NoError(t, err)
		got <- line
	}()

	waitForState(t, ch, termio.WaitingForInput)
	require.True(t, ch.SubmitInput("hello"))

	select {
	case line := <-got:
		require.Equal(t, "hello", line)
	case <-time.After(2 * time.Second):
		t.Fatal("input request was never resolved")
	}

	entries := ch.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, api.LogInputEcho, entries[0].Kind)
	require.Equal(t, "hello", entries[0].Text)
}

func TestSecondInputRequestIsRefused(t *testing.T) {
	ch := termio.New(nil, nil)
	ch.BeginRun()
	defer ch.EndRun()

	go func() {
		_, _ = ch.RequestInput(context.Background())
	}()
	waitForState(t, ch, termio.WaitingForInput)

	_, err := ch.RequestInput(context.Background())
	require.ErrorIs(t, err, termio.ErrInputPending)

	// The original request is still live and resolvable.
	require.True(t, ch.SubmitInput("still works"))
}

func TestSubmitWithoutPendingIsNoop(t *testing.T) {
	ch := termio.New(nil, nil)
	require.False(t, ch.SubmitInput("nobody asked"))
	require.Empty(t, ch.Entries())
}

func TestClearRefusedWhileRunActive(t *testing.T) {
	ch := termio.New(nil, nil)
	ch.Append(api.LogOutput, "keep me")

	ch.BeginRun()
	require.ErrorIs(t, ch.Clear(), termio.ErrRunActive)
	require.Len(t, ch.Entries(), 1)

	ch.EndRun()
	require.NoError(t, ch.Clear())
	require.Empty(t, ch.Entries())
}

func TestEndRunCancelsOutstandingRequest(t *testing.T) {
	ch := termio.New(nil, nil)
	ch.BeginRun()

	errc := make(chan error, 1)
	go func() {
		_, err := ch.RequestInput(context.Background())
		errc <- err
	}()
	waitForState(t, ch, termio.WaitingForInput)

	ch.EndRun()
	select {
	case err := <-errc:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled request never returned")
	}
	require.Equal(t, termio.Idle, ch.State())
}

func TestSequentialInputRequests(t *testing.T) {
	var mu sync.Mutex
	var flips []bool
	ch := termio.New(nil, func(waiting bool) {
		mu.Lock()
		flips = append(flips, waiting)
		mu.Unlock()
	})
	ch.BeginRun()
	defer ch.EndRun()

	lines := make(chan string, 2)
	go func() {
		for range 2 {
			line, err := ch.RequestInput(context.Background())
			require.NoError(t, err)
			lines <- line
		}
	}()

	waitForState(t, ch, termio.WaitingForInput)
	ch.SubmitInput("one")
	require.Equal(t, "one", <-lines)

	waitForState(t, ch, termio.WaitingForInput)
	ch.SubmitInput("two")
	require.Equal(t, "two", <-lines)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []bool{true, false, true, false}, flips)
}

func TestContextCancelReleasesRequest(t *testing.T) {
	ch := termio.New(nil, nil)
	ch.BeginRun()
	defer ch.EndRun()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := ch.RequestInput(ctx)
		errc <- err
	}()
	waitForState(t, ch, termio.WaitingForInput)

	cancel()
	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not observe cancellation")
	}
	require.Equal(t, termio.Running, ch.State())
}
