package runner_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/programme-lv/proctor/api"
	"github.com/programme-lv/proctor/internal/runner"
	"github.com/programme-lv/proctor/internal/runner/sandbox"
	"github.com/programme-lv/proctor/internal/termio"
	"github.com/stretchr/testify/require"
)

func newSandboxServer(t *testing.T, handler http.HandlerFunc) *sandbox.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return sandbox.New(srv.URL, 5*time.Second)
}

func TestIsLocal(t *testing.T) {
	require.True(t, runner.IsLocal("javascript"))
	require.True(t, runner.IsLocal("JavaScript"))
	require.True(t, runner.IsLocal("js"))
	require.False(t, runner.IsLocal("python"))
	require.False(t, runner.IsLocal("go"))
}

func TestRemoteRunStreamsOutput(t *testing.T) {
	sb := newSandboxServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/execute", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "python", req["language"])
		require.Equal(t, "print('hi')", req["source"])

		json.NewEncoder(w).Encode(map[string]any{
			"stdout":     "hi\n",
			"stderr":     "warn\n",
			"runtime_ms": 12,
		})
	})
	r := runner.New(sb, nil)
	ch := termio.New(nil, nil)

	res := r.Run(context.Background(), api.ExecReq{
		Language: "python",
		Code:     "print('hi')",
	}, ch)

	require.False(t, res.Failed())
	require.Equal(t, "hi\n", res.Stdout)
	require.NotNil(t, res.WallMillis)
	require.EqualValues(t, 12, *res.WallMillis)

	entries := ch.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, api.LogOutput, entries[0].Kind)
	require.Equal(t, "hi", entries[0].Text)
	require.Equal(t, api.LogErrOutput, entries[1].Kind)
	require.Equal(t, "warn", entries[1].Text)
}

func TestRemoteFailureBecomesResult(t *testing.T) {
	sb := newSandboxServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "sandbox exploded", http.StatusInternalServerError)
	})
	r := runner.New(sb, nil)

	res := r.Run(context.Background(), api.ExecReq{Language: "python", Code: "x"}, nil)
	require.True(t, res.Failed())
	require.Contains(t, *res.ErrorMessage, "500")
}

func TestRemoteUnreachableBecomesResult(t *testing.T) {
	r := runner.New(sandbox.New("http://127.0.0.1:1", time.Second), nil)

	res := r.Run(context.Background(), api.ExecReq{Language: "python", Code: "x"}, nil)
	require.True(t, res.Failed())
}

func TestLocalRunWithStdin(t *testing.T) {
	r := runner.New(nil, nil)
	ch := termio.New(nil, nil)

	res := r.Run(context.Background(), api.ExecReq{
		Language: "javascript",
		Code:     "console.log(input(), input());",
		Stdin:    "foo\nbar\n",
	}, ch)

	require.False(t, res.Failed())
	require.Equal(t, "foo bar\n", res.Stdout)
}

func TestLocalInteractiveRun(t *testing.T) {
	r := runner.New(nil, nil)

	var waits int
	ch := termio.New(nil, func(waiting bool) {
		if waiting {
			waits++
		}
	})
	ch.BeginRun()
	defer ch.EndRun()

	done := make(chan api.ExecRes, 1)
	go func() {
		done <- r.Run(context.Background(), api.ExecReq{
			Language: "javascript",
			Code: `const name = input();
const color = input();
console.log(name + " likes " + color);`,
		}, ch)
	}()

	for _, answer := range []string{"ada", "teal"} {
		deadline := time.Now().Add(5 * time.Second)
		for ch.State() != termio.WaitingForInput {
			if time.Now().After(deadline) {
				t.Fatal("interpreter never asked for input")
			}
			time.Sleep(time.Millisecond)
		}
		require.True(t, ch.SubmitInput(answer))
	}

	select {
	case res := <-done:
		require.False(t, res.Failed())
		require.Equal(t, "ada likes teal\n", res.Stdout)
	case <-time.After(5 * time.Second):
		t.Fatal("interactive run never finished")
	}

	require.Equal(t, 2, waits)

	// Echoed input lines plus the streamed output line, in order.
	entries := ch.Entries()
	require.Len(t, entries, 3)
	require.Equal(t, "ada", entries[0].Text)
	require.Equal(t, "teal", entries[1].Text)
	require.Equal(t, "ada likes teal", entries[2].Text)
	require.Equal(t, api.LogOutput, entries[2].Kind)
}

func TestLocalErrorBecomesResult(t *testing.T) {
	r := runner.New(nil, nil)

	res := r.Run(context.Background(), api.ExecReq{
		Language: "javascript",
		Code:     `console.log("before"); throw new Error("boom");`,
	}, nil)

	require.True(t, res.Failed())
	require.Contains(t, *res.ErrorMessage, "boom")
	require.Equal(t, "before\n", res.Stdout)
}

func TestLocalConsoleErrorGoesToStderr(t *testing.T) {
	r := runner.New(nil, nil)

	res := r.Run(context.Background(), api.ExecReq{
		Language: "javascript",
		Code:     `console.error("oops"); console.log("fine");`,
	}, nil)

	require.False(t, res.Failed())
	require.Equal(t, "oops\n", res.Stderr)
	require.Equal(t, "fine\n", res.Stdout)
}

func TestLocalInputWithoutChannelFails(t *testing.T) {
	r := runner.New(nil, nil)

	res := r.Run(context.Background(), api.ExecReq{
		Language: "javascript",
		Code:     `input();`,
	}, nil)

	require.True(t, res.Failed())
	require.Contains(t, *res.ErrorMessage, "input")
}

func TestLocalRunCancellation(t *testing.T) {
	r := runner.New(nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	res := r.Run(ctx, api.ExecReq{
		Language: "javascript",
		Code:     `for (;;) {}`,
	}, nil)
	cancel()

	require.True(t, res.Failed())

	// The shared runtime must come back clean: a cancelled run never leaves
	// a pending interrupt behind for the next one.
	for range 3 {
		res = r.Run(context.Background(), api.ExecReq{
			Language: "javascript",
			Code:     `console.log("still alive");`,
		}, nil)
		require.False(t, res.Failed())
		require.Equal(t, "still alive\n", res.Stdout)
	}
}
