package reporter_test

import (
	"strings"
	"testing"

	"github.com/programme-lv/proctor/api"
	"github.com/programme-lv/proctor/internal/reporter"
	"github.com/stretchr/testify/assert"
)

func TestTrimToRect(t *testing.T) {
	assert.Equal(t, "short", reporter.TrimToRect("short", 10, 10))

	long := strings.Repeat("x", 15)
	assert.Equal(t, strings.Repeat("x", 10)+"[...]", reporter.TrimToRect(long, 10, 10))

	tall := "a\nb\nc\nd"
	assert.Equal(t, "a\nb\n[...]", reporter.TrimToRect(tall, 2, 10))

	both := strings.Repeat("y", 12) + "\nsecond\nthird"
	got := reporter.TrimToRect(both, 2, 5)
	assert.Equal(t, "yyyyy[...]\nsecon[...]\n[...]", got)
}

func TestTrimExecRes(t *testing.T) {
	assert.Nil(t, reporter.TrimExecRes(nil))

	tall := strings.Repeat("line\n", api.MaxRunOutputHeight+10)
	msg := "boom"
	res := &api.ExecRes{Stdout: tall, Stderr: "fine", ErrorMessage: &msg}

	trimmed := reporter.TrimExecRes(res)
	assert.Equal(t, api.MaxRunOutputHeight+1, len(strings.Split(trimmed.Stdout, "\n")))
	assert.Equal(t, "fine", trimmed.Stderr)
	assert.Equal(t, &msg, trimmed.ErrorMessage)

	// The original is untouched.
	assert.Equal(t, tall, res.Stdout)
}
