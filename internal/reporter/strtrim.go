package reporter

import (
	"strings"

	"github.com/programme-lv/proctor/api"
)

// TrimToRect caps a multi-line string to a rectangle before it is sent over
// a transport with message size limits.
func TrimToRect(s string, maxHeight int, maxWidth int) string {
	res := ""
	lines := strings.Split(s, "\n")
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
		lines = append(lines, "[...]")
	}
	for i, line := range lines {
		if i > 0 {
			res += "\n"
		}
		if len(line) > maxWidth {
			res += line[:maxWidth] + "[...]"
		} else {
			res += line
		}
	}
	return res
}

// TrimExecRes returns a copy of res with stdout and stderr trimmed to the
// streaming size constraints.
func TrimExecRes(res *api.ExecRes) *api.ExecRes {
	if res == nil {
		return nil
	}
	trimmed := *res
	trimmed.Stdout = TrimToRect(res.Stdout, api.MaxRunOutputHeight, api.MaxRunOutputWidth)
	trimmed.Stderr = TrimToRect(res.Stderr, api.MaxRunOutputHeight, api.MaxRunOutputWidth)
	return &trimmed
}
