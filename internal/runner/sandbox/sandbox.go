// Package sandbox is the client for the stateless remote code-execution
// service: one synchronous HTTP call per run, no session state, no
// interactive input beyond the pre-supplied stdin blob.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/programme-lv/proctor/api"
)

type Client struct {
	httpc   *http.Client
	baseURL string
}

type execRequest struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	Source   string `json:"source"`
	Stdin    string `json:"stdin"`
}

type execResponse struct {
	Stdout    string  `json:"stdout"`
	Stderr    string  `json:"stderr"`
	RuntimeMs *int64  `json:"runtime_ms"`
	Error     *string `json:"error"`
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpc:   &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Exec runs the program to completion remotely and returns the captured
// output. Transport and provider failures are returned as errors; the
// adapter above converts them into result-level diagnostics.
func (c *Client) Exec(ctx context.Context, req api.ExecReq) (api.ExecRes, error) {
	body, err := json.Marshal(execRequest{
		Language: req.Language,
		Version:  req.Version,
		Source:   req.Code,
		Stdin:    req.Stdin,
	})
	if err != nil {
		return api.ExecRes{}, fmt.Errorf("failed to marshal execution request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return api.ExecRes{}, fmt.Errorf("failed to build execution request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return api.ExecRes{}, fmt.Errorf("sandbox unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return api.ExecRes{}, fmt.Errorf("sandbox returned %d: %s", resp.StatusCode, string(msg))
	}

	var out execResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return api.ExecRes{}, fmt.Errorf("failed to decode sandbox response: %w", err)
	}

	res := api.ExecRes{
		Stdout:       out.Stdout,
		Stderr:       out.Stderr,
		WallMillis:   out.RuntimeMs,
		ErrorMessage: out.Error,
	}
	return res, nil
}
