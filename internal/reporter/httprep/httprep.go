// Package httprep sends progress and lock reports to the course backend as
// multipart requests, attaching the recording artifact for terminal
// reports.
package httprep

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/programme-lv/proctor/api"
)

type Client struct {
	httpc   *http.Client
	baseURL string
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpc:   &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Progress posts a non-terminal progress report (run, submit, skip).
func (c *Client) Progress(ctx context.Context, report api.ProgressReport) error {
	return c.post(ctx, "/progress", report, nil)
}

// Lock posts the terminal report with the lock flag and the recording
// artifact. A network failure is retried exactly once; after that the
// caller's local terminal state stands and the error is only logged
// upstream.
func (c *Client) Lock(ctx context.Context, report api.ProgressReport, artifact []byte) error {
	err := c.post(ctx, "/lock", report, artifact)
	if err == nil {
		return nil
	}
	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return err
	}
	if retryErr := c.post(ctx, "/lock", report, artifact); retryErr != nil {
		return fmt.Errorf("lock report failed twice: %v; retry: %w", err, retryErr)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, report api.ProgressReport, artifact []byte) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fields := map[string]string{
		"session_uuid": report.SessionUuid,
		"course_id":    report.CourseID,
		"exercise_id":  report.ExerciseID,
		"question_id":  report.QuestionID,
		"code":         report.Code,
		"language":     report.Language,
		"status":       string(report.Status),
		"reason":       report.Reason,
		"lock":         strconv.FormatBool(report.Lock),
		"tab_switches": strconv.Itoa(report.TabSwitches),
		"violations":   strings.Join(report.Violations, ","),
	}
	if report.RecordingURL != nil {
		fields["recording_url"] = *report.RecordingURL
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	if artifact != nil {
		part, err := w.CreateFormFile("recording", report.SessionUuid+".prcv.zst")
		if err != nil {
			return fmt.Errorf("failed to create recording part: %w", err)
		}
		if _, err := part.Write(artifact); err != nil {
			return fmt.Errorf("failed to write recording part: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return fmt.Errorf("failed to build report request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("report endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("report endpoint returned %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
