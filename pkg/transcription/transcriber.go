// Package transcription turns recorded audio into narration text.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"agro-intake-be/internal/pkg/logger"
)

const logModule = "Transcription"

// Placeholder is returned instead of an error whenever transcription fails.
const Placeholder = "[No se pudo transcribir el audio]"

// Transcriber never fails: errors are logged and replaced by Placeholder.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) string
}

type response struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
	Error   string `json:"error,omitempty"`
}

// HTTPTranscriber posts audio as multipart form field "audio".
type HTTPTranscriber struct {
	url    string
	client *http.Client
	logger logger.ILogger
}

var _ Transcriber = (*HTTPTranscriber)(nil)

func NewHTTPTranscriber(url string, timeout time.Duration, log logger.ILogger) *HTTPTranscriber {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPTranscriber{url: url, client: &http.Client{Timeout: timeout}, logger: log}
}

func (t *HTTPTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) string {
	text, err := t.transcribe(ctx, audio, filename)
	if err != nil {
		t.logger.Error(logModule, "Transcription failed", map[string]interface{}{
			"bytes": len(audio),
			"error": err.Error(),
		})
		return Placeholder
	}
	return text
}

func (t *HTTPTranscriber) transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio payload")
	}
	if t.url == "" {
		return "", fmt.Errorf("transcription service not configured")
	}
	if filename == "" {
		filename = "audio.webm"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("audio", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if !out.Success {
		return "", fmt.Errorf("service reported failure: %s", out.Error)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", fmt.Errorf("empty transcription")
	}
	return text, nil
}
