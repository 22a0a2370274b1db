package transcription

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"agro-intake-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("audio")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "nota.webm", header.Filename)
		assert.Equal(t, []byte("RIFF"), data)
		_, _ = w.Write([]byte(`{"success": true, "text": " Tenemos dos hectáreas de tomate. "}`))
	}))
	defer srv.Close()

	tr := NewHTTPTranscriber(srv.URL, 0, logger.NewNopLogger())
	assert.Equal(t, "Tenemos dos hectáreas de tomate.", tr.Transcribe(context.Background(), []byte("RIFF"), "nota.webm"))
}

func TestTranscribeFailuresYieldPlaceholder(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		audio  []byte
	}{
		{"service failure flag", http.StatusOK, `{"success": false, "error": "formato no soportado"}`, []byte("x")},
		{"server error", http.StatusInternalServerError, `oops`, []byte("x")},
		{"empty text", http.StatusOK, `{"success": true, "text": ""}`, []byte("x")},
		{"not json", http.StatusOK, `<html>`, []byte("x")},
		{"no audio", http.StatusOK, `{"success": true, "text": "hola"}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			tr := NewHTTPTranscriber(srv.URL, 0, logger.NewNopLogger())
			assert.Equal(t, Placeholder, tr.Transcribe(context.Background(), tt.audio, ""))
		})
	}
}

func TestTranscribeUnconfigured(t *testing.T) {
	tr := NewHTTPTranscriber("", 0, logger.NewNopLogger())
	assert.Equal(t, Placeholder, tr.Transcribe(context.Background(), []byte("x"), ""))
}
