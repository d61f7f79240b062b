package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clientflow/leadcheck/internal/config"
	"github.com/clientflow/leadcheck/internal/leads"
	"github.com/clientflow/leadcheck/internal/logger"
)

var testRecord = leads.Record{
	Name:     "Sara",
	Email:    "sara@example.com",
	UserID:   "42",
	Username: "sara_k",
	Status:   leads.StatusVerified,
}

func TestClient_Push(t *testing.T) {
	var got map[string]string
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		contentType = r.Header.Get("Content-Type")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"result":"success"}`))
	}))
	defer srv.Close()

	c := NewClient(config.SheetConfig{URL: srv.URL, Timeout: time.Second}, logger.Discard())
	require.NoError(t, c.Push(context.Background(), testRecord))

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, map[string]string{
		"name":     "Sara",
		"email":    "sara@example.com",
		"username": "sara_k",
		"user_id":  "42",
		"status":   "Verified",
	}, got)
}

func TestClient_Push_Failures(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		timeout    time.Duration
		wantStatus int
	}{
		{
			name:       "server error",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			timeout:    time.Second,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "forbidden",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) },
			timeout:    time.Second,
			wantStatus: http.StatusForbidden,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			timeout: 50 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(config.SheetConfig{URL: srv.URL, Timeout: tt.timeout}, logger.Discard())
			start := time.Now()
			err := c.Push(context.Background(), testRecord)
			require.Error(t, err)

			var se *SyncError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.wantStatus, se.StatusCode)
			assert.Less(t, time.Since(start), 1500*time.Millisecond)
		})
	}
}

func TestClient_Push_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewClient(config.SheetConfig{URL: url}, logger.Discard()).Push(context.Background(), testRecord)
	var se *SyncError
	assert.True(t, errors.As(err, &se))
	assert.Zero(t, se.StatusCode)
}

func TestClient_Disabled(t *testing.T) {
	c := NewClient(config.SheetConfig{}, logger.Discard())
	assert.False(t, c.Enabled())
	assert.ErrorIs(t, c.Push(context.Background(), testRecord), ErrDisabled)
}
