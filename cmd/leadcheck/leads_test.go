package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/clientflow/leadcheck/internal/leads"
)

func TestWriteLeads(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	records := []leads.Record{
		{ID: 1, Name: "Sara", Email: "sara@example.com", UserID: "1", Username: "sara_k", Status: leads.StatusVerified, CreatedAt: created, UpdatedAt: created},
		{ID: 2, Name: "Omar", Email: "omar@example.com", UserID: "2", Status: leads.StatusPending, CreatedAt: created, UpdatedAt: created},
	}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeLeads(&buf, records, "json"))

		var got []leads.Record
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, records, got)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeLeads(&buf, records, "yaml"))
		assert.Contains(t, buf.String(), "email: sara@example.com")

		var got []leads.Record
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "Omar", got[1].Name)
		assert.Equal(t, leads.StatusPending, got[1].Status)
	})

	t.Run("empty json is an array", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeLeads(&buf, nil, "json"))
		assert.Equal(t, "[]\n", buf.String())
	})

	t.Run("unknown format", func(t *testing.T) {
		assert.Error(t, writeLeads(&bytes.Buffer{}, records, "csv"))
	})
}

func TestSelectLeads(t *testing.T) {
	store, err := leads.NewStore(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Append(ctx, &leads.Record{Name: "Sara", Email: "sara@example.com", UserID: "1", Status: leads.StatusInvalid}))
	require.NoError(t, store.Append(ctx, &leads.Record{Name: "Omar", Email: "omar@example.com", UserID: "2"}))
	require.NoError(t, store.Append(ctx, &leads.Record{Name: "Sara K", Email: "sara@example.com", UserID: "1"}))

	tests := []struct {
		name   string
		userID string
		addr   string
		want   []string
	}{
		{name: "all", want: []string{"Sara", "Omar", "Sara K"}},
		{name: "by user", userID: "1", want: []string{"Sara", "Sara K"}},
		{name: "latest for address", addr: " SARA@example.com\u200b", want: []string{"Sara K"}},
		{name: "unknown address", addr: "ghost@example.com", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := selectLeads(ctx, store, tt.userID, tt.addr)
			require.NoError(t, err)
			names := []string{}
			for _, r := range records {
				names = append(names, r.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, leads.Stats{Total: 4, Pending: 1, Verified: 2, Invalid: 1})

	out := buf.String()
	assert.Contains(t, out, "Total:    4")
	assert.Contains(t, out, "Verified: 2")
	assert.Contains(t, out, "Invalid:  1")
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
}
