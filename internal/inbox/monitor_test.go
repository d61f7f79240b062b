package inbox

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBounceCriteria(t *testing.T) {
	since := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("no senders", func(t *testing.T) {
		c := bounceCriteria(since, nil)
		assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), c.Since)
		assert.Empty(t, c.Or)
		assert.Empty(t, c.Header)
	})

	t.Run("single sender", func(t *testing.T) {
		c := bounceCriteria(since, []string{"mailer-daemon"})
		assert.Empty(t, c.Or)
		assert.Equal(t, []string{"mailer-daemon"}, c.Header.Values("From"))
	})

	t.Run("or tree covers every sender", func(t *testing.T) {
		senders := []string{"mailer-daemon", "postmaster", "mail delivery subsystem"}
		c := bounceCriteria(since, senders)
		assert.Equal(t, searchDay(since), c.Since)
		require.Len(t, c.Or, 1)

		got := collectFrom(c.Or[0][0], c.Or[0][1])
		assert.ElementsMatch(t, senders, got)
	})
}

func TestSearchDay(t *testing.T) {
	pst := time.FixedZone("PST", -8*3600)
	jst := time.FixedZone("JST", 9*3600)

	tests := []struct {
		name  string
		since time.Time
		want  string
	}{
		{"just after utc midnight", time.Date(2026, 3, 14, 0, 30, 0, 0, time.UTC), "13-Mar-2026"},
		{"midday", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), "28-Feb-2026"},
		{"skew crosses midnight", time.Date(2026, 3, 14, 0, 1, 0, 0, time.UTC), "12-Mar-2026"},
		{"west of utc", time.Date(2026, 3, 13, 16, 31, 0, 0, pst), "13-Mar-2026"},
		{"east of utc after local midnight", time.Date(2026, 3, 14, 0, 30, 0, 0, jst), "12-Mar-2026"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			day := searchDay(tt.since)
			assert.Equal(t, tt.want, day.Format("2-Jan-2006"))
			assert.Equal(t, time.UTC, day.Location())

			// Whatever timezone the server dates messages in, a message
			// received inside the skew allowance is on or after the SINCE day.
			earliest := tt.since.Add(-clockSkew)
			for offset := -12; offset <= 14; offset++ {
				local := earliest.In(time.FixedZone("", offset*3600))
				serverDay := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
				assert.False(t, serverDay.Before(day), "offset %+d: server day %s before SINCE %s",
					offset, serverDay.Format("2-Jan-2006"), day.Format("2-Jan-2006"))
			}
		})
	}
}

func TestBounceCriteria_DayBoundary(t *testing.T) {
	since := time.Date(2026, 3, 14, 0, 30, 0, 0, time.UTC)
	bounce := time.Date(2026, 3, 13, 16, 31, 0, 0, time.FixedZone("", -8*3600))

	c := bounceCriteria(since, []string{"mailer-daemon"})
	assert.False(t, c.Since.After(since.AddDate(0, 0, -1)), "SINCE must be at least a day before the window")

	serverDay := time.Date(bounce.Year(), bounce.Month(), bounce.Day(), 0, 0, 0, 0, time.UTC)
	assert.False(t, serverDay.Before(c.Since), "bounce dated %s must be searchable", bounce.Format("2-Jan-2006"))
}

func TestLatestUIDs(t *testing.T) {
	tests := []struct {
		name  string
		uids  []uint32
		limit int
		want  []uint32
	}{
		{"under limit", []uint32{3, 1, 2}, 10, []uint32{1, 2, 3}},
		{"keeps highest", []uint32{5, 1, 9, 7, 3}, 2, []uint32{7, 9}},
		{"zero limit keeps all", []uint32{2, 1}, 0, []uint32{1, 2}},
		{"empty", nil, 10, []uint32{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := latestUIDs(tt.uids, tt.limit)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

// collectFrom flattens the From values of an OR tree.
func collectFrom(nodes ...*imap.SearchCriteria) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, n.Header.Values("From")...)
		for _, pair := range n.Or {
			out = append(out, collectFrom(pair[0], pair[1])...)
		}
	}
	return out
}
