package inbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadBody_MultipartReport(t *testing.T) {
	plain, html := readBody(strings.NewReader(gmailDSN))

	assert.Contains(t, plain, "Address not found")
	assert.Contains(t, plain, "Ghost@Example.com")
	// second text/plain part is joined and charset-decoded
	assert.Contains(t, plain, "does not exist café")
	// message/delivery-status is not a text part
	assert.NotContains(t, plain, "Reporting-MTA")
	assert.Contains(t, html, "<p>Address not found</p>")
}

func TestReadBody_HTMLOnly(t *testing.T) {
	plain, html := readBody(strings.NewReader(htmlOnlyBounce))

	assert.Empty(t, plain)
	assert.Contains(t, html, "nobody@example.net")
}

func TestReadBody_SinglePart(t *testing.T) {
	plain, html := readBody(strings.NewReader(plainMessage))

	assert.Equal(t, "just saying hi", strings.TrimSpace(plain))
	assert.Empty(t, html)
}

func TestReadBody_Garbage(t *testing.T) {
	plain, html := readBody(strings.NewReader(""))
	assert.Empty(t, plain)
	assert.Empty(t, html)
}

func TestEmailText(t *testing.T) {
	tests := []struct {
		name  string
		email Email
		want  []string
		not   []string
	}{
		{
			name:  "plain wins",
			email: Email{Body: "plain body", HTMLBody: "<p>html body</p>"},
			want:  []string{"plain body"},
			not:   []string{"html body"},
		},
		{
			name:  "html fallback drops markup and styles",
			email: Email{HTMLBody: "<style>p{x:y}</style><p>No such <b>user</b></p>"},
			want:  []string{"No such user"},
			not:   []string{"<p>", "x:y"},
		},
		{
			name:  "empty",
			email: Email{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.email.Text()
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
			for _, n := range tt.not {
				assert.NotContains(t, got, n)
			}
		})
	}
}

func TestExtractBouncedRecipient(t *testing.T) {
	tests := []struct {
		name  string
		email Email
		own   string
		want  string
	}{
		{
			name:  "gmail wording",
			email: Email{Body: "Your message wasn't delivered to Ghost@Example.com because the address couldn't be found."},
			want:  "ghost@example.com",
		},
		{
			name:  "final recipient field",
			email: Email{Body: "Final-Recipient: rfc822; lost@example.org\nAction: failed"},
			want:  "lost@example.org",
		},
		{
			name:  "exchange html",
			email: Email{HTMLBody: "<p>Delivery has failed to these recipients: <b>nobody@example.net</b></p>"},
			own:   "bot@clientflow.io",
			want:  "nobody@example.net",
		},
		{
			name:  "fallback skips system and own addresses",
			email: Email{Body: "From mailer-daemon@mx.example.com to bot@clientflow.io about who@example.com"},
			own:   "bot@clientflow.io",
			want:  "who@example.com",
		},
		{
			name:  "nothing",
			email: Email{Body: "no addresses here"},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractBouncedRecipient(&tt.email, tt.own))
		})
	}
}
