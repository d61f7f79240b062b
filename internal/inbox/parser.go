package inbox

import (
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-imap"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// parseMessage converts an IMAP message to our Email struct
func parseMessage(msg *imap.Message, section *imap.BodySectionName) *Email {
	if msg == nil || msg.Envelope == nil {
		return nil
	}

	email := &Email{
		UID:        msg.Uid,
		MessageID:  msg.Envelope.MessageId,
		Subject:    msg.Envelope.Subject,
		ReceivedAt: msg.InternalDate,
	}
	if email.ReceivedAt.IsZero() {
		email.ReceivedAt = msg.Envelope.Date
	}

	if len(msg.Envelope.From) > 0 {
		from := msg.Envelope.From[0]
		email.From = from.Address()
		email.FromName = from.PersonalName
	}

	if r := msg.GetBody(section); r != nil {
		email.Body, email.HTMLBody = readBody(r)
	}
	return email
}

// readBody walks every MIME part of a raw message. All inline text/plain
// parts are joined in order; the first text/html part is kept separately.
// Charsets are decoded via go-message/charset. Parse errors end the walk and
// return what was read so far.
func readBody(r io.Reader) (plain, html string) {
	mr, err := mail.CreateReader(r)
	if err != nil && mr == nil {
		return "", ""
	}

	var parts []string
	for {
		p, err := mr.NextPart()
		if err != nil {
			break
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		body, err := io.ReadAll(p.Body)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(ct, "text/plain"):
			parts = append(parts, string(body))
		case strings.HasPrefix(ct, "text/html") && html == "":
			html = string(body)
		}
	}
	return strings.Join(parts, "\n"), html
}

// htmlText extracts the visible text of an HTML document
func htmlText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return tagPattern.ReplaceAllString(html, " ")
	}
	doc.Find("script, style").Remove()
	return doc.Text()
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// Text returns the plain text body, falling back to text extracted from the
// HTML part for HTML-only messages.
func (e *Email) Text() string {
	if e.Body != "" {
		return e.Body
	}
	if e.HTMLBody != "" {
		return htmlText(e.HTMLBody)
	}
	return ""
}

// Email regex for extracting bounced recipients
var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// Patterns that precede the bounced address in delivery status notifications
var bouncedRecipientPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:original|final)[\s-]?recipient[:\s]+(?:rfc822;\s*)?([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`),
	regexp.MustCompile(`(?i)(?:the\s+following|these)\s+address(?:es)?\s+(?:had\s+permanent\s+)?(?:fatal\s+)?(?:errors?|failed)[:\s]+<?([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`),
	regexp.MustCompile(`(?i)delivery\s+to\s+(?:the\s+following\s+)?(?:recipient|address)(?:s)?\s+failed[:\s]+<?([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`),
	regexp.MustCompile(`(?i)your\s+message\s+wasn't\s+delivered\s+to\s+([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`),
	regexp.MustCompile(`(?i)(?:failed|rejected)\s+recipient[:\s]+<?([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`),
	regexp.MustCompile(`(?i)undeliverable\s+to[:\s]+<?([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`),
	regexp.MustCompile(`(?i)message\s+could\s+not\s+be\s+delivered\s+to[:\s]+<?([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`),
	regexp.MustCompile(`(?i)<([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})>.*(?:failed|rejected|undeliverable)`),
}

// ExtractBouncedRecipient extracts the address that bounced from a
// delivery-failure notification. ownAddress (the mailbox owner) is never
// returned.
func ExtractBouncedRecipient(email *Email, ownAddress string) string {
	content := email.Text() + " " + email.Subject

	for _, pattern := range bouncedRecipientPatterns {
		matches := pattern.FindStringSubmatch(content)
		if len(matches) > 1 && !strings.EqualFold(matches[1], ownAddress) {
			return strings.ToLower(strings.TrimSpace(matches[1]))
		}
	}

	// Fallback: first address that isn't a system or own address
	excludePatterns := []string{"mailer-daemon", "postmaster", "noreply", "no-reply"}
	for _, addr := range emailRegex.FindAllString(content, -1) {
		lower := strings.ToLower(addr)
		if strings.EqualFold(lower, ownAddress) {
			continue
		}
		isSystem := false
		for _, exclude := range excludePatterns {
			if strings.Contains(lower, exclude) {
				isSystem = true
				break
			}
		}
		if !isSystem {
			return lower
		}
	}
	return ""
}
