package inbox

import (
	"regexp"
	"strings"
)

// Classifier decides whether a notification is a hard bounce for a given
// address.
type Classifier struct {
	phrases []string
}

// NewClassifier matches case-insensitively against phrases.
func NewClassifier(phrases []string) *Classifier {
	c := &Classifier{}
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			c.phrases = append(c.phrases, p)
		}
	}
	return c
}

// Matches reports whether the body of e mentions target and contains at
// least one bounce phrase.
func (c *Classifier) Matches(e *Email, target string) bool {
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" {
		return false
	}

	body := strings.ToLower(e.Text())
	if !strings.Contains(body, target) {
		return false
	}
	return c.matchedPhrase(body) != ""
}

// MatchedPhrase returns the first bounce phrase found in e, or "".
func (c *Classifier) MatchedPhrase(e *Email) string {
	return c.matchedPhrase(strings.ToLower(e.Text()))
}

func (c *Classifier) matchedPhrase(lowerBody string) string {
	for _, p := range c.phrases {
		if strings.Contains(lowerBody, p) {
			return p
		}
	}
	return ""
}

// Bounce/undeliverable indicators
var bouncePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)delivery\s+(to\s+.+\s+)?(has\s+)?failed`),
	regexp.MustCompile(`(?i)undeliverable`),
	regexp.MustCompile(`(?i)delivery\s+status\s+notification`),
	regexp.MustCompile(`(?i)returned\s+mail`),
	regexp.MustCompile(`(?i)mail\s+delivery\s+failed`),
	regexp.MustCompile(`(?i)message\s+(could\s+)?not\s+(be\s+)?delivered`),
	regexp.MustCompile(`(?i)wasn't\s+delivered`),
	regexp.MustCompile(`(?i)delivery\s+failure`),
	regexp.MustCompile(`(?i)permanent\s+(failure|error)`),
	regexp.MustCompile(`(?i)address\s+(not\s+found|rejected)`),
	regexp.MustCompile(`(?i)user\s+unknown`),
	regexp.MustCompile(`(?i)mailbox\s+(not\s+found|unavailable)`),
	regexp.MustCompile(`(?i)no\s+such\s+user`),
	regexp.MustCompile(`(?i)(mailbox|recipient|address)\s+(does\s+not|doesn't)\s+exist`),
	regexp.MustCompile(`(?i)invalid\s+(recipient|address|mailbox)`),
	regexp.MustCompile(`(?i)550[\s-].*(rejected|unknown|not\s+found|does\s+not\s+exist)`),
	regexp.MustCompile(`(?i)554[\s-].*(rejected|failed)`),
}

// IsBounceNotification reports whether e looks like a delivery-failure
// notification regardless of which address bounced.
func IsBounceNotification(e *Email, senders []string) bool {
	subject := strings.ToLower(e.Subject)
	content := strings.ToLower(e.Text())

	bounceScore := 0
	for _, pattern := range bouncePatterns {
		if pattern.MatchString(subject) {
			bounceScore += 2 // Subject match is strong signal
		}
		if pattern.MatchString(content) {
			bounceScore++
		}
	}

	// A bounce is a mail-system sender with any bounce signal, or any
	// sender with strong signals.
	return (senderMatches(e, senders) && bounceScore > 0) || bounceScore >= 3
}
