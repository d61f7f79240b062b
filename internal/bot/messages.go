package bot

import "strings"

// Message keys. Each can be overridden through bot.messages in the config.
const (
	MsgGreeting         = "greeting"
	MsgAskEmail         = "ask_email"
	MsgNameEmpty        = "name_empty"
	MsgEmailInvalid     = "email_invalid"
	MsgChecking         = "checking"
	MsgStillChecking    = "still_checking"
	MsgSendFailed       = "send_failed"
	MsgBounced          = "bounced"
	MsgVerifiedSynced   = "verified_synced"
	MsgVerifiedUnsynced = "verified_unsynced"
	MsgCancelled        = "cancelled"
	MsgList             = "list"
	MsgListItem         = "list_item"
	MsgListEmpty        = "list_empty"
	MsgListFailed       = "list_failed"
	MsgHelp             = "help"
	MsgDocumentMissing  = "document_missing"
)

var defaultMessages = map[string]string{
	MsgGreeting:         "Hi! Welcome to {brand}. What's your name?",
	MsgAskEmail:         "Thanks, {name}! What's your email address?",
	MsgNameEmpty:        "Please tell me your name.",
	MsgEmailInvalid:     "That doesn't look like a valid email address. Please try again.",
	MsgChecking:         "We sent a message to {email}. Checking that it was delivered, this takes about a minute...",
	MsgStillChecking:    "Still checking {email}. Send a different address to check that one instead, or /cancel.",
	MsgSendFailed:       "We couldn't send an email to {email} right now. Please try again later with /start.",
	MsgBounced:          "The email to {email} bounced. Please enter a valid email address.",
	MsgVerifiedSynced:   "Your email {email} is verified and you're all set, {name}!",
	MsgVerifiedUnsynced: "Your email {email} is verified, {name}! We saved your details and will finish setting things up shortly.",
	MsgCancelled:        "Cancelled. Send /start whenever you want to begin again.",
	MsgList:             "Your submissions:",
	MsgListItem:         "{name} <{email}>: {status}",
	MsgListEmpty:        "You haven't submitted any email addresses yet.",
	MsgListFailed:       "We couldn't load your submissions right now. Please try again later.",
	MsgHelp:             "/start begins a new signup, /cancel stops the current one, /list shows what you've submitted.",
	MsgDocumentMissing:  "The {brand} document isn't available right now. We'll send it to you later.",
}

// Vars fills the {name}, {email} and {status} placeholders.
type Vars struct {
	Name   string
	Email  string
	Status string
}

// Messages is the reply catalogue.
type Messages struct {
	brand string
	texts map[string]string
}

// NewMessages builds the catalogue from the defaults with overrides applied.
// Unknown override keys are kept so operators can add wording ahead of code.
func NewMessages(brand string, overrides map[string]string) *Messages {
	texts := make(map[string]string, len(defaultMessages)+len(overrides))
	for k, v := range defaultMessages {
		texts[k] = v
	}
	for k, v := range overrides {
		if strings.TrimSpace(v) != "" {
			texts[k] = v
		}
	}
	if brand == "" {
		brand = "us"
	}
	return &Messages{brand: brand, texts: texts}
}

// Text renders the message for key.
func (m *Messages) Text(key string, v Vars) string {
	tmpl, ok := m.texts[key]
	if !ok {
		return key
	}
	r := strings.NewReplacer(
		"{brand}", m.brand,
		"{name}", v.Name,
		"{email}", v.Email,
		"{status}", v.Status,
	)
	return r.Replace(tmpl)
}
