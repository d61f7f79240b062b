package bot

// Inbound is one user message handed over by a transport.
type Inbound struct {
	Identity string `json:"identity"`
	Username string `json:"username,omitempty"`
	Text     string `json:"text"`
}

// Reply is one outbound message. Keyboard is a menu hint for transports
// that support reply keyboards.
type Reply struct {
	Text           string      `json:"text,omitempty"`
	Keyboard       [][]string  `json:"keyboard,omitempty"`
	RemoveKeyboard bool        `json:"remove_keyboard,omitempty"`
	Attachment     *Attachment `json:"attachment,omitempty"`
}

// Attachment is a file to deliver alongside a reply. Path is a local file
// for in-process transports and is never serialized; HTTP clients fetch the
// file from the server's document route.
type Attachment struct {
	Path     string `json:"-"`
	Filename string `json:"filename"`
	Caption  string `json:"caption,omitempty"`
}

func text(s string) Reply { return Reply{Text: s} }

var restartKeyboard = [][]string{{"/start"}}
