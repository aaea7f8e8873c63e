package domain

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one conversation turn as exchanged with the caller. The
// full history is round-tripped on every request and never stored.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
