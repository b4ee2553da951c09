package domain

// Chat roles accepted by the completion endpoint.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// ChatMessage is one entry of the ordered payload sent to the completion
// endpoint.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
