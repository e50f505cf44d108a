package model

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of the drafting conversation. Assistant messages
// carry the full contract text as it stood at that point.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatHistory is the conversation as kept by the client, oldest first.
type ChatHistory []ChatMessage

// LastUser returns the most recent user message.
func (h ChatHistory) LastUser() (ChatMessage, bool) {
	return h.last(RoleUser)
}

// LastAssistant returns the most recent assistant message, which is the
// current contract text.
func (h ChatHistory) LastAssistant() (ChatMessage, bool) {
	return h.last(RoleAssistant)
}

func (h ChatHistory) last(role Role) (ChatMessage, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Role == role {
			return h[i], true
		}
	}
	return ChatMessage{}, false
}

// EditRequest is the payload of an editContract event. History is the
// canonical form; Contract and Message are the older single-instruction form.
type EditRequest struct {
	History   ChatHistory `json:"history,omitempty"`
	Contract  string      `json:"contract,omitempty"`
	Message   string      `json:"message,omitempty"`
	RequestID string      `json:"requestId"`
}

// Normalize returns the request in history form. A request that already has
// a history is returned with its history copied; the receiver is not changed.
func (r EditRequest) Normalize() EditRequest {
	out := EditRequest{RequestID: r.RequestID}
	if len(r.History) > 0 {
		out.History = append(ChatHistory(nil), r.History...)
		return out
	}
	if r.Contract != "" {
		out.History = append(out.History, ChatMessage{Role: RoleAssistant, Content: r.Contract})
	}
	if r.Message != "" {
		out.History = append(out.History, ChatMessage{Role: RoleUser, Content: r.Message})
	}
	return out
}

// EditResult is an updated contract tagged with the caller's correlation id.
type EditResult struct {
	Contract  string `json:"contract"`
	RequestID string `json:"requestId"`
}
