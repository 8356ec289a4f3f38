// Package llm defines the model client the reply pipeline depends on.
// Providers are interchangeable behind Generator; Gemini is the one wired in.
package llm

import (
	"context"
	"strings"
)

// Role constants for Message.Role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the input to Generate: the persona instruction, the prior turns
// and the new user turn.
type Request struct {
	Persona string
	History []Message
	Turn    Message
}

// Messages returns History followed by Turn.
func (r Request) Messages() []Message {
	out := make([]Message, 0, len(r.History)+1)
	out = append(out, r.History...)
	return append(out, r.Turn)
}

// Generator produces the assistant's reply text. Errors are
// *errors.ExternalServiceError values carrying a failure kind.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)

	// ModelID returns the model identifier used for calls.
	ModelID() string
}

// UserMessage creates a user turn.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant turn.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: strings.TrimSpace(text)}
}
