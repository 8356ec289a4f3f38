package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequest_Messages(t *testing.T) {
	req := Request{
		Persona: "persona",
		History: []Message{UserMessage("hi"), AssistantMessage("hello")},
		Turn:    UserMessage("again"),
	}
	msgs := req.Messages()
	assert.Len(t, msgs, 3)
	assert.Equal(t, "again", msgs[2].Content)
	assert.Len(t, req.History, 2)
}

func TestRequest_MessagesDoesNotAliasHistory(t *testing.T) {
	history := make([]Message, 1, 4)
	history[0] = UserMessage("hi")
	req := Request{History: history, Turn: UserMessage("new")}

	msgs := req.Messages()
	msgs[0].Content = "changed"
	assert.Equal(t, "hi", history[0].Content)
}

func TestAssistantMessage_Trims(t *testing.T) {
	msg := AssistantMessage("  tease  \n")
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, "tease", msg.Content)
}
