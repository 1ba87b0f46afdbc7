package session

import (
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupe-ai/loupe/internal/tool"
	"github.com/loupe-ai/loupe/pkg/types"
)

func TestBuildSystemPrompt(t *testing.T) {
	session := newTestSession()
	session.Context = []types.ContextItem{
		{Name: "finding", Content: "water is wet", Source: "https://example.com"},
	}

	registry := tool.DefaultRegistry(nil)
	prompt := buildSystemPrompt(session, registry.List())

	assert.Contains(t, prompt, "test goal")
	assert.Contains(t, prompt, "- search:")
	assert.Contains(t, prompt, "- browse:")
	assert.Contains(t, prompt, "- save_context:")
	assert.Contains(t, prompt, "water is wet")
	assert.Contains(t, prompt, "https://example.com")
	assert.Contains(t, prompt, `"is_final"`)
}

func TestBuildSystemPromptCustomPrelude(t *testing.T) {
	session := newTestSession()
	custom := "You are a pirate researcher."
	session.SystemMessage = &custom

	prompt := buildSystemPrompt(session, nil)
	assert.Contains(t, prompt, custom)
	assert.NotContains(t, prompt, defaultSystemMessage)
}

func TestBuildTurnMessages(t *testing.T) {
	session := newTestSession()
	session.History = []types.ConversationEntry{
		{Sender: types.SenderUser, Message: "find it", Timestamp: time.Now()},
		{Sender: types.SenderAgent, Message: "on it", Timestamp: time.Now()},
		{
			Sender:     types.SenderTool,
			Message:    `{"tool_name":"search","response":{}}`,
			Timestamp:  time.Now(),
			ToolChoice: &types.ToolChoice{Name: "search"},
		},
		{Sender: types.SenderSystem, Message: `{"error":"rate limited"}`, Timestamp: time.Now()},
	}

	messages := buildTurnMessages(session, nil)
	require.Len(t, messages, 5)

	assert.Equal(t, schema.System, messages[0].Role)
	assert.Equal(t, schema.User, messages[1].Role)
	assert.Equal(t, "find it", messages[1].Content)
	assert.Equal(t, schema.Assistant, messages[2].Role)
	assert.Equal(t, schema.User, messages[3].Role)
	assert.Contains(t, messages[3].Content, "[search result]")
	assert.Contains(t, messages[4].Content, "[system]")
}

func TestUserEntryWithAttachments(t *testing.T) {
	entry := types.ConversationEntry{
		Sender:  types.SenderUser,
		Message: "analyze this",
		Attachments: []types.Attachment{
			{FileName: "report.pdf", ContentType: "application/pdf", URL: "https://example.com/report.pdf"},
		},
	}

	msg := entryToMessage(entry)
	assert.Contains(t, msg.Content, "analyze this")
	assert.Contains(t, msg.Content, "report.pdf")
	assert.Contains(t, msg.Content, "https://example.com/report.pdf")
}
