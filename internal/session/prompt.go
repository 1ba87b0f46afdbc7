package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/loupe-ai/loupe/internal/tool"
	"github.com/loupe-ai/loupe/pkg/types"
)

// defaultSystemMessage is the prelude used when a session does not set
// its own.
const defaultSystemMessage = `You are a diligent research agent. You work toward the stated research goal step by step, using the available tools to gather evidence, and you answer only when the evidence supports it.`

// responseProtocol instructs the model to reply with a structured
// agent response the turn processor can parse.
const responseProtocol = `Respond with a single JSON object, no surrounding prose:
{
  "user_answer": "<text shown to the user>",
  "agent_reasoning": "<your working notes for this step>",
  "actions": [{"name": "<tool name>", "parameters": {...}}],
  "is_final": <true when user_answer is the final research answer>,
  "title": "<short title, only when is_final>"
}
Rules:
- Request tools through "actions"; their results appear in the next turn.
- When is_final is true, leave "actions" empty.
- Keep "title" under ten words.`

// buildTurnMessages assembles the full prompt for one research turn.
func buildTurnMessages(session *types.Session, tools []tool.Tool) []*schema.Message {
	messages := []*schema.Message{
		schema.SystemMessage(buildSystemPrompt(session, tools)),
	}

	for _, entry := range session.History {
		messages = append(messages, entryToMessage(entry))
	}

	return messages
}

// buildSystemPrompt combines the session prelude, the research goal,
// tool descriptions, saved context, and the response protocol.
func buildSystemPrompt(session *types.Session, tools []tool.Tool) string {
	var b strings.Builder

	if session.SystemMessage != nil && *session.SystemMessage != "" {
		b.WriteString(*session.SystemMessage)
	} else {
		b.WriteString(defaultSystemMessage)
	}
	b.WriteString("\n\n")

	if session.ResearchGoal != nil {
		fmt.Fprintf(&b, "Research goal:\n%s\n\n", *session.ResearchGoal)
	}

	if len(tools) > 0 {
		b.WriteString("Available tools:\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "- %s: %s\n  Parameters (JSON Schema): %s\n",
				t.ID(), firstLine(t.Description()), compactJSON(t.Parameters()))
		}
		b.WriteString("\n")
	}

	if len(session.Context) > 0 {
		b.WriteString("Saved context:\n")
		for _, item := range session.Context {
			fmt.Fprintf(&b, "## %s", item.Name)
			if item.Source != "" {
				fmt.Fprintf(&b, " (source: %s)", item.Source)
			}
			fmt.Fprintf(&b, "\n%s\n\n", item.Content)
		}
	}

	b.WriteString(responseProtocol)
	return b.String()
}

// entryToMessage maps a conversation entry onto a chat message. Tool
// results and system notes go back to the model as user-role messages.
func entryToMessage(entry types.ConversationEntry) *schema.Message {
	switch entry.Sender {
	case types.SenderAgent, types.SenderAssistant:
		return schema.AssistantMessage(entry.Message, nil)
	case types.SenderTool:
		name := "tool"
		if entry.ToolChoice != nil {
			name = entry.ToolChoice.Name
		}
		return schema.UserMessage(fmt.Sprintf("[%s result]\n%s", name, entry.Message))
	case types.SenderSystem:
		return schema.UserMessage(fmt.Sprintf("[system]\n%s", entry.Message))
	default:
		msg := entry.Message
		if len(entry.Attachments) > 0 {
			msg = formatAttachments(msg, entry.Attachments)
		}
		return schema.UserMessage(msg)
	}
}

// formatAttachments lists attachment references under the user text.
func formatAttachments(message string, attachments []types.Attachment) string {
	var b strings.Builder
	b.WriteString(message)
	b.WriteString("\n\nAttachments:\n")
	for _, a := range attachments {
		fmt.Fprintf(&b, "- %s (%s): %s\n", a.FileName, a.ContentType, a.URL)
	}
	return b.String()
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
