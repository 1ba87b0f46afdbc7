package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/oklog/ulid/v2"

	"github.com/loupe-ai/loupe/pkg/types"
)

const saveContextDescription = `Saves a piece of information to the session's persistent context.

Usage notes:
  - Saved items survive history compaction and stay visible to later turns
  - Use it for facts, findings, and source references worth keeping
  - Give each item a short descriptive name`

// SaveContextTool appends context items to the owning session.
type SaveContextTool struct{}

// SaveContextInput represents the input for the save_context tool.
type SaveContextInput struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

// NewSaveContextTool creates a new save_context tool.
func NewSaveContextTool() *SaveContextTool {
	return &SaveContextTool{}
}

func (t *SaveContextTool) ID() string          { return "save_context" }
func (t *SaveContextTool) Description() string { return saveContextDescription }

func (t *SaveContextTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {
				"type": "string",
				"description": "Short descriptive name for the context item"
			},
			"content": {
				"type": "string",
				"description": "The information to save"
			},
			"source": {
				"type": "string",
				"description": "Optional origin of the information, e.g. a URL"
			}
		},
		"required": ["name", "content"]
	}`)
}

func (t *SaveContextTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*types.FullToolResponse, *types.UserToolResponse, error) {
	var params SaveContextInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, nil, fmt.Errorf("invalid input: %w", err)
	}

	if strings.TrimSpace(params.Name) == "" {
		return nil, nil, fmt.Errorf("name must not be empty")
	}
	if strings.TrimSpace(params.Content) == "" {
		return nil, nil, fmt.Errorf("content must not be empty")
	}
	if toolCtx == nil || toolCtx.AddContext == nil {
		return nil, nil, fmt.Errorf("no session to save context to")
	}

	item := types.ContextItem{
		ID:      ulid.Make().String(),
		Name:    params.Name,
		Content: params.Content,
		Source:  params.Source,
		AddedAt: time.Now().UTC(),
	}

	if err := toolCtx.AddContext(item); err != nil {
		return nil, nil, fmt.Errorf("failed to save context: %w", err)
	}

	payload, err := json.Marshal(map[string]string{
		"id":   item.ID,
		"name": item.Name,
	})
	if err != nil {
		return nil, nil, err
	}

	icon := "bookmark"
	return &types.FullToolResponse{
			ToolName: t.ID(),
			Response: payload,
		}, &types.UserToolResponse{
			ToolName: t.ID(),
			Summary:  fmt.Sprintf("Saved context item %q", item.Name),
			Icon:     &icon,
		}, nil
}

func (t *SaveContextTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
