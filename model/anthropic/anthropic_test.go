package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

func history() []core.Message {
	return []core.Message{
		core.SystemMessage("persona"),
		core.UserMessage("tell me about Yoda"),
		core.ToolCallMessage("Supervisor", core.ToolCall{ID: "toolu_1", Name: "transfer_to_Research", Arguments: `{"reason":"needs lore"}`}),
		core.ToolResultMessage("toolu_1", "transfer_to_Research", "transferred"),
		core.UserMessage("please hurry"),
		core.AssistantMessage("Research", "Yoda is a Jedi Master."),
	}
}

func toJSON(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestBuildMessages_MergesSameSideTurns(t *testing.T) {
	msgs := buildMessages(history())

	require.Len(t, msgs, 5)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))
	assert.Len(t, msgs[2].Content, 2, "tool result and follow-up user text share a turn")
	assert.Equal(t, "assistant", string(msgs[3].Role))
	assert.Equal(t, "user", string(msgs[4].Role))
}

func TestBuildMessages_ReportIsNotLastTurn(t *testing.T) {
	msgs := buildMessages([]core.Message{
		core.SystemMessage("persona"),
		core.UserMessage("tell me about Yoda"),
		core.ToolCallMessage("Supervisor", core.ToolCall{ID: "toolu_1", Name: "transfer_to_ResearchAgent", Arguments: `{}`}),
		core.ToolResultMessage("toolu_1", "transfer_to_ResearchAgent", "Transferred to ResearchAgent."),
		core.AssistantMessage("ResearchAgent", "Yoda is a legendary Jedi Master."),
	})

	require.Len(t, msgs, 5)
	assert.Equal(t, "assistant", string(msgs[3].Role))
	last := toJSON(t, msgs[4])
	assert.Equal(t, "user", last["role"])
	content := last["content"].([]any)
	require.Len(t, content, 1)
	assert.Equal(t, "ResearchAgent has reported back. Continue from here.", content[0].(map[string]any)["text"])
}

func TestBuildMessages_EndsOnUserTurnUnchanged(t *testing.T) {
	msgs := buildMessages([]core.Message{
		core.SystemMessage("persona"),
		core.UserMessage("hi"),
		core.AssistantMessage("Bot", "hello"),
		core.UserMessage("who is Yoda?"),
	})

	require.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[2].Role))
	assert.Len(t, msgs[2].Content, 1)
}

func TestBuildParams_ToolChoiceAndSystem(t *testing.T) {
	m := NewModelFromClient(nil)
	req := model.Request{
		Instructions: "You are the research agent.",
		Messages:     history(),
		Tools: []model.ToolDefinition{{Type: "function", Function: model.FunctionDefinition{
			Name:        "WookiepediaTool",
			Description: "Searches Wookieepedia",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
				"required":   []any{"query"},
			},
		}}},
		ToolChoice: model.ToolChoice{Mode: model.ToolChoiceNamed, Name: "WookiepediaTool"},
	}

	params := toJSON(t, m.buildParams(req))

	system := params["system"].([]any)
	require.Len(t, system, 2)
	assert.Equal(t, "You are the research agent.", system[0].(map[string]any)["text"])

	choice := params["tool_choice"].(map[string]any)
	assert.Equal(t, "tool", choice["type"])
	assert.Equal(t, "WookiepediaTool", choice["name"])

	tool := params["tools"].([]any)[0].(map[string]any)
	assert.Equal(t, "Searches Wookieepedia", tool["description"])
	assert.Equal(t, []any{"query"}, tool["input_schema"].(map[string]any)["required"])
}

func TestBuildParams_NoneWithholdsTools(t *testing.T) {
	m := NewModelFromClient(nil)
	req := model.Request{
		Messages:   history(),
		Tools:      []model.ToolDefinition{{Type: "function", Function: model.FunctionDefinition{Name: "x"}}},
		ToolChoice: model.ToolChoice{Mode: model.ToolChoiceNone},
	}

	params := toJSON(t, m.buildParams(req))

	assert.NotContains(t, params, "tools")
	assert.NotContains(t, params, "tool_choice")
}

func TestGenerate_ToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-sonnet-20241022",
			"stop_reason": "tool_use", "stop_sequence": null,
			"content": [
				{"type": "text", "text": "Looking it up."},
				{"type": "tool_use", "id": "toolu_9", "name": "WookiepediaTool", "input": {"query": "Yoda"}}
			],
			"usage": {"input_tokens": 12, "output_tokens": 8}
		}`)
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = srv.URL
	})

	resp, err := model.Complete(context.Background(), m, model.Request{Messages: history()})

	require.NoError(t, err)
	assert.Equal(t, "Looking it up.", resp.Message.Content)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "toolu_9", resp.Message.ToolCalls[0].ID)
	assert.JSONEq(t, `{"query":"Yoda"}`, resp.Message.ToolCalls[0].Arguments)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 20, resp.Usage.TotalTokens)
}
