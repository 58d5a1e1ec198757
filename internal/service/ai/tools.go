package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/soulbot/soulbot/backend/internal/model/chat"
)

var ErrInference = errors.New("inference failed")

const (
	FunctionDescribeImage = "describe-image"
	FunctionSendEmail     = "send-email"
)

// ToolParam is one string parameter of a callable function.
type ToolParam struct {
	Name        string
	Description string
	Required    bool
}

// ToolSpec describes a function the model may call. Every backend translates the same list.
type ToolSpec struct {
	Name        string
	Description string
	Params      []ToolParam
}

// Tools lists the functions exposed to the model.
func Tools() []ToolSpec {
	return []ToolSpec{
		{
			Name: FunctionDescribeImage,
			Description: "Called when asked to evaluate something that would require vision capabilities, " +
				"for example an image, video, or the webcam feed.",
			Params: []ToolParam{
				{Name: "user_msg", Description: "The user message that triggered this function", Required: true},
			},
		},
		{
			Name:        FunctionSendEmail,
			Description: "Send an email with the given subject and body to the user.",
			Params: []ToolParam{
				{Name: "to_email", Description: "Recipient email address", Required: true},
				{Name: "subject", Description: "Email subject line", Required: true},
				{Name: "body_content", Description: "Plain text body of the email", Required: true},
			},
		},
	}
}

// jsonSchema renders the parameters as a JSON schema object for providers that take raw schemas.
func (t ToolSpec) jsonSchema() map[string]any {
	props := make(map[string]any, len(t.Params))
	required := make([]string, 0, len(t.Params))
	for _, p := range t.Params {
		props[p.Name] = map[string]any{"type": "string", "description": p.Description}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{"type": "object", "properties": props, "required": required}
}

// DecodeArguments parses a call's JSON arguments into string values.
func DecodeArguments(raw json.RawMessage) (map[string]string, error) {
	out := map[string]string{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return out, nil
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("decode function arguments: %w", err)
	}
	for k, v := range generic {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out, nil
}

func rawArguments(s string) json.RawMessage {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}

// splitSystem returns the leading system turn's text and the remaining turns.
func splitSystem(turns []chat.Turn) (string, []chat.Turn) {
	if len(turns) > 0 && turns[0].Role == chat.RoleSystem {
		return turns[0].Text(), turns[1:]
	}
	return "", turns
}
