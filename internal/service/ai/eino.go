package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/soulbot/soulbot/backend/internal/model/chat"
)

// EinoInference runs turns through an eino chain ending in a tool-bound chat model.
type EinoInference struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	logger logrus.FieldLogger
}

// NewEinoInference binds the function tools to chatModel and compiles the prompt chain.
func NewEinoInference(ctx context.Context, chatModel model.ChatModel, logger logrus.FieldLogger) (*EinoInference, error) {
	if err := chatModel.BindTools(einoTools()); err != nil {
		return nil, fmt.Errorf("bind tools: %w", err)
	}

	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile chat chain: %w", err)
	}

	return &EinoInference{chain: runnable, logger: logger.WithField("component", "eino")}, nil
}

// Complete implements the session inference contract.
func (e *EinoInference) Complete(ctx context.Context, turns []chat.Turn) (chat.Turn, error) {
	system, history := splitSystem(turns)
	resp, err := e.chain.Invoke(ctx, map[string]any{
		"system":  system,
		"history": toEinoMessages(history),
	})
	if err != nil {
		return chat.Turn{}, fmt.Errorf("%w: %v", ErrInference, err)
	}

	reply := fromEinoMessage(resp)
	e.logger.WithFields(logrus.Fields{"length": len(resp.Content), "calls": len(reply.Calls)}).Debug("generated reply")
	return reply, nil
}

func einoTools() []*schema.ToolInfo {
	specs := Tools()
	infos := make([]*schema.ToolInfo, 0, len(specs))
	for _, spec := range specs {
		params := make(map[string]*schema.ParameterInfo, len(spec.Params))
		for _, p := range spec.Params {
			params[p.Name] = &schema.ParameterInfo{Type: schema.String, Desc: p.Description, Required: p.Required}
		}
		infos = append(infos, &schema.ToolInfo{
			Name:        spec.Name,
			Desc:        spec.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return infos
}

func toEinoMessages(turns []chat.Turn) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			images := turn.Images()
			if len(images) == 0 {
				msgs = append(msgs, schema.UserMessage(turn.Text()))
				continue
			}
			parts := []schema.ChatMessagePart{{Type: schema.ChatMessagePartTypeText, Text: turn.Text()}}
			for _, img := range images {
				parts = append(parts, schema.ChatMessagePart{
					Type:     schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{URL: img.DataURL()},
				})
			}
			msgs = append(msgs, &schema.Message{Role: schema.User, MultiContent: parts})
		case chat.RoleAssistant:
			if turn.Text() == "" {
				continue
			}
			msgs = append(msgs, schema.AssistantMessage(turn.Text(), nil))
		case chat.RoleSystem:
			msgs = append(msgs, schema.SystemMessage(turn.Text()))
		}
	}
	return msgs
}

func fromEinoMessage(msg *schema.Message) chat.Turn {
	turn := chat.NewTurn(chat.RoleAssistant)
	if msg == nil {
		return turn
	}
	if msg.Content != "" {
		turn.Parts = append(turn.Parts, chat.TextPart(msg.Content))
	}
	for _, call := range msg.ToolCalls {
		turn.Calls = append(turn.Calls, chat.FunctionCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: rawArguments(call.Function.Arguments),
		})
	}
	return turn
}
