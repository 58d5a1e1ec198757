package ai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/soulbot/soulbot/backend/internal/model/chat"
)

// AzureConfig selects an Azure OpenAI deployment.
type AzureConfig struct {
	APIKey     string
	Endpoint   string
	APIVersion string
	Deployment string
}

type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// AzureInference calls an Azure OpenAI chat deployment with function tools.
type AzureInference struct {
	client     completionClient
	deployment string
	tools      []openai.Tool
	logger     logrus.FieldLogger
}

// NewAzureInference builds a go-openai client configured for Azure.
func NewAzureInference(cfg AzureConfig, logger logrus.FieldLogger) (*AzureInference, error) {
	if cfg.APIKey == "" || cfg.Endpoint == "" {
		return nil, fmt.Errorf("azure openai: api key and endpoint are required")
	}

	clientConfig := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	if cfg.APIVersion != "" {
		clientConfig.APIVersion = cfg.APIVersion
	}
	deployment := cfg.Deployment
	clientConfig.AzureModelMapperFunc = func(string) string { return deployment }

	return newAzureInference(openai.NewClientWithConfig(clientConfig), deployment, logger), nil
}

func newAzureInference(client completionClient, deployment string, logger logrus.FieldLogger) *AzureInference {
	return &AzureInference{
		client:     client,
		deployment: deployment,
		tools:      openAITools(),
		logger:     logger.WithField("component", "azure-openai"),
	}
}

// Complete implements the session inference contract.
func (a *AzureInference) Complete(ctx context.Context, turns []chat.Turn) (chat.Turn, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    a.deployment,
		Messages: toOpenAIMessages(turns),
		Tools:    a.tools,
	})
	if err != nil {
		return chat.Turn{}, fmt.Errorf("%w: %v", ErrInference, err)
	}
	if len(resp.Choices) == 0 {
		return chat.Turn{}, fmt.Errorf("%w: empty choices", ErrInference)
	}

	msg := resp.Choices[0].Message
	turn := chat.NewTurn(chat.RoleAssistant)
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

	a.logger.WithFields(logrus.Fields{
		"finish_reason": resp.Choices[0].FinishReason,
		"tokens":        resp.Usage.TotalTokens,
	}).Debug("generated reply")
	return turn, nil
}

func openAITools() []openai.Tool {
	specs := Tools()
	tools := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.jsonSchema(),
			},
		})
	}
	return tools
}

func toOpenAIMessages(turns []chat.Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, turn := range turns {
		role := openai.ChatMessageRoleUser
		switch turn.Role {
		case chat.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case chat.RoleAssistant:
			if turn.Text() == "" {
				continue
			}
			role = openai.ChatMessageRoleAssistant
		}

		images := turn.Images()
		if turn.Role != chat.RoleUser || len(images) == 0 {
			msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: turn.Text()})
			continue
		}

		parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: turn.Text()}}
		for _, img := range images {
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: img.DataURL(), Detail: openai.ImageURLDetailAuto},
			})
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, MultiContent: parts})
	}
	return msgs
}
