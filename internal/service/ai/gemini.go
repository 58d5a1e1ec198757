package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"github.com/soulbot/soulbot/backend/internal/model/chat"
)

const DefaultGeminiModel = "gemini-2.0-flash"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiInference calls the Gemini API with function declarations.
type GeminiInference struct {
	models contentGenerator
	model  string
	tools  []*genai.Tool
	logger logrus.FieldLogger
}

// NewGeminiInference creates a Gemini API client.
func NewGeminiInference(ctx context.Context, apiKey, modelName string, logger logrus.FieldLogger) (*GeminiInference, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	return newGeminiInference(client.Models, modelName, logger), nil
}

func newGeminiInference(models contentGenerator, modelName string, logger logrus.FieldLogger) *GeminiInference {
	return &GeminiInference{
		models: models,
		model:  modelName,
		tools:  geminiTools(),
		logger: logger.WithField("component", "gemini"),
	}
}

// Complete implements the session inference contract.
func (g *GeminiInference) Complete(ctx context.Context, turns []chat.Turn) (chat.Turn, error) {
	system, history := splitSystem(turns)

	cfg := &genai.GenerateContentConfig{Tools: g.tools}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.models.GenerateContent(ctx, g.model, toGeminiContents(history), cfg)
	if err != nil {
		return chat.Turn{}, fmt.Errorf("%w: %v", ErrInference, err)
	}

	turn := chat.NewTurn(chat.RoleAssistant)
	if text := resp.Text(); text != "" {
		turn.Parts = append(turn.Parts, chat.TextPart(text))
	}
	for _, call := range resp.FunctionCalls() {
		args, err := json.Marshal(call.Args)
		if err != nil {
			return chat.Turn{}, fmt.Errorf("%w: encode call args: %v", ErrInference, err)
		}
		turn.Calls = append(turn.Calls, chat.FunctionCall{ID: call.ID, Name: call.Name, Arguments: args})
	}

	g.logger.WithField("calls", len(turn.Calls)).Debug("generated reply")
	return turn, nil
}

func geminiTools() []*genai.Tool {
	specs := Tools()
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		props := make(map[string]*genai.Schema, len(spec.Params))
		var required []string
		for _, p := range spec.Params {
			props[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGeminiContents(turns []chat.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := genai.Role(genai.RoleUser)
		if turn.Role == chat.RoleAssistant {
			role = genai.RoleModel
		}

		parts := []*genai.Part{}
		if text := turn.Text(); text != "" {
			parts = append(parts, genai.NewPartFromText(text))
		}
		for _, img := range turn.Images() {
			parts = append(parts, genai.NewPartFromBytes(img.Data, mimeOrDefault(img.MIMEType)))
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents
}

func mimeOrDefault(mime string) string {
	if mime == "" {
		return "image/jpeg"
	}
	return mime
}
