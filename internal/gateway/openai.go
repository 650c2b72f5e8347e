package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/guardhq/renewal-workflow/internal/workflow"
)

const extractionSystemPrompt = `You are a document analyst for a security-guard licensing service. ` +
	`Extract the requested fields from the supplied document image. ` +
	`Always respond with valid JSON and nothing else.`

const intentSystemPrompt = `You classify short SMS replies from security guards going through ` +
	`license renewal. Always respond with valid JSON and nothing else.`

// OpenAIGateway implements Gateway using the OpenAI chat completion API
type OpenAIGateway struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      *zap.Logger
}

// NewOpenAIGateway creates a new OpenAI-backed gateway
func NewOpenAIGateway(apiKey, model string, temperature float32, maxTokens int, timeout time.Duration, logger *zap.Logger) *OpenAIGateway {
	return &OpenAIGateway{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
		logger:      logger,
	}
}

type extractionResponse struct {
	LicenseNumber  string  `json:"license_number"`
	LicenseType    string  `json:"license_type"`
	ExpirationDate string  `json:"expiration_date"`
	State          string  `json:"state"`
	HolderName     string  `json:"holder_name"`
	Confidence     float64 `json:"confidence"`
}

type intentResponse struct {
	Intent        string            `json:"intent"`
	Confidence    float64           `json:"confidence"`
	ExtractedInfo map[string]string `json:"extracted_info,omitempty"`
}

// Extract pulls structured license fields out of a document URL
func (g *OpenAIGateway) Extract(ctx context.Context, documentURL, documentType string) workflow.ExtractionOutcome {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`Extract the following fields from this %s document:
license_number, license_type, expiration_date (YYYY-MM-DD), state (two-letter code), holder_name.
Also include a confidence between 0 and 1 for the extraction as a whole.
Respond with a single JSON object using exactly those keys.`, documentType)

	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: extractionSystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: documentURL},
					},
				},
			},
		},
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		g.logger.Warn("Extraction call failed", zap.String("document_type", documentType), zap.Error(err))
		return workflow.ExtractionOutcome{Kind: workflow.ResultTransientError}
	}

	if len(resp.Choices) == 0 {
		g.logger.Warn("Extraction returned no choices")
		return workflow.ExtractionOutcome{Kind: workflow.ResultTransientError}
	}

	content := resp.Choices[0].Message.Content

	var parsed extractionResponse
	if err := unmarshalResponse(content, &parsed); err != nil {
		g.logger.Warn("Failed to parse extraction response",
			zap.Error(err),
			zap.String("content", content))
		return workflow.ExtractionOutcome{Kind: workflow.ResultPermanentError, Raw: content}
	}

	outcome := workflow.ExtractionOutcome{
		Kind:       workflow.ResultSuccess,
		Confidence: parsed.Confidence,
		Fields: workflow.ExtractedFields{
			LicenseNumber:  parsed.LicenseNumber,
			LicenseType:    parsed.LicenseType,
			ExpirationDate: parsed.ExpirationDate,
			State:          parsed.State,
			HolderName:     parsed.HolderName,
		},
		Raw: content,
	}
	if parsed.Confidence <= 0 {
		outcome.Kind = workflow.ResultLowConfidence
	}

	g.logger.Info("Document extraction completed",
		zap.String("document_type", documentType),
		zap.Float64("confidence", parsed.Confidence))

	return outcome
}

// ClassifyIntent interprets a free-text employee message
func (g *OpenAIGateway) ClassifyIntent(ctx context.Context, text string, stateContext workflow.State) workflow.IntentOutcome {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`The guard's renewal workflow is currently in state %q.
They replied: %q
Classify the reply as one of: confirm, reject, question, help, cancel, unknown.
Respond with a JSON object: {"intent": "...", "confidence": 0.0-1.0, "extracted_info": {}}`,
		stateContext, text)

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: intentSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		g.logger.Warn("Intent classification call failed", zap.Error(err))
		return workflow.IntentOutcome{Intent: workflow.IntentUnknown}
	}

	if len(resp.Choices) == 0 {
		g.logger.Warn("Intent classification returned no choices")
		return workflow.IntentOutcome{Intent: workflow.IntentUnknown}
	}

	content := resp.Choices[0].Message.Content

	var parsed intentResponse
	if err := unmarshalResponse(content, &parsed); err != nil {
		g.logger.Warn("Failed to parse intent response",
			zap.Error(err),
			zap.String("content", content))
		return workflow.IntentOutcome{Intent: workflow.IntentUnknown, Raw: content}
	}

	intent := workflow.Intent(parsed.Intent)
	switch intent {
	case workflow.IntentConfirm, workflow.IntentReject, workflow.IntentQuestion,
		workflow.IntentHelp, workflow.IntentCancel:
	default:
		intent = workflow.IntentUnknown
	}

	g.logger.Info("Intent classified",
		zap.String("intent", string(intent)),
		zap.Float64("confidence", parsed.Confidence))

	return workflow.IntentOutcome{
		Intent:        intent,
		Confidence:    parsed.Confidence,
		ExtractedInfo: parsed.ExtractedInfo,
		Raw:           content,
	}
}

// unmarshalResponse parses a JSON response, falling back to extracting
// the first JSON object when the model wraps it in prose or fences.
func unmarshalResponse(content string, dst any) error {
	if err := json.Unmarshal([]byte(content), dst); err == nil {
		return nil
	}

	if jsonStr := extractJSON(content); jsonStr != "" {
		return json.Unmarshal([]byte(jsonStr), dst)
	}

	return fmt.Errorf("no JSON object found in response")
}

func extractJSON(content string) string {
	start := findJSONStart(content)
	if start < 0 {
		return ""
	}
	end := findJSONEnd(content, start)
	if end <= start {
		return ""
	}
	return content[start:end]
}

func findJSONStart(content string) int {
	for i := 0; i < len(content); i++ {
		if content[i] == '{' {
			return i
		}
	}
	return -1
}

func findJSONEnd(content string, start int) int {
	if start < 0 || start >= len(content) || content[start] != '{' {
		return -1
	}

	braceCount := 0
	inString := false
	escapeNext := false

	for i := start; i < len(content); i++ {
		char := content[i]

		if escapeNext {
			escapeNext = false
			continue
		}

		if char == '\\' {
			escapeNext = true
			continue
		}

		if char == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		if char == '{' {
			braceCount++
		} else if char == '}' {
			braceCount--
			if braceCount == 0 {
				return i + 1
			}
		}
	}

	return -1
}
