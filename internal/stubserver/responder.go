package stubserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/chatportal/conversation-core/internal/model"
)

// Responder generates assistant replies and end-of-conversation summaries.
type Responder interface {
	// Reply produces the assistant message paired to one user message given
	// the prior conversation history.
	Reply(ctx context.Context, history []model.Message, content string) (string, error)

	// Summarize produces a short summary of the full conversation.
	Summarize(ctx context.Context, history []model.Message) (string, error)

	// Local reports whether replies come from a locally hosted model.
	Local() bool
}

const systemPrompt = "You are a helpful, concise AI assistant."

// CannedResponder is the deterministic fallback used when no local model is
// configured.
type CannedResponder struct{}

func (CannedResponder) Reply(_ context.Context, history []model.Message, content string) (string, error) {
	return fmt.Sprintf("I hear you. You said: %q (turn %d)", content, len(history)/2+1), nil
}

func (CannedResponder) Summarize(_ context.Context, history []model.Message) (string, error) {
	var topic string
	for _, msg := range history {
		if msg.Sender == model.SenderUser {
			topic = msg.Content
			break
		}
	}
	if topic == "" {
		return "Empty conversation.", nil
	}
	return fmt.Sprintf("Conversation of %d messages, opening with %q.", len(history), topic), nil
}

func (CannedResponder) Local() bool {
	return false
}

// OpenAICompatibleResponder proxies replies to an OpenAI-compatible local
// endpoint such as LM Studio.
type OpenAICompatibleResponder struct {
	client    *openai.Client
	modelName string
}

// NewOpenAICompatibleResponder creates a responder against the given base
// URL. The API key may be empty for local endpoints.
func NewOpenAICompatibleResponder(baseURL, apiKey string) *OpenAICompatibleResponder {
	if apiKey == "" {
		apiKey = "dummy-key"
	}
	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"

	return &OpenAICompatibleResponder{
		client:    openai.NewClientWithConfig(clientConfig),
		modelName: "local-model",
	}
}

func (r *OpenAICompatibleResponder) Reply(ctx context.Context, history []model.Message, content string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Sender == model.SenderAI {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	})

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.modelName,
		Messages:    messages,
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("local model returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (r *OpenAICompatibleResponder) Summarize(ctx context.Context, history []model.Message) (string, error) {
	var b strings.Builder
	for _, msg := range history {
		fmt.Fprintf(&b, "%s: %s\n", msg.Sender, msg.Content)
	}
	prompt := "Summarize this conversation briefly.\n\n" + b.String()

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("local model returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (r *OpenAICompatibleResponder) Local() bool {
	return true
}
