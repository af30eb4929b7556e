package llmservice

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"guarded-rag/internal/config"
)

// OpenAIClient streams chat completions from an OpenAI-compatible API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(chatConfig *config.ChatConfig, apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai api key", config.ErrMissingCredential)
	}
	cfg := openai.DefaultConfig(strings.TrimPrefix(apiKey, "Bearer "))
	if chatConfig.BaseURL != "" {
		cfg.BaseURL = chatConfig.BaseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: time.Duration(chatConfig.TimeoutSecs) * time.Second}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  chatConfig.Model,
	}, nil
}

func (c *OpenAIClient) Stream(ctx context.Context, messages []Message) (FragmentStream, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Stream:   true,
		Messages: make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, msg := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	log.Debug().Str("model", c.model).Int("messages", len(messages)).Msg("Starting chat completion stream")
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create openai chat completion stream: %w", err)
	}
	return &openAIStream{stream: stream}, nil
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

// Recv joins the deltas of every choice in the next chunk.
func (s *openAIStream) Recv() (Fragment, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		return Fragment{}, err
	}
	var text strings.Builder
	for _, choice := range resp.Choices {
		text.WriteString(choice.Delta.Content)
	}
	return Fragment{Text: text.String()}, nil
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}
