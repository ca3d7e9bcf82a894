// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"sme-plug-go/internal/config"
	"sme-plug-go/pkg/log"
)

// ErrEmptyCompletion is returned when the model answers with no choices or blank content.
var ErrEmptyCompletion = errors.New("llm returned an empty completion")

// Client defines the interface for an LLM client.
type Client interface {
	// ChatMessages sends role-based messages with optional generation params and returns the full answer.
	ChatMessages(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *openai.Client
}

// NewClient creates a new OpenAI-compatible chat client. BaseURL may point at any
// provider that implements the /chat/completions contract.
func NewClient(cfg config.LLMConfig) Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(oc),
	}
}

// DefaultParams builds generation params from config, nil when nothing is set.
func DefaultParams(cfg config.LLMGenerationConfig) *GenerationParams {
	var gp GenerationParams
	if cfg.Temperature != 0 {
		t := cfg.Temperature
		gp.Temperature = &t
	}
	if cfg.TopP != 0 {
		p := cfg.TopP
		gp.TopP = &p
	}
	if cfg.MaxTokens != 0 {
		m := cfg.MaxTokens
		gp.MaxTokens = &m
	}
	if gp.Temperature == nil && gp.TopP == nil && gp.MaxTokens == nil {
		return nil
	}
	return &gp
}

func (c *openAICompatibleClient) ChatMessages(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	// 传参优先，其次使用全局配置
	if gen == nil {
		gen = DefaultParams(c.cfg.Generation)
	}
	if gen != nil {
		if gen.Temperature != nil {
			req.Temperature = float32(*gen.Temperature)
		}
		if gen.TopP != nil {
			req.TopP = float32(*gen.TopP)
		}
		if gen.MaxTokens != nil {
			req.MaxTokens = *gen.MaxTokens
		}
	}

	log.Debugf("[LLMClient] calling chat completion, model: %s, messages: %d", c.cfg.Model, len(messages))
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	log.Debugf("[LLMClient] chat completion finished, finish_reason: %s", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
