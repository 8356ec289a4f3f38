package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	perrors "github.com/p-blackswan/shinoa-bot/internal/errors"
)

const (
	geminiService          = "gemini"
	defaultGeminiModel     = "gemini-2.5-flash"
	defaultGeminiMaxTokens = 1024
)

// contentGenerator is the slice of *genai.Models the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient implements Generator on the Gemini API.
type GeminiClient struct {
	models      contentGenerator
	model       string
	maxTokens   int32
	temperature float32
	logger      zerolog.Logger
}

// GeminiOption configures the client.
type GeminiOption func(*GeminiClient)

func WithModel(model string) GeminiOption {
	return func(c *GeminiClient) {
		if model != "" {
			c.model = strings.TrimPrefix(model, "models/")
		}
	}
}

func WithMaxTokens(n int) GeminiOption {
	return func(c *GeminiClient) {
		if n > 0 {
			c.maxTokens = int32(n)
		}
	}
}

func WithTemperature(t float32) GeminiOption {
	return func(c *GeminiClient) { c.temperature = t }
}

func WithLogger(l zerolog.Logger) GeminiOption {
	return func(c *GeminiClient) { c.logger = l.With().Str("component", "llm.gemini").Logger() }
}

// NewGeminiClient creates a client authenticated with an API key.
func NewGeminiClient(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w: api key is empty", perrors.ErrInvalidInput)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return newGeminiClient(client.Models, opts...), nil
}

func newGeminiClient(models contentGenerator, opts ...GeminiOption) *GeminiClient {
	c := &GeminiClient{
		models:      models,
		model:       defaultGeminiModel,
		maxTokens:   defaultGeminiMaxTokens,
		temperature: 0.9,
		logger:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *GeminiClient) ModelID() string { return c.model }

// Generate sends the persona, history and new turn and returns the reply text.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	temp := c.temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: c.maxTokens,
	}
	if req.Persona != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.Persona, genai.RoleUser)
	}

	res, err := c.models.GenerateContent(ctx, c.model, toContents(req.Messages()), cfg)
	if err != nil {
		return "", classify(ctx, err)
	}

	text, err := replyText(res)
	if err != nil {
		return "", err
	}

	c.logger.Debug().
		Str("model", c.model).
		Int("history", len(req.History)).
		Int("reply_chars", len(text)).
		Msg("gemini reply received")
	return text, nil
}

func toContents(msgs []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}

func replyText(res *genai.GenerateContentResponse) (string, error) {
	if res == nil || len(res.Candidates) == 0 {
		reason := "no candidates"
		if res != nil && res.PromptFeedback != nil && res.PromptFeedback.BlockReason != "" {
			reason = fmt.Sprintf("prompt blocked: %s", res.PromptFeedback.BlockReason)
		}
		return "", perrors.NewExternal(geminiService, perrors.KindMalformed, 0, errors.New(reason))
	}
	text := strings.TrimSpace(res.Text())
	if text == "" {
		return "", perrors.NewExternal(geminiService, perrors.KindMalformed, 0,
			fmt.Errorf("empty text (finish reason %q)", res.Candidates[0].FinishReason))
	}
	return text, nil
}

// classify maps a transport-level failure to an ExternalServiceError kind.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return perrors.NewExternal(geminiService, perrors.KindTimeout, 0, err)
	}

	code, status := apiErrorStatus(err)
	switch {
	case code == 429 || status == "RESOURCE_EXHAUSTED":
		return perrors.NewExternal(geminiService, perrors.KindQuota, code, err)
	case code == 408 || code == 504 || status == "DEADLINE_EXCEEDED":
		return perrors.NewExternal(geminiService, perrors.KindTimeout, code, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return perrors.NewExternal(geminiService, perrors.KindTimeout, 0, err)
	}
	return perrors.NewExternal(geminiService, perrors.KindTransport, code, err)
}

func apiErrorStatus(err error) (int, string) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Status
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Status
	}
	return 0, ""
}
