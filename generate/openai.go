package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIOptions configures an OpenAI-compatible chat completions backend.
type OpenAIOptions struct {
	// Name is reported by Provider.Name ("openai", "grok", "gemini").
	Name        string
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Stop        []string
	Timeout     time.Duration
	// Attribution sends OpenRouter app attribution headers.
	Attribution bool
}

// OpenAI streams chat completions from any OpenAI-compatible endpoint.
type OpenAI struct {
	opts   OpenAIOptions
	client openai.Client
}

// NewOpenAI creates a provider for the given endpoint.
func NewOpenAI(opts OpenAIOptions) *OpenAI {
	if opts.Name == "" {
		opts.Name = "openai"
	}
	clientOpts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
		option.WithMaxRetries(0),
	}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")+"/"))
	}
	if opts.Attribution {
		clientOpts = append(clientOpts,
			option.WithHeader("X-Title", "inkling - inline ghost-text completion"),
			option.WithHeader("HTTP-Referer", "https://github.com/Paranoid-AF/inkling"),
		)
	}
	return &OpenAI{opts: opts, client: openai.NewClient(clientOpts...)}
}

func (o *OpenAI) Name() string { return o.opts.Name }

func (o *OpenAI) params(req *Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.opts.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
	}
	if o.opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.opts.MaxTokens))
	}
	if o.opts.Temperature > 0 {
		params.Temperature = openai.Float(o.opts.Temperature)
	}
	if len(o.opts.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfChatCompletionNewsStopArray: o.opts.Stop}
	}
	return params
}

// Generate streams content deltas and yields their running concatenation.
func (o *OpenAI) Generate(ctx context.Context, req *Request) Stream {
	params := o.params(req)
	return NewStream(ctx, func(ctx context.Context, emit EmitFunc) error {
		stream := o.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		var sb strings.Builder
		for stream.Next() {
			chunk := stream.Current()
			for _, choice := range chunk.Choices {
				if choice.Index != 0 || choice.Delta.Content == "" {
					continue
				}
				sb.WriteString(choice.Delta.Content)
				if !emit(sb.String()) {
					return nil
				}
			}
		}
		if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%s stream: %w", o.opts.Name, err)
		}
		return nil
	})
}

// ListModels returns the ids served by the endpoint's /models route.
func (o *OpenAI) ListModels(ctx context.Context) ([]string, error) {
	page, err := o.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s list models: %w", o.opts.Name, err)
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, strings.TrimPrefix(m.ID, "models/"))
	}
	return ids, nil
}
