package generate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaOptions configures a local Ollama backend.
type OllamaOptions struct {
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Stop        []string
	Timeout     time.Duration
}

// Ollama streams from Ollama's native /api/generate endpoint.
type Ollama struct {
	opts   OllamaOptions
	client *http.Client
}

// NewOllama creates an Ollama provider.
func NewOllama(opts OllamaOptions) *Ollama {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Ollama{opts: opts, client: &http.Client{Timeout: opts.Timeout}}
}

func (o *Ollama) Name() string { return "ollama" }

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	System  string        `json:"system,omitempty"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	NumPredict  int      `json:"num_predict,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaGenerateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Generate reads the newline-delimited JSON stream and yields the running
// concatenation of its response fields.
func (o *Ollama) Generate(ctx context.Context, req *Request) Stream {
	body := ollamaGenerateRequest{
		Model:  o.opts.Model,
		System: req.System,
		Prompt: req.User,
		Stream: true,
		Options: ollamaOptions{
			NumPredict:  o.opts.MaxTokens,
			Temperature: o.opts.Temperature,
			Stop:        o.opts.Stop,
		},
	}
	return NewStream(ctx, func(ctx context.Context, emit EmitFunc) error {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.opts.BaseURL+"/api/generate", bytes.NewReader(data))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}

		var sb strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk ollamaGenerateChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				return fmt.Errorf("failed to parse ollama chunk: %w", err)
			}
			if chunk.Error != "" {
				return fmt.Errorf("ollama API error: %s", chunk.Error)
			}
			if chunk.Response != "" {
				sb.WriteString(chunk.Response)
				if !emit(sb.String()) {
					return nil
				}
			}
			if chunk.Done {
				return nil
			}
		}
		return scanner.Err()
	})
}

// ListModels returns the locally pulled model names from /api/tags.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, o.opts.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to parse ollama tags: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
