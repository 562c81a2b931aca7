package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go-aid-analyzer/internal/logger"

	"github.com/sirupsen/logrus"
)

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       *string     `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateContentRequest struct {
	Contents []content `json:"contents"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
	ModelVersion string `json:"modelVersion,omitempty"`
}

type errorResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// GeminiOptions configures a GeminiClient.
type GeminiOptions struct {
	APIKey          string
	Model           string
	BaseURL         string
	Timeout         time.Duration
	MaxResponseSize int64
}

// GeminiClient calls the generateContent REST endpoint directly.
type GeminiClient struct {
	opts   GeminiOptions
	client *http.Client
}

// NewGeminiClient builds a client with its own pooled transport. The
// per-call deadline comes from opts.Timeout, not from http.Client.
func NewGeminiClient(opts GeminiOptions) *GeminiClient {
	if opts.MaxResponseSize <= 0 {
		opts.MaxResponseSize = 4 << 20
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,

		// Concurrent analyses all target one host
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:    10 * time.Second,
		ExpectContinueTimeout:  1 * time.Second,
		MaxResponseHeaderBytes: 64 << 10,
	}

	return &GeminiClient{
		opts:   opts,
		client: &http.Client{Transport: transport},
	}
}

// Name identifies the generator in logs and metrics.
func (g *GeminiClient) Name() string {
	return "gemini"
}

// HasCredential reports whether an API key was configured.
func (g *GeminiClient) HasCredential() bool {
	return g.opts.APIKey != ""
}

func (g *GeminiClient) endpoint() string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		g.opts.BaseURL, url.PathEscape(g.opts.Model), url.QueryEscape(g.opts.APIKey))
}

// Generate sends one prompt+image request. No retries are attempted.
func (g *GeminiClient) Generate(ctx context.Context, payload GenerationPayload) (*GenerationResult, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	prompt := payload.Prompt
	body, err := json.Marshal(generateContentRequest{
		Contents: []content{{
			Parts: []part{
				{Text: &prompt},
				{InlineData: &inlineData{MimeType: payload.Image.MimeType, Data: payload.Image.Data}},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamError{Cause: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		// url.Error would echo the key-bearing URL; keep only the inner error.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, &UpstreamError{Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, g.opts.MaxResponseSize))
	if err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Cause: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var parsed errorResponse
		_ = json.Unmarshal(raw, &parsed)
		upErr := &UpstreamError{StatusCode: resp.StatusCode}
		if parsed.Error != nil {
			upErr.Message = parsed.Error.Message
		}
		return nil, upErr
	}

	var parsed generateContentResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Cause: fmt.Errorf("decode body: %w", err)}
	}

	if len(parsed.Candidates) == 0 {
		if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
			logger.WithFields(logrus.Fields{
				"model":        g.opts.Model,
				"block_reason": parsed.PromptFeedback.BlockReason,
			}).Warn("Upstream blocked the prompt")
			return nil, fmt.Errorf("%w: prompt blocked (%s)", ErrUnexpectedShape, parsed.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("%w: no candidates", ErrUnexpectedShape)
	}

	first := parsed.Candidates[0]
	if len(first.Content.Parts) == 0 || first.Content.Parts[0].Text == nil {
		return nil, fmt.Errorf("%w: first candidate has no text part (finish reason %q)", ErrUnexpectedShape, first.FinishReason)
	}

	model := parsed.ModelVersion
	if model == "" {
		model = g.opts.Model
	}

	return &GenerationResult{
		Text:         *first.Content.Parts[0].Text,
		Model:        model,
		FinishReason: first.FinishReason,
	}, nil
}
