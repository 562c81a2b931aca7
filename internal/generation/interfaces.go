package generation

import (
	"context"
	"errors"
	"fmt"
)

// MimeTypeJPEG is the only image type forwarded upstream.
const MimeTypeJPEG = "image/jpeg"

// ErrUnexpectedShape is returned when the upstream answered successfully but
// the body did not contain a first candidate with text.
var ErrUnexpectedShape = errors.New("upstream response missing candidate text")

// Generator turns a prompt and an image into a text completion.
type Generator interface {
	// Generate blocks until the upstream answers, ctx is done, or the
	// transport fails. A failed call returns *UpstreamError or wraps
	// ErrUnexpectedShape.
	Generate(ctx context.Context, payload GenerationPayload) (*GenerationResult, error)
	Name() string
}

// InlineImage is base64 image data tagged with its MIME type.
type InlineImage struct {
	MimeType string
	Data     string
}

// GenerationPayload is what gets sent upstream for a single analysis.
type GenerationPayload struct {
	Prompt string
	Image  InlineImage
}

// NewPayload pairs a prompt with a JPEG image.
func NewPayload(prompt, imageBase64 string) GenerationPayload {
	return GenerationPayload{
		Prompt: prompt,
		Image: InlineImage{
			MimeType: MimeTypeJPEG,
			Data:     imageBase64,
		},
	}
}

// GenerationResult is a successful completion.
type GenerationResult struct {
	Text         string
	Model        string
	FinishReason string
}

// UpstreamError describes a failed call. StatusCode is 0 when no HTTP
// response was received; Message is empty when the upstream gave none.
type UpstreamError struct {
	StatusCode int
	Message    string
	Cause      error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("upstream http %d: %s", e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("upstream http %d", e.StatusCode)
	case e.Cause != nil:
		return fmt.Sprintf("upstream request failed: %v", e.Cause)
	default:
		return "upstream request failed"
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}
