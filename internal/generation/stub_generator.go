package generation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// StubGenerator is a deterministic, no-network generator for local runs and
// CI. Output depends only on the image data.
type StubGenerator struct{}

func NewStubGenerator() *StubGenerator { return &StubGenerator{} }

func (s *StubGenerator) Name() string { return "stub" }

func (s *StubGenerator) Generate(ctx context.Context, payload GenerationPayload) (*GenerationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &UpstreamError{Cause: err}
	}

	sum := sha256.Sum256([]byte(payload.Image.Data))
	short := hex.EncodeToString(sum[:4])

	text := fmt.Sprintf("<ul>\n<li>Warm waterproof jacket (ref %s)</li>\n<li>Hot meal voucher</li>\n</ul>", short)
	return &GenerationResult{
		Text:         text,
		Model:        "stub",
		FinishReason: "STOP",
	}, nil
}
