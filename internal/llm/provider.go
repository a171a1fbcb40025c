// Package llm implements the Stream Adapters and LLM Client Facade (spec
// §4.1/§4.2): it translates each provider's streaming wire format into the
// normalized model.StreamChunk sequence and picks the right adapter by
// provider kind.
package llm

import (
	"context"

	"github.com/captainphantasy/floyd-core/pkg/model"
)

// ChatRequest is the provider-independent shape the Facade translates
// into each adapter's wire format.
type ChatRequest struct {
	Model     string
	System    string
	Messages  []model.Message
	Tools     []model.ToolDescriptor
	MaxTokens int
}

// Provider is a single stream adapter: one LLM vendor's wire format in,
// normalized StreamChunks out. The returned channel is closed after a
// ChunkDone or ChunkError chunk is sent.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (<-chan model.StreamChunk, error)
}

// sanitizeControlBytes strips the control bytes named in spec §4.1 from
// provider text output, keeping tab, LF, and CR so a stray control
// character in a token can never corrupt a terminal surface.
func sanitizeControlBytes(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch {
		case b == '\t' || b == '\n' || b == '\r':
			out = append(out, b)
		case b <= 0x08, b == 0x0B, b == 0x0C, (b >= 0x0E && b <= 0x1F), b == 0x7F:
			continue
		default:
			out = append(out, b)
		}
	}
	return string(out)
}
