package generate

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const tokenEncoding = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// CountTokens returns the cl100k_base token count of text, or 0 when the
// encoding cannot be loaded.
func CountTokens(text string, logger *slog.Logger) int {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(tokenEncoding)
	})
	if encErr != nil {
		logger.Debug("token encoding unavailable", "encoding", tokenEncoding, "error", encErr)
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}
