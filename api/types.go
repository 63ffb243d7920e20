package api

import "time"

// GenerateRequest asks the server to continue a prompt.
type GenerateRequest struct {
	// Prompt is raw text; it is encoded with the server's vocabulary and
	// used as the decode seed. Empty means start from the start sentinel.
	Prompt string `json:"prompt"`

	// MaxTokens bounds the number of decode steps. Zero or negative falls
	// back to the model's training window length.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Policy selects token choice: "greedy" (default) or "sample".
	Policy string `json:"policy,omitempty"`

	// Seed makes sampling reproducible. Ignored for greedy decoding;
	// zero or negative draws a fresh seed.
	Seed int64 `json:"seed,omitempty"`
}

// GenerateResponse is the completed continuation.
type GenerateResponse struct {
	CreatedAt  time.Time `json:"created_at"`
	Response   string    `json:"response"`
	Done       bool      `json:"done"`
	DoneReason string    `json:"done_reason"`
	Steps      int       `json:"steps"`

	TotalDuration time.Duration `json:"total_duration,omitempty"`
}
