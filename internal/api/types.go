package api

// GenerateRequest is the body of POST /v1/generate. Omitted fields take the
// server defaults. MaxTokens, when present, must be at least 1.
type GenerateRequest struct {
	Prompt             string  `json:"prompt"`
	MaxTokens          *int    `json:"max_tokens,omitempty"`
	Strategy           *string `json:"strategy,omitempty"`
	TopK               *int    `json:"top_k,omitempty"`
	Seed               *int64  `json:"seed,omitempty"`
	Stream             *bool   `json:"stream,omitempty"`
	BufferPartialRunes *bool   `json:"buffer_partial_runes,omitempty"`
}

type GenerateResponse struct {
	ID          string         `json:"id"`
	Object      string         `json:"object"`
	CreatedAt   int64          `json:"created_at"`
	CompletedAt *int64         `json:"completed_at,omitempty"`
	Status      string         `json:"status"`
	Strategy    string         `json:"strategy"`
	Text        string         `json:"text"`
	Tokens      []int          `json:"tokens"`
	Usage       Usage          `json:"usage"`
	Stats       *GenerateStats `json:"stats,omitempty"`
	Error       *ResponseError `json:"error,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type GenerateStats struct {
	DurationMS      float64 `json:"duration_ms"`
	TokensPerSecond float64 `json:"tokens_per_second"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

type CancelResponse struct {
	Cancelled bool   `json:"cancelled"`
	State     string `json:"state"`
}

type TokenizeRequest struct {
	Text string `json:"text"`
}

type TokenizeResponse struct {
	Tokens []int    `json:"tokens"`
	Count  int      `json:"count"`
	Pieces []string `json:"pieces,omitempty"`
}

type DetokenizeRequest struct {
	Tokens []int `json:"tokens"`
}

type DetokenizeResponse struct {
	Text string `json:"text"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Backend   string `json:"backend,omitempty"`
	VocabSize int    `json:"vocab_size,omitempty"`
	Window    int    `json:"window,omitempty"`
	State     string `json:"state"`
}
