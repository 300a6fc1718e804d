package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/samcharles93/quill/internal/inference"
	"github.com/samcharles93/quill/internal/logger"
	"github.com/samcharles93/quill/internal/tokenizer"
)

// Generator is the engine surface the server needs.
type Generator interface {
	Generate(ctx context.Context, req *inference.Request, emit inference.StreamFunc) (*inference.Result, error)
	Cancel() bool
	State() inference.State
}

type Info struct {
	Version   string
	Backend   string
	VocabSize int
	Window    int
}

type Options struct {
	Generator Generator
	Tokenizer tokenizer.Tokenizer
	Defaults  inference.Defaults
	Store     *GenerationStore
	Logger    logger.Logger
	Info      Info

	// RateLimit caps POST /v1/generate in requests per second; 0 disables
	// limiting.
	RateLimit float64
	Burst     int
}

type Server struct {
	gen      Generator
	tok      tokenizer.Tokenizer
	defaults inference.Defaults
	store    *GenerationStore
	limiter  *rate.Limiter
	log      logger.Logger
	info     Info
	clock    func() time.Time
}

func NewServer(opts Options) *Server {
	s := &Server{
		gen:      opts.Generator,
		tok:      opts.Tokenizer,
		defaults: opts.Defaults,
		store:    opts.Store,
		log:      opts.Logger,
		info:     opts.Info,
		clock:    time.Now,
	}
	if s.store == nil {
		s.store = NewGenerationStore(DefaultStoreSize)
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	s.log = s.log.With("component", "api")
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/generate", s.handleGenerate, s.rateLimit)
	e.POST("/v1/generate/cancel", s.handleCancel)
	e.GET("/v1/generations/:id", s.handleGetGeneration)
	e.DELETE("/v1/generations/:id", s.handleDeleteGeneration)
	e.POST("/v1/tokenize", s.handleTokenize)
	e.POST("/v1/detokenize", s.handleDetokenize)
	e.GET("/v1/health", s.handleHealth)
}

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow() {
			c.Response().Header().Set("Retry-After", "1")
			return writeError(c, http.StatusTooManyRequests, "rate_limit_error", "too many generation requests", "", "rate_limited")
		}
		return next(c)
	}
}

func (s *Server) handleGenerate(c *echo.Context) error {
	if s.gen == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "generation engine not configured", "", "")
	}
	body, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, invalidParam(err), err.Error())
	}
	req, err := s.resolve(body)
	if err != nil {
		return writeBadRequest(c, invalidParam(err), err.Error())
	}

	resp := GenerateResponse{
		ID:        req.ID,
		Object:    "generation",
		CreatedAt: s.clock().Unix(),
		Status:    inference.StateRunning.String(),
		Strategy:  req.Strategy.String(),
		Tokens:    []int{},
	}
	log := s.log.With("generation", req.ID)

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	var (
		writer *SSEStreamWriter
		emit   inference.StreamFunc
	)
	if body.Stream != nil && *body.Stream {
		writer, err = NewSSEStreamWriter(c)
		if err != nil {
			return writeBadRequest(c, "stream", err.Error())
		}
		if err := writer.Begin(resp); err != nil {
			return nil
		}
		emit = func(f inference.Fragment) {
			if err := writer.EmitDelta(f); err != nil {
				log.Debug("stream write failed, cancelling", "error", err)
				cancel()
			}
		}
	}

	res, genErr := s.gen.Generate(ctx, &req, emit)
	if res == nil {
		if writer != nil {
			resp.Status = inference.StateFailed.String()
			resp.Error = &ResponseError{Message: genErr.Error(), Type: "invalid_request_error"}
			_ = writer.Finish(resp)
			return nil
		}
		return writeBadRequest(c, "", genErr.Error())
	}

	status := s.fill(&resp, res, genErr)
	s.store.Save(resp)
	log.Info("generation request finished", "status", resp.Status, "tokens", len(resp.Tokens))

	if writer != nil {
		_ = writer.Finish(resp)
		return nil
	}
	return writeJSON(c, status, resp)
}

func (s *Server) resolve(body GenerateRequest) (inference.Request, error) {
	if body.Prompt == "" {
		return inference.Request{}, newInvalidRequest("prompt", "prompt is required")
	}
	if body.MaxTokens != nil && *body.MaxTokens < 1 {
		return inference.Request{}, newInvalidRequest("max_tokens", fmt.Sprintf("max_tokens must be >= 1, got %d", *body.MaxTokens))
	}
	req, err := inference.ResolveRequest(inference.RequestOptions{
		Prompt:             body.Prompt,
		Budget:             body.MaxTokens,
		Strategy:           body.Strategy,
		TopK:               body.TopK,
		Seed:               body.Seed,
		BufferPartialRunes: body.BufferPartialRunes,
	}, s.defaults)
	if err != nil {
		return inference.Request{}, newInvalidRequest("strategy", err.Error())
	}
	req.ID = "gen_" + uuid.NewString()
	return req, nil
}

// fill copies res into resp and returns the HTTP status for a non-streaming
// reply.
func (s *Server) fill(resp *GenerateResponse, res *inference.Result, genErr error) int {
	resp.Status = res.State.String()
	resp.Text = res.Text
	if res.Tokens != nil {
		resp.Tokens = res.Tokens
	}
	resp.Usage = Usage{
		PromptTokens:     res.PromptTokens,
		CompletionTokens: len(res.Tokens),
		TotalTokens:      res.PromptTokens + len(res.Tokens),
	}
	resp.Stats = &GenerateStats{
		DurationMS:      float64(res.Stats.Duration.Microseconds()) / 1000,
		TokensPerSecond: res.Stats.TPS,
	}
	done := s.clock().Unix()
	resp.CompletedAt = &done

	if genErr == nil {
		return http.StatusOK
	}
	switch {
	case errors.Is(genErr, inference.ErrEmptyPrompt), errors.Is(genErr, tokenizer.ErrUnknownSymbol):
		resp.Error = &ResponseError{Message: genErr.Error(), Type: "invalid_request_error", Param: "prompt"}
		return http.StatusBadRequest
	case errors.Is(genErr, inference.ErrInference):
		resp.Error = &ResponseError{Message: genErr.Error(), Type: "inference_error"}
	default:
		resp.Error = &ResponseError{Message: genErr.Error(), Type: "server_error"}
	}
	return http.StatusInternalServerError
}

func (s *Server) handleCancel(c *echo.Context) error {
	if s.gen == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "generation engine not configured", "", "")
	}
	cancelled := s.gen.Cancel()
	return writeJSON(c, http.StatusOK, CancelResponse{
		Cancelled: cancelled,
		State:     s.gen.State().String(),
	})
}

func (s *Server) handleGetGeneration(c *echo.Context) error {
	resp, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "generation not found")
	}
	return writeJSON(c, http.StatusOK, resp)
}

func (s *Server) handleDeleteGeneration(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "generation not found")
	}
	return writeJSON(c, http.StatusOK, map[string]any{
		"id":      id,
		"object":  "generation.deleted",
		"deleted": true,
	})
}

func (s *Server) handleTokenize(c *echo.Context) error {
	if s.tok == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "tokenizer not configured", "", "")
	}
	body, err := decodeJSON[TokenizeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, invalidParam(err), err.Error())
	}
	ids, err := s.tok.Encode(body.Text)
	if err != nil {
		if errors.Is(err, tokenizer.ErrUnknownSymbol) {
			return writeBadRequest(c, "text", err.Error())
		}
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
	if ids == nil {
		ids = []int{}
	}
	out := TokenizeResponse{Tokens: ids, Count: len(ids)}
	if ts, ok := s.tok.(interface{ TokenString(int) string }); ok {
		out.Pieces = make([]string, len(ids))
		for i, id := range ids {
			out.Pieces[i] = ts.TokenString(id)
		}
	}
	return writeJSON(c, http.StatusOK, out)
}

func (s *Server) handleDetokenize(c *echo.Context) error {
	if s.tok == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "tokenizer not configured", "", "")
	}
	body, err := decodeJSON[DetokenizeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, invalidParam(err), err.Error())
	}
	text, err := s.tok.Decode(body.Tokens)
	if err != nil {
		var ite *tokenizer.InvalidTokenError
		if errors.As(err, &ite) {
			return writeBadRequest(c, "tokens", "invalid token id "+strconv.Itoa(ite.ID))
		}
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
	return writeJSON(c, http.StatusOK, DetokenizeResponse{Text: text})
}

func (s *Server) handleHealth(c *echo.Context) error {
	state := inference.StateIdle
	if s.gen != nil {
		state = s.gen.State()
	}
	return writeJSON(c, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   s.info.Version,
		Backend:   s.info.Backend,
		VocabSize: s.info.VocabSize,
		Window:    s.info.Window,
		State:     state.String(),
	})
}
