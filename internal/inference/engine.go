package inference

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/quill/internal/logger"
	"github.com/samcharles93/quill/internal/logits"
	"github.com/samcharles93/quill/internal/tokenizer"
)

const (
	DefaultWindow = 64
	DefaultPadID  = 0
	DefaultBudget = 10
)

var errSuperseded = errors.New("superseded by a newer generation")

// Config tunes an Engine. Zero values select the defaults.
type Config struct {
	Window        int
	PadID         int
	DefaultBudget int
	Logger        logger.Logger
}

// Engine runs autoregressive generation over an injected model. At most one
// generation is active at a time: starting a new one cancels the running one
// and waits for it to finish.
type Engine struct {
	tok       tokenizer.Tokenizer
	model     Model
	cfg       Config
	vocabSize int
	log       logger.Logger

	mu     sync.Mutex
	active *run
	state  State
}

// run is one generation's claim on the engine. A run that gave up waiting
// for its predecessor closes done only after the predecessor has finished, so
// joining any run joins every earlier one still in flight.
type run struct {
	id     string
	cancel context.CancelCauseFunc
	done   chan struct{}
	prev   *run

	started bool // guarded by Engine.mu
}

func New(tok tokenizer.Tokenizer, model Model, cfg Config) (*Engine, error) {
	if tok == nil {
		return nil, errors.New("inference: tokenizer is required")
	}
	if model == nil {
		return nil, errors.New("inference: model is required")
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.DefaultBudget == 0 {
		cfg.DefaultBudget = DefaultBudget
	}
	if cfg.Window < 1 {
		return nil, fmt.Errorf("inference: window must be >= 1, got %d", cfg.Window)
	}
	if cfg.DefaultBudget < 1 {
		return nil, fmt.Errorf("inference: default budget must be >= 1, got %d", cfg.DefaultBudget)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}

	e := &Engine{
		tok:   tok,
		model: model,
		cfg:   cfg,
		log:   cfg.Logger.With("component", "engine"),
		state: StateIdle,
	}
	if s, ok := tok.(tokenizer.Sized); ok {
		e.vocabSize = s.VocabSize()
	}
	if cfg.PadID < 0 || (e.vocabSize > 0 && cfg.PadID >= e.vocabSize) {
		return nil, fmt.Errorf("inference: pad id %d outside vocabulary", cfg.PadID)
	}
	return e, nil
}

func (e *Engine) Window() int { return e.cfg.Window }

// State reports the state of the most recent generation.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Cancel stops the active generation at its next iteration boundary. It
// reports whether a generation was running.
func (e *Engine) Cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return false
	}
	e.active.cancel(ErrCancelled)
	return true
}

// Generate encodes the prompt and appends up to the request budget of tokens,
// calling emit once per generated token. Cancellation is not an error: the
// result comes back with State Cancelled and the tokens produced so far. On
// failure the partial result is returned together with the error.
func (e *Engine) Generate(ctx context.Context, req *Request, emit StreamFunc) (*Result, error) {
	if req == nil {
		return nil, errors.New("inference: nil request")
	}
	budget := req.Budget
	if budget < 0 {
		return nil, fmt.Errorf("inference: token budget must be >= 0, got %d", budget)
	}
	if budget == 0 {
		budget = e.cfg.DefaultBudget
	}
	if err := req.Strategy.Validate(e.vocabSize); err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	id := req.ID
	if id == "" {
		id = "gen_" + uuid.NewString()
	}
	runCtx, r, ok := e.acquire(ctx, id)
	res := &Result{ID: id, State: StateRunning, Strategy: req.Strategy}
	defer e.release(r, res)

	log := e.log.With("generation", id)
	if !ok {
		log.Debug("cancelled while waiting for previous generation")
		res.State = StateCancelled
		return res, nil
	}

	prompt, err := safeEncode(e.tok, req.Prompt)
	if err != nil {
		return e.fail(log, res, err)
	}
	if len(prompt) == 0 {
		return e.fail(log, res, ErrEmptyPrompt)
	}
	res.PromptTokens = len(prompt)
	log.Info("generation started",
		"prompt_tokens", len(prompt),
		"budget", budget,
		"strategy", req.Strategy.String(),
		"window", e.cfg.Window,
	)

	src := req.Source
	if src == nil && req.Strategy.Kind == logits.KindTopK {
		seed := req.Seed
		if seed < 0 {
			seed = time.Now().UnixNano()
		}
		src = logits.NewSource(seed)
	}
	sampler := logits.NewSampler(req.Strategy, src)

	seq := make([]int, len(prompt), len(prompt)+budget)
	copy(seq, prompt)
	window := make([]int, e.cfg.Window)
	var (
		text  strings.Builder
		runes runeBuffer
		step  int
	)

	collect := func() {
		res.Sequence = seq
		res.Tokens = append([]int(nil), seq[len(prompt):]...)
		res.Text = text.String()
		res.Stats.TokensGenerated = len(res.Tokens)
	}

	start := time.Now()
	for step = 0; step < budget; step++ {
		if runCtx.Err() != nil {
			res.State = StateCancelled
			break
		}

		n := fillWindow(window, seq, e.cfg.PadID)
		rows, err := safeInfer(runCtx, e.model, window)
		if err != nil {
			if runCtx.Err() != nil {
				res.State = StateCancelled
				break
			}
			collect()
			return e.fail(log, res, &InferenceError{Step: step, Err: err})
		}
		row, err := e.row(rows, n-1)
		if err != nil {
			collect()
			return e.fail(log, res, &InferenceError{Step: step, Err: err})
		}

		next, err := safePick(sampler, row)
		if err != nil {
			collect()
			return e.fail(log, res, &InferenceError{Step: step, Err: err})
		}
		piece, err := safeDecode(e.tok, next)
		if err != nil {
			collect()
			return e.fail(log, res, err)
		}

		seq = append(seq, next)
		text.WriteString(piece)
		log.Debug("token generated", "step", step, "id", next, "position", n-1)

		if emit != nil {
			out := piece
			if req.BufferPartialRunes {
				out = runes.push(piece)
			}
			emit(Fragment{Step: step, Token: next, Text: out})
		}
	}
	if res.State == StateRunning {
		res.State = StateCompleted
	}
	if rest := runes.flush(); rest != "" && emit != nil {
		emit(Fragment{Step: step, Token: -1, Text: rest})
	}

	collect()
	res.Stats.Duration = time.Since(start)
	if s := res.Stats.Duration.Seconds(); s > 0 {
		res.Stats.TPS = float64(res.Stats.TokensGenerated) / s
	}
	log.Info("generation finished",
		"state", res.State.String(),
		"tokens", res.Stats.TokensGenerated,
		"duration", res.Stats.Duration,
	)
	return res, nil
}

// Stream runs Generate and yields each fragment. Breaking out of the loop
// cancels the generation. A failure is yielded once as the final element.
func (e *Engine) Stream(ctx context.Context, req *Request) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		_, err := e.Generate(ctx, req, func(f Fragment) {
			if stopped {
				return
			}
			if !yield(f, nil) {
				stopped = true
				cancel()
			}
		})
		if err != nil && !stopped {
			yield(Fragment{}, err)
		}
	}
}

// acquire registers a new active run, cancelling and joining the previous
// one. ok is false when ctx ended before the previous run terminated; the
// returned run must still be released.
func (e *Engine) acquire(ctx context.Context, id string) (runCtx context.Context, r *run, ok bool) {
	runCtx, cancel := context.WithCancelCause(ctx)
	r = &run{id: id, cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	r.prev = e.active
	e.active = r
	e.state = StateRunning
	e.mu.Unlock()

	if prev := r.prev; prev != nil {
		e.log.Debug("cancelling previous generation", "previous", prev.id, "generation", id)
		prev.cancel(errSuperseded)
		select {
		case <-prev.done:
		case <-runCtx.Done():
			return runCtx, r, false
		}
	}

	e.mu.Lock()
	r.started = true
	e.mu.Unlock()
	return runCtx, r, true
}

func (e *Engine) release(r *run, res *Result) {
	r.cancel(nil)
	st := res.State

	e.mu.Lock()
	started := r.started
	e.mu.Unlock()
	if prev := r.prev; !started && prev != nil {
		go func() {
			<-prev.done
			e.finish(r, st)
		}()
		return
	}
	e.finish(r, st)
}

// finish retires r. State is published only by the newest run.
func (e *Engine) finish(r *run, st State) {
	e.mu.Lock()
	r.prev = nil
	if e.active == r {
		e.active = nil
		e.state = st
	}
	e.mu.Unlock()
	close(r.done)
}

func (e *Engine) fail(log logger.Logger, res *Result, err error) (*Result, error) {
	res.State = StateFailed
	res.err = err
	log.Error("generation failed", "error", err, "tokens", len(res.Tokens))
	return res, err
}

// row validates the model output and returns the logits at pos.
func (e *Engine) row(rows [][]float32, pos int) ([]float32, error) {
	if len(rows) != e.cfg.Window {
		return nil, fmt.Errorf("model returned %d rows for a window of %d", len(rows), e.cfg.Window)
	}
	row := rows[pos]
	if len(row) == 0 {
		return nil, fmt.Errorf("model returned empty logits at position %d", pos)
	}
	if e.vocabSize > 0 && len(row) != e.vocabSize {
		return nil, fmt.Errorf("model returned %d logits at position %d, vocabulary has %d", len(row), pos, e.vocabSize)
	}
	return row, nil
}

func safeEncode(tok tokenizer.Tokenizer, text string) (ids []int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in tokenizer encode: %v", rec)
		}
	}()
	return tok.Encode(text)
}

func safeDecode(tok tokenizer.Tokenizer, id int) (s string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in tokenizer decode: %v", rec)
		}
	}()
	return tok.Decode([]int{id})
}

func safeInfer(ctx context.Context, m Model, window []int) (rows [][]float32, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in model: %v", rec)
		}
	}()
	return m.Infer(ctx, window)
}

func safePick(s *logits.Sampler, row []float32) (id int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in sampler: %v", rec)
		}
	}()
	return s.Pick(row), nil
}
