// Package onnx runs a causal language model exported to ONNX as a
// fixed-window inference function: int64 ids shaped [1, W] in, float32
// logits shaped [1, W, V] out.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	DefaultInputName  = "input_ids"
	DefaultOutputName = "logits"

	// SharedLibraryEnv names the onnxruntime shared library when Config
	// leaves it empty.
	SharedLibraryEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"
)

type Config struct {
	Path              string
	SharedLibraryPath string
	InputName         string
	OutputName        string
	Window            int
	VocabSize         int
	// Threads sets the intra-op thread count; 0 keeps the runtime default.
	Threads int
}

func (c *Config) normalize() error {
	if c.Path == "" {
		return errors.New("onnx: model path is required")
	}
	if c.Window < 1 {
		return fmt.Errorf("onnx: window must be >= 1, got %d", c.Window)
	}
	if c.VocabSize < 1 {
		return fmt.Errorf("onnx: vocabulary size must be >= 1, got %d", c.VocabSize)
	}
	if c.Threads < 0 {
		return fmt.Errorf("onnx: threads must be >= 0, got %d", c.Threads)
	}
	if c.InputName == "" {
		c.InputName = DefaultInputName
	}
	if c.OutputName == "" {
		c.OutputName = DefaultOutputName
	}
	if c.SharedLibraryPath == "" {
		c.SharedLibraryPath = os.Getenv(SharedLibraryEnv)
	}
	return nil
}

// Session owns one onnxruntime session and its input/output tensors. Infer
// calls are serialized.
type Session struct {
	cfg Config

	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	input   *ort.Tensor[int64]
	output  *ort.Tensor[float32]
	closed  bool
}

func Open(cfg Config) (*Session, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("onnx: %w", err)
	}
	if err := acquireEnvironment(cfg.SharedLibraryPath); err != nil {
		return nil, err
	}

	s := &Session{cfg: cfg}
	if err := s.init(); err != nil {
		s.destroy()
		releaseEnvironment()
		return nil, err
	}
	return s, nil
}

func (s *Session) init() error {
	var opts *ort.SessionOptions
	if s.cfg.Threads > 0 {
		o, err := ort.NewSessionOptions()
		if err != nil {
			return fmt.Errorf("onnx: session options: %w", err)
		}
		defer o.Destroy()
		if err := o.SetIntraOpNumThreads(s.cfg.Threads); err != nil {
			return fmt.Errorf("onnx: set intra-op threads: %w", err)
		}
		opts = o
	}

	w := int64(s.cfg.Window)
	in, err := ort.NewTensor[int64]([]int64{1, w}, make([]int64, w))
	if err != nil {
		return fmt.Errorf("onnx: input tensor: %w", err)
	}
	s.input = in

	out, err := ort.NewEmptyTensor[float32]([]int64{1, w, int64(s.cfg.VocabSize)})
	if err != nil {
		return fmt.Errorf("onnx: output tensor: %w", err)
	}
	s.output = out

	sess, err := ort.NewDynamicAdvancedSession(s.cfg.Path,
		[]string{s.cfg.InputName}, []string{s.cfg.OutputName}, opts)
	if err != nil {
		return fmt.Errorf("onnx: load %s: %w", s.cfg.Path, err)
	}
	s.session = sess
	return nil
}

func (s *Session) Window() int    { return s.cfg.Window }
func (s *Session) VocabSize() int { return s.cfg.VocabSize }

// Infer runs the model over window and returns one logits row per position.
func (s *Session) Infer(ctx context.Context, window []int) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(window) != s.cfg.Window {
		return nil, fmt.Errorf("onnx: window has %d ids, session expects %d", len(window), s.cfg.Window)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("onnx: session closed")
	}

	ids := s.input.GetData()
	for i, id := range window {
		ids[i] = int64(id)
	}
	if err := s.session.Run([]ort.Value{s.input}, []ort.Value{s.output}); err != nil {
		return nil, fmt.Errorf("onnx: run: %w", err)
	}

	flat := append([]float32(nil), s.output.GetData()...)
	return splitRows(flat, s.cfg.Window, s.cfg.VocabSize)
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.destroy()
	return errors.Join(err, releaseEnvironment())
}

func (s *Session) destroy() error {
	var errs []error
	if s.session != nil {
		errs = append(errs, s.session.Destroy())
	}
	if s.input != nil {
		errs = append(errs, s.input.Destroy())
	}
	if s.output != nil {
		errs = append(errs, s.output.Destroy())
	}
	return errors.Join(errs...)
}

// splitRows views a flat [rows*width] buffer as rows of width.
func splitRows(flat []float32, rows, width int) ([][]float32, error) {
	if len(flat) != rows*width {
		return nil, fmt.Errorf("onnx: output has %d values, want %d x %d", len(flat), rows, width)
	}
	out := make([][]float32, rows)
	for i := range out {
		out[i] = flat[i*width : (i+1)*width : (i+1)*width]
	}
	return out, nil
}

var (
	envMu   sync.Mutex
	envRefs int
)

// acquireEnvironment initializes the process-wide onnxruntime environment
// on first use.
func acquireEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("onnx: initialize runtime: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()
	envRefs--
	if envRefs > 0 {
		return nil
	}
	envRefs = 0
	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("onnx: destroy runtime: %w", err)
	}
	return nil
}
