package inference

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/samcharles93/quill/internal/logits"
	"github.com/samcharles93/quill/internal/onnx"
	"github.com/samcharles93/quill/internal/tokenizer"
	"github.com/samcharles93/quill/internal/toy"
	"github.com/samcharles93/quill/internal/vocab"
)

const DefaultToyHidden = 16

// Loader assembles a tokenizer, a model and an Engine from files on disk.
// Exactly one backend is used: the ONNX model at ModelPath, or the toy model
// when Toy is set.
type Loader struct {
	VocabPath  string
	MergesPath string
	// TokenizerJSONPath, when set, replaces VocabPath and MergesPath with a
	// single Hugging Face tokenizer.json.
	TokenizerJSONPath string
	CacheSize         int

	ModelPath         string
	SharedLibraryPath string
	InputName         string
	OutputName        string
	Threads           int

	Toy       bool
	ToySeed   int64
	ToyHidden int

	// GenerationConfigPath optionally points at a generation_config.json
	// whose top_k and max_new_tokens seed the request defaults.
	GenerationConfigPath string

	Engine Config
}

type LoadResult struct {
	Engine     *Engine
	Tokenizer  *tokenizer.BPE
	Vocabulary *vocab.Vocabulary
	Defaults   Defaults
	Backend    string

	closer io.Closer
}

func (r *LoadResult) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// LoadTokenizer loads only the vocabulary and tokenizer.
func (l Loader) LoadTokenizer() (*tokenizer.BPE, *vocab.Vocabulary, error) {
	var (
		v   *vocab.Vocabulary
		err error
	)
	if l.TokenizerJSONPath != "" {
		v, err = vocab.LoadTokenizerJSONFile(l.TokenizerJSONPath)
	} else {
		v, err = vocab.LoadFiles(l.VocabPath, l.MergesPath)
	}
	if err != nil {
		return nil, nil, err
	}
	tok, err := tokenizer.NewBPE(v, l.CacheSize)
	if err != nil {
		return nil, nil, err
	}
	return tok, v, nil
}

func (l Loader) Load() (*LoadResult, error) {
	if l.ModelPath == "" && !l.Toy {
		return nil, errors.New("model path is required (or select the toy model)")
	}
	if l.ModelPath != "" && l.Toy {
		return nil, errors.New("model path and toy model are mutually exclusive")
	}

	tok, v, err := l.LoadTokenizer()
	if err != nil {
		return nil, err
	}

	defaults := DefaultRequestDefaults()
	if l.GenerationConfigPath != "" {
		defaults, err = loadGenerationDefaults(l.GenerationConfigPath, defaults)
		if err != nil {
			return nil, err
		}
	}

	window := l.Engine.Window
	if window == 0 {
		window = DefaultWindow
	}

	res := &LoadResult{
		Tokenizer:  tok,
		Vocabulary: v,
		Defaults:   defaults,
	}
	var model Model
	if l.Toy {
		hidden := l.ToyHidden
		if hidden <= 0 {
			hidden = DefaultToyHidden
		}
		model = toy.NewToyLM(v.Size(), hidden, l.ToySeed)
		res.Backend = "toy"
	} else {
		sess, err := onnx.Open(onnx.Config{
			Path:              l.ModelPath,
			SharedLibraryPath: l.SharedLibraryPath,
			InputName:         l.InputName,
			OutputName:        l.OutputName,
			Window:            window,
			VocabSize:         v.Size(),
			Threads:           l.Threads,
		})
		if err != nil {
			return nil, err
		}
		model = sess
		res.closer = sess
		res.Backend = "onnx"
	}

	engine, err := New(tok, model, l.Engine)
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	res.Engine = engine
	return res, nil
}

func loadGenerationDefaults(path string, base Defaults) (Defaults, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("load generation config: %w", err)
	}
	var cfg struct {
		TopK         *int   `json:"top_k"`
		DoSample     *bool  `json:"do_sample"`
		MaxNewTokens *int   `json:"max_new_tokens"`
		Seed         *int64 `json:"seed"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return base, fmt.Errorf("parse generation config %s: %w", path, err)
	}
	if cfg.MaxNewTokens != nil && *cfg.MaxNewTokens > 0 {
		base.Budget = *cfg.MaxNewTokens
	}
	if cfg.TopK != nil && *cfg.TopK > 0 {
		base.Strategy = logits.TopK(*cfg.TopK)
	}
	if cfg.DoSample != nil && !*cfg.DoSample {
		base.Strategy = logits.Greedy()
	}
	if cfg.Seed != nil {
		base.Seed = *cfg.Seed
	}
	return base, nil
}
