package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quill/internal/inference"
	"github.com/samcharles93/quill/internal/logits"
)

var (
	configFile string
	logLevel   string
	logFormat  string
	debug      bool
)

// vocabOptions locate the vocabulary files.
type vocabOptions struct {
	vocab         string
	merges        string
	dataDir       string
	tokenizerJSON string
}

// modelOptions select the inference backend.
type modelOptions struct {
	model      string
	modelsDir  string
	ortLibrary string
	threads    int64
	toy        bool
	toySeed    int64
	window     int64
	padID      int64
	genConfig  string
	inputName  string
	outputName string
}

type samplingOptions struct {
	maxTokens   int64
	strategy    string
	topK        int64
	seed        int64
	bufferRunes bool
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default $XDG_CONFIG_HOME/quill/config.yaml)",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func vocabFlags(o *vocabOptions) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vocab",
			Usage:       "path to the token->id JSON file",
			Sources:     cli.EnvVars(envVocab),
			Destination: &o.vocab,
		},
		&cli.StringFlag{
			Name:        "merges",
			Usage:       "path to the BPE merges file",
			Sources:     cli.EnvVars(envMerges),
			Destination: &o.merges,
		},
		&cli.StringFlag{
			Name:        "data-dir",
			Usage:       "directory holding " + defaultVocabFile + " and " + defaultMergesFile,
			Sources:     cli.EnvVars(envDataDir),
			Destination: &o.dataDir,
		},
		&cli.StringFlag{
			Name:        "tokenizer-json",
			Usage:       "Hugging Face tokenizer.json used instead of --vocab and --merges",
			Destination: &o.tokenizerJSON,
		},
	}
}

func modelFlags(o *modelOptions) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to an ONNX causal LM taking [1,W] input ids",
			Destination: &o.model,
		},
		&cli.StringFlag{
			Name:        "models-dir",
			Usage:       "directory searched for .onnx models when --model is not set",
			Sources:     cli.EnvVars(envModelsDir),
			Destination: &o.modelsDir,
		},
		&cli.StringFlag{
			Name:        "onnxruntime-lib",
			Usage:       "path to the onnxruntime shared library",
			Sources:     cli.EnvVars("ONNXRUNTIME_SHARED_LIBRARY_PATH"),
			Destination: &o.ortLibrary,
		},
		&cli.Int64Flag{
			Name:        "threads",
			Usage:       "intra-op threads for the ONNX session (0 = runtime default)",
			Destination: &o.threads,
		},
		&cli.StringFlag{
			Name:        "input-name",
			Usage:       "ONNX input tensor name",
			Value:       "input_ids",
			Destination: &o.inputName,
		},
		&cli.StringFlag{
			Name:        "output-name",
			Usage:       "ONNX output tensor name",
			Value:       "logits",
			Destination: &o.outputName,
		},
		&cli.BoolFlag{
			Name:        "toy",
			Usage:       "use the built-in random toy model instead of an ONNX model",
			Destination: &o.toy,
		},
		&cli.Int64Flag{
			Name:        "toy-seed",
			Usage:       "weight seed for the toy model",
			Value:       1,
			Destination: &o.toySeed,
		},
		&cli.Int64Flag{
			Name:        "window",
			Aliases:     []string{"w"},
			Usage:       "context window fed to the model",
			Value:       inference.DefaultWindow,
			Destination: &o.window,
		},
		&cli.Int64Flag{
			Name:        "pad-id",
			Usage:       "token id used to right-pad the window",
			Value:       inference.DefaultPadID,
			Destination: &o.padID,
		},
		&cli.StringFlag{
			Name:        "generation-config",
			Usage:       "optional generation_config.json supplying top_k and max_new_tokens",
			Destination: &o.genConfig,
		},
	}
}

func samplingFlags(o *samplingOptions) []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "max-tokens",
			Aliases:     []string{"n", "steps"},
			Usage:       "number of tokens to generate",
			Value:       inference.DefaultBudget,
			Destination: &o.maxTokens,
		},
		&cli.StringFlag{
			Name:        "strategy",
			Aliases:     []string{"s"},
			Usage:       "decoding strategy (greedy, top-k)",
			Value:       "top-k",
			Destination: &o.strategy,
		},
		&cli.Int64Flag{
			Name:        "top-k",
			Aliases:     []string{"k", "top_k", "topk"},
			Usage:       "candidates kept by top-k sampling",
			Value:       logits.DefaultTopK,
			Destination: &o.topK,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling RNG seed (-1 = random)",
			Value:       -1,
			Destination: &o.seed,
		},
		&cli.BoolFlag{
			Name:        "buffer-runes",
			Usage:       "hold back split UTF-8 characters until they are complete",
			Destination: &o.bufferRunes,
		},
	}
}

// requestOptions forwards only flags set on the command line; everything else
// falls through to inference.Defaults.
func requestOptions(c *cli.Command, prompt string, o samplingOptions) inference.RequestOptions {
	opts := inference.RequestOptions{Prompt: prompt}
	if c.IsSet("max-tokens") {
		n := int(o.maxTokens)
		opts.Budget = &n
	}
	if c.IsSet("strategy") {
		s := o.strategy
		opts.Strategy = &s
	}
	if c.IsSet("top-k") {
		k := int(o.topK)
		opts.TopK = &k
	}
	if c.IsSet("seed") {
		seed := o.seed
		opts.Seed = &seed
	}
	if c.IsSet("buffer-runes") {
		b := o.bufferRunes
		opts.BufferPartialRunes = &b
	}
	return opts
}
