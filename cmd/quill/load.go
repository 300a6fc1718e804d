package main

import (
	"context"
	"errors"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quill/internal/inference"
	"github.com/samcharles93/quill/internal/logger"
)

// loadTokenizer resolves the vocabulary files into a Loader. Config file
// values fill in flags that were not set.
func loadTokenizer(ctx context.Context, c *cli.Command, vo vocabOptions) (inference.Loader, error) {
	applyVocabConfig(c, configFrom(ctx), &vo)
	if vo.tokenizerJSON != "" {
		if _, err := os.Stat(vo.tokenizerJSON); err != nil {
			return inference.Loader{}, err
		}
		return inference.Loader{TokenizerJSONPath: vo.tokenizerJSON}, nil
	}
	vocabPath, mergesPath, err := resolveVocabPaths(vo)
	if err != nil {
		return inference.Loader{}, err
	}
	return inference.Loader{VocabPath: vocabPath, MergesPath: mergesPath}, nil
}

// loadEngine builds the full engine. Request defaults are layered as
// built-ins, then generation_config.json, then the config file; command-line
// flags are applied per request.
func loadEngine(ctx context.Context, c *cli.Command, vo vocabOptions, mo modelOptions) (*inference.LoadResult, error) {
	cfg := configFrom(ctx)
	log := logger.FromContext(ctx)

	loader, err := loadTokenizer(ctx, c, vo)
	if err != nil {
		return nil, err
	}
	applyModelConfig(c, cfg, &mo)

	if mo.toy && c.IsSet("model") {
		return nil, errors.New("--model and --toy are mutually exclusive")
	}
	src, err := pickModel(mo, os.Stdin, os.Stderr)
	if err != nil {
		return nil, err
	}
	log.Debug("model selected", "model", src.String())
	loader.ModelPath = src.Path
	loader.Toy = src.Toy

	loader.SharedLibraryPath = mo.ortLibrary
	loader.InputName = mo.inputName
	loader.OutputName = mo.outputName
	loader.Threads = int(mo.threads)
	loader.ToySeed = mo.toySeed
	loader.GenerationConfigPath = mo.genConfig
	loader.Engine = inference.Config{
		Window: int(mo.window),
		PadID:  int(mo.padID),
		Logger: log,
	}

	res, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := applyDefaultsConfig(cfg, &res.Defaults); err != nil {
		_ = res.Close()
		return nil, err
	}
	log.Info("model loaded",
		"backend", res.Backend,
		"vocab_size", res.Vocabulary.Size(),
		"merges", res.Vocabulary.MergeCount(),
		"window", res.Engine.Window(),
		"defaults", res.Defaults.Strategy.String(),
	)
	return res, nil
}
