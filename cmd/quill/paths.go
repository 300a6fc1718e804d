package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	envVocab     = "QUILL_VOCAB"
	envMerges    = "QUILL_MERGES"
	envDataDir   = "QUILL_DATA_DIR"
	envModelsDir = "QUILL_MODELS_DIR"

	defaultVocabFile  = "gpt2-vocab.json"
	defaultMergesFile = "gpt2-merges.txt"
)

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = isTTY

// resolveVocabPaths returns the vocabulary and merges files. Explicit paths
// win; otherwise both default file names are looked up in the data directory,
// falling back to the working directory.
func resolveVocabPaths(o vocabOptions) (string, string, error) {
	dir := strings.TrimSpace(o.dataDir)
	if dir == "" {
		dir = "."
	}
	vocabPath := strings.TrimSpace(o.vocab)
	if vocabPath == "" {
		vocabPath = filepath.Join(dir, defaultVocabFile)
	}
	mergesPath := strings.TrimSpace(o.merges)
	if mergesPath == "" {
		mergesPath = filepath.Join(dir, defaultMergesFile)
	}
	for _, p := range []string{vocabPath, mergesPath} {
		st, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", "", fmt.Errorf("vocabulary file %s not found; set --vocab/--merges or --data-dir", p)
			}
			return "", "", err
		}
		if st.IsDir() {
			return "", "", fmt.Errorf("vocabulary path is a directory: %s", p)
		}
	}
	return filepath.Clean(vocabPath), filepath.Clean(mergesPath), nil
}
