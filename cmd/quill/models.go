package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// modelEntry is one ONNX file found in a models directory.
type modelEntry struct {
	Path string
	Name string
	Size int64
}

// modelSource is the backend loadEngine should build.
type modelSource struct {
	Path string
	Toy  bool
}

func (s modelSource) String() string {
	if s.Toy {
		return "toy"
	}
	return s.Path
}

// scanModels lists the .onnx files directly under dir, ordered by name.
func scanModels(dir string) ([]modelEntry, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("models path is not a directory: %s", dir)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var models []modelEntry
	for _, e := range ents {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".onnx") {
			continue
		}
		m := modelEntry{Path: filepath.Join(dir, e.Name()), Name: e.Name()}
		if info, err := e.Info(); err == nil {
			m.Size = info.Size()
		}
		models = append(models, m)
	}
	return models, nil
}

// writeModelTable prints the numbered listing shared by list-models and the
// model prompt.
func writeModelTable(w io.Writer, models []modelEntry) {
	for i, m := range models {
		fmt.Fprintf(w, "  %2d. %-40s %10s\n", i+1, m.Name, formatBytes(uint64(m.Size)))
	}
}

// pickModel decides which model backs the engine: --toy, then --model, then
// the models directory (flag, config or QUILL_MODELS_DIR). A directory holding
// one model uses it; with several, a terminal user chooses from the table,
// where "toy" or 0 selects the toy model.
func pickModel(mo modelOptions, stdin io.Reader, stderr io.Writer) (modelSource, error) {
	if mo.toy {
		return modelSource{Toy: true}, nil
	}
	if model := strings.TrimSpace(mo.model); model != "" {
		return modelSource{Path: filepath.Clean(model)}, nil
	}

	dir := strings.TrimSpace(mo.modelsDir)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(envModelsDir))
	}
	if dir == "" {
		return modelSource{}, errors.New("no model configured; set --model, --models-dir or --toy")
	}
	models, err := scanModels(dir)
	if err != nil {
		return modelSource{}, err
	}

	switch {
	case len(models) == 0:
		return modelSource{}, fmt.Errorf("no .onnx models in %s; pass --toy to run without one", dir)
	case len(models) == 1:
		fmt.Fprintf(stderr, "quill: using model %s\n", models[0].Name)
		return modelSource{Path: models[0].Path}, nil
	case !stdinIsTTY():
		return modelSource{}, fmt.Errorf("%d models in %s; choose one with --model", len(models), dir)
	}

	fmt.Fprintf(stderr, "Models in %s:\n", dir)
	writeModelTable(stderr, models)
	fmt.Fprintf(stderr, "  %2d. %s\n", 0, "toy (built-in random weights)")
	return promptModel(models, stdin, stderr)
}

// promptModel reads selections until one names a model by number or file
// name.
func promptModel(models []modelEntry, stdin io.Reader, stderr io.Writer) (modelSource, error) {
	sc := bufio.NewScanner(stdin)
	for {
		fmt.Fprintf(stderr, "model [0-%d]: ", len(models))
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return modelSource{}, err
			}
			return modelSource{}, errors.New("no model chosen; set --model")
		}
		answer := strings.TrimSpace(sc.Text())
		if answer == "" {
			continue
		}
		if src, ok := matchModel(models, answer); ok {
			return src, nil
		}
		fmt.Fprintf(stderr, "quill: no model %q\n", answer)
	}
}

func matchModel(models []modelEntry, answer string) (modelSource, bool) {
	if strings.EqualFold(answer, "toy") {
		return modelSource{Toy: true}, true
	}
	if n, err := strconv.Atoi(answer); err == nil {
		switch {
		case n == 0:
			return modelSource{Toy: true}, true
		case n >= 1 && n <= len(models):
			return modelSource{Path: models[n-1].Path}, true
		}
		return modelSource{}, false
	}
	for _, m := range models {
		if m.Name == answer || strings.TrimSuffix(m.Name, filepath.Ext(m.Name)) == answer {
			return modelSource{Path: m.Path}, true
		}
	}
	return modelSource{}, false
}
