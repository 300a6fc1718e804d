package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quill/internal/onnx"
	"github.com/samcharles93/quill/internal/tokenizer"
	"github.com/samcharles93/quill/internal/vocab"
)

func inspectCmd() *cli.Command {
	var (
		vo          vocabOptions
		modelPath   string
		ortLibrary  string
		vocabLimit  int64
		mergesLimit int64
	)
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "ONNX model whose inputs and outputs to list",
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "onnxruntime-lib",
			Usage:       "path to the onnxruntime shared library",
			Sources:     cli.EnvVars(onnx.SharedLibraryEnv),
			Destination: &ortLibrary,
		},
		&cli.Int64Flag{
			Name:        "vocab-limit",
			Usage:       "print the first N vocabulary entries",
			Destination: &vocabLimit,
		},
		&cli.Int64Flag{
			Name:        "merges-limit",
			Usage:       "print the N highest-priority merges",
			Destination: &mergesLimit,
		},
	}
	flags = append(flags, vocabFlags(&vo)...)

	return &cli.Command{
		Name:   "inspect",
		Usage:  "Summarize the vocabulary and, optionally, an ONNX model",
		Flags:  flags,
		Before: setup,
		Action: func(ctx context.Context, c *cli.Command) error {
			loader, err := loadTokenizer(ctx, c, vo)
			if err != nil {
				return err
			}
			_, v, err := loader.LoadTokenizer()
			if err != nil {
				return err
			}
			source := loader.TokenizerJSONPath
			if source == "" {
				source = loader.VocabPath + ", " + loader.MergesPath
			}
			printVocabSummary(os.Stdout, source, v)
			if vocabLimit > 0 {
				printVocabEntries(os.Stdout, v, int(vocabLimit))
			}
			if mergesLimit > 0 {
				printMerges(os.Stdout, v, int(mergesLimit))
			}

			if modelPath != "" {
				inputs, outputs, err := onnx.Describe(modelPath, ortLibrary)
				if err != nil {
					return err
				}
				printModelIO(os.Stdout, modelPath, inputs, outputs)
			}
			return nil
		},
	}
}

func printVocabSummary(w io.Writer, source string, v *vocab.Vocabulary) {
	section(w, "Vocabulary")
	row(w, "source", source)
	rowInt(w, "vocab_size", v.Size())
	rowInt(w, "merges", v.MergeCount())
	row(w, "byte_symbols", fmt.Sprintf("%d/256", byteCoverage(v)))
	if tok, ok := v.Token(0); ok {
		row(w, "pad (id 0)", strconv.Quote(tok))
	}
}

// byteCoverage counts the single-byte symbols present in v. Text containing
// a missing byte cannot be encoded.
func byteCoverage(v *vocab.Vocabulary) int {
	n := 0
	for b := 0; b < 256; b++ {
		if _, ok := v.ID(tokenizer.ByteSymbol(byte(b))); ok {
			n++
		}
	}
	return n
}

func printVocabEntries(w io.Writer, v *vocab.Vocabulary, limit int) {
	section(w, "Vocabulary Entries")
	for id := 0; id < min(limit, v.Size()); id++ {
		tok, _ := v.Token(id)
		fmt.Fprintf(w, "%-8d %s\n", id, strconv.Quote(tok))
	}
}

func printMerges(w io.Writer, v *vocab.Vocabulary, limit int) {
	section(w, "Merges")
	merges := v.Merges()
	for rank, p := range merges[:min(limit, len(merges))] {
		fmt.Fprintf(w, "%-8d %s %s\n", rank, p.Left, p.Right)
	}
}

func printModelIO(w io.Writer, path string, inputs, outputs []onnx.TensorInfo) {
	section(w, "Model")
	row(w, "path", path)
	if st, err := os.Stat(path); err == nil {
		row(w, "size", formatBytes(uint64(st.Size())))
	}
	for _, in := range inputs {
		row(w, "input", fmt.Sprintf("%s %s %s", in.Name, in.DataType, in.Shape))
	}
	for _, out := range outputs {
		row(w, "output", fmt.Sprintf("%s %s %s", out.Name, out.DataType, out.Shape))
	}
}

func section(w io.Writer, title string) {
	line := strings.Repeat("-", len(title)+8)
	fmt.Fprintf(w, "\n%s\n--- %s ---\n%s\n", line, title, line)
}

func row(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "%-24s %s\n", label+":", value)
}

func rowInt(w io.Writer, label string, v int) {
	row(w, label, strconv.Itoa(v))
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.2f GiB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MiB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KiB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
