package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quill/internal/tokenizer"
)

type tokenizeOutput struct {
	IDs    []int    `json:"ids"`
	Pieces []string `json:"pieces,omitempty"`
	Count  int      `json:"count"`
}

func tokenizeCmd() *cli.Command {
	var (
		vo         vocabOptions
		jsonOutput bool
		pieces     bool
	)
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "print a JSON object instead of space-separated ids",
			Destination: &jsonOutput,
		},
		&cli.BoolFlag{
			Name:        "pieces",
			Usage:       "include the vocabulary string of each id",
			Destination: &pieces,
		},
	}
	flags = append(flags, vocabFlags(&vo)...)

	return &cli.Command{
		Name:      "tokenize",
		Aliases:   []string{"encode"},
		Usage:     "Encode text into token ids",
		ArgsUsage: "[text] (reads stdin when omitted)",
		Flags:     flags,
		Before:    setup,
		Action: func(ctx context.Context, c *cli.Command) error {
			text, err := inputText(c.Args().Slice(), os.Stdin)
			if err != nil {
				return err
			}
			loader, err := loadTokenizer(ctx, c, vo)
			if err != nil {
				return err
			}
			tok, _, err := loader.LoadTokenizer()
			if err != nil {
				return err
			}
			ids, err := tok.Encode(text)
			if err != nil {
				return err
			}
			return writeTokens(os.Stdout, tok, ids, jsonOutput, pieces)
		},
	}
}

func detokenizeCmd() *cli.Command {
	var vo vocabOptions
	return &cli.Command{
		Name:      "detokenize",
		Aliases:   []string{"decode"},
		Usage:     "Decode token ids into text",
		ArgsUsage: "[ids...] (reads stdin when omitted; accepts a JSON array)",
		Flags:     vocabFlags(&vo),
		Before:    setup,
		Action: func(ctx context.Context, c *cli.Command) error {
			text, err := inputText(c.Args().Slice(), os.Stdin)
			if err != nil {
				return err
			}
			ids, err := parseIDs(text)
			if err != nil {
				return err
			}
			loader, err := loadTokenizer(ctx, c, vo)
			if err != nil {
				return err
			}
			tok, _, err := loader.LoadTokenizer()
			if err != nil {
				return err
			}
			out, err := tok.Decode(ids)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(os.Stdout, out)
			return err
		},
	}
}

// inputText joins args, or reads stdin when there are none.
func inputText(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if stdinIsTTY() {
		return "", errors.New("no input: pass text as arguments or pipe it on stdin")
	}
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return trimTrailingNewline(string(raw)), nil
}

// parseIDs accepts a JSON array or ids separated by whitespace or commas.
func parseIDs(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var ids []int
		if err := json.Unmarshal([]byte(s), &ids); err != nil {
			return nil, fmt.Errorf("parse ids: %w", err)
		}
		return ids, nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	ids := make([]int, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("parse ids: %q is not an integer", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeTokens(w io.Writer, tok *tokenizer.BPE, ids []int, asJSON, withPieces bool) error {
	out := tokenizeOutput{IDs: ids, Count: len(ids)}
	if out.IDs == nil {
		out.IDs = []int{}
	}
	if withPieces {
		out.Pieces = make([]string, len(ids))
		for i, id := range ids {
			out.Pieces[i] = tok.TokenString(id)
		}
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
		if withPieces {
			parts[i] += "=" + strconv.Quote(out.Pieces[i])
		}
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, " "))
	return err
}
