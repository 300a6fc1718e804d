package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quill/internal/inference"
	"github.com/samcharles93/quill/internal/logger"
)

func generateCmd() *cli.Command {
	var (
		vo vocabOptions
		mo modelOptions
		so samplingOptions

		prompt     string
		echoPrompt bool
		showTokens bool
		streamMode string
		rawOutput  bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "prompt text; omit for interactive mode",
			Destination: &prompt,
		},
		&cli.BoolFlag{
			Name:        "echo-prompt",
			Usage:       "print the prompt before the generated text",
			Destination: &echoPrompt,
		},
		&cli.BoolFlag{
			Name:        "show-tokens",
			Usage:       "print prompt and generated token ids to stderr",
			Destination: &showTokens,
		},
		&cli.StringFlag{
			Name:        "stream-mode",
			Usage:       "output mode (instant, smooth, typewriter, quiet)",
			Value:       string(StreamInstant),
			Destination: &streamMode,
		},
		&cli.BoolFlag{
			Name:        "raw-output",
			Usage:       "escape control characters in generated text",
			Destination: &rawOutput,
		},
	}
	flags = append(flags, vocabFlags(&vo)...)
	flags = append(flags, modelFlags(&mo)...)
	flags = append(flags, samplingFlags(&so)...)

	return &cli.Command{
		Name:      "generate",
		Aliases:   []string{"run"},
		Usage:     "Generate text from a prompt",
		ArgsUsage: "[prompt]",
		Flags:     flags,
		Before:    setup,
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			applyStreamConfig(c, configFrom(ctx), &streamMode)
			mode, err := parseStreamMode(streamMode)
			if err != nil {
				return err
			}
			if prompt == "" && c.Args().Len() > 0 {
				prompt = strings.Join(c.Args().Slice(), " ")
			}
			log.Debug("generate", "stream_mode", string(mode), "interactive", prompt == "")

			res, err := loadEngine(ctx, c, vo, mo)
			if err != nil {
				return err
			}
			defer func() { _ = res.Close() }()

			interactive := prompt == ""
			stopSignals := cancelOnInterrupt(res.Engine, interactive)
			defer stopSignals()

			run := promptRunner{
				engine:     res.Engine,
				defaults:   res.Defaults,
				stdout:     os.Stdout,
				stderr:     os.Stderr,
				mode:       mode,
				rawOutput:  rawOutput,
				showTokens: showTokens,
				tokenize:   res.Tokenizer.Encode,
			}

			if !interactive {
				if echoPrompt {
					fmt.Print(prompt)
				}
				result, err := run.once(ctx, requestOptions(c, prompt, so))
				if err != nil {
					return err
				}
				if result.State == inference.StateCancelled {
					return cli.Exit("", 130)
				}
				return nil
			}

			fmt.Fprintln(os.Stderr, "Interactive mode. Type /exit to quit.")
			for {
				line, err := readInteractiveLine("> ")
				if err != nil {
					if errors.Is(err, io.EOF) {
						return nil
					}
					return err
				}
				line = strings.TrimSpace(line)
				if line == "/exit" {
					return nil
				}
				if line == "" {
					continue
				}
				if _, err := run.once(ctx, requestOptions(c, line, so)); err != nil {
					fmt.Fprintln(os.Stderr, "error:", err)
				}
			}
		},
	}
}

// promptRunner runs one prompt through the engine and renders the output.
type promptRunner struct {
	engine     *inference.Engine
	defaults   inference.Defaults
	stdout     io.Writer
	stderr     io.Writer
	mode       StreamMode
	rawOutput  bool
	showTokens bool
	tokenize   func(string) ([]int, error)
}

func (p promptRunner) once(ctx context.Context, opts inference.RequestOptions) (*inference.Result, error) {
	req, err := inference.ResolveRequest(opts, p.defaults)
	if err != nil {
		return nil, err
	}
	if p.showTokens && p.tokenize != nil {
		if ids, err := p.tokenize(req.Prompt); err == nil {
			fmt.Fprintf(p.stderr, "Input tokens (%d): %s\n", len(ids), joinInts(ids))
		}
	}

	out := newFragmentPrinter(p.stdout, p.mode, p.rawOutput)
	res, genErr := p.engine.Generate(ctx, &req, out.Emit)
	out.Close()
	fmt.Fprintln(p.stdout)
	if res == nil {
		return nil, genErr
	}

	if p.showTokens {
		fmt.Fprintf(p.stderr, "Output tokens (%d): %s\n", len(res.Tokens), joinInts(res.Tokens))
	}
	switch res.State {
	case inference.StateCancelled:
		fmt.Fprintf(p.stderr, "Cancelled after %d tokens\n", res.Stats.TokensGenerated)
	case inference.StateCompleted:
		fmt.Fprintf(p.stderr, "Stats: %.2f TPS (%d tokens in %s, %s)\n",
			res.Stats.TPS, res.Stats.TokensGenerated, res.Stats.Duration, res.Strategy)
	}
	return res, genErr
}

// cancelOnInterrupt turns SIGINT and SIGTERM into engine cancellation. With no
// generation running, a single-shot run exits with status 130; an interactive
// session keeps its prompt.
func cancelOnInterrupt(eng *inference.Engine, interactive bool) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-sigCh:
				if eng.Cancel() || interactive {
					continue
				}
				fmt.Fprintln(os.Stderr)
				os.Exit(130)
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func joinInts(ids []int) string {
	if len(ids) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, id := range ids {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Itoa(id))
	}
	b.WriteByte(']')
	return b.String()
}
