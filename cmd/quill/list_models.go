package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quill/internal/logger"
)

func listModelsCmd() *cli.Command {
	var modelsDir string
	return &cli.Command{
		Name:    "list-models",
		Aliases: []string{"ls", "models"},
		Usage:   "List the ONNX models in the models directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "models-dir",
				Usage:       "directory containing .onnx models",
				Sources:     cli.EnvVars(envModelsDir),
				Destination: &modelsDir,
			},
		},
		Before: setup,
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)

			dir := strings.TrimSpace(modelsDir)
			if dir == "" {
				dir = configFrom(ctx).ModelsDir
			}
			if dir == "" {
				return cli.Exit("error: --models-dir is required unless "+envModelsDir+" or models_dir is set", 1)
			}

			models, err := scanModels(dir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if len(models) == 0 {
				log.Info("no models found", "path", dir)
				return nil
			}
			printModelList(os.Stdout, dir, models)
			return nil
		},
	}
}

func printModelList(w io.Writer, dir string, models []modelEntry) {
	fmt.Fprintf(w, "Models in %s:\n\n", dir)
	writeModelTable(w, models)
	fmt.Fprintf(w, "\n%d model(s) found\n", len(models))
}
