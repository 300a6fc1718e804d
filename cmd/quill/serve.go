package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quill/internal/api"
	"github.com/samcharles93/quill/internal/logger"
	"github.com/samcharles93/quill/internal/version"
)

type serveOptions struct {
	addr        string
	readTimeout time.Duration
	rateLimit   float64
	burst       int64
	storeSize   int64
}

func serveCmd() *cli.Command {
	var (
		vo vocabOptions
		mo modelOptions
		so serveOptions
	)
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &so.addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read header timeout",
			Value:       30 * time.Second,
			Destination: &so.readTimeout,
		},
		&cli.Float64Flag{
			Name:        "rate-limit",
			Usage:       "generate requests per second (0 = unlimited)",
			Destination: &so.rateLimit,
		},
		&cli.Int64Flag{
			Name:        "rate-burst",
			Usage:       "burst allowed above --rate-limit",
			Value:       1,
			Destination: &so.burst,
		},
		&cli.Int64Flag{
			Name:        "store-size",
			Usage:       "finished generations kept for lookup",
			Value:       api.DefaultStoreSize,
			Destination: &so.storeSize,
		},
	}
	flags = append(flags, vocabFlags(&vo)...)
	flags = append(flags, modelFlags(&mo)...)

	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve the generation REST API",
		Flags:  flags,
		Before: setup,
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(c, configFrom(ctx), &so)

			res, err := loadEngine(ctx, c, vo, mo)
			if err != nil {
				return err
			}
			defer func() { _ = res.Close() }()

			server := api.NewServer(api.Options{
				Generator: res.Engine,
				Tokenizer: res.Tokenizer,
				Defaults:  res.Defaults,
				Store:     api.NewGenerationStore(int(so.storeSize)),
				Logger:    log,
				Info: api.Info{
					Version:   version.String(),
					Backend:   res.Backend,
					VocabSize: res.Vocabulary.Size(),
					Window:    res.Engine.Window(),
				},
				RateLimit: so.rateLimit,
				Burst:     int(so.burst),
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server", "address", so.addr, "backend", res.Backend)
			sc := echo.StartConfig{
				Address: so.addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = so.readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
