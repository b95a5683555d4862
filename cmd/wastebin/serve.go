package main

import (
	"log/slog"

	"github.com/nvr-ai/go-waste/ledger"
	"github.com/nvr-ai/go-waste/server"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the classification and weight API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				cfg.Server.Addr = addr
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			a.profiler.Start()

			srv := server.New(server.Options{
				Addr:            cfg.Server.Addr,
				CORSOrigins:     cfg.Server.CORSOrigins,
				ReadTimeout:     cfg.Server.ReadTimeout,
				WriteTimeout:    cfg.Server.WriteTimeout,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				MaxUploadBytes:  cfg.Server.MaxUploadBytes,
				Models:          a.models.Names(),
				History:         a.history,
			}, a.engine, ledger.New(a.taxonomy), a.profiler, slog.Default())

			return srv.ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
