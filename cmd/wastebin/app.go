package main

import (
	"log/slog"

	"github.com/nvr-ai/go-waste/classifier"
	"github.com/nvr-ai/go-waste/config"
	"github.com/nvr-ai/go-waste/history"
	"github.com/nvr-ai/go-waste/inference"
	"github.com/nvr-ai/go-waste/profiler"
	"github.com/nvr-ai/go-waste/waste"
)

// app holds the components shared by serve and classify.
type app struct {
	taxonomy *waste.Taxonomy
	models   *inference.Registry
	engine   *classifier.Engine
	profiler *profiler.RuntimeProfiler
	history  *history.Store
}

func newApp(c config.Config) (*app, error) {
	tax, err := c.Taxonomy.Build()
	if err != nil {
		return nil, err
	}

	var prof *profiler.RuntimeProfiler
	if c.Profiler.Enabled {
		prof = profiler.NewRuntimeProfiler(profiler.ProfilingOptions{
			ReportInterval: c.Profiler.ReportInterval,
			MaxSamples:     c.Profiler.MaxSamples,
			Logger:         slog.Default(),
		})
	}

	models := inference.Load(c.Models, inference.NewInferencer, slog.Default())
	for _, name := range c.ModelNames() {
		if _, err := models.Get(name); err != nil {
			slog.Warn("classifier references an unavailable model",
				"model", name, "mode", c.Classifier.Mode)
		}
	}

	engine, err := classifier.New(classifier.Options{
		Config:   c.Classifier,
		Cascade:  c.Cascade,
		Taxonomy: tax,
		Models:   models,
		Profiler: prof,
		Logger:   slog.Default(),
	})
	if err != nil {
		_ = models.Close()
		return nil, err
	}

	var hist *history.Store
	if c.History.Enabled {
		if hist, err = history.Open(c.History.Path); err != nil {
			_ = models.Close()
			return nil, err
		}
		slog.Debug("history enabled", "path", c.History.Path)
	}

	slog.Info("classifier ready",
		"mode", engine.Mode(),
		"taxonomy", tax.Version(),
		"models", models.Names(),
	)
	return &app{taxonomy: tax, models: models, engine: engine, profiler: prof, history: hist}, nil
}

func (a *app) Close() {
	a.profiler.Stop()
	if err := a.history.Close(); err != nil {
		slog.Warn("closing history", "error", err)
	}
	if err := a.models.Close(); err != nil {
		slog.Warn("closing models", "error", err)
	}
}
