package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvr-ai/go-waste/images"
	"github.com/nvr-ai/go-waste/labels"
	"github.com/nvr-ai/go-waste/profiler"
	"github.com/nvr-ai/go-waste/waste"
	"github.com/pkg/errors"
)

// Mode selects the decision strategy.
type Mode string

const (
	// ModeDetector takes the top detection of one object detector.
	ModeDetector Mode = "detector"
	// ModeCascade runs a general split and bucket-specific sub-classifiers.
	ModeCascade Mode = "cascade"
	// ModeLabel wraps a single-label backend with a policy confidence.
	ModeLabel Mode = "label"
)

// Modes lists every supported mode.
var Modes = []Mode{ModeDetector, ModeCascade, ModeLabel}

// Config selects and tunes the decision strategy.
type Config struct {
	// Mode selects the strategy.
	Mode Mode `mapstructure:"mode" yaml:"mode" json:"mode"`
	// Model names the backend used by the detector and label modes.
	Model string `mapstructure:"model" yaml:"model" json:"model"`
	// Table is the built-in label table of the detector and label modes. Empty picks the mode's
	// own vocabulary, see LabelTable.
	Table string `mapstructure:"table" yaml:"table" json:"table"`
	// Labels add to or replace entries of Table.
	Labels labels.Table `mapstructure:"labels" yaml:"labels,omitempty" json:"labels,omitempty"`
	// Threshold is the exclusive minimum detection confidence.
	Threshold float32 `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	// NMSIoU enables non-maximum suppression in detector mode when above zero.
	NMSIoU float32 `mapstructure:"nms_iou" yaml:"nms_iou" json:"nms_iou"`
	// LabelConfidence is the policy confidence of label mode.
	LabelConfidence float32 `mapstructure:"label_confidence" yaml:"label_confidence" json:"label_confidence"`
}

// DefaultConfig returns the COCO detector configuration.
func DefaultConfig() Config {
	return Config{
		Mode:            ModeDetector,
		Model:           "detector",
		Threshold:       0.25,
		NMSIoU:          0.7,
		LabelConfidence: DefaultLabelConfidence,
	}
}

// LabelTable resolves the label table, defaulting to coco in detector mode and llm in label mode.
func (c Config) LabelTable() string {
	if c.Table != "" {
		return c.Table
	}
	if c.Mode == ModeLabel {
		return labels.TableLLM
	}
	return labels.TableCOCO
}

// Validate checks values that do not need the taxonomy or the models.
func (c Config) Validate() error {
	known := false
	for _, m := range Modes {
		if c.Mode == m {
			known = true
		}
	}
	if !known {
		return errors.Errorf("classifier: unknown mode %q", c.Mode)
	}
	if c.Mode != ModeCascade && c.Model == "" {
		return errors.Errorf("classifier: mode %s needs a model", c.Mode)
	}
	if c.Threshold < 0 || c.Threshold >= 1 {
		return errors.Errorf("classifier: threshold %v outside [0, 1)", c.Threshold)
	}
	if c.NMSIoU < 0 || c.NMSIoU > 1 {
		return errors.Errorf("classifier: nms_iou %v outside [0, 1]", c.NMSIoU)
	}
	if c.LabelConfidence < 0 || c.LabelConfidence > 1 {
		return errors.Errorf("classifier: label_confidence %v outside [0, 1]", c.LabelConfidence)
	}
	return nil
}

// Options wires an engine from configuration.
type Options struct {
	Config   Config
	Cascade  CascadeConfig
	Taxonomy *waste.Taxonomy
	Models   Models
	Profiler *profiler.RuntimeProfiler
	Logger   *slog.Logger
}

// Engine classifies images with one strategy. It is safe for concurrent use and performs no I/O
// of its own beyond the model calls of its strategy.
type Engine struct {
	mode     Mode
	taxonomy *waste.Taxonomy
	strategy Strategy
	profiler *profiler.RuntimeProfiler
	logger   *slog.Logger
}

// New builds the strategy selected by opts.Config.Mode.
//
// Arguments:
//   - opts: Configuration, taxonomy and model source.
//
// Returns:
//   - *Engine: The engine.
//   - error: If the configuration is invalid or a label table or cascade does not resolve.
func New(opts Options) (*Engine, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Taxonomy == nil {
		return nil, errors.New("classifier: taxonomy is required")
	}
	if opts.Models == nil {
		return nil, errors.New("classifier: model source is required")
	}

	cfg := opts.Config
	var strategy Strategy
	switch cfg.Mode {
	case ModeDetector, ModeLabel:
		mapper, err := labels.Load(opts.Taxonomy, cfg.LabelTable(), cfg.Labels)
		if err != nil {
			return nil, errors.Wrap(err, "classifier")
		}
		if cfg.Mode == ModeDetector {
			strategy = &DetectorStrategy{
				Models:    opts.Models,
				Model:     cfg.Model,
				Mapper:    mapper,
				Threshold: cfg.Threshold,
				NMSIoU:    cfg.NMSIoU,
				Profiler:  opts.Profiler,
			}
		} else {
			strategy = &LabelStrategy{
				Models:     opts.Models,
				Model:      cfg.Model,
				Mapper:     mapper,
				Confidence: cfg.LabelConfidence,
				Profiler:   opts.Profiler,
			}
		}
	case ModeCascade:
		entry, err := BuildCascade(opts.Cascade, opts.Taxonomy)
		if err != nil {
			return nil, err
		}
		strategy = &Cascade{Models: opts.Models, Entry: entry, Profiler: opts.Profiler}
	}

	e := NewEngine(opts.Taxonomy, strategy, opts.Profiler, opts.Logger)
	e.mode = cfg.Mode
	return e, nil
}

// NewEngine wraps a strategy.
func NewEngine(taxonomy *waste.Taxonomy, strategy Strategy, prof *profiler.RuntimeProfiler, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		taxonomy: taxonomy,
		strategy: strategy,
		profiler: prof,
		logger:   logger.With("component", "classifier"),
	}
}

// Mode returns the configured mode. Engines built with NewEngine report an empty mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Taxonomy returns the category set results are expressed in.
func (e *Engine) Taxonomy() *waste.Taxonomy {
	return e.taxonomy
}

// Classify classifies a decoded image. Failures are returned inside the result, never raised.
//
// Arguments:
//   - ctx: Passed to every model call. The engine adds no timeout or retry.
//   - img: The decoded image.
//
// Returns:
//   - Result: A classification, a no-detection result or an error result.
func (e *Engine) Classify(ctx context.Context, img *images.Image) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("classification panicked", "panic", r)
			res = errorResult(errors.Errorf("internal error: %v", r))
		}
		e.profiler.RecordOperation("classify", time.Since(start))
		e.log(res, time.Since(start))
	}()

	if img == nil || img.Decoded() == nil {
		return errorResult(errors.Wrap(ErrInvalidImage, "no image"))
	}

	d, err := e.strategy.Decide(ctx, img)
	if err != nil {
		res = errorResult(err)
		res.Stages = d.Stages
		return res
	}
	if d.Top == nil {
		return noDetectionResult(d)
	}
	e.profiler.RecordMetric("detections", float64(len(d.Detections)))
	return successResult(e.taxonomy, d)
}

// ClassifyPayload decodes a base64 payload, optionally a data URL, and classifies it.
func (e *Engine) ClassifyPayload(ctx context.Context, payload string) Result {
	img, err := images.DecodeBase64(payload)
	if err != nil {
		e.logger.Debug("payload rejected", "error", err)
		return errorResult(err)
	}
	return e.Classify(ctx, img)
}

// ClassifyBytes decodes raw image bytes and classifies them.
func (e *Engine) ClassifyBytes(ctx context.Context, data []byte) Result {
	img, err := images.Decode(data)
	if err != nil {
		e.logger.Debug("upload rejected", "error", err)
		return errorResult(err)
	}
	return e.Classify(ctx, img)
}

func (e *Engine) log(res Result, elapsed time.Duration) {
	switch {
	case res.Error != nil:
		level := slog.LevelWarn
		if errors.Is(res.Err, ErrInvalidImage) || errors.Is(res.Err, context.Canceled) ||
			errors.Is(res.Err, context.DeadlineExceeded) {
			level = slog.LevelDebug
		}
		e.logger.Log(context.Background(), level, "classification failed", "error", *res.Error, "elapsed", elapsed)
	case res.Category == nil:
		e.logger.Debug("no detection above threshold", "elapsed", elapsed)
	default:
		e.logger.Debug("classified",
			"category", *res.Category,
			"confidence", fmt.Sprintf("%.3f", res.Confidence),
			"elapsed", elapsed,
		)
	}
}
