package classifier

import (
	"context"

	"github.com/nvr-ai/go-waste/detection"
	"github.com/nvr-ai/go-waste/images"
	"github.com/nvr-ai/go-waste/inference"
	"github.com/nvr-ai/go-waste/labels"
	"github.com/nvr-ai/go-waste/profiler"
	"github.com/pkg/errors"
)

// DefaultLabelConfidence is assigned to single-label backends that report no score.
const DefaultLabelConfidence float32 = 0.95

// Models resolves model names. *inference.Registry implements it.
type Models interface {
	Get(name string) (inference.Inferencer, error)
}

// Decision is a strategy's outcome. A nil Top means nothing was detected.
type Decision struct {
	Top        *detection.Detection
	Detections []detection.Detection
	Stages     []StageResult
}

// Strategy turns an image into a decision.
type Strategy interface {
	Decide(ctx context.Context, img *images.Image) (Decision, error)
}

// infer resolves a model and runs it, folding both failure kinds into ErrModelUnavailable. A call
// aborted by the caller's context reports the context error instead.
func infer(ctx context.Context, models Models, name string, img *images.Image, prof *profiler.RuntimeProfiler) ([]detection.Candidate, error) {
	m, err := models.Get(name)
	if err != nil {
		if errors.Is(err, ErrModelUnavailable) {
			return nil, err
		}
		return nil, errors.Wrapf(ErrModelUnavailable, "%s: %v", name, err)
	}

	done := prof.StartOperation("infer." + name)
	raw, err := m.Infer(ctx, img)
	done()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrap(ctxErr, name)
		}
		return nil, errors.Wrapf(ErrModelUnavailable, "%s: %v", name, err)
	}
	return raw, nil
}

// DetectorStrategy takes the most confident detection of a single detector.
type DetectorStrategy struct {
	Models    Models
	Model     string
	Mapper    *labels.Mapper
	Threshold float32
	// NMSIoU enables class-aware suppression of overlapping boxes when above zero.
	NMSIoU   float32
	Profiler *profiler.RuntimeProfiler
}

// Decide runs the detector, normalizes its candidates and picks the top one.
func (s *DetectorStrategy) Decide(ctx context.Context, img *images.Image) (Decision, error) {
	raw, err := infer(ctx, s.Models, s.Model, img, s.Profiler)
	if err != nil {
		return Decision{}, err
	}

	dets := detection.Normalize(raw, s.Threshold, s.Mapper)
	dets = detection.Suppress(dets, s.NMSIoU)

	top, ok := detection.Top(dets)
	if !ok {
		return Decision{Detections: dets}, nil
	}
	return Decision{Top: &top, Detections: dets}, nil
}

// LabelStrategy wraps an opaque single-label backend.
type LabelStrategy struct {
	Models Models
	Model  string
	Mapper *labels.Mapper
	// Confidence is the policy confidence given to the label.
	Confidence float32
	Profiler   *profiler.RuntimeProfiler
}

// Decide asks the backend for a label and maps it. Unmapped labels resolve to the fallback.
func (s *LabelStrategy) Decide(ctx context.Context, img *images.Image) (Decision, error) {
	raw, err := infer(ctx, s.Models, s.Model, img, s.Profiler)
	if err != nil {
		return Decision{}, err
	}
	if len(raw) == 0 {
		return Decision{Detections: []detection.Detection{}}, nil
	}

	confidence := s.Confidence
	if confidence <= 0 {
		confidence = DefaultLabelConfidence
	}

	top := detection.Detection{
		SourceLabel: raw[0].Label,
		Category:    s.Mapper.Map(raw[0].Label),
		Confidence:  confidence,
	}
	return Decision{Top: &top, Detections: []detection.Detection{top}}, nil
}
