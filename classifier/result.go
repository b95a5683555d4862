// Package classifier - Reduces model output to one waste classification per image.
package classifier

import (
	"github.com/nvr-ai/go-waste/detection"
	"github.com/nvr-ai/go-waste/images"
	"github.com/nvr-ai/go-waste/inference"
	"github.com/nvr-ai/go-waste/waste"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidImage is returned when the input cannot be decoded.
	ErrInvalidImage = images.ErrInvalidImage
	// ErrModelUnavailable is returned when a model is missing or its call fails.
	ErrModelUnavailable = inference.ErrModelUnavailable
	// ErrUnmappableLabel is returned by a cascade stage whose top label has no route and no fallback.
	ErrUnmappableLabel = errors.New("unmappable label")
)

// Result is the one answer for one image.
//
// Exactly one of three shapes is produced: a classification (Category, Recyclable and Success
// set), no detection (everything zero, Success false) or a failure (Error set, Success false).
type Result struct {
	Category   *waste.Category `json:"category"`
	Confidence float32         `json:"confidence"`
	Recyclable *bool           `json:"recyclable"`
	Error      *string         `json:"error"`
	Success    bool            `json:"success"`

	// Detections lists every detection that survived filtering, highest confidence first.
	Detections []detection.Detection `json:"-"`
	// Stages traces the cascade stages that ran.
	Stages []StageResult `json:"stages,omitempty"`
	// Err is the failure behind Error, for errors.Is matching.
	Err error `json:"-"`
}

// StageResult records the top label of one cascade stage.
type StageResult struct {
	Stage      string  `json:"stage"`
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

// NoDetection reports whether the result is the non-error empty outcome.
func (r Result) NoDetection() bool {
	return r.Error == nil && r.Category == nil
}

func errorResult(err error) Result {
	msg := err.Error()
	return Result{Error: &msg, Err: err}
}

func noDetectionResult(d Decision) Result {
	return Result{Detections: []detection.Detection{}, Stages: d.Stages}
}

func successResult(taxonomy *waste.Taxonomy, d Decision) Result {
	category := d.Top.Category
	recyclable := taxonomy.Recyclable(category)
	return Result{
		Category:   &category,
		Confidence: d.Top.Confidence,
		Recyclable: &recyclable,
		Success:    true,
		Detections: d.Detections,
		Stages:     d.Stages,
	}
}
