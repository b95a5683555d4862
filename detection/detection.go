package detection

import (
	"sort"

	"github.com/nvr-ai/go-waste/waste"
)

// Candidate is one raw (label, confidence) pair produced by a model for an image.
type Candidate struct {
	// Label is the model's own vocabulary, e.g. a COCO class name.
	Label string
	// Confidence is the model score in [0, 1].
	Confidence float32
	// Box is set by detectors and nil for whole-image classifiers.
	Box *BoundingBox
}

// Detection is a candidate that survived filtering, tagged with its waste category.
type Detection struct {
	SourceLabel string         `json:"source_label"`
	Category    waste.Category `json:"category"`
	Confidence  float32        `json:"confidence"`
	Box         *BoundingBox   `json:"-"`
}

// Mapper resolves model labels to categories.
type Mapper interface {
	Map(label string) waste.Category
}

// Normalize filters, maps and orders raw candidates.
//
// A candidate passes only when its confidence is strictly greater than threshold. Survivors are
// mapped to categories and sorted by confidence descending; ties keep their input order.
//
// Arguments:
//   - raw: Candidates as returned by a model.
//   - threshold: Minimum confidence, exclusive.
//   - mapper: Label to category resolution.
//
// Returns:
//   - The ordered detections. Empty, never nil, when nothing passes.
func Normalize(raw []Candidate, threshold float32, mapper Mapper) []Detection {
	out := make([]Detection, 0, len(raw))
	for _, c := range raw {
		if !(c.Confidence > threshold) {
			continue
		}
		out = append(out, Detection{
			SourceLabel: c.Label,
			Category:    mapper.Map(c.Label),
			Confidence:  c.Confidence,
			Box:         c.Box,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})

	return out
}

// Top returns the highest-confidence detection of an ordered slice.
func Top(dets []Detection) (Detection, bool) {
	if len(dets) == 0 {
		return Detection{}, false
	}
	return dets[0], true
}
