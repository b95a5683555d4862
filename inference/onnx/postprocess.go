package onnx

import (
	"sort"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-waste/detection"
)

// AnchorCount returns the number of YOLOv8 predictions for an input size (strides 8, 16 and 32).
func AnchorCount(width, height int) int {
	n := 0
	for _, s := range []int{8, 16, 32} {
		n += (width / s) * (height / s)
	}
	return n
}

// DecodeYOLOv8 converts a [4+classes, anchors] output into candidates with boxes in source pixels.
//
// Arguments:
//   - output: The flat output tensor.
//   - classes: Class names in model order.
//   - anchors: Number of predictions per row.
//   - inW, inH: The model input size the boxes are expressed in.
//   - srcW, srcH: The source image size boxes are scaled to.
//   - minScore: Predictions whose best class score is at or below this are dropped.
//
// Returns:
//   - The candidates in prediction order.
func DecodeYOLOv8(output []float32, classes []string, anchors, inW, inH, srcW, srcH int, minScore float32) []detection.Candidate {
	rows := 4 + len(classes)
	if anchors <= 0 || len(output) < rows*anchors {
		return nil
	}

	sx := float32(srcW) / float32(inW)
	sy := float32(srcH) / float32(inH)

	out := make([]detection.Candidate, 0, 64)
	for idx := 0; idx < anchors; idx++ {
		classID := -1
		best := float32(-1)
		for col := range classes {
			p := output[anchors*(col+4)+idx]
			if p > best {
				best = p
				classID = col
			}
		}
		if classID < 0 || best <= minScore {
			continue
		}

		xc, yc := output[idx], output[anchors+idx]
		w, h := output[2*anchors+idx], output[3*anchors+idx]
		box := detection.BoundingBox{
			X1: clamp((xc-w/2)*sx, float32(srcW)),
			Y1: clamp((yc-h/2)*sy, float32(srcH)),
			X2: clamp((xc+w/2)*sx, float32(srcW)),
			Y2: clamp((yc+h/2)*sy, float32(srcH)),
		}

		out = append(out, detection.Candidate{
			Label:      classes[classID],
			Confidence: math32.Min(best, 1),
			Box:        &box,
		})
	}
	return out
}

func clamp(v, upper float32) float32 {
	return math32.Max(0, math32.Min(v, upper))
}

// Softmax converts logits to probabilities.
func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}

	maxLogit := math32.Inf(-1)
	for _, l := range logits {
		maxLogit = math32.Max(maxLogit, l)
	}

	var sum float32
	for i, l := range logits {
		out[i] = math32.Exp(l - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// TopK returns the k most probable classes as candidates, highest first.
//
// Arguments:
//   - probs: Probabilities in class order.
//   - classes: Class names in model order. Extra probabilities without a name are ignored.
//   - k: The number of candidates to return.
//   - minScore: Probabilities at or below this are dropped.
func TopK(probs []float32, classes []string, k int, minScore float32) []detection.Candidate {
	n := len(probs)
	if len(classes) < n {
		n = len(classes)
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return probs[idx[a]] > probs[idx[b]]
	})

	if k > 0 && k < len(idx) {
		idx = idx[:k]
	}

	out := make([]detection.Candidate, 0, len(idx))
	for _, i := range idx {
		if probs[i] <= minScore {
			continue
		}
		out = append(out, detection.Candidate{Label: classes[i], Confidence: probs[i]})
	}
	return out
}
