package detection

// Suppress performs greedy, class-aware Non-Maximum Suppression.
//
// Detections must already be sorted by descending confidence, as Normalize returns them. A
// detection is dropped when it overlaps a kept detection of the same category by more than
// iouThreshold. Detections without a box are never suppressed.
//
// Arguments:
//   - dets: Detections sorted by descending confidence.
//   - iouThreshold: IoU above which overlapping boxes are suppressed. Values <= 0 disable suppression.
//
// Returns:
//   - The kept detections, still in confidence order.
func Suppress(dets []Detection, iouThreshold float32) []Detection {
	if iouThreshold <= 0 || len(dets) < 2 {
		return dets
	}

	kept := make([]Detection, 0, len(dets))
	used := make([]bool, len(dets))

	for i := range dets {
		if used[i] {
			continue
		}
		anchor := dets[i]
		kept = append(kept, anchor)
		used[i] = true

		if anchor.Box == nil {
			continue
		}
		for j := i + 1; j < len(dets); j++ {
			if used[j] || dets[j].Box == nil || dets[j].Category != anchor.Category {
				continue
			}
			if anchor.Box.IoU(*dets[j].Box) > iouThreshold {
				used[j] = true
			}
		}
	}

	return kept
}
