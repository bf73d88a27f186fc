// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-glitch/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
//
// An IoUThreshold of 1 or more is accepted but disables suppression entirely:
// IoU never exceeds 1, so every near-duplicate box of a class survives. This is
// a common tuning pitfall rather than an error.
type NMSConfig struct {
	// Pairs overlapping more than this are suppressed.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// Candidates scoring below this are discarded before sorting.
	ScoreThreshold float32 `json:"score_threshold" yaml:"score_threshold"`
}

// Suppresses reports whether the threshold can ever discard a box.
func (c NMSConfig) Suppresses() bool {
	return c.IoUThreshold < 1
}

// ApplyGreedyNMS performs class-aware greedy Non-Maximum Suppression.
//
// Candidates below the score threshold are dropped. The rest are grouped per
// class and sorted by descending score, ties broken by ascending anchor index.
// Within a class the highest remaining box is kept and every unselected box
// whose IoU with it exceeds the threshold is suppressed. Boxes of different
// classes never suppress each other.
//
// Arguments:
//   - candidates: Candidates in any order. The slice is not modified.
//   - config: NMS configuration.
//
// Returns:
//   - Survivors ordered by class ascending, then by selection order. Nil if
//     nothing survives.
func ApplyGreedyNMS(candidates []Candidate, config NMSConfig) []Candidate {
	byClass := make(map[int][]Candidate)
	for _, c := range candidates {
		if c.Score < config.ScoreThreshold {
			continue
		}
		byClass[c.Class] = append(byClass[c.Class], c)
	}
	if len(byClass) == 0 {
		return nil
	}

	classes := make([]int, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Ints(classes)

	var filtered []Candidate
	for _, class := range classes {
		filtered = append(filtered, suppressClass(byClass[class], config)...)
	}

	return filtered
}

// suppressClass runs the greedy pass over candidates sharing one class.
func suppressClass(detections []Candidate, config NMSConfig) []Candidate {
	sort.SliceStable(detections, func(i, j int) bool {
		if detections[i].Score != detections[j].Score {
			return detections[i].Score > detections[j].Score
		}
		return detections[i].Anchor < detections[j].Anchor
	})

	if !config.Suppresses() {
		return detections
	}

	n := len(detections)
	filtered := make([]Candidate, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := detections[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}

			if images.CalculateIoU(anchor.Box, detections[j].Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}

// Suppress runs NMS over a box list and a [class][anchor] score matrix, the
// layout detector heads produce.
//
// Arguments:
//   - boxes: One box per anchor.
//   - scores: Per-class scores; scores[c][a] is the confidence of class c at anchor a.
//   - config: NMS configuration.
//
// Returns:
//   - The surviving (class, anchor) pairs, class ascending and highest score
//     first within each class.
func Suppress(boxes []images.Rect, scores [][]float32, config NMSConfig) []Selection {
	var candidates []Candidate
	for class, row := range scores {
		for anchor, score := range row {
			if anchor >= len(boxes) || score < config.ScoreThreshold {
				continue
			}
			candidates = append(candidates, Candidate{
				Box:    boxes[anchor],
				Score:  score,
				Class:  class,
				Anchor: anchor,
			})
		}
	}

	kept := ApplyGreedyNMS(candidates, config)
	selections := make([]Selection, len(kept))
	for i, c := range kept {
		selections[i] = Selection{Class: c.Class, Anchor: c.Anchor}
	}

	return selections
}
