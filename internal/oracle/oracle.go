// Package oracle classifies screenshots against natural-language rubrics.
// The oracle is the only component allowed to look at pixels; everything
// else consumes its labels.
package oracle

import "context"

// Classification is the oracle's verdict on one image.
type Classification struct {
	Label      string `json:"label"`
	Confidence int    `json:"confidence"` // 0-100
	Reasoning  string `json:"reasoning"`
}

// Classifier labels an image against a rubric. Implementations must either
// return a well-formed Classification or a hard error; there is no silent
// fallback label.
type Classifier interface {
	Classify(ctx context.Context, image []byte, rubric string) (Classification, error)
}
