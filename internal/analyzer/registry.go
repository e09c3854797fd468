package analyzer

import (
	"fmt"
	"strings"
)

// NewDetector creates a detector based on the specified variant. The "none"
// variant returns a nil Detector: callers fall back to geometric centering.
func NewDetector(variant string) (Detector, error) {
	switch strings.ToLower(strings.TrimSpace(variant)) {
	case "contrast", "":
		return NewContrastDetector(), nil
	case "none", "off":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown detector variant: %s", variant)
	}
}
