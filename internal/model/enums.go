package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Job status
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusError   JobStatus = "ERROR"
)

// Active reports whether the job still holds the render slot.
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusRunning
}

func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusError
}

// Performance presets
type Performance string

const (
	PerformanceSpeed             Performance = "SPEED"
	PerformanceQuality           Performance = "QUALITY"
	PerformanceExtremeSpeed      Performance = "EXTREME_SPEED"
	PerformanceSpeedHiRes        Performance = "SPEED_HI_RES"
	PerformanceExtremeSpeedHiRes Performance = "EXTREME_SPEED_HI_RES"
)

var ValidPerformances = []Performance{
	PerformanceSpeed, PerformanceQuality, PerformanceExtremeSpeed,
	PerformanceSpeedHiRes, PerformanceExtremeSpeedHiRes,
}

// PerformanceProfile holds the sampler knobs a performance preset implies.
type PerformanceProfile struct {
	Steps         int     `json:"steps"`
	GuidanceScale float64 `json:"guidanceScale"`
	ApplyLCMLora  bool    `json:"applyLcmLora"`
	LCMLoraScale  float64 `json:"lcmLoraScale"`
	FreeU         bool    `json:"freeU"`
	HiRes         bool    `json:"hiRes"`
}

// Profile returns the sampler settings for p. Unknown values fall back to SPEED.
func (p Performance) Profile() PerformanceProfile {
	switch p {
	case PerformanceQuality:
		return PerformanceProfile{Steps: 20, GuidanceScale: 10, LCMLoraScale: 1, FreeU: true}
	case PerformanceExtremeSpeed:
		return PerformanceProfile{Steps: 8, GuidanceScale: 1.8, ApplyLCMLora: true, LCMLoraScale: 1}
	case PerformanceSpeedHiRes:
		return PerformanceProfile{Steps: 20, GuidanceScale: 10, LCMLoraScale: 1, HiRes: true}
	case PerformanceExtremeSpeedHiRes:
		return PerformanceProfile{Steps: 8, GuidanceScale: 1.8, ApplyLCMLora: true, LCMLoraScale: 1, HiRes: true}
	default:
		return PerformanceProfile{Steps: 20, GuidanceScale: 8, LCMLoraScale: 1}
	}
}

// Known aspect ratios offered to clients.
var AspectRatios = []string{
	"768x432 | 16:9",
	"768x576 | 4:3",
	"600x600 | 1:1",
	"432x768 | 9:16",
	"576x768 | 3:4",
}

// ParseAspectRatio reads "432x768 | 9:16" or a bare "9:16". Bare ratios are
// sized so the short side is baseShort pixels, rounded down to a multiple of 8.
func ParseAspectRatio(s string, baseShort int) (width, height int, err error) {
	s = strings.TrimSpace(s)
	dims := s
	if i := strings.Index(s, "|"); i >= 0 {
		dims = strings.TrimSpace(s[:i])
	}

	if w, h, ok := strings.Cut(dims, "x"); ok {
		width, err = strconv.Atoi(strings.TrimSpace(w))
		if err == nil {
			height, err = strconv.Atoi(strings.TrimSpace(h))
		}
		if err != nil || width <= 0 || height <= 0 {
			return 0, 0, fmt.Errorf("invalid aspect ratio %q", s)
		}
		return width, height, nil
	}

	rw, rh, ok := strings.Cut(dims, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q", s)
	}
	a, errA := strconv.Atoi(strings.TrimSpace(rw))
	b, errB := strconv.Atoi(strings.TrimSpace(rh))
	if errA != nil || errB != nil || a <= 0 || b <= 0 || baseShort <= 0 {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q", s)
	}
	if a <= b {
		width = baseShort
		height = baseShort * b / a
	} else {
		height = baseShort
		width = baseShort * a / b
	}
	return width / 8 * 8, height / 8 * 8, nil
}

// ScaleShortSide scales width and height so the shorter one equals short,
// keeping the ratio and rounding both down to a multiple of 8.
func ScaleShortSide(width, height, short int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}
	if width <= height {
		height = height * short / width
		width = short
	} else {
		width = width * short / height
		height = short
	}
	return width / 8 * 8, height / 8 * 8
}

// Condition kinds
type ConditionKind string

const (
	ConditionBackground ConditionKind = "background"
	ConditionRegion     ConditionKind = "region"
)
