package model

import (
	"encoding/json"
	"fmt"

	"github.com/hylarucoder/animatediff-webui/internal/schedule"
	"github.com/hylarucoder/animatediff-webui/internal/window"
)

// ProjectSetting is the fully resolved job description handed to the sampler
// and persisted as prompts.json.
type ProjectSetting struct {
	Name           string                                `json:"name"`
	Performance    Performance                           `json:"performance"`
	Checkpoint     string                                `json:"checkpoint"`
	Motion         string                                `json:"motion"`
	MotionLoraMap  map[string]float64                    `json:"motionLoraMap"`
	LoraMap        map[string]schedule.Schedule[float64] `json:"loraMap"`
	Scheduler      string                                `json:"scheduler"`
	Steps          int                                   `json:"steps"`
	GuidanceScale  float64                               `json:"guidanceScale"`
	ClipSkip       int                                   `json:"clipSkip"`
	ApplyLCMLora   bool                                  `json:"applyLcmLora"`
	LCMLoraScale   float64                               `json:"lcmLoraScale"`
	FreeU          bool                                  `json:"freeU"`
	HiResFix       bool                                  `json:"hiResFix"`
	Seed           int64                                 `json:"seed"`
	Width          int                                   `json:"width"`
	Height         int                                   `json:"height"`
	FPS            int                                   `json:"fps"`
	Length         int                                   `json:"length"`
	FixedRatio     float64                               `json:"promptFixedRatio"`
	HeadPrompt     string                                `json:"headPrompt"`
	TailPrompt     string                                `json:"tailPrompt"`
	NegativePrompt string                                `json:"negativePrompt"`
	Window         window.Params                         `json:"window"`
	Conditions     Conditions                            `json:"conditions"`
	Output         OutputSetting                         `json:"output"`
}

// OutputSetting controls the encoder.
type OutputSetting struct {
	Format string `json:"format"`
	FPS    int    `json:"fps"`
	CRF    int    `json:"crf"`
}

// Condition is a prompt timeline applied either to the whole frame or to a
// masked region.
type Condition interface {
	Kind() ConditionKind
	Prompts() schedule.Schedule[string]
}

// BackgroundCondition conditions the whole frame.
type BackgroundCondition struct {
	PromptSchedule schedule.Schedule[string] `json:"prompts"`
}

func (BackgroundCondition) Kind() ConditionKind { return ConditionBackground }
func (c BackgroundCondition) Prompts() schedule.Schedule[string] { return c.PromptSchedule }

// RegionCondition conditions the area under a mask sequence.
type RegionCondition struct {
	ID                 string                    `json:"id"`
	MaskDir            string                    `json:"maskDir"`
	CropGenerationRate float64                   `json:"cropGenerationRate"`
	PromptSchedule     schedule.Schedule[string] `json:"prompts"`
}

func (RegionCondition) Kind() ConditionKind { return ConditionRegion }
func (c RegionCondition) Prompts() schedule.Schedule[string] { return c.PromptSchedule }

// Conditions serializes as a list of objects tagged with "kind".
type Conditions []Condition

func (cs Conditions) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(cs))
	for _, c := range cs {
		body, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
		kind, _ := json.Marshal(c.Kind())
		fields["kind"] = kind
		tagged, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, tagged)
	}
	return json.Marshal(out)
}

func (cs *Conditions) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Conditions, 0, len(raw))
	for _, r := range raw {
		var head struct {
			Kind ConditionKind `json:"kind"`
		}
		if err := json.Unmarshal(r, &head); err != nil {
			return err
		}
		switch head.Kind {
		case ConditionBackground:
			var c BackgroundCondition
			if err := json.Unmarshal(r, &c); err != nil {
				return err
			}
			out = append(out, c)
		case ConditionRegion:
			var c RegionCondition
			if err := json.Unmarshal(r, &c); err != nil {
				return err
			}
			out = append(out, c)
		default:
			return fmt.Errorf("unknown condition kind %q", head.Kind)
		}
	}
	*cs = out
	return nil
}

// Background returns the first background condition, if any.
func (cs Conditions) Background() (BackgroundCondition, bool) {
	for _, c := range cs {
		if bg, ok := c.(BackgroundCondition); ok {
			return bg, true
		}
	}
	return BackgroundCondition{}, false
}

// Regions returns the region conditions in order.
func (cs Conditions) Regions() []RegionCondition {
	var out []RegionCondition
	for _, c := range cs {
		if r, ok := c.(RegionCondition); ok {
			out = append(out, r)
		}
	}
	return out
}
