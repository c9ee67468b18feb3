package model

// RenderRequest is the body of POST /api/pipeline/submit
type RenderRequest struct {
	Project          string         `json:"project" validate:"required,max=128,excludesall=/\\"`
	Performance      Performance    `json:"performance" validate:"omitempty,oneof=SPEED QUALITY EXTREME_SPEED SPEED_HI_RES EXTREME_SPEED_HI_RES"`
	AspectRatio      string         `json:"aspectRatio" validate:"omitempty,max=32"`
	HeadPrompt       string         `json:"headPrompt"`
	Prompt           string         `json:"prompt"`
	TailPrompt       string         `json:"tailPrompt"`
	NegativePrompt   string         `json:"negativePrompt"`
	PromptBlocks     []PromptBlock  `json:"promptBlocks" validate:"omitempty,dive"`
	PromptMap        map[int]string `json:"promptMap"`
	PromptFixedRatio *float64       `json:"promptFixedRatio" validate:"omitempty,min=0,max=1"`
	FPS              int            `json:"fps" validate:"omitempty,min=1,max=60"`
	Duration         int            `json:"duration" validate:"omitempty,min=1,max=60"`
	Seed             *int64         `json:"seed"`
	Checkpoint       string         `json:"checkpoint"`
	Motion           string         `json:"motion"`
	MotionLora       string         `json:"motionLora"`
	Loras            []LoraItem     `json:"loras" validate:"omitempty,max=5,dive"`
	Regions          []RegionInput  `json:"regions" validate:"omitempty,max=8,dive"`
	Context          *int           `json:"context" validate:"omitempty,min=1"`
	Overlap          *int           `json:"overlap" validate:"omitempty,min=0"`
	Stride           *int           `json:"stride" validate:"omitempty,min=0"`
}

// PromptBlock is a prompt placed on the timeline at Start milliseconds.
type PromptBlock struct {
	Start  int    `json:"start" validate:"min=0"`
	Prompt string `json:"prompt" validate:"required"`
}

// LoraItem is one LoRA slot. Keyframes optionally vary the weight over time.
type LoraItem struct {
	Name      string          `json:"name" validate:"required"`
	Weight    float64         `json:"weight" validate:"min=0,max=2"`
	Keyframes map[int]float64 `json:"keyframes"`
}

// RegionInput describes a masked region with its own prompt timeline.
type RegionInput struct {
	ID                 string         `json:"id" validate:"required,max=64"`
	Enabled            bool           `json:"enabled"`
	MaskDir            string         `json:"maskDir"`
	HeadPrompt         string         `json:"headPrompt"`
	TailPrompt         string         `json:"tailPrompt"`
	PromptMap          map[int]string `json:"promptMap" validate:"required,min=1"`
	PromptFixedRatio   *float64       `json:"promptFixedRatio" validate:"omitempty,min=0,max=1"`
	CropGenerationRate float64        `json:"cropGenerationRate" validate:"min=0,max=1"`
}

// ApplyDefaults fills unset fields from p.
func (r *RenderRequest) ApplyDefaults(p Preset) {
	if r.Performance == "" {
		r.Performance = p.Performance
	}
	if r.AspectRatio == "" {
		r.AspectRatio = p.AspectRatio
	}
	if r.HeadPrompt == "" {
		r.HeadPrompt = p.HeadPrompt
	}
	if r.TailPrompt == "" {
		r.TailPrompt = p.TailPrompt
	}
	if r.NegativePrompt == "" {
		r.NegativePrompt = p.NegativePrompt
	}
	if r.FPS == 0 {
		r.FPS = p.FPS
	}
	if r.Duration == 0 {
		r.Duration = p.Duration
	}
	if r.Seed == nil {
		seed := p.Seed
		r.Seed = &seed
	}
	if r.Checkpoint == "" {
		r.Checkpoint = p.Checkpoint
	}
	if r.Motion == "" {
		r.Motion = p.Motion
	}
	if r.MotionLora == "" {
		r.MotionLora = p.MotionLora
	}
	if r.Loras == nil {
		for _, l := range p.Loras {
			if l.Name != "" {
				r.Loras = append(r.Loras, LoraItem{Name: l.Name, Weight: l.Weight})
			}
		}
	}
}

// Length is the number of frames the request renders.
func (r *RenderRequest) Length() int {
	return r.FPS * r.Duration
}

// PromptKeyframes returns the sparse background prompt map. Blocks are
// converted from milliseconds to frames; a bare prompt sits at frame 0.
func (r *RenderRequest) PromptKeyframes() map[int]string {
	out := make(map[int]string)
	for k, v := range r.PromptMap {
		out[k] = v
	}
	for _, b := range r.PromptBlocks {
		frame := (b.Start*r.FPS + 500) / 1000
		out[frame] = b.Prompt
	}
	if len(out) == 0 {
		out[0] = r.Prompt
	}
	return out
}
