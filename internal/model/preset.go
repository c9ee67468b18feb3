package model

// DefaultNegativePrompt is applied when neither the request nor the preset sets one.
const DefaultNegativePrompt = "(worst quality, low quality:1.4),nudity,simple background,border,text, patreon,bed,bedroom,white background,((monochrome)),sketch,(pink body:1.4),7 arms,8 arms,4 arms"

// LoraSlots is the number of LoRA slots a preset exposes.
const LoraSlots = 5

// Preset is a named set of request defaults.
type Preset struct {
	Name           string      `json:"name" yaml:"name"`
	Performance    Performance `json:"performance" yaml:"performance"`
	AspectRatio    string      `json:"aspectRatio" yaml:"aspect_ratio"`
	HeadPrompt     string      `json:"headPrompt" yaml:"head_prompt"`
	TailPrompt     string      `json:"tailPrompt" yaml:"tail_prompt"`
	NegativePrompt string      `json:"negativePrompt" yaml:"negative_prompt"`
	Checkpoint     string      `json:"checkpoint" yaml:"checkpoint"`
	Loras          []LoraSlot  `json:"loras" yaml:"loras"`
	Motion         string      `json:"motion" yaml:"motion"`
	MotionLora     string      `json:"motionLora" yaml:"motion_lora"`
	FPS            int         `json:"fps" yaml:"fps"`
	Duration       int         `json:"duration" yaml:"duration"`
	Seed           int64       `json:"seed" yaml:"seed"`
	Scheduler      string      `json:"scheduler" yaml:"scheduler"`
}

// LoraSlot is an optionally empty LoRA selection.
type LoraSlot struct {
	Name   string  `json:"name" yaml:"name"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// DefaultPreset returns the baseline preset every other preset starts from.
func DefaultPreset() Preset {
	loras := make([]LoraSlot, LoraSlots)
	for i := range loras {
		loras[i].Weight = 0.7
	}
	return Preset{
		Name:           "default",
		Performance:    PerformanceSpeed,
		AspectRatio:    "432x768 | 9:16",
		HeadPrompt:     "masterpiece, best quality",
		NegativePrompt: DefaultNegativePrompt,
		Checkpoint:     "majicmixRealistic_v7.safetensors",
		Loras:          loras,
		Motion:         "mm_sd_v15_v2.ckpt",
		FPS:            8,
		Duration:       4,
		Seed:           -1,
		Scheduler:      "k_dpmpp_sde",
	}
}

// Normalize fills zero fields from DefaultPreset and pads the LoRA slots.
func (p Preset) Normalize() Preset {
	def := DefaultPreset()
	if p.Performance == "" {
		p.Performance = def.Performance
	}
	if p.AspectRatio == "" {
		p.AspectRatio = def.AspectRatio
	}
	if p.NegativePrompt == "" {
		p.NegativePrompt = def.NegativePrompt
	}
	if p.Checkpoint == "" {
		p.Checkpoint = def.Checkpoint
	}
	if p.Motion == "" {
		p.Motion = def.Motion
	}
	if p.FPS == 0 {
		p.FPS = def.FPS
	}
	if p.Duration == 0 {
		p.Duration = def.Duration
	}
	if p.Seed == 0 {
		p.Seed = def.Seed
	}
	if p.Scheduler == "" {
		p.Scheduler = def.Scheduler
	}
	for len(p.Loras) < LoraSlots {
		p.Loras = append(p.Loras, LoraSlot{Weight: 0.7})
	}
	return p
}

// PresetList is the body of GET /api/presets
type PresetList struct {
	Presets []Preset `json:"presets"`
}
