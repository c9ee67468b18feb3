package service

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"

	"github.com/hylarucoder/animatediff-webui/internal/catalog"
	"github.com/hylarucoder/animatediff-webui/internal/model"
	"github.com/hylarucoder/animatediff-webui/internal/schedule"
	"github.com/hylarucoder/animatediff-webui/internal/window"
)

const (
	defaultClipSkip  = 2
	motionLoraWeight = 1.0
	outputFormat     = "mp4"
)

// validate rejects requests that can never render. It runs before a job is
// created and again when the job starts.
func (s *RenderService) validate(req *model.RenderRequest) error {
	if _, err := s.catalog.ProjectDir(req.Project); err != nil {
		return model.InvalidField("project", err.Error())
	}
	if _, _, err := model.ParseAspectRatio(req.AspectRatio, s.render.ShortSide); err != nil {
		return model.InvalidField("aspectRatio", err.Error())
	}
	length := req.Length()
	if length <= 0 {
		return model.InvalidField("duration", "video must have at least one frame")
	}
	if err := validateKeyframes(req, length); err != nil {
		return err
	}
	return s.catalog.ValidateAssets(req)
}

// validateKeyframes rejects timelines with no keyframe inside the video.
func validateKeyframes(req *model.RenderRequest, length int) error {
	reason := fmt.Sprintf("no keyframe inside the first %d frames", length)
	if !schedule.HasKeyframe(req.PromptKeyframes(), length) {
		return model.InvalidField("promptMap", reason)
	}
	for _, region := range req.Regions {
		if region.Enabled && !schedule.HasKeyframe(region.PromptMap, length) {
			return &model.ValidationError{Field: "regions.promptMap", Name: region.ID, Reason: reason}
		}
	}
	for _, l := range req.Loras {
		if len(l.Keyframes) > 0 && !schedule.HasKeyframe(l.Keyframes, length) {
			return &model.ValidationError{Field: "loras.keyframes", Name: l.Name, Reason: reason}
		}
	}
	return nil
}

// resolve expands a request into the dense setting the sampler consumes.
func (s *RenderService) resolve(req *model.RenderRequest) (*model.ProjectSetting, error) {
	profile := req.Performance.Profile()
	length := req.Length()

	width, height, err := model.ParseAspectRatio(req.AspectRatio, s.render.ShortSide)
	if err != nil {
		return nil, model.InvalidField("aspectRatio", err.Error())
	}
	if profile.HiRes && s.render.HiResShortSide > 0 {
		width, height = model.ScaleShortSide(width, height, s.render.HiResShortSide)
	}

	ratio := s.render.PromptFixedRatio
	if req.PromptFixedRatio != nil {
		ratio = *req.PromptFixedRatio
	}
	ratio = schedule.ClampRatio(ratio)

	prompts, err := schedule.BuildPrompts(req.PromptKeyframes(), req.HeadPrompt, req.TailPrompt, length, ratio)
	if err != nil {
		return nil, fmt.Errorf("prompt timeline: %w", err)
	}
	conditions := model.Conditions{model.BackgroundCondition{PromptSchedule: prompts}}

	for _, region := range req.Regions {
		if !region.Enabled {
			continue
		}
		rr := ratio
		if region.PromptFixedRatio != nil {
			rr = schedule.ClampRatio(*region.PromptFixedRatio)
		}
		sched, err := schedule.BuildPrompts(region.PromptMap, region.HeadPrompt, region.TailPrompt, length, rr)
		if err != nil {
			return nil, fmt.Errorf("region %s: %w", region.ID, err)
		}
		conditions = append(conditions, model.RegionCondition{
			ID:                 region.ID,
			MaskDir:            region.MaskDir,
			CropGenerationRate: region.CropGenerationRate,
			PromptSchedule:     sched,
		})
	}

	loras := make(map[string]schedule.Schedule[float64], len(req.Loras))
	for _, l := range req.Loras {
		keys := l.Keyframes
		if len(keys) == 0 {
			keys = map[int]float64{0: l.Weight}
		}
		sched, err := schedule.Build(keys, length, ratio)
		if err != nil {
			return nil, fmt.Errorf("lora %s: %w", l.Name, err)
		}
		loras[l.Name] = sched
	}

	motionLoras := map[string]float64{}
	if req.MotionLora != "" {
		motionLoras[req.MotionLora] = motionLoraWeight
	}

	requested := window.Params{Context: s.render.Context, Overlap: s.render.Overlap, Stride: s.render.Stride}
	if req.Context != nil {
		requested.Context = *req.Context
	}
	if req.Overlap != nil {
		requested.Overlap = *req.Overlap
	}
	if req.Stride != nil {
		requested.Stride = *req.Stride
	}
	win := s.deriver.Derive(length, requested, s.contextCeiling(req.Motion))
	if err := win.Validate(length); err != nil {
		return nil, model.InvalidField("context", err.Error())
	}

	seed := int64(-1)
	if req.Seed != nil {
		seed = *req.Seed
	}
	if seed < 0 {
		seed = rand.Int64N(1 << 32)
	}

	return &model.ProjectSetting{
		Name:           req.Project,
		Performance:    req.Performance,
		Checkpoint:     req.Checkpoint,
		Motion:         req.Motion,
		MotionLoraMap:  motionLoras,
		LoraMap:        loras,
		Scheduler:      s.catalog.DefaultPreset().Scheduler,
		Steps:          profile.Steps,
		GuidanceScale:  profile.GuidanceScale,
		ClipSkip:       defaultClipSkip,
		ApplyLCMLora:   profile.ApplyLCMLora,
		LCMLoraScale:   profile.LCMLoraScale,
		FreeU:          profile.FreeU,
		HiResFix:       profile.HiRes,
		Seed:           seed,
		Width:          width,
		Height:         height,
		FPS:            req.FPS,
		Length:         length,
		FixedRatio:     ratio,
		HeadPrompt:     req.HeadPrompt,
		TailPrompt:     req.TailPrompt,
		NegativePrompt: req.NegativePrompt,
		Window:         win,
		Conditions:     conditions,
		Output:         model.OutputSetting{Format: outputFormat, FPS: req.FPS, CRF: s.render.OutputCRF},
	}, nil
}

// contextCeiling is the largest window the motion module can attend over.
func (s *RenderService) contextCeiling(motion string) int {
	ceiling := s.render.MaxContext
	if catalog.IsMotionV1(filepath.Base(motion)) && s.render.MotionV1MaxContext > 0 {
		if ceiling <= 0 || s.render.MotionV1MaxContext < ceiling {
			ceiling = s.render.MotionV1MaxContext
		}
	}
	return ceiling
}
