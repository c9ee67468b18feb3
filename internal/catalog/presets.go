package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hylarucoder/animatediff-webui/internal/model"
)

// BuiltinPresets returns the presets shipped with the server.
func BuiltinPresets() []model.Preset {
	def := model.DefaultPreset()

	lcm := model.DefaultPreset()
	lcm.Name = "default - lcm"
	lcm.Performance = model.PerformanceExtremeSpeed
	lcm.AspectRatio = "768x432 | 16:9"

	color := model.DefaultPreset()
	color.Name = "lcm + motion-lora + color fashion"
	color.Performance = model.PerformanceExtremeSpeed
	color.HeadPrompt = "masterpiece,best quality, 1girl, walk,"
	color.TailPrompt = "photorealistic,realistic,photography,ultra-detailed,1girl,full body,water,dress,looking at viewer,red dress,white hair,md colorful"
	color.Loras = append([]model.LoraSlot(nil), color.Loras...)
	color.Loras[0] = model.LoraSlot{Name: "釉彩·麻袋调色盘_v1.0.safetensors", Weight: 0.8}

	hires := model.DefaultPreset()
	hires.Name = "speed - hi res"
	hires.Performance = model.PerformanceSpeedHiRes

	return []model.Preset{def, lcm, color, hires}
}

type presetFile struct {
	Presets []model.Preset `yaml:"presets"`
}

// LoadPresets reads presets from a YAML file. An empty path yields the
// built-in presets.
func LoadPresets(path string) ([]model.Preset, error) {
	if path == "" {
		return BuiltinPresets(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets: %w", err)
	}
	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse presets %s: %w", path, err)
	}
	if len(f.Presets) == 0 {
		return nil, fmt.Errorf("presets file %s defines no presets", path)
	}

	out := make([]model.Preset, 0, len(f.Presets))
	seen := make(map[string]bool, len(f.Presets))
	for i, p := range f.Presets {
		if p.Name == "" {
			return nil, fmt.Errorf("preset %d has no name", i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate preset %q", p.Name)
		}
		seen[p.Name] = true
		out = append(out, p.Normalize())
	}
	return out, nil
}
