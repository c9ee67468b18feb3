// Package catalog lists the model files and projects available for rendering.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/hylarucoder/animatediff-webui/internal/model"
)

// Kind selects one of the model directories.
type Kind string

const (
	KindCheckpoint Kind = "checkpoints"
	KindMotion     Kind = "motion"
	KindMotionLora Kind = "motion_lora"
	KindLora       Kind = "lora"
)

var kindExt = map[Kind]string{
	KindCheckpoint: ".safetensors",
	KindMotion:     ".ckpt",
	KindMotionLora: ".ckpt",
	KindLora:       ".safetensors",
}

var thumbnailExts = []string{".png", ".webp", ".jpg", ".jpeg"}

// ModelFile is a selectable model with an optional preview image.
type ModelFile struct {
	Name      string `json:"name"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Options is the body of GET /api/options
type Options struct {
	Projects    []string       `json:"projects"`
	Checkpoints []ModelFile    `json:"checkpoints"`
	Motions     []ModelFile    `json:"motions"`
	MotionLoras []ModelFile    `json:"motionLoras"`
	Loras       []ModelFile    `json:"loras"`
	Presets     []model.Preset `json:"presets"`
}

// Catalog caches directory listings until the file watcher sees a change.
type Catalog struct {
	modelsDir   string
	projectsDir string
	presets     []model.Preset
	log         zerolog.Logger

	mu     sync.Mutex
	cached *Options
}

func New(modelsDir, projectsDir string, presets []model.Preset, logger zerolog.Logger) *Catalog {
	return &Catalog{
		modelsDir:   modelsDir,
		projectsDir: projectsDir,
		presets:     presets,
		log:         logger,
	}
}

// Presets returns the configured presets.
func (c *Catalog) Presets() []model.Preset {
	return c.presets
}

// DefaultPreset returns the first configured preset.
func (c *Catalog) DefaultPreset() model.Preset {
	if len(c.presets) == 0 {
		return model.DefaultPreset()
	}
	return c.presets[0]
}

// Options lists projects and model files.
func (c *Catalog) Options() (*Options, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil {
		return c.cached, nil
	}

	opts := &Options{Presets: c.presets}
	var err error
	if opts.Projects, err = c.listProjects(); err != nil {
		return nil, err
	}
	lists := []struct {
		kind Kind
		dst  *[]ModelFile
	}{
		{KindCheckpoint, &opts.Checkpoints},
		{KindMotion, &opts.Motions},
		{KindMotionLora, &opts.MotionLoras},
		{KindLora, &opts.Loras},
	}
	for _, l := range lists {
		if *l.dst, err = c.listModels(l.kind); err != nil {
			return nil, err
		}
	}

	c.cached = opts
	return opts, nil
}

// Invalidate drops the cached listing.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// Path resolves name inside the directory for kind. Names escaping the
// directory are rejected.
func (c *Catalog) Path(kind Kind, name string) (string, error) {
	root := filepath.Join(c.modelsDir, string(kind))
	return within(root, name)
}

// ProjectDir resolves a project name to its directory.
func (c *Catalog) ProjectDir(project string) (string, error) {
	return within(c.projectsDir, project)
}

type assetCheck struct {
	field string
	kind  Kind
	name  string
}

// ValidateAssets checks that every referenced model file exists.
func (c *Catalog) ValidateAssets(req *model.RenderRequest) error {
	checks := []assetCheck{
		{"checkpoint", KindCheckpoint, req.Checkpoint},
		{"motion", KindMotion, req.Motion},
	}
	if req.MotionLora != "" {
		checks = append(checks, assetCheck{"motionLora", KindMotionLora, req.MotionLora})
	}
	for i, l := range req.Loras {
		checks = append(checks, assetCheck{fmt.Sprintf("loras[%d]", i), KindLora, l.Name})
	}

	for _, chk := range checks {
		if chk.name == "" {
			return model.InvalidField(chk.field, "required")
		}
		p, err := c.Path(chk.kind, chk.name)
		if err != nil {
			return model.InvalidField(chk.field, err.Error())
		}
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			return model.MissingAsset(chk.field, chk.name)
		}
	}
	return nil
}

// IsMotionV1 reports whether a motion module is a first generation one,
// which cannot attend over more than 24 frames.
func IsMotionV1(name string) bool {
	n := strings.ToLower(filepath.Base(name))
	for _, marker := range []string{"v2", "v3", "sdxl", "hotshot", "lcm"} {
		if strings.Contains(n, marker) {
			return false
		}
	}
	return true
}

// Watch invalidates the cache whenever a model or project directory
// changes. It blocks until ctx is done.
func (c *Catalog) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	roots := []string{c.projectsDir}
	for kind := range kindExt {
		roots = append(roots, filepath.Join(c.modelsDir, string(kind)))
	}
	for _, root := range roots {
		if err := addTree(w, root); err != nil {
			c.log.Warn().Err(err).Str("dir", root).Msg("not watching directory")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = addTree(w, ev.Name)
				}
			}
			c.log.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("catalog changed")
			c.Invalidate()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}

func (c *Catalog) listProjects() ([]string, error) {
	entries, err := os.ReadDir(c.projectsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	projects := []string{}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			projects = append(projects, e.Name())
		}
	}
	sort.Strings(projects)
	return projects, nil
}

func (c *Catalog) listModels(kind Kind) ([]ModelFile, error) {
	root := filepath.Join(c.modelsDir, string(kind))
	ext := kindExt[kind]
	files := []ModelFile{}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ext) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, ModelFile{
			Name:      filepath.ToSlash(rel),
			Thumbnail: thumbnailFor(p),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func thumbnailFor(p string) string {
	stem := strings.TrimSuffix(p, filepath.Ext(p))
	for _, ext := range thumbnailExts {
		if _, err := os.Stat(stem + ext); err == nil {
			return stem + ext
		}
	}
	return ""
}

// within joins name onto root and fails if the result leaves root.
func within(root, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty name")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	p := filepath.Join(absRoot, filepath.FromSlash(name))
	rel, err := filepath.Rel(absRoot, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q is outside %s", name, root)
	}
	return p, nil
}
