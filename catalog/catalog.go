// Package catalog describes the KIE models kiejob knows how to drive.
//
// Request inputs stay opaque to the job engine. The catalog only carries the
// per-model knobs the engine needs (timeout floor, default timeout) plus the
// light validation rules callers run before submitting.
package catalog

import (
	"fmt"
	"slices"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/GoCodeAlone/kiejob/config"
	"github.com/GoCodeAlone/kiejob/failure"
)

// Kind is the media a model produces.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindMusic Kind = "music"
)

// sharedFloor is the minimum deadline applied by the shared job helpers.
const sharedFloor = 1000 * time.Second

// Model holds per-model settings.
type Model struct {
	Name string
	Kind Kind
	// TimeoutFloor raises shorter caller timeouts; zero keeps them as-is.
	TimeoutFloor    time.Duration
	DefaultTimeout  time.Duration
	PromptMaxLength int
	// PromptRequired rejects inputs without a non-empty "prompt".
	PromptRequired bool
	// Options pins the allowed values of enum-like input fields.
	Options map[string][]string
}

// Catalog is a read-only set of models keyed by name.
type Catalog struct {
	models map[string]Model
}

// New builds a catalog from models. Later duplicates replace earlier ones.
func New(models ...Model) *Catalog {
	c := &Catalog{models: make(map[string]Model, len(models))}
	for _, m := range models {
		c.models[m.Name] = m
	}
	return c
}

// Default returns the built-in catalog with config overrides applied.
func Default(overrides []config.ModelConfig) *Catalog {
	c := New(builtins()...)
	for _, o := range overrides {
		m, ok := c.models[o.Name]
		if !ok {
			m = Model{Name: o.Name}
		}
		if o.TimeoutFloor > 0 {
			m.TimeoutFloor = o.TimeoutFloor
		}
		if o.DefaultTimeout > 0 {
			m.DefaultTimeout = o.DefaultTimeout
		}
		c.models[o.Name] = m
	}
	return c
}

// Lookup returns the model named name.
func (c *Catalog) Lookup(name string) (Model, bool) {
	if c == nil {
		return Model{}, false
	}
	m, ok := c.models[name]
	return m, ok
}

// TimeoutFloor returns the floor for name, zero for unknown models.
func (c *Catalog) TimeoutFloor(name string) time.Duration {
	m, _ := c.Lookup(name)
	return m.TimeoutFloor
}

// Names lists model names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.models))
	for name := range c.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks input against the rules the catalog holds for name.
// Unknown models and fields the catalog does not mention pass through.
func (c *Catalog) Validate(name string, input map[string]any) error {
	if name == "" {
		return failure.Fatalf("validate", "model is required")
	}
	m, ok := c.Lookup(name)
	if !ok {
		return nil
	}
	return m.Validate(input)
}

// Validate checks prompt length and pinned enum options.
func (m Model) Validate(input map[string]any) error {
	prompt, _ := input["prompt"].(string)
	if m.PromptRequired && prompt == "" {
		return failure.Fatalf("validate", "Prompt is required.")
	}
	if m.PromptMaxLength > 0 && utf8.RuneCountInString(prompt) > m.PromptMaxLength {
		return failure.Fatalf("validate", "Prompt exceeds the maximum length of %d characters.", m.PromptMaxLength)
	}

	fields := make([]string, 0, len(m.Options))
	for field := range m.Options {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		raw, present := input[field]
		if !present {
			continue
		}
		value := fmt.Sprint(raw)
		if !slices.Contains(m.Options[field], value) {
			return failure.Fatalf("validate", "Invalid %s %q. Use one of %v.", field, value, m.Options[field])
		}
	}
	return nil
}

func builtins() []Model {
	seedreamAspect := []string{"1:1", "4:3", "3:4", "16:9", "9:16", "2:3", "3:2", "21:9"}
	fiveOrTen := []string{"5", "10"}

	kling3Durations := make([]string, 0, 13)
	for i := 3; i <= 15; i++ {
		kling3Durations = append(kling3Durations, fmt.Sprint(i))
	}

	return []Model{
		{
			// Nano Banana keeps its own poll loop upstream, which never
			// raises the caller's timeout.
			Name:            "nano-banana-pro",
			Kind:            KindImage,
			DefaultTimeout:  300 * time.Second,
			PromptMaxLength: 10000,
			PromptRequired:  true,
			Options: map[string][]string{
				"aspect_ratio":  {"1:1", "2:3", "3:2", "3:4", "4:3", "4:5", "5:4", "9:16", "16:9", "21:9", "auto"},
				"resolution":    {"1K", "2K", "4K"},
				"output_format": {"png", "jpg"},
			},
		},
		flux("flux-2/pro-image-to-image"),
		flux("flux-2/flex-image-to-image"),
		{
			Name:            "seedream/4.5-text-to-image",
			Kind:            KindImage,
			TimeoutFloor:    sharedFloor,
			DefaultTimeout:  300 * time.Second,
			PromptMaxLength: 3000,
			PromptRequired:  true,
			Options:         map[string][]string{"aspect_ratio": seedreamAspect, "quality": {"basic", "high"}},
		},
		{
			Name:            "seedream/4.5-edit",
			Kind:            KindImage,
			TimeoutFloor:    sharedFloor,
			DefaultTimeout:  300 * time.Second,
			PromptMaxLength: 3000,
			PromptRequired:  true,
			Options:         map[string][]string{"aspect_ratio": seedreamAspect, "quality": {"basic", "high"}},
		},
		{
			Name:            "kling/v2-5-turbo-image-to-video-pro",
			Kind:            KindVideo,
			TimeoutFloor:    sharedFloor,
			DefaultTimeout:  600 * time.Second,
			PromptMaxLength: 1000,
			PromptRequired:  true,
			Options:         map[string][]string{"duration": fiveOrTen},
		},
		{
			Name:            "kling-2.6/image-to-video",
			Kind:            KindVideo,
			TimeoutFloor:    sharedFloor,
			DefaultTimeout:  600 * time.Second,
			PromptMaxLength: 1000,
			PromptRequired:  true,
			Options:         map[string][]string{"duration": fiveOrTen},
		},
		{
			Name:            "kling-2.6/text-to-video",
			Kind:            KindVideo,
			TimeoutFloor:    sharedFloor,
			DefaultTimeout:  1000 * time.Second,
			PromptMaxLength: 2500,
			PromptRequired:  true,
			Options: map[string][]string{
				"aspect_ratio": {"1:1", "16:9", "9:16"},
				"duration":     fiveOrTen,
			},
		},
		{
			Name:            "kling-2.6/motion-control",
			Kind:            KindVideo,
			TimeoutFloor:    sharedFloor,
			DefaultTimeout:  900 * time.Second,
			PromptMaxLength: 2500,
			Options: map[string][]string{
				"character_orientation": {"image", "video"},
				"mode":                  {"720p", "1080p"},
			},
		},
		{
			Name:            "kling-3.0/video",
			Kind:            KindVideo,
			TimeoutFloor:    sharedFloor,
			DefaultTimeout:  1000 * time.Second,
			PromptMaxLength: 2500,
			Options: map[string][]string{
				"mode":         {"std", "pro"},
				"aspect_ratio": {"1:1", "9:16", "16:9"},
				"duration":     kling3Durations,
			},
		},
		{
			Name:            "bytedance/seedance-1.5-pro",
			Kind:            KindVideo,
			TimeoutFloor:    sharedFloor,
			DefaultTimeout:  1000 * time.Second,
			PromptMaxLength: 2500,
			PromptRequired:  true,
			Options: map[string][]string{
				"aspect_ratio": {"1:1", "21:9", "4:3", "3:4", "16:9", "9:16"},
				"resolution":   {"480p", "720p"},
				"duration":     {"4", "8", "12"},
			},
		},
		{
			Name:            "bytedance/v1-pro-fast-image-to-video",
			Kind:            KindVideo,
			TimeoutFloor:    sharedFloor,
			DefaultTimeout:  600 * time.Second,
			PromptMaxLength: 10000,
			PromptRequired:  true,
			Options: map[string][]string{
				"resolution": {"720p", "1080p"},
				"duration":   fiveOrTen,
			},
		},
	}
}

func flux(name string) Model {
	return Model{
		Name:            name,
		Kind:            KindImage,
		TimeoutFloor:    sharedFloor,
		DefaultTimeout:  300 * time.Second,
		PromptMaxLength: 5000,
		PromptRequired:  true,
		Options: map[string][]string{
			"aspect_ratio": {"1:1", "4:3", "3:4", "16:9", "9:16", "3:2", "2:3", "auto"},
			"resolution":   {"1K", "2K"},
		},
	}
}
