package catalog

import (
	"strings"
	"testing"
	"time"

	"github.com/GoCodeAlone/kiejob/config"
	"github.com/GoCodeAlone/kiejob/failure"
)

func TestTimeoutFloors(t *testing.T) {
	c := Default(nil)
	if got := c.TimeoutFloor("nano-banana-pro"); got != 0 {
		t.Errorf("nano-banana-pro floor = %v, want 0", got)
	}
	if got := c.TimeoutFloor("kling-2.6/image-to-video"); got != 1000*time.Second {
		t.Errorf("kling floor = %v, want 1000s", got)
	}
	if got := c.TimeoutFloor("unknown/model"); got != 0 {
		t.Errorf("unknown floor = %v, want 0", got)
	}
}

func TestDefaultOverrides(t *testing.T) {
	c := Default([]config.ModelConfig{
		{Name: "nano-banana-pro", TimeoutFloor: 90 * time.Second},
		{Name: "custom/model", TimeoutFloor: time.Minute, DefaultTimeout: 2 * time.Minute},
	})
	if got := c.TimeoutFloor("nano-banana-pro"); got != 90*time.Second {
		t.Errorf("override floor = %v", got)
	}
	m, ok := c.Lookup("custom/model")
	if !ok {
		t.Fatal("custom model not registered")
	}
	if m.DefaultTimeout != 2*time.Minute {
		t.Errorf("DefaultTimeout = %v", m.DefaultTimeout)
	}
	nb, _ := c.Lookup("nano-banana-pro")
	if nb.PromptMaxLength != 10000 {
		t.Errorf("override dropped builtin fields: %+v", nb)
	}
}

func TestValidate(t *testing.T) {
	c := Default(nil)
	tests := []struct {
		name    string
		model   string
		input   map[string]any
		wantErr string
	}{
		{"ok", "nano-banana-pro", map[string]any{"prompt": "a cat", "aspect_ratio": "16:9"}, ""},
		{"missing prompt", "nano-banana-pro", map[string]any{}, "Prompt is required"},
		{"long prompt", "kling-2.6/image-to-video", map[string]any{"prompt": strings.Repeat("x", 1001)}, "maximum length of 1000"},
		{"bad enum", "nano-banana-pro", map[string]any{"prompt": "p", "resolution": "8K"}, "Invalid resolution"},
		{"numeric enum", "kling-3.0/video", map[string]any{"duration": 7}, ""},
		{"unknown model", "other/model", map[string]any{"anything": true}, ""},
		{"empty model", "", nil, "model is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Validate(tt.model, tt.input)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
			if failure.KindOf(err) != failure.Fatal {
				t.Errorf("kind = %v, want fatal", failure.KindOf(err))
			}
		})
	}
}

func TestNamesSorted(t *testing.T) {
	names := Default(nil).Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}
