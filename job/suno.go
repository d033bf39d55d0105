package job

import (
	"context"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/GoCodeAlone/kiejob/failure"
)

// SunoModels are the accepted music model versions.
var SunoModels = []string{"V4", "V4_5", "V4_5PLUS", "V4_5ALL", "V5"}

// SunoRequest is the body of a music generation call.
type SunoRequest struct {
	Prompt       string   `json:"prompt" yaml:"prompt"`
	CustomMode   bool     `json:"customMode" yaml:"custom_mode"`
	Instrumental bool     `json:"instrumental" yaml:"instrumental"`
	Model        string   `json:"model" yaml:"model"`
	CallbackURL  string   `json:"callBackUrl" yaml:"callback_url"`
	Style        string   `json:"style,omitempty" yaml:"style"`
	Title        string   `json:"title,omitempty" yaml:"title"`
	NegativeTags string   `json:"negativeTags,omitempty" yaml:"negative_tags"`
	VocalGender  string   `json:"vocalGender,omitempty" yaml:"vocal_gender"`
	StyleWeight  *float64 `json:"styleWeight,omitempty" yaml:"style_weight"`
	Weirdness    *float64 `json:"weirdnessConstraint,omitempty" yaml:"weirdness_constraint"`
	AudioWeight  *float64 `json:"audioWeight,omitempty" yaml:"audio_weight"`
	PersonaID    string   `json:"personaId,omitempty" yaml:"persona_id"`
}

// Normalize trims the free-text fields in place.
func (r *SunoRequest) Normalize() {
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.Style = strings.TrimSpace(r.Style)
	r.Title = strings.TrimSpace(r.Title)
}

// Validate checks the request against the generate endpoint's rules. Custom
// mode requires style and title (and lyrics unless instrumental); simple
// mode takes only a short prompt.
func (r *SunoRequest) Validate() error {
	if !slices.Contains(SunoModels, r.Model) {
		return failure.Fatalf(opGenerate, "Invalid model. Use the pinned enum options.")
	}
	if r.VocalGender != "" && r.VocalGender != "m" && r.VocalGender != "f" {
		return failure.Fatalf(opGenerate, "vocal_gender must be 'm' or 'f'.")
	}
	if r.CallbackURL == "" {
		return failure.Fatalf(opGenerate, "callback_url is required by the API.")
	}

	if !r.CustomMode {
		if r.Prompt == "" {
			return failure.Fatalf(opGenerate, "prompt is required when custom_mode is disabled.")
		}
		if err := maxLen("prompt", r.Prompt, 500); err != nil {
			return err
		}
		if r.Style != "" || r.Title != "" || r.NegativeTags != "" || r.VocalGender != "" || r.PersonaID != "" {
			return failure.Fatalf(opGenerate, "style/title/negative_tags/vocal_gender/persona_id must be empty when custom_mode is false.")
		}
		return nil
	}

	if r.Style == "" {
		return failure.Fatalf(opGenerate, "style is required when custom_mode is enabled.")
	}
	if r.Title == "" {
		return failure.Fatalf(opGenerate, "title is required when custom_mode is enabled.")
	}
	if !r.Instrumental && r.Prompt == "" {
		return failure.Fatalf(opGenerate, "prompt (lyrics) is required when custom_mode is enabled and instrumental is false.")
	}
	promptMax, styleMax := 5000, 1000
	if r.Model == "V4" {
		promptMax, styleMax = 3000, 200
	}
	if err := maxLen("prompt", r.Prompt, promptMax); err != nil {
		return err
	}
	if err := maxLen("style", r.Style, styleMax); err != nil {
		return err
	}
	return maxLen("title", r.Title, 80)
}

func maxLen(field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return failure.Fatalf(opGenerate, "%s exceeds max length of %d characters.", field, limit)
	}
	return nil
}

// SubmitSuno validates req and creates a music generation task.
func (s *Submitter) SubmitSuno(ctx context.Context, token string, req SunoRequest) (*Submission, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	target := Target{Op: opGenerate, URL: s.endpoints.Generate, Timeout: generateTimeout, PreferMsg: true}
	sub, err := s.SubmitTo(ctx, token, target, req)
	if err != nil {
		return nil, err
	}
	s.log.Infow("suno task created", "task_id", sub.TaskID, "model", req.Model)
	return sub, nil
}
