package job

import (
	"slices"
	"strings"
	"testing"

	"github.com/GoCodeAlone/kiejob/failure"
)

func TestExtractResultLocators(t *testing.T) {
	rec := &Record{ResultJSON: `{"resultUrls":["https://x/b.mp4","https://x/a.png"],"extra":1}`}
	got, err := ExtractResultLocators(rec)
	if err != nil {
		t.Fatalf("ExtractResultLocators: %v", err)
	}
	want := []string{"https://x/b.mp4", "https://x/a.png"}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v (server order)", got, want)
	}

	again, err := ExtractResultLocators(rec)
	if err != nil || !slices.Equal(again, got) {
		t.Errorf("second extraction = %v, %v; want identical result", again, err)
	}
}

func TestExtractResultLocatorsErrors(t *testing.T) {
	tests := []struct {
		name    string
		rec     *Record
		wantMsg string
	}{
		{"nil record", nil, "without resultJson"},
		{"missing", &Record{}, "without resultJson"},
		{"blank", &Record{ResultJSON: "   "}, "without resultJson"},
		{"invalid", &Record{ResultJSON: `{"resultUrls":[`}, "not valid JSON"},
		{"no key", &Record{ResultJSON: `{"urls":["a"]}`}, "does not contain resultUrls"},
		{"not array", &Record{ResultJSON: `{"resultUrls":"a"}`}, "does not contain resultUrls"},
		{"empty", &Record{ResultJSON: `{"resultUrls":[]}`}, "does not contain resultUrls"},
		{"top-level array", &Record{ResultJSON: `["a"]`}, "does not contain resultUrls"},
		{"non-string entry", &Record{ResultJSON: `{"resultUrls":["a",42]}`}, "resultUrls[1] is not a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractResultLocators(tt.rec)
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("error = %v, want %q", err, tt.wantMsg)
			}
			if failure.KindOf(err) != failure.Fatal {
				t.Errorf("kind = %v, want fatal", failure.KindOf(err))
			}
		})
	}
}
