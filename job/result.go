package job

import (
	"strings"

	"github.com/GoCodeAlone/kiejob/failure"
	"github.com/tidwall/gjson"
)

// ExtractResultLocators returns the resultUrls carried by a successful
// record, in server order. It does not modify rec.
func ExtractResultLocators(rec *Record) ([]string, error) {
	if rec == nil {
		return nil, failure.Fatalf("", "Task completed without resultJson.")
	}
	raw := strings.TrimSpace(string(rec.ResultJSON))
	if raw == "" {
		return nil, failure.Fatalf("", "Task completed without resultJson.")
	}
	if !gjson.Valid(raw) {
		return nil, failure.Fatalf("", "resultJson is not valid JSON.")
	}

	urls := gjson.Get(raw, "resultUrls")
	if !urls.IsArray() || len(urls.Array()) == 0 {
		return nil, failure.Fatalf("", "resultJson does not contain resultUrls.")
	}

	items := urls.Array()
	out := make([]string, 0, len(items))
	for i, item := range items {
		if item.Type != gjson.String {
			return nil, failure.Fatalf("", "resultUrls[%d] is not a string.", i)
		}
		out = append(out, item.String())
	}
	return out, nil
}
