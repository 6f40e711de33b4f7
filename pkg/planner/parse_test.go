package planner

import "testing"

type probe struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"clean object", `{"name":"a","count":2}`, false},
		{"fenced", "```json\n{\"name\":\"a\",\"count\":2}\n```", false},
		{"fenced without language", "```\n{\"name\":\"a\",\"count\":2}\n```", false},
		{"prose around object", `Sure! Here is the JSON: {"name":"a","count":2} Hope that helps.`, false},
		{"trailing comma", `{"name":"a","count":2,}`, false},
		{"line comments", "{\n// the name\n\"name\":\"a\",\"count\":2}", false},
		{"block comment", `{"name":"a",/* why not */"count":2}`, false},
		{"empty", "", true},
		{"no object", "I cannot help with that.", true},
		{"broken json", `{"name": "a", "count": }`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst probe
			err := extractJSON(tt.raw, &dst)
			if tt.wantErr {
				if err == nil {
					t.Errorf("extractJSON(%q) expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractJSON(%q) failed: %v", tt.raw, err)
			}
			if dst.Name != "a" || dst.Count != 2 {
				t.Errorf("extractJSON(%q) = %+v", tt.raw, dst)
			}
		})
	}
}

func TestSanitizeModelJSONKeepsOutermostObject(t *testing.T) {
	raw := "noise {\"a\": {\"b\": 1}} trailing"
	got := sanitizeModelJSON(raw)
	if got != `{"a": {"b": 1}}` {
		t.Errorf("sanitizeModelJSON = %q", got)
	}
}
