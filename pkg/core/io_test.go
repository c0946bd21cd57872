package core

import "testing"

func TestAgentInput_ValidateTextOrData(t *testing.T) {
	cases := []struct {
		name    string
		input   AgentInput
		wantErr bool
	}{
		{"empty text and no data", AgentInput{}, true},
		{"non-empty text", AgentInput{Text: "hello"}, false},
		{"empty text, data string present", AgentInput{Parameters: map[string]any{"data": "x"}}, false},
		{"empty text, data empty string", AgentInput{Parameters: map[string]any{"data": ""}}, true},
		{"empty text, data non-string present", AgentInput{Parameters: map[string]any{"data": 42}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.input.ValidateTextOrData()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
			if tc.wantErr && err.Field != "data" {
				t.Fatalf("expected field=data, got %q", err.Field)
			}
		})
	}
}
