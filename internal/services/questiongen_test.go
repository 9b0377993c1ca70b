package services

import "testing"

func TestValidateGeneratedQuestions(t *testing.T) {
	four := []string{"a", "b", "c", "d"}
	input := []generatedQuestion{
		{Question: "kept", Options: four, CorrectIndex: 2},
		{Question: "", Options: four, CorrectIndex: 0},
		{Question: "three options", Options: []string{"a", "b", "c"}, CorrectIndex: 0},
		{Question: "answer key past the options", Options: four, CorrectIndex: 4},
		{Question: "negative answer key", Options: four, CorrectIndex: -1},
	}

	valid := validateGeneratedQuestions(input)
	if len(valid) != 1 {
		t.Fatalf("kept %d questions, want 1", len(valid))
	}
	if valid[0].Question != "kept" || valid[0].CorrectIndex != 2 {
		t.Errorf("kept the wrong question: %+v", valid[0])
	}
}

func TestStripJSONFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare array", `[{"question":"q"}]`, `[{"question":"q"}]`},
		{"json fence", "```json\n[1]\n```", "[1]"},
		{"plain fence", "```\n[1]\n```", "[1]"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripJSONFences(tc.in); got != tc.want {
				t.Errorf("stripJSONFences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
