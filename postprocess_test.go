package driftline

import "testing"

func TestCleanGeneration(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     string
		artifact bool
	}{
		{"plain", "  Work's been rough lately.  ", "Work's been rough lately.", false},
		{"role label", "Jack: Honestly, it's fine.", "Honestly, it's fine.", false},
		{"next turn", "I guess so.\nStudent: What else?\nJack: Nothing.", "I guess so.", false},
		{"persona turn", "Yeah, I hear you.\nJack: and another thing", "Yeah, I hear you.", false},
		{"brackets", "I'm tired [sighs] of all this.", "I'm tired  of all this.", false},
		{"dash block", "--- notes ---Fine, I guess.", "Fine, I guess.", false},
		{"meta marker", "I'm okay. What emotions does Jack show here?", "I'm okay.", false},
		{"pipe tail", "Sure. <|Analysis|> the client is guarded", "Sure.", false},
		{"leakage prefix", "Be sure to stay in character as Jack.", LeakageFiller, true},
		{"leakage fragment", "Remember to use correct grammar.", LeakageFiller, true},
		{"empty", "   ", EmptyFiller, true},
		{"only label", "Jack:", EmptyFiller, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, artifact := CleanGeneration(tt.raw, "Jack")
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
			if artifact != tt.artifact {
				t.Errorf("artifact: expected %v, got %v", tt.artifact, artifact)
			}
		})
	}
}
