package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "hello", "hello"},
		{"spaces become hyphens", "Hello World", "hello-world"},
		{"uppercase lowered", "Calorie Counter", "calorie-counter"},
		{"punctuation dropped", "My App 2.0!", "my-app-20"},
		{"hyphens kept", "already-slugged", "already-slugged"},
		{"empty", "", ""},
		{"only invalid chars", "!@#$%", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Slugify(tt.input))
		})
	}
}
