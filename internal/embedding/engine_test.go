package embedding

import (
	"strings"
	"testing"
)

func TestGenAIEngineRequiresAPIKey(t *testing.T) {
	_, err := NewGenAIEngine("", "")
	if err == nil {
		t.Fatal("missing API key should fail")
	}
	if !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Errorf("error should name the env variable: %v", err)
	}
}

func TestOllamaEngineDefaults(t *testing.T) {
	e, err := NewOllamaEngine("", "")
	if err != nil {
		t.Fatalf("NewOllamaEngine: %v", err)
	}
	if e.Name() != "ollama:embeddinggemma" {
		t.Errorf("Name = %q", e.Name())
	}
	if e.Dimensions() != 768 {
		t.Errorf("Dimensions = %d", e.Dimensions())
	}
}
