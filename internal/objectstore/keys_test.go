package objectstore

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewObjectName(t *testing.T) {
	name := NewObjectName("Sunday Sermon.mp4")
	if !strings.HasPrefix(name, "uploads/") {
		t.Fatalf("expected uploads/ prefix, got %q", name)
	}
	if !strings.HasSuffix(name, "-sunday-sermon.mp4") {
		t.Fatalf("expected normalized filename suffix, got %q", name)
	}

	rest := strings.TrimPrefix(name, "uploads/")
	if len(rest) < 36 {
		t.Fatalf("expected a UUID component, got %q", rest)
	}
	if _, err := uuid.Parse(rest[:36]); err != nil {
		t.Fatalf("object name must embed a UUID, got %q: %v", rest[:36], err)
	}

	if NewObjectName("Sunday Sermon.mp4") == name {
		t.Fatal("object names must be unique per call")
	}
}

func TestNormalizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"simple", "sermon.mp4", "sermon.mp4"},
		{"uppercase and spaces", "Sunday Service.MOV", "sunday-service.mov"},
		{"diacritics stripped", "Prédication Dimanche.mp4", "predication-dimanche.mp4"},
		{"path traversal", "../../etc/passwd", "passwd"},
		{"windows path", `C:\Users\choir\anthem.mp4`, "anthem.mp4"},
		{"unsafe runes replaced", "a b?c*d.mp4", "a-b-c-d.mp4"},
		{"empty", "", "file"},
		{"whitespace only", "   ", "file"},
		{"nothing safe left", "???", "file"},
		{"surrounding dots trimmed", "..hidden..", "hidden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeFilename(tt.filename); got != tt.want {
				t.Fatalf("normalizeFilename(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
