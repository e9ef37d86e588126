package pilot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestHashEmail_Normalizes(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{name: "case", a: "User@Example.com", b: "user@example.com"},
		{name: "whitespace", a: "  user@example.com ", b: "user@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if HashEmail(tt.a) != HashEmail(tt.b) {
				t.Errorf("HashEmail(%q) != HashEmail(%q)", tt.a, tt.b)
			}
		})
	}

	// Known SHA-1 of "user@example.com".
	if got := HashEmail("user@example.com"); len(got) != 40 {
		t.Errorf("HashEmail() length = %d, want 40 hex chars", len(got))
	}
}

func TestHashSetChecker(t *testing.T) {
	ctx := context.Background()
	checker := NewHashSetChecker([]string{
		HashEmail("member@example.com"),
		"  " + HashEmail("padded@example.com") + "  ",
		"",
	})

	if checker.Len() != 2 {
		t.Errorf("Len() = %d, want 2", checker.Len())
	}

	tests := []struct {
		email string
		want  bool
	}{
		{email: "member@example.com", want: true},
		{email: "Member@Example.COM", want: true},
		{email: "padded@example.com", want: true},
		{email: "stranger@example.com", want: false},
	}
	for _, tt := range tests {
		got, err := checker.IsEmailOnPilotList(ctx, tt.email)
		if err != nil {
			t.Fatalf("IsEmailOnPilotList(%q) error = %v", tt.email, err)
		}
		if got != tt.want {
			t.Errorf("IsEmailOnPilotList(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}

func TestLoadHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pilot.txt")
	content := "# pilot members\n" +
		HashEmail("member@example.com") + "\n" +
		"\n" +
		HashEmail("other@example.com") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	checker, err := LoadHashFile(path)
	if err != nil {
		t.Fatalf("LoadHashFile() error = %v", err)
	}
	if checker.Len() != 2 {
		t.Errorf("Len() = %d, want 2", checker.Len())
	}

	got, err := checker.IsEmailOnPilotList(context.Background(), "member@example.com")
	if err != nil || !got {
		t.Errorf("IsEmailOnPilotList() = %v, %v", got, err)
	}
}

func TestLoadHashFile_Missing(t *testing.T) {
	if _, err := LoadHashFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("LoadHashFile() should fail for a missing file")
	}
}
