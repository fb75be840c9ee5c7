package sanitize

import (
	"strings"
	"testing"
)

func TestCleanRedactsEmails(t *testing.T) {
	out := Clean("contact bob.smith+dev@example.co.uk for details")
	if strings.Contains(out, "@") {
		t.Fatalf("email survived: %q", out)
	}
	if !strings.Contains(out, EmailMarker) {
		t.Fatalf("missing email marker: %q", out)
	}
}

func TestCleanRedactsWindowsPaths(t *testing.T) {
	for _, in := range []string{
		`see C:\Users\bob\secrets.txt for config`,
		`see D:/Users/bob/secrets.txt for config`,
		`loaded from \\fileserver\share\doc.md`,
	} {
		out := Clean(in)
		if strings.Contains(out, "bob") || strings.Contains(out, "fileserver") {
			t.Fatalf("path survived in %q -> %q", in, out)
		}
		if !strings.Contains(out, PathMarker) {
			t.Fatalf("missing path marker in %q -> %q", in, out)
		}
	}
}

func TestCleanKeepsURLsAndShortPaths(t *testing.T) {
	in := "docs at https://example.com/guide and source in src/main.go"
	out := Clean(in)
	if !strings.Contains(out, "https://example.com/guide") {
		t.Fatalf("URL mangled: %q", out)
	}
	if !strings.Contains(out, "src/main.go") {
		t.Fatalf("relative path mangled: %q", out)
	}
}

func TestCleanRedactsLongPosixPaths(t *testing.T) {
	long := "/home/" + strings.Repeat("deeply/nested/", 12) + "file.txt"
	if len(long) < 120 {
		t.Fatal("test path too short")
	}
	out := Clean("data at " + long)
	if strings.Contains(out, "nested") {
		t.Fatalf("long path survived: %q", out)
	}
}

func TestCleanRedactsNames(t *testing.T) {
	out := Clean("reviewed by Alice Johnson yesterday")
	if strings.Contains(out, "Johnson") {
		t.Fatalf("name survived: %q", out)
	}
	if !strings.Contains(out, NameMarker) {
		t.Fatalf("missing name marker: %q", out)
	}
}

func TestCleanStripsControlBytes(t *testing.T) {
	out := Clean("hello\x00world\x1b[31m")
	if strings.ContainsRune(out, 0) || strings.ContainsRune(out, 0x1b) {
		t.Fatalf("control bytes survived: %q", out)
	}
}

func TestCleanIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain text with nothing to redact",
		`mail Jane Doe at jane@corp.io, file C:\Users\jane\notes.md`,
		"mixed \x07 control and https://ok.example/path",
		"/home/" + strings.Repeat("x/", 70) + "end",
	}
	for _, in := range inputs {
		once := Clean(in)
		twice := Clean(once)
		if once != twice {
			t.Fatalf("not idempotent for %q:\n once: %q\ntwice: %q", in, once, twice)
		}
	}
}

func TestOriginFile(t *testing.T) {
	tests := []struct {
		path, root, want string
	}{
		{"/proj/src/main.go", "/proj", "src/main.go"},
		{"/proj/src/main.go", "/proj/", "src/main.go"},
		{"/elsewhere/secret/notes.txt", "/proj", "notes.txt"},
		{`C:\work\proj\a.ts`, `C:\work\proj`, "a.ts"},
		{"bare.md", "/proj", "bare.md"},
		{"", "/proj", ""},
	}
	for _, tt := range tests {
		if got := OriginFile(tt.path, tt.root); got != tt.want {
			t.Errorf("OriginFile(%q, %q) = %q, want %q", tt.path, tt.root, got, tt.want)
		}
	}
}
