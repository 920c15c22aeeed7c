package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAssemblyPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"prog.c", "prog.s"},
		{"dir/prog.c", "dir/prog.s"},
		{"noext", "noext.s"},
		{"a.b/prog", "a.b/prog.s"},
		{"prog.test.c", "prog.test.s"},
	}
	for _, tt := range tests {
		if got := AssemblyPath(tt.in); got != tt.want {
			t.Errorf("AssemblyPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetPathInfo(t *testing.T) {
	full, parent, err := GetPathInfo(filepath.Join("a", "..", "b", "prog.c"))
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(full) {
		t.Errorf("expected an absolute path, got %q", full)
	}
	if filepath.Base(full) != "prog.c" || filepath.Base(parent) != "b" {
		t.Errorf("got %q in %q", full, parent)
	}
}

func TestIsTerminalOnFile(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if IsTerminal(f.Fd()) {
		t.Error("a regular file is not a terminal")
	}
}

func TestSamePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "prog.c")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.c")
	if err := os.Symlink(file, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	tests := []struct {
		a, b string
		want bool
	}{
		{file, file, true},
		{file, filepath.Join(dir, "sub", "..", "prog.c"), true},
		{file, link, true},
		{file, AssemblyPath(file), false},
		{filepath.Join(dir, "x.s"), AssemblyPath(filepath.Join(dir, "x.s")), true},
		{filepath.Join(dir, "a.s"), filepath.Join(dir, "b.s"), false},
	}
	for _, tt := range tests {
		got, err := SamePath(tt.a, tt.b)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("SamePath(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
