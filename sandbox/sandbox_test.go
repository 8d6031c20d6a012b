package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestSandbox(t *testing.T) *Sandbox {
	t.Helper()
	sb, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sb.Close() })
	return sb
}

func TestNew(t *testing.T) {
	t.Run("canonicalizes root", func(t *testing.T) {
		dir := t.TempDir()
		real := filepath.Join(dir, "real")
		os.Mkdir(real, 0755)
		link := filepath.Join(dir, "link")
		if err := os.Symlink(real, link); err != nil {
			t.Skip("symlinks unavailable")
		}

		sb, err := New(link)
		if err != nil {
			t.Fatal(err)
		}
		defer sb.Close()
		if sb.Root() != real {
			t.Fatalf("expected root %q, got %q", real, sb.Root())
		}
	})

	t.Run("rejects missing root", func(t *testing.T) {
		if _, err := New("/nonexistent-root-12345"); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("rejects file root", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "f")
		os.WriteFile(file, []byte("x"), 0644)
		if _, err := New(file); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("second run on same root is rejected", func(t *testing.T) {
		dir := t.TempDir()
		sb, err := New(dir)
		if err != nil {
			t.Fatal(err)
		}
		defer sb.Close()

		if _, err := New(dir); err == nil {
			t.Fatal("expected lock conflict")
		}
	})

	t.Run("lock is released on close", func(t *testing.T) {
		dir := t.TempDir()
		sb, err := New(dir)
		if err != nil {
			t.Fatal(err)
		}
		sb.Close()

		sb2, err := New(dir)
		if err != nil {
			t.Fatal(err)
		}
		sb2.Close()
	})
}

func TestSandbox_Resolve(t *testing.T) {
	sb := newTestSandbox(t)

	t.Run("relative path", func(t *testing.T) {
		abs, err := sb.Resolve("src/main.c")
		if err != nil {
			t.Fatal(err)
		}
		if abs != filepath.Join(sb.Root(), "src/main.c") {
			t.Fatalf("unexpected resolution: %q", abs)
		}
	})

	t.Run("empty and dot map to root", func(t *testing.T) {
		for _, rel := range []string{"", "."} {
			abs, err := sb.Resolve(rel)
			if err != nil {
				t.Fatal(err)
			}
			if abs != sb.Root() {
				t.Fatalf("expected root for %q, got %q", rel, abs)
			}
		}
	})

	t.Run("rejections", func(t *testing.T) {
		for _, rel := range []string{
			"/etc/passwd",
			"..",
			"../secret",
			"../../etc/passwd",
			"a/../../b",
			"a/b/../../../c",
		} {
			_, err := sb.Resolve(rel)
			if err == nil {
				t.Fatalf("expected rejection for %q", rel)
			}
			var pe *PathError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *PathError for %q, got %T", rel, err)
			}
		}
	})

	t.Run("rejection is idempotent", func(t *testing.T) {
		_, err1 := sb.Resolve("../../etc/passwd")
		_, err2 := sb.Resolve("../../etc/passwd")
		if err1 == nil || err2 == nil {
			t.Fatal("expected rejections")
		}
		if err1.Error() != err2.Error() {
			t.Fatalf("rejection reasons differ: %q vs %q", err1, err2)
		}
	})

	t.Run("symlink escape", func(t *testing.T) {
		outside := t.TempDir()
		os.WriteFile(filepath.Join(outside, "secret"), []byte("s"), 0644)
		link := filepath.Join(sb.Root(), "exit")
		if err := os.Symlink(outside, link); err != nil {
			t.Skip("symlinks unavailable")
		}

		if _, err := sb.Resolve("exit/secret"); err == nil {
			t.Fatal("expected rejection for symlink escape")
		}
	})

	t.Run("nonexistent path is allowed", func(t *testing.T) {
		abs, err := sb.Resolve("new/dir/file.txt")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(abs, sb.Root()) {
			t.Fatalf("resolved outside root: %q", abs)
		}
	})
}

func TestSandbox_ResolveFile(t *testing.T) {
	sb := newTestSandbox(t)
	os.MkdirAll(filepath.Join(sb.Root(), "src"), 0755)
	os.WriteFile(filepath.Join(sb.Root(), "src", "main.c"), []byte("int main(){}"), 0644)

	t.Run("existing file", func(t *testing.T) {
		abs, err := sb.ResolveFile("src/main.c")
		if err != nil {
			t.Fatal(err)
		}
		if abs != filepath.Join(sb.Root(), "src", "main.c") {
			t.Fatalf("unexpected path: %q", abs)
		}
	})

	t.Run("missing file lists parent entries", func(t *testing.T) {
		_, err := sb.ResolveFile("src/other.c")
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "main.c") {
			t.Fatalf("expected parent listing in %q", err)
		}
	})

	t.Run("missing ancestor is named", func(t *testing.T) {
		_, err := sb.ResolveFile("lib/deep/file.c")
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "lib") {
			t.Fatalf("expected missing ancestor in %q", err)
		}
	})

	t.Run("directory is distinguished", func(t *testing.T) {
		_, err := sb.ResolveFile("src")
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "is a directory") {
			t.Fatalf("expected directory diagnostic in %q", err)
		}
		if !strings.Contains(err.Error(), "main.c") {
			t.Fatalf("expected entry listing in %q", err)
		}
	})
}
