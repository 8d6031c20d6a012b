package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestShellExecutor_Execute(t *testing.T) {
	sb := newTestSandbox(t)
	ex := NewShellExecutor(sb, 30*time.Second, 10_000)
	ctx := context.Background()

	t.Run("echo", func(t *testing.T) {
		res := ex.Execute(ctx, "echo hi")
		if res.ExitCode != 0 {
			t.Fatalf("expected exit 0, got %d (%s)", res.ExitCode, res.Stderr)
		}
		if res.Stdout != "hi\n" {
			t.Fatalf("expected 'hi\\n', got %q", res.Stdout)
		}
	})

	t.Run("runs in sandbox root", func(t *testing.T) {
		res := ex.Execute(ctx, "pwd")
		if strings.TrimSpace(res.Stdout) != sb.Root() {
			t.Fatalf("expected cwd %q, got %q", sb.Root(), res.Stdout)
		}
	})

	t.Run("nonzero exit", func(t *testing.T) {
		res := ex.Execute(ctx, "exit 3")
		if res.ExitCode != 3 {
			t.Fatalf("expected exit 3, got %d", res.ExitCode)
		}
	})

	t.Run("stderr captured separately", func(t *testing.T) {
		res := ex.Execute(ctx, "echo out; echo err >&2")
		if res.Stdout != "out\n" {
			t.Fatalf("stdout: %q", res.Stdout)
		}
		if res.Stderr != "err\n" {
			t.Fatalf("stderr: %q", res.Stderr)
		}
	})

	t.Run("empty command", func(t *testing.T) {
		res := ex.Execute(ctx, "   ")
		if res.ExitCode == 0 {
			t.Fatal("expected failure for empty command")
		}
	})

	t.Run("crash signature flagged", func(t *testing.T) {
		res := ex.Execute(ctx, "echo 'Segmentation fault (core dumped)' >&2")
		if !res.CrashSuspected {
			t.Fatal("expected crash marker")
		}
		if !strings.Contains(res.Format(30*time.Second), "POTENTIAL CRASH DETECTED") {
			t.Fatal("expected crash marker in formatted output")
		}
	})

	t.Run("output truncated", func(t *testing.T) {
		res := ex.Execute(ctx, "head -c 20000 /dev/zero | tr '\\0' 'x'")
		if len(res.Stdout) > 10_100 {
			t.Fatalf("output not truncated: %d bytes", len(res.Stdout))
		}
		if !strings.Contains(res.Stdout, "truncated") {
			t.Fatal("expected truncation notice")
		}
	})
}

func TestShellExecutor_Timeout(t *testing.T) {
	sb := newTestSandbox(t)
	ex := NewShellExecutor(sb, 1*time.Second, 10_000)

	start := time.Now()
	res := ex.Execute(context.Background(), "sleep 1000")
	elapsed := time.Since(start)

	if !res.TimedOut {
		t.Fatalf("expected timeout, got exit %d", res.ExitCode)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("executor blocked for %v, expected ~1s", elapsed)
	}
	if !strings.Contains(res.Format(ex.Timeout()), "timed out") {
		t.Fatal("expected timeout message in formatted output")
	}
}

func TestShellExecutor_KillsProcessGroup(t *testing.T) {
	sb := newTestSandbox(t)
	ex := NewShellExecutor(sb, 1*time.Second, 10_000)

	// The background sleep is in the shell's process group; the group kill
	// must reap it, so the marker file never appears.
	res := ex.Execute(context.Background(), "(sleep 30 && touch leaked) & wait")
	if !res.TimedOut {
		t.Fatalf("expected timeout, got exit %d", res.ExitCode)
	}

	time.Sleep(200 * time.Millisecond)
	// test -f exits nonzero when the file is absent.
	check := ex.Execute(context.Background(), "test -f leaked")
	if check.ExitCode == 0 {
		t.Fatal("background child survived the group kill")
	}
}

func TestShellExecutor_Cancellation(t *testing.T) {
	sb := newTestSandbox(t)
	ex := NewShellExecutor(sb, 60*time.Second, 10_000)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	ex.Execute(ctx, "sleep 1000")
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("cancellation took %v", elapsed)
	}
}

func TestExecResult_Format(t *testing.T) {
	res := ExecResult{ExitCode: 2, Stdout: "out\n", Stderr: "err\n"}
	got := res.Format(time.Minute)
	for _, want := range []string{"Exit Code: 2", "--- STDOUT ---", "out", "--- STDERR ---", "err"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}
}
