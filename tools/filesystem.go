package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"autoprobe/sandbox"
)

const (
	maxReadBytes     = 400_000
	maxSearchMatches = 200
)

// RegisterFilesystemTools registers the file-operation tools, all of which
// resolve their paths through the sandbox before touching anything. A
// rejected path becomes the tool result verbatim: the model sees the same
// diagnostic a human would.
func RegisterFilesystemTools(r *Registry, sb *sandbox.Sandbox) {
	r.Register(&FuncTool{
		ToolSpec: Spec{
			Name:        "read_file_content",
			Description: "Reads the full text content of a single file. The file path must be relative to the project root.",
			Params: []Param{
				{Name: "file_path", Type: TypeString, Required: true, Description: "Relative path to the file from the project root"},
			},
		},
		Fn: func(_ context.Context, args map[string]any) string {
			return readFileContent(sb, StringArg(args, "file_path"))
		},
	})

	r.Register(&FuncTool{
		ToolSpec: Spec{
			Name:        "write_to_file",
			Description: "Writes content to a file, creating it and any missing parent directories. Use this to create PoC scripts, patches, and test inputs.",
			Params: []Param{
				{Name: "file_path", Type: TypeString, Required: true, Description: "Relative path to write, from the project root"},
				{Name: "content", Type: TypeString, Required: true, Description: "Content to write"},
			},
		},
		Fn: func(_ context.Context, args map[string]any) string {
			return writeToFile(sb, StringArg(args, "file_path"), StringArg(args, "content"))
		},
	})

	r.Register(&FuncTool{
		ToolSpec: Spec{
			Name:        "list_project_files",
			Description: "Lists files and directories at a path relative to the project root. Defaults to the root itself.",
			Params: []Param{
				{Name: "path", Type: TypeString, Required: false, Description: "Relative directory path (default: project root)"},
			},
		},
		Fn: func(_ context.Context, args map[string]any) string {
			return listProjectFiles(sb, StringArg(args, "path"))
		},
	})

	r.Register(&FuncTool{
		ToolSpec: Spec{
			Name:        "search_pattern",
			Description: "Searches a single file for a regular expression and returns matching lines with line numbers.",
			Params: []Param{
				{Name: "file_path", Type: TypeString, Required: true, Description: "Relative path to the file to search"},
				{Name: "regex_pattern", Type: TypeString, Required: true, Description: "Go/RE2 regular expression to search for"},
			},
		},
		Fn: func(_ context.Context, args map[string]any) string {
			return searchPattern(sb, StringArg(args, "file_path"), StringArg(args, "regex_pattern"))
		},
	})

	r.Register(&FuncTool{
		ToolSpec: Spec{
			Name:        "search_codebase",
			Description: "Searches every text file in the project for a regular expression. Returns file, line number, and line for each match.",
			Params: []Param{
				{Name: "regex_pattern", Type: TypeString, Required: true, Description: "Go/RE2 regular expression to search for"},
			},
		},
		Fn: func(_ context.Context, args map[string]any) string {
			return searchCodebase(sb, StringArg(args, "regex_pattern"))
		},
	})
}

func readFileContent(sb *sandbox.Sandbox, rel string) string {
	abs, err := sb.ResolveFile(rel)
	if err != nil {
		return "Error: " + err.Error()
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Sprintf("Error: could not read %q: %v", rel, err)
	}
	if !utf8.Valid(data) {
		return fmt.Sprintf("Error: %q is a binary file (%d bytes). Use execute_shell_command with a tool like xxd or strings to inspect it.", rel, len(data))
	}
	if len(data) > maxReadBytes {
		return string(data[:maxReadBytes]) + fmt.Sprintf("\n... File truncated at %d bytes. Use search_pattern to locate specific regions.", maxReadBytes)
	}
	return string(data)
}

func writeToFile(sb *sandbox.Sandbox, rel, content string) string {
	if rel == "" {
		return "Error: file_path must not be empty"
	}
	abs, err := sb.Resolve(rel)
	if err != nil {
		return "Error: " + err.Error()
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return fmt.Sprintf("Error: %q is a directory", rel)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Sprintf("Error: could not create parent directory for %q: %v", rel, err)
	}

	// Atomic write: the file is either absent, old, or complete.
	tmp, err := os.CreateTemp(filepath.Dir(abs), ".autoprobe-tmp-*")
	if err != nil {
		return fmt.Sprintf("Error: could not create temp file: %v", err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.WriteString(content)
	tmp.Close()
	if werr != nil {
		os.Remove(tmpName)
		return fmt.Sprintf("Error: could not write %q: %v", rel, werr)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Sprintf("Error: could not set permissions on %q: %v", rel, err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		os.Remove(tmpName)
		return fmt.Sprintf("Error: could not write %q: %v", rel, err)
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), rel)
}

func listProjectFiles(sb *sandbox.Sandbox, rel string) string {
	abs, err := sb.Resolve(rel)
	if err != nil {
		return "Error: " + err.Error()
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return fmt.Sprintf("Error: could not list %q: %v", displayPath(rel), err)
	}

	var b strings.Builder
	for _, e := range entries {
		name := e.Name()
		if name == sandbox.LockFileName {
			continue
		}
		if e.IsDir() {
			fmt.Fprintf(&b, "%s/\n", name)
			continue
		}
		info, err := e.Info()
		if err != nil {
			fmt.Fprintf(&b, "%s\n", name)
			continue
		}
		fmt.Fprintf(&b, "%s (%d bytes)\n", name, info.Size())
	}
	if b.Len() == 0 {
		return fmt.Sprintf("Directory %s is empty.", displayPath(rel))
	}
	return strings.TrimRight(b.String(), "\n")
}

func searchPattern(sb *sandbox.Sandbox, rel, pattern string) string {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Sprintf("Error: invalid regex %q: %v", pattern, err)
	}
	abs, rerr := sb.ResolveFile(rel)
	if rerr != nil {
		return "Error: " + rerr.Error()
	}

	f, err := os.Open(abs)
	if err != nil {
		return fmt.Sprintf("Error: could not open %q: %v", rel, err)
	}
	defer f.Close()

	var b strings.Builder
	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if re.MatchString(line) {
			fmt.Fprintf(&b, "%d: %s\n", lineNum, line)
			count++
			if count >= maxSearchMatches {
				fmt.Fprintf(&b, "... Stopped after %d matches.\n", maxSearchMatches)
				break
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Sprintf("Error: reading %q: %v", rel, err)
	}
	if count == 0 {
		return fmt.Sprintf("Pattern %q not found in %s.", pattern, rel)
	}
	return strings.TrimRight(b.String(), "\n")
}

func searchCodebase(sb *sandbox.Sandbox, pattern string) string {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Sprintf("Error: invalid regex %q: %v", pattern, err)
	}

	var b strings.Builder
	count := 0
	root := sb.Root()
	filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDir(d.Name()) && p != root {
				return filepath.SkipDir
			}
			return nil
		}
		if count >= maxSearchMatches {
			return filepath.SkipAll
		}
		if isBinaryExt(strings.ToLower(filepath.Ext(p))) || d.Name() == sandbox.LockFileName {
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return nil
		}
		defer f.Close()

		rel, _ := filepath.Rel(root, p)
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			line := scanner.Text()
			if re.MatchString(line) {
				fmt.Fprintf(&b, "%s:%d: %s\n", rel, lineNum, line)
				count++
				if count >= maxSearchMatches {
					fmt.Fprintf(&b, "... Stopped after %d matches.\n", maxSearchMatches)
					return filepath.SkipAll
				}
			}
		}
		return nil
	})

	if count == 0 {
		return fmt.Sprintf("Pattern %q not found in any file.", pattern)
	}
	return strings.TrimRight(b.String(), "\n")
}

func displayPath(rel string) string {
	if rel == "" || rel == "." {
		return "<project root>"
	}
	return rel
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") ||
		name == "node_modules" || name == "__pycache__" || name == "vendor" || name == "venv"
}

// isBinaryExt returns true for extensions skipped during codebase search.
func isBinaryExt(ext string) bool {
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".webp",
		".zip", ".tar", ".gz", ".bz2", ".xz", ".7z",
		".pdf", ".doc", ".docx", ".xls", ".xlsx",
		".so", ".dylib", ".dll", ".exe", ".o", ".a",
		".wasm", ".pyc", ".class",
		".mp3", ".mp4", ".avi", ".mov", ".wav", ".flac":
		return true
	}
	return false
}
