package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"autoprobe/sandbox"
)

const maxTreeEntries = 500

// DirectoryTree renders the workspace as an indented tree for the initial
// prompt, pruning dotfiles and dependency directories. The model is told to
// use these exact relative paths, so the rendering must match what the
// sandbox will later accept.
func DirectoryTree(sb *sandbox.Sandbox) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/\n", filepath.Base(sb.Root()))

	count := 0
	writeTreeLevel(&b, sb.Root(), "", &count)
	if count >= maxTreeEntries {
		fmt.Fprintf(&b, "... (listing truncated at %d entries; use list_project_files to explore further)\n", maxTreeEntries)
	}
	return strings.TrimRight(b.String(), "\n")
}

// writeTreeLevel renders one directory's entries, choosing the connector by
// sibling position: the last entry gets "└──", everything before it "├──".
func writeTreeLevel(b *strings.Builder, dir, prefix string, count *int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var kept []os.DirEntry
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() && skipDir(name) {
			continue
		}
		if !e.IsDir() && (strings.HasPrefix(name, ".") || name == sandbox.LockFileName) {
			continue
		}
		kept = append(kept, e)
	}

	for i, e := range kept {
		if *count >= maxTreeEntries {
			return
		}
		*count++

		connector, childPrefix := "├── ", prefix+"│   "
		if i == len(kept)-1 {
			connector, childPrefix = "└── ", prefix+"    "
		}
		if e.IsDir() {
			fmt.Fprintf(b, "%s%s%s/\n", prefix, connector, e.Name())
			writeTreeLevel(b, filepath.Join(dir, e.Name()), childPrefix, count)
		} else {
			fmt.Fprintf(b, "%s%s%s\n", prefix, connector, e.Name())
		}
	}
}
