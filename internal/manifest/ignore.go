package manifest

import (
	"bufio"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

const (
	// MetaDir holds beamsync's own state inside the synchronized folder. It is
	// never scanned and never accepted as a transfer target.
	MetaDir = ".beamsync"

	// IgnoreFile holds gitignore-style patterns for paths to leave unsynced.
	IgnoreFile = ".syncignore"

	// TempSuffix marks in-flight transfer files.
	TempSuffix = ".beamsync-tmp"
)

var defaultIgnoreLines = []string{
	MetaDir + "/",
	"*" + TempSuffix + "*",
	// OS droppings
	".DS_Store",
	"Thumbs.db",
}

// Ignore decides which relative paths are excluded from scanning.
type Ignore struct {
	matcher *gitignore.GitIgnore
}

// LoadIgnore compiles the default rules plus any patterns in root/.syncignore.
// A missing ignore file is not an error.
func LoadIgnore(root string) (*Ignore, error) {
	lines := append([]string(nil), defaultIgnoreLines...)
	rules := 0

	f, err := os.Open(filepath.Join(root, IgnoreFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			lines = append(lines, line)
			rules++
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		slog.Debug("loaded ignore file", "path", f.Name(), "rules", rules)
	}

	return &Ignore{matcher: gitignore.CompileIgnoreLines(lines...)}, nil
}

// Match reports whether the slash-separated relative path is ignored. Pass a
// trailing slash for directories.
func (ig *Ignore) Match(rel string) bool {
	if ig == nil || ig.matcher == nil {
		return false
	}
	return ig.matcher.MatchesPath(rel)
}
