package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnorePatterns are skipped when walking a directory tree.
var DefaultIgnorePatterns = []string{
	".git",
	"node_modules",
	"vendor",
	"__pycache__",
	".venv",
	".idea",
	".vscode",
	".DS_Store",
}

// Collect expands paths into a sorted list of supported files. Directories
// are walked recursively honouring DefaultIgnorePatterns and the root's
// .gitignore; plain files are kept only when their extension is supported.
func Collect(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("collect %s: %w", p, err)
		}
		if !info.IsDir() {
			if Allowed(p) {
				add(p)
			} else {
				log.Printf("parser: skipping unsupported file %s", p)
			}
			continue
		}
		files, err := walkDir(p)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			add(f)
		}
	}
	sort.Strings(out)
	return out, nil
}

func walkDir(root string) ([]string, error) {
	patterns := append([]string(nil), DefaultIgnorePatterns...)
	patterns = append(patterns, readIgnoreLines(filepath.Join(root, ".gitignore"))...)
	matcher := gitignore.CompileIgnoreLines(patterns...)

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("parser: walk %s: %v", path, err)
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		if matcher.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && Allowed(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

func readIgnoreLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("parser: read %s: %v", path, err)
		}
		return nil
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	return lines
}

// Parsed is one successfully parsed file.
type Parsed struct {
	Path string
	Text string
	Kind string
}

// ParseDirectory parses every supported file under root. Unreadable and
// empty files are logged and skipped.
func ParseDirectory(root string) ([]Parsed, error) {
	files, err := Collect([]string{root})
	if err != nil {
		return nil, err
	}
	p := New()
	var out []Parsed
	for _, path := range files {
		text, kind, err := p.Parse(path)
		if err != nil {
			log.Printf("parser: skipped %s: %v", path, err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, Parsed{Path: path, Text: text, Kind: kind})
	}
	return out, nil
}
