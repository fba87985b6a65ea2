package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxIncludeDepth bounds how deep includes may nest below the main file.
const maxIncludeDepth = 10

// includeHeader is the part of a fragment read before it is applied.
type includeHeader struct {
	Includes []string `yaml:"includes"`
}

type fragment struct {
	path string
	data []byte
}

// fragmentSet gathers include fragments in apply order. A fragment's own
// includes come before it, so every file overrides what it includes, the same
// way the main file overrides its includes.
type fragmentSet struct {
	chain     map[string]bool
	applied   map[string]bool
	fragments []fragment
}

// collectFragments resolves the includes of the main config file at mainPath
// (absolute) and returns them in the order they must be applied.
func collectFragments(mainPath string, patterns []string) ([]fragment, error) {
	s := &fragmentSet{
		chain:   map[string]bool{mainPath: true},
		applied: make(map[string]bool),
	}
	if err := s.expand(filepath.Dir(mainPath), patterns, 1); err != nil {
		return nil, err
	}
	return s.fragments, nil
}

func (s *fragmentSet) expand(dir string, patterns []string, depth int) error {
	if len(patterns) > 0 && depth > maxIncludeDepth {
		return fmt.Errorf("config includes: max depth %d exceeded", maxIncludeDepth)
	}
	for _, pattern := range patterns {
		files, err := includeTargets(dir, pattern)
		if err != nil {
			return err
		}
		for _, file := range files {
			if err := s.visit(file, depth); err != nil {
				return err
			}
		}
	}
	return nil
}

// visit adds file after its own includes. A file reached twice through
// different parents is applied once; a file that includes itself, directly
// or not, is an error.
func (s *fragmentSet) visit(file string, depth int) error {
	if s.chain[file] {
		return fmt.Errorf("config includes: circular include of %q", file)
	}
	if s.applied[file] {
		return nil
	}

	if err := validatePermissions(file); err != nil {
		return fmt.Errorf("config includes: %w", err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("config includes: %w", err)
	}
	s.applied[file] = true
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var hdr includeHeader
	if err := yaml.Unmarshal(data, &hdr); err != nil {
		return fmt.Errorf("config includes: parse %q: %w", file, err)
	}

	s.chain[file] = true
	err = s.expand(filepath.Dir(file), hdr.Includes, depth+1)
	delete(s.chain, file)
	if err != nil {
		return err
	}
	s.fragments = append(s.fragments, fragment{path: file, data: data})
	return nil
}

// includeTargets expands one include entry relative to dir. A glob may match
// nothing; a literal path is returned as is and must exist. Entries may not
// point outside dir.
func includeTargets(dir, pattern string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(dir, pattern)
	}
	pattern = filepath.Clean(pattern)

	if rel, err := filepath.Rel(dir, pattern); err != nil || !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("config includes: %q escapes config directory %q", pattern, dir)
	}

	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("config includes: glob %q: %w", pattern, err)
	}
	return files, nil
}
