package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxIncludeDepth bounds how deeply include files may nest.
const maxIncludeDepth = 5

// fragment is one YAML file reached through includes.
type fragment struct {
	path string
	data []byte
}

// layers is the ordered list of files that make up one config. Every file
// comes after the files it includes, so applying the list in order lets a
// file override its includes. The main file is always last.
type layers struct {
	root      string          // directory of the main file; includes stay inside it
	open      map[string]bool // files on the current include chain
	applied   map[string]bool // files already in fragments
	fragments []fragment
}

// collectLayers resolves the include tree of the main config at path,
// whose contents are data. path must be absolute.
func collectLayers(path string, data []byte) (*layers, error) {
	l := &layers{
		root:    filepath.Dir(path),
		open:    map[string]bool{path: true},
		applied: map[string]bool{},
	}
	includes, err := includesOf(path, data)
	if err != nil {
		return nil, err
	}
	if err := l.include(l.root, includes, 1); err != nil {
		return nil, err
	}
	l.fragments = append(l.fragments, fragment{path: path, data: data})
	return l, nil
}

// apply unmarshals every layer onto cfg in order.
func (l *layers) apply(cfg *Config) error {
	for _, f := range l.fragments {
		if err := yaml.Unmarshal(f.data, cfg); err != nil {
			return fmt.Errorf("parse config %q: %w", f.path, err)
		}
	}
	cfg.Includes = nil
	return nil
}

// include adds the files named by patterns, written in a file under dir.
func (l *layers) include(dir string, patterns []string, depth int) error {
	if len(patterns) == 0 {
		return nil
	}
	if depth > maxIncludeDepth {
		return fmt.Errorf("config includes: nesting deeper than %d", maxIncludeDepth)
	}
	for _, pattern := range patterns {
		paths, err := l.resolve(dir, pattern)
		if err != nil {
			return err
		}
		for _, p := range paths {
			if err := l.addFile(p, depth); err != nil {
				return err
			}
		}
	}
	return nil
}

// addFile adds path after its own includes. A file included twice through
// different branches is applied once; a file that includes itself,
// directly or not, is an error.
func (l *layers) addFile(path string, depth int) error {
	if l.open[path] {
		return fmt.Errorf("config includes: circular include of %q", path)
	}
	if l.applied[path] {
		return nil
	}
	if err := validatePermissions(path); err != nil {
		return fmt.Errorf("config includes: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config includes: read %q: %w", path, err)
	}
	nested, err := includesOf(path, data)
	if err != nil {
		return err
	}

	l.open[path] = true
	err = l.include(filepath.Dir(path), nested, depth+1)
	delete(l.open, path)
	if err != nil {
		return err
	}

	l.applied[path] = true
	l.fragments = append(l.fragments, fragment{path: path, data: data})
	return nil
}

// resolve expands pattern relative to dir. Results must stay under the main
// config's directory. A literal path is returned even when missing so the
// read reports it; a glob may match nothing.
func (l *layers) resolve(dir, pattern string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(dir, pattern)
	}
	pattern = filepath.Clean(pattern)

	rel, err := filepath.Rel(l.root, pattern)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("config includes: %q escapes %s", pattern, l.root)
	}

	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("config includes: glob %q: %w", pattern, err)
	}
	return matches, nil
}

// includesOf reads only the includes key of a config file.
func includesOf(path string, data []byte) ([]string, error) {
	var head struct {
		Includes []string `yaml:"includes"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return head.Includes, nil
}
