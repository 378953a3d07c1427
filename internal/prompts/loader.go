// Package prompts holds the scoring prompt templates, embedded as JSON files
// mapping prompt keys to template text.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
)

//go:embed *.json
var promptFiles embed.FS

var placeholderRE = regexp.MustCompile(`\{\{\.([A-Za-z0-9_]+)\}\}`)

var (
	loadOnce sync.Once
	loaded   map[string]map[string]string
	loadErr  error
)

// load parses every embedded prompt file once.
func load() (map[string]map[string]string, error) {
	loadOnce.Do(func() {
		entries, err := promptFiles.ReadDir(".")
		if err != nil {
			loadErr = fmt.Errorf("failed to list prompt files: %w", err)
			return
		}
		loaded = make(map[string]map[string]string, len(entries))
		for _, e := range entries {
			if e.IsDir() || path.Ext(e.Name()) != ".json" {
				continue
			}
			data, err := promptFiles.ReadFile(e.Name())
			if err != nil {
				loadErr = fmt.Errorf("failed to read prompt file %s: %w", e.Name(), err)
				return
			}
			var prompts map[string]string
			if err := json.Unmarshal(data, &prompts); err != nil {
				loadErr = fmt.Errorf("failed to parse prompt file %s: %w", e.Name(), err)
				return
			}
			loaded[e.Name()] = prompts
		}
	})
	return loaded, loadErr
}

// Get returns the template stored under key in filename (e.g. "feedback.json").
func Get(filename, key string) (string, error) {
	files, err := load()
	if err != nil {
		return "", err
	}
	prompts, ok := files[filename]
	if !ok {
		return "", fmt.Errorf("prompt file %s not found", filename)
	}
	prompt, ok := prompts[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return prompt, nil
}

// Placeholders returns the distinct {{.Name}} placeholders of a template, sorted.
func Placeholders(template string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderRE.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

// Format replaces {{.Key}} placeholders with values from data. Placeholders
// without a value are left as they are.
func Format(template string, data map[string]string) string {
	return placeholderRE.ReplaceAllStringFunc(template, func(m string) string {
		if v, ok := data[placeholderRE.FindStringSubmatch(m)[1]]; ok {
			return v
		}
		return m
	})
}

// Render loads a template and fills it, failing when data lacks a value for any
// placeholder. Values are inserted verbatim, so text that looks like a placeholder
// inside a value is not expanded.
func Render(filename, key string, data map[string]string) (string, error) {
	template, err := Get(filename, key)
	if err != nil {
		return "", err
	}
	var missing []string
	for _, name := range Placeholders(template) {
		if _, ok := data[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("prompt %s/%s is missing values for %s", filename, key, strings.Join(missing, ", "))
	}
	return Format(template, data), nil
}

// List returns the prompt keys in a file, sorted.
func List(filename string) ([]string, error) {
	files, err := load()
	if err != nil {
		return nil, err
	}
	prompts, ok := files[filename]
	if !ok {
		return nil, fmt.Errorf("prompt file %s not found", filename)
	}
	keys := make([]string, 0, len(prompts))
	for key := range prompts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
