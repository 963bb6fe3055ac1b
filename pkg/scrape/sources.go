package scrape

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Package scrape contains pluggable news source configs (YAML/JSON) and the
// selector-driven extraction engine.

// Selectors describes how to locate post fields inside a source page.
type Selectors struct {
	Post      string `json:"post" yaml:"post"`
	Title     string `json:"title" yaml:"title"`
	TitleAttr string `json:"title_attr" yaml:"title_attr"`
	LinkAttr  string `json:"link_attr" yaml:"link_attr"`
	Summary   string `json:"summary" yaml:"summary"`
	Author    string `json:"author" yaml:"author"`
	Image     string `json:"image" yaml:"image"`
	ImageAttr string `json:"image_attr" yaml:"image_attr"`
}

// Source declares one scrapeable news site.
type Source struct {
	ID             string    `json:"id" yaml:"id"`
	Name           string    `json:"name" yaml:"name"`
	URL            string    `json:"url" yaml:"url"`
	RequestDelayMs int       `json:"request_delay_ms" yaml:"request_delay_ms"`
	Selectors      Selectors `json:"selectors" yaml:"selectors"`
}

type registry struct {
	Sources []Source `json:"sources" yaml:"sources"`
}

const defaultRequestDelayMs = 500

// LoadSources loads the source registry from a YAML/JSON file.
func LoadSources(path string) ([]Source, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sources file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	reg, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(reg.Sources) == 0 {
		return nil, errors.New("sources file contains no sources entries")
	}

	seen := make(map[string]struct{}, len(reg.Sources))
	out := make([]Source, 0, len(reg.Sources))
	for i := range reg.Sources {
		src := sanitizeSource(reg.Sources[i])
		if err := validateSource(src); err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		if _, exists := seen[src.ID]; exists {
			return nil, fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = struct{}{}
		out = append(out, src)
	}

	return out, nil
}

func parseRegistry(data []byte, ext string) (registry, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var reg registry
		if err := d.fn(data, &reg); err == nil {
			return reg, nil
		}
	}

	return registry{}, errors.New("sources file format not recognized (expected YAML or JSON)")
}

func sanitizeSource(s Source) Source {
	s.ID = strings.TrimSpace(s.ID)
	s.Name = strings.TrimSpace(s.Name)
	s.URL = strings.TrimSpace(s.URL)
	if s.RequestDelayMs <= 0 {
		s.RequestDelayMs = defaultRequestDelayMs
	}

	sel := &s.Selectors
	sel.Post = strings.TrimSpace(sel.Post)
	sel.Title = strings.TrimSpace(sel.Title)
	sel.TitleAttr = strings.TrimSpace(sel.TitleAttr)
	sel.LinkAttr = strings.TrimSpace(sel.LinkAttr)
	sel.Summary = strings.TrimSpace(sel.Summary)
	sel.Author = strings.TrimSpace(sel.Author)
	sel.Image = strings.TrimSpace(sel.Image)
	sel.ImageAttr = strings.TrimSpace(sel.ImageAttr)
	if sel.LinkAttr == "" {
		sel.LinkAttr = "href"
	}

	return s
}

func validateSource(s Source) error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Name == "" {
		return fmt.Errorf("name is required for source %q", s.ID)
	}
	if s.URL == "" {
		return fmt.Errorf("url is required for source %q", s.ID)
	}
	if s.Selectors.Post == "" {
		return fmt.Errorf("selectors.post is required for source %q", s.ID)
	}
	if s.Selectors.Title == "" {
		return fmt.Errorf("selectors.title is required for source %q", s.ID)
	}
	return nil
}

// RequestDelay returns the per-request throttle duration for the source.
func (s Source) RequestDelay() time.Duration {
	if s.RequestDelayMs <= 0 {
		return time.Duration(defaultRequestDelayMs) * time.Millisecond
	}
	return time.Duration(s.RequestDelayMs) * time.Millisecond
}
