package tmpl

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidFrontmatter indicates a malformed front matter block.
var ErrInvalidFrontmatter = errors.New("invalid frontmatter")

// Source is a template file split into front matter and body.
type Source struct {
	// Subject from the front matter, empty if absent
	Subject string `yaml:"subject"`

	// Body is the template text after the front matter
	Body string `yaml:"-"`

	// Markdown is set for .md templates
	Markdown bool `yaml:"-"`
}

// LoadSource reads a template file.
func LoadSource(path string) (*Source, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	src, err := ParseSource(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	src.Markdown = strings.EqualFold(filepath.Ext(path), ".md")
	return src, nil
}

// ParseSource extracts optional YAML front matter. Front matter opens with a
// first line that is exactly "---" and closes on the next line that is exactly
// "---". Anything else is returned as the body unchanged.
func ParseSource(content []byte) (*Source, error) {
	first, rest, found := bytes.Cut(content, []byte("\n"))
	if !found || !isDelimiter(first) {
		return &Source{Body: string(content)}, nil
	}

	for offset := 0; offset < len(rest); {
		line, tail, _ := bytes.Cut(rest[offset:], []byte("\n"))
		if !isDelimiter(line) {
			offset = len(rest) - len(tail)
			continue
		}

		var src Source
		if front := rest[:offset]; len(bytes.TrimSpace(front)) > 0 {
			if err := yaml.Unmarshal(front, &src); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidFrontmatter, err)
			}
		}
		src.Body = string(tail)
		return &src, nil
	}

	// No closing line
	return &Source{Body: string(content)}, nil
}

func isDelimiter(line []byte) bool {
	return string(bytes.TrimRight(line, " \t\r")) == "---"
}
