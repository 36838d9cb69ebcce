package tablefile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parser reads table documents.
type Parser struct {
	maxFileSize int64
	strict      bool
}

// NewParser creates a parser with default limits: 10MB files and strict
// key checking.
func NewParser() *Parser {
	return &Parser{
		maxFileSize: 10 * 1024 * 1024,
		strict:      true,
	}
}

// WithMaxFileSize sets the maximum document size.
func (p *Parser) WithMaxFileSize(size int64) *Parser {
	p.maxFileSize = size
	return p
}

// WithStrictMode rejects unknown keys when enabled.
func (p *Parser) WithStrictMode(strict bool) *Parser {
	p.strict = strict
	return p
}

// Parse reads and parses the document at path.
func (p *Parser) Parse(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Source: path, Err: err}
	}
	if info.Size() > p.maxFileSize {
		return nil, &Error{Source: path, Err: fmt.Errorf("file size %d exceeds maximum %d bytes", info.Size(), p.maxFileSize)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Source: path, Err: err}
	}
	return p.ParseBytes(data, path)
}

// ParseBytes parses a document from memory. source names it in errors.
func (p *Parser) ParseBytes(data []byte, source string) (*Document, error) {
	if int64(len(data)) > p.maxFileSize {
		return nil, &Error{Source: source, Err: fmt.Errorf("data size %d exceeds maximum %d bytes", len(data), p.maxFileSize)}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(p.strict)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &Error{Source: source, Err: fmt.Errorf("document is empty")}
		}
		return nil, &Error{Source: source, Err: err}
	}
	doc.Source = source

	if err := doc.check(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// check validates document level requirements that do not need a table.
func (d *Document) check() error {
	if strings.TrimSpace(d.Name) == "" {
		return &Error{Source: d.Source, Path: "name", Err: fmt.Errorf("name is required")}
	}
	if d.Slug == "" {
		d.Slug = Slugify(d.Name)
	}
	if !slugPattern.MatchString(d.Slug) {
		return &Error{Source: d.Source, Path: "slug", Err: fmt.Errorf("invalid slug %q", d.Slug)}
	}
	return nil
}

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slugify derives a URL safe identifier from a rule name.
func Slugify(name string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}

// Parse parses a document with the default parser.
func Parse(data []byte, source string) (*Document, error) {
	return NewParser().ParseBytes(data, source)
}

// LoadFile parses the document at path with the default parser.
func LoadFile(path string) (*Document, error) {
	return NewParser().Parse(path)
}

// LoadDir parses every .yaml and .yml file under dir, sorted by path.
// Hidden files and directories are skipped.
func LoadDir(dir string) ([]*Document, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	sort.Strings(paths)

	parser := NewParser()
	docs := make([]*Document, 0, len(paths))
	slugs := make(map[string]string, len(paths))
	for _, path := range paths {
		doc, err := parser.Parse(path)
		if err != nil {
			return nil, err
		}
		if other, dup := slugs[doc.Slug]; dup {
			return nil, &Error{Source: path, Path: "slug", Err: fmt.Errorf("slug %q already used by %s", doc.Slug, other)}
		}
		slugs[doc.Slug] = path
		docs = append(docs, doc)
	}
	return docs, nil
}
