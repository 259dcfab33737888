// Package artifact manages the versioned text documents a ticket accumulates
// as it moves through the pipeline: the PRD, research notes, plan, spec
// interview transcript, and tasklist.
//
// Each document is markdown with a YAML frontmatter block carrying its
// status and version. Documents are section-addressable by "## " heading;
// readiness gates read sections and the apply engine rewrites them. All
// writes go through a temp-file-then-rename sequence, so a crash never
// yields a half-written document.
//
// Key types:
//   - [Document] - One parsed artifact with metadata, body, and section access
//   - [Store] - Filesystem access rooted at the workspace docs directory
//   - [Kind] - The artifact flavors a ticket owns
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind identifies one artifact flavor within a ticket's docs directory.
type Kind string

const (
	KindPRD       Kind = "prd"
	KindResearch  Kind = "research"
	KindPlan      Kind = "plan"
	KindInterview Kind = "interview"
	KindTasklist  Kind = "tasklist"
)

// fileNames maps each kind to its on-disk name under docs/<ticket>/.
var fileNames = map[Kind]string{
	KindPRD:       "prd.md",
	KindResearch:  "research.md",
	KindPlan:      "plan.md",
	KindInterview: "interview.md",
	KindTasklist:  "tasklist.md",
}

// KindNamed resolves a kind by its string name.
func KindNamed(name string) (Kind, bool) {
	k := Kind(name)
	_, ok := fileNames[k]
	return k, ok
}

// Document statuses written by stage operations and read by gates.
const (
	StatusDraft    = "draft"
	StatusReady    = "ready"
	StatusApproved = "approved"
)

// Sentinel errors.
var (
	// ErrNotFound indicates the requested artifact does not exist yet.
	ErrNotFound = errors.New("artifact not found")

	// ErrMalformedFrontmatter indicates the document's YAML fence could not
	// be parsed.
	ErrMalformedFrontmatter = errors.New("malformed artifact frontmatter")
)

// Meta is the YAML frontmatter block of one artifact.
type Meta struct {
	Ticket    string `yaml:"ticket"`
	Status    string `yaml:"status"`
	Version   int    `yaml:"version"`
	UpdatedAt string `yaml:"updated_at,omitempty"`
}

// Document is one parsed artifact.
type Document struct {
	Kind Kind
	Path string
	Meta Meta
	Body string
}

// Section returns the content under the given "## " heading, trimmed, and
// whether the heading exists at all. Content runs until the next "## "
// heading or end of body.
func (d *Document) Section(heading string) (string, bool) {
	marker := "## " + heading
	lines := strings.Split(d.Body, "\n")
	start := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == marker {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return "", false
	}
	end := len(lines)
	for i := start; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "## ") {
			end = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[start:end], "\n")), true
}

// SectionFilled reports whether the heading exists and has non-empty content.
func (d *Document) SectionFilled(heading string) bool {
	content, ok := d.Section(heading)
	return ok && content != ""
}

// SetSection replaces the content under the given heading, appending the
// section when it is absent. Returns true when the body changed.
func (d *Document) SetSection(heading, content string) bool {
	content = strings.TrimSpace(content)
	existing, ok := d.Section(heading)
	if ok && existing == content {
		return false
	}
	if !ok {
		body := strings.TrimRight(d.Body, "\n")
		if body != "" {
			body += "\n\n"
		}
		d.Body = body + "## " + heading + "\n\n" + content + "\n"
		return true
	}

	marker := "## " + heading
	lines := strings.Split(d.Body, "\n")
	var out []string
	i := 0
	for ; i < len(lines); i++ {
		out = append(out, lines[i])
		if strings.TrimSpace(lines[i]) == marker {
			i++
			break
		}
	}
	out = append(out, "", content, "")
	for ; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "## ") {
			out = append(out, lines[i:]...)
			break
		}
	}
	d.Body = strings.Join(out, "\n")
	return true
}

// AppendToSection appends a line to the given section, creating the section
// when absent.
func (d *Document) AppendToSection(heading, line string) {
	existing, ok := d.Section(heading)
	if !ok || existing == "" {
		d.SetSection(heading, line)
		return
	}
	d.SetSection(heading, existing+"\n"+line)
}

// Store reads and writes artifacts under a docs directory, one subdirectory
// per ticket.
type Store struct {
	docsDir string

	// Now stamps UpdatedAt on save. Tests may replace it.
	Now func() time.Time
}

// NewStore creates a [Store] rooted at the given docs directory.
func NewStore(docsDir string) *Store {
	return &Store{docsDir: docsDir, Now: time.Now}
}

// Path returns the full path for a ticket's artifact of the given kind.
func (s *Store) Path(ticket string, kind Kind) string {
	return filepath.Join(s.docsDir, ticket, fileNames[kind])
}

// Exists reports whether the artifact is present on disk.
func (s *Store) Exists(ticket string, kind Kind) bool {
	_, err := os.Stat(s.Path(ticket, kind))
	return err == nil
}

// Load reads and parses a ticket's artifact. Returns [ErrNotFound] when the
// file does not exist.
func (s *Store) Load(ticket string, kind Kind) (*Document, error) {
	path := s.Path(ticket, kind)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, ticket, fileNames[kind])
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	meta, body, err := parseFrontmatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Document{Kind: kind, Path: path, Meta: meta, Body: body}, nil
}

// Save writes the document back atomically, bumping its version and
// refreshing the UpdatedAt stamp.
func (s *Store) Save(doc *Document) error {
	if doc.Path == "" {
		return errors.New("document has no path")
	}
	doc.Meta.Version++
	doc.Meta.UpdatedAt = s.Now().UTC().Format(time.RFC3339)

	rendered, err := render(doc.Meta, doc.Body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(doc.Path), 0755); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}
	tmpPath := doc.Path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(rendered), 0644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmpPath, doc.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// Create writes a fresh artifact with the given metadata and body. Used by
// tests and bootstrap tooling; stage operations normally create documents
// through their own generators.
func (s *Store) Create(ticket string, kind Kind, meta Meta, body string) (*Document, error) {
	meta.Ticket = ticket
	doc := &Document{
		Kind: kind,
		Path: s.Path(ticket, kind),
		Meta: meta,
		Body: body,
	}
	if err := s.Save(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func parseFrontmatter(content string) (Meta, string, error) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		// No frontmatter: treat the whole file as body with zero meta.
		return Meta{}, normalized, nil
	}
	rest := normalized[4:]
	fence := strings.Index(rest, "\n---\n")
	if fence < 0 {
		return Meta{}, "", ErrMalformedFrontmatter
	}
	var meta Meta
	if err := yaml.Unmarshal([]byte(rest[:fence]), &meta); err != nil {
		return Meta{}, "", fmt.Errorf("%w: %v", ErrMalformedFrontmatter, err)
	}
	body := strings.TrimPrefix(rest[fence+len("\n---\n"):], "\n")
	return meta, body, nil
}

func render(meta Meta, body string) (string, error) {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(data)
	b.WriteString("---\n\n")
	b.WriteString(strings.TrimLeft(body, "\n"))
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	return b.String(), nil
}
