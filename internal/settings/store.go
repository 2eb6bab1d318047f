// Package settings persists the user's prompt templates and enabled
// destinations as JSON records under the config directory. Loads are
// self-healing: malformed or dangling records are repaired in memory and the
// repaired shape is written back, so callers always get a usable value.
package settings

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"

	"github.com/tabsend/cli/internal/adapters"
)

const (
	// DefaultPromptTitle is the title of the template synthesized on first
	// run or after a corrupted prompts record.
	DefaultPromptTitle = "总结网页"

	// DefaultPromptContent is the content of the synthesized template. The
	// trailing newline is part of the content: payloads are built by direct
	// concatenation with no inserted separator.
	DefaultPromptContent = "请总结这个网页的主要内容，并列出关键要点：\n"

	promptsFile      = "prompts.json"
	destinationsFile = "destinations.json"
)

// ErrLastPrompt is returned when deleting the sole remaining template.
var ErrLastPrompt = errors.New("settings: cannot delete the last remaining prompt")

// PromptTemplate is one saved prompt.
type PromptTemplate struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// PromptStore holds all templates plus the active selection. Insertion is
// newest-first. ActivePromptID always refers to an existing entry.
type PromptStore struct {
	Prompts        []PromptTemplate `json:"prompts"`
	ActivePromptID string           `json:"activePromptId"`
}

// Active returns the active template, or false when the id dangles.
func (ps *PromptStore) Active() (PromptTemplate, bool) {
	for _, p := range ps.Prompts {
		if p.ID == ps.ActivePromptID {
			return p, true
		}
	}
	return PromptTemplate{}, false
}

// DestinationSettings holds the enabled destination ids, already
// normalized: non-empty, all known to the adapter registry, deduplicated.
type DestinationSettings struct {
	TargetSites []string `json:"targetSites"`
}

// destinationRecord is the raw persisted shape. TargetSite is the legacy
// single-destination field, still accepted on read for migration.
type destinationRecord struct {
	TargetSites []string `json:"targetSites,omitempty"`
	TargetSite  string   `json:"targetSite,omitempty"`
}

// Store reads and writes settings records in one directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create settings dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// DefaultDir returns the per-user settings directory.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(base, "tabsend"), nil
}

// Dir returns the directory backing this store.
func (s *Store) Dir() string {
	return s.dir
}

// LoadPrompts reads the prompt store, synthesizing a default template when
// the record is absent, empty, or malformed, and repairing a dangling
// active id to the first entry. Repairs are persisted immediately. The
// returned store is always usable; the error only reports a failed
// write-back of a repair.
func (s *Store) LoadPrompts() (*PromptStore, error) {
	var ps PromptStore
	repaired := false

	data, err := os.ReadFile(filepath.Join(s.dir, promptsFile))
	if err != nil || json.Unmarshal(data, &ps) != nil || len(ps.Prompts) == 0 {
		def := PromptTemplate{
			ID:      NewID(),
			Title:   DefaultPromptTitle,
			Content: DefaultPromptContent,
		}
		ps = PromptStore{Prompts: []PromptTemplate{def}, ActivePromptID: def.ID}
		repaired = true
	}

	if _, ok := ps.Active(); !ok {
		ps.ActivePromptID = ps.Prompts[0].ID
		repaired = true
	}

	if repaired {
		if err := s.SavePrompts(&ps); err != nil {
			return &ps, fmt.Errorf("failed to persist repaired prompts: %w", err)
		}
	}
	return &ps, nil
}

// SavePrompts persists the store verbatim.
func (s *Store) SavePrompts(ps *PromptStore) error {
	return s.writeRecord(promptsFile, ps)
}

// AddPrompt inserts a new template at the front and makes it active.
func (s *Store) AddPrompt(title, content string) (PromptTemplate, error) {
	ps, _ := s.LoadPrompts()
	p := PromptTemplate{ID: NewID(), Title: title, Content: content}
	ps.Prompts = append([]PromptTemplate{p}, ps.Prompts...)
	ps.ActivePromptID = p.ID
	if err := s.SavePrompts(ps); err != nil {
		return PromptTemplate{}, err
	}
	return p, nil
}

// DeletePrompt removes a template. Deleting the last remaining template is
// rejected and the store is left unchanged. If the active template was
// deleted, the first remaining entry becomes active.
func (s *Store) DeletePrompt(id string) error {
	ps, _ := s.LoadPrompts()
	if len(ps.Prompts) <= 1 {
		return ErrLastPrompt
	}

	kept := lo.Filter(ps.Prompts, func(p PromptTemplate, _ int) bool {
		return p.ID != id
	})
	if len(kept) == len(ps.Prompts) {
		return fmt.Errorf("prompt %s not found", id)
	}

	ps.Prompts = kept
	if _, ok := ps.Active(); !ok || ps.ActivePromptID == id {
		ps.ActivePromptID = kept[0].ID
	}
	return s.SavePrompts(ps)
}

// SetActivePrompt marks an existing template as active.
func (s *Store) SetActivePrompt(id string) error {
	ps, _ := s.LoadPrompts()
	found := false
	for _, p := range ps.Prompts {
		if p.ID == id {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("prompt %s not found", id)
	}
	ps.ActivePromptID = id
	return s.SavePrompts(ps)
}

// LoadDestinations reads the destination record and normalizes it: the
// legacy single-site field is merged in, unknown ids are dropped,
// duplicates removed order-preserving, and an empty result falls back to
// the default destination. The normalized shape is written back only when
// normalization changed it. The returned settings are never empty.
func (s *Store) LoadDestinations() (*DestinationSettings, error) {
	var rec destinationRecord
	data, err := os.ReadFile(filepath.Join(s.dir, destinationsFile))
	if err == nil {
		// A malformed record is treated the same as an absent one; decode
		// into a scratch value so a partial parse never leaks through.
		var parsed destinationRecord
		if json.Unmarshal(data, &parsed) == nil {
			rec = parsed
		}
	}

	normalized := normalizeTargets(rec)
	ds := &DestinationSettings{TargetSites: normalized}

	if rec.TargetSite != "" || !equalStrings(rec.TargetSites, normalized) {
		if err := s.SaveDestinations(ds); err != nil {
			return ds, fmt.Errorf("failed to persist normalized destinations: %w", err)
		}
	}
	return ds, nil
}

// SaveDestinations persists the settings verbatim.
func (s *Store) SaveDestinations(ds *DestinationSettings) error {
	return s.writeRecord(destinationsFile, ds)
}

// normalizeTargets applies the migration and validity rules.
func normalizeTargets(rec destinationRecord) []string {
	merged := append([]string{}, rec.TargetSites...)
	if rec.TargetSite != "" {
		merged = append(merged, rec.TargetSite)
	}

	valid := lo.Filter(lo.Uniq(merged), func(id string, _ int) bool {
		_, ok := adapters.ByID(id)
		return ok
	})
	if len(valid) == 0 {
		return []string{adapters.DefaultID}
	}
	return valid
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *Store) writeRecord(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// NewID generates an id from the current timestamp plus random entropy.
func NewID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		// crypto/rand exhaustion; fall back to a time-only id.
		return ulid.MustNew(ulid.Timestamp(time.Now()), nil).String()
	}
	return id.String()
}
