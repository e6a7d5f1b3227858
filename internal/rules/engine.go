// Package rules loads, validates and versions rules documents, and compiles
// their CEL custom gates into policies the assessment engine can run.
package rules

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	json "github.com/goccy/go-json"
	"github.com/google/cel-go/cel"
	"github.com/opensource-finance/repayplan/internal/assess"
	"github.com/opensource-finance/repayplan/internal/domain"
)

var (
	// ErrUnknownVersion is returned when no policy is loaded under a version.
	ErrUnknownVersion = errors.New("unknown rules version")

	// ErrNoActivePolicy is returned before any policy has been activated.
	ErrNoActivePolicy = errors.New("no active rules version")
)

// Policy is a resolved rules document with its gates compiled.
type Policy struct {
	Document *domain.RulesDocument
	Rules    domain.ResolvedRules
	Gates    []assess.Gate
	Digest   string
	LoadedAt time.Time
}

// Version returns the resolved version string.
func (p *Policy) Version() string {
	return p.Rules.Version
}

// Key identifies the exact document content, so results memoised under a
// version are not reused after that version is replaced.
func (p *Policy) Key() string {
	return p.Rules.Version + "#" + p.Digest
}

// Assess runs the engine under this policy.
func (p *Policy) Assess(in *domain.AssessmentInput) *domain.AssessmentResult {
	return assess.Compute(in, &p.Rules, p.Gates...)
}

// Registry holds every loaded policy keyed by version, plus the active one.
// It is safe for concurrent use; policies themselves are immutable.
type Registry struct {
	mu       sync.RWMutex
	env      *cel.Env
	policies map[string]*Policy
	active   string
}

// NewRegistry creates an empty registry.
func NewRegistry() (*Registry, error) {
	env, err := newGateEnv()
	if err != nil {
		return nil, err
	}
	return &Registry{
		env:      env,
		policies: make(map[string]*Policy),
	}, nil
}

// Compile validates a document and compiles it without loading it.
func (r *Registry) Compile(doc *domain.RulesDocument) (*Policy, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}
	gates, err := CompileGates(r.env, doc.CustomGates)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rules document: %w", err)
	}
	return &Policy{
		Document: doc,
		Rules:    doc.Resolve(),
		Gates:    gates,
		Digest:   fmt.Sprintf("%016x", xxhash.Sum64(data)),
		LoadedAt: time.Now().UTC(),
	}, nil
}

// Validate compiles a document without mutating the registry.
func (r *Registry) Validate(doc *domain.RulesDocument) error {
	_, err := r.Compile(doc)
	return err
}

// Load compiles and stores a document, replacing any policy of the same
// version. The first policy loaded becomes active.
func (r *Registry) Load(doc *domain.RulesDocument) (*Policy, error) {
	p, err := r.Compile(doc)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.policies[p.Version()] = p
	if r.active == "" {
		r.active = p.Version()
	}
	return p, nil
}

// LoadAll loads several documents, stopping at the first failure.
func (r *Registry) LoadAll(docs []*domain.RulesDocument) error {
	for _, doc := range docs {
		if _, err := r.Load(doc); err != nil {
			return err
		}
	}
	return nil
}

// Reload replaces every policy at once. Nothing changes when any document
// fails to compile. An empty active keeps the current version if still present.
func (r *Registry) Reload(docs []*domain.RulesDocument, active string) error {
	next := make(map[string]*Policy, len(docs))
	for _, doc := range docs {
		p, err := r.Compile(doc)
		if err != nil {
			return err
		}
		next[p.Version()] = p
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if active == "" {
		active = r.active
	}
	if _, ok := next[active]; !ok {
		active = ""
		if len(docs) > 0 {
			active = docs[0].Resolve().Version
		}
	}

	r.policies = next
	r.active = active
	return nil
}

// Get returns the policy loaded under version.
func (r *Registry) Get(version string) (*Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.policies[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, version)
	}
	return p, nil
}

// Active returns the active policy.
func (r *Registry) Active() (*Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.policies[r.active]
	if !ok {
		return nil, ErrNoActivePolicy
	}
	return p, nil
}

// Lookup returns the named policy, or the active one when version is empty.
func (r *Registry) Lookup(version string) (*Policy, error) {
	if version == "" {
		return r.Active()
	}
	return r.Get(version)
}

// SetActive switches the active version.
func (r *Registry) SetActive(version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.policies[version]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVersion, version)
	}
	r.active = version
	return nil
}

// ActiveVersion returns the active version, or "" when none is set.
func (r *Registry) ActiveVersion() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Versions returns the loaded versions in sorted order.
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := make([]string, 0, len(r.policies))
	for v := range r.policies {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// Documents returns the loaded documents ordered by version.
func (r *Registry) Documents() []*domain.RulesDocument {
	versions := r.Versions()

	r.mu.RLock()
	defer r.mu.RUnlock()

	docs := make([]*domain.RulesDocument, 0, len(versions))
	for _, v := range versions {
		if p, ok := r.policies[v]; ok {
			docs = append(docs, p.Document)
		}
	}
	return docs
}

// Count returns the number of loaded policies.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.policies)
}

// Close drops every policy.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies = make(map[string]*Policy)
	r.active = ""
	return nil
}
