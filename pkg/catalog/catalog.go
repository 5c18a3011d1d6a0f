// Package catalog holds the authoritative in-memory map of qualified tool
// name to {provider, schema, description}, and the deterministic
// fingerprint used to key the semantic-index embedding cache (§3, §4.5).
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/mcpvgw/vgateway/pkg/gwerrors"
)

// ToolRecord is one entry in a catalog snapshot.
type ToolRecord struct {
	QualifiedName   string          `json:"qualifiedName"`
	Provider        string          `json:"provider"`
	LocalName       string          `json:"localName"`
	Title           string          `json:"title,omitempty"`
	Description     string          `json:"description"`
	InputSchema     json.RawMessage `json:"inputSchema,omitempty"`
	SourceRevision  string          `json:"sourceRevision,omitempty"`
	Available       bool            `json:"available"`
	UnavailableNote string          `json:"unavailableNote,omitempty"`
}

// QualifiedNameOf builds a "<provider>:<localName>" qualified name.
func QualifiedNameOf(provider, localName string) string {
	return provider + ":" + localName
}

// SplitQualifiedName splits "<provider>:<localName>" at the first colon.
// It returns ok=false if there is no colon.
func SplitQualifiedName(qualified string) (provider, localName string, ok bool) {
	idx := strings.IndexByte(qualified, ':')
	if idx < 0 {
		return "", "", false
	}
	return qualified[:idx], qualified[idx+1:], true
}

// Snapshot is an immutable view of the catalog plus its fingerprint.
type Snapshot struct {
	Tools       []ToolRecord
	Fingerprint string
}

// ByQualifiedName indexes the snapshot's tools for O(1) lookup.
func (s Snapshot) ByQualifiedName() map[string]ToolRecord {
	m := make(map[string]ToolRecord, len(s.Tools))
	for _, t := range s.Tools {
		m[t.QualifiedName] = t
	}
	return m
}

// ProviderListing is what one provider's tools/list contributes to a
// rebuild: its identity (for the fingerprint) and its current tool set.
type ProviderListing struct {
	Provider     string
	Identity     string // spawn command or URL, folded into the fingerprint
	Tools        []ToolRecord
	Unavailable  bool
	Unavailable_ string // human-readable reason, only read when Unavailable
}

// Fingerprint computes the stable hash of §3's data model: provider
// names, command/URL identities, tool names, descriptions and schemas.
// Sorting by provider then local name makes the result independent
// of listing order.
func Fingerprint(listings []ProviderListing) string {
	sorted := make([]ProviderListing, len(listings))
	copy(sorted, listings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Provider < sorted[j].Provider })

	h := sha256.New()
	for _, l := range sorted {
		tools := make([]ToolRecord, len(l.Tools))
		copy(tools, l.Tools)
		sort.Slice(tools, func(i, j int) bool { return tools[i].LocalName < tools[j].LocalName })

		_, _ = h.Write([]byte(l.Provider))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(l.Identity))
		_, _ = h.Write([]byte{0})
		for _, t := range tools {
			_, _ = h.Write([]byte(t.LocalName))
			_, _ = h.Write([]byte{0})
			_, _ = h.Write([]byte(t.Description))
			_, _ = h.Write([]byte{0})
			_, _ = h.Write(t.InputSchema)
			_, _ = h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ChangedEvent describes the diff a rebuild produced relative to the
// previous snapshot.
type ChangedEvent struct {
	Added   []string
	Removed []string
	Kept    []string
	Snap    Snapshot
}

// Listener receives a ChangedEvent after every successful rebuild.
type Listener func(ChangedEvent)

// ConflictResolution decides what happens when two providers advertise
// the same local tool name. Qualified names already namespace by
// provider so this never produces a collision in the catalog itself; it
// only affects how `find` breaks ties between equally-scored matches
// that share a local name (§ SPEC_FULL "Supplemented features" #1).
type ConflictResolution string

// Supported conflict-resolution strategies.
const (
	ConflictPrefix   ConflictResolution = "prefix"
	ConflictPriority ConflictResolution = "priority"
)

// Catalog is the mutable, thread-safe owner of the current Snapshot. It
// is single-writer/multi-reader: rebuild takes a write lock, everything
// else reads an immutable snapshot without blocking (§5).
type Catalog struct {
	mu         sync.RWMutex
	snap       Snapshot
	resolution ConflictResolution
	priority   map[string]int // provider -> priority rank, lower wins ties

	listenersMu sync.Mutex
	listeners   []Listener
}

// New constructs an empty Catalog using the given conflict-resolution
// strategy (defaults to ConflictPrefix) and an optional provider priority
// order (first entry is highest priority) used only by ConflictPriority.
func New(resolution ConflictResolution, priorityOrder []string) *Catalog {
	if resolution == "" {
		resolution = ConflictPrefix
	}
	priority := make(map[string]int, len(priorityOrder))
	for i, p := range priorityOrder {
		priority[p] = i
	}
	return &Catalog{resolution: resolution, priority: priority}
}

// Subscribe registers a listener invoked synchronously after each
// successful Rebuild, on the rebuilding goroutine.
func (c *Catalog) Subscribe(l Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Snapshot returns the current immutable snapshot. Wait-free: readers
// never block on a rebuild in progress because they see the previous
// snapshot until the new one is installed.
func (c *Catalog) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Rebuild merges the given per-provider listings into a new snapshot,
// rejecting intra-provider duplicate local names per §3's invariant, and
// emits a ChangedEvent to subscribers.
func (c *Catalog) Rebuild(listings []ProviderListing) (Snapshot, error) {
	var tools []ToolRecord
	for _, l := range listings {
		seen := make(map[string]bool, len(l.Tools))
		for _, t := range l.Tools {
			if seen[t.LocalName] {
				return Snapshot{}, gwerrors.New(gwerrors.KindInternal,
					"provider %q advertises duplicate tool name %q", l.Provider, t.LocalName)
			}
			seen[t.LocalName] = true

			rec := t
			rec.Provider = l.Provider
			rec.QualifiedName = QualifiedNameOf(l.Provider, t.LocalName)
			rec.Available = !l.Unavailable
			if l.Unavailable {
				rec.UnavailableNote = l.Unavailable_
			}
			tools = append(tools, rec)
		}
	}

	newFingerprint := Fingerprint(listings)
	newSnap := Snapshot{Tools: tools, Fingerprint: newFingerprint}

	c.mu.Lock()
	oldSnap := c.snap
	c.snap = newSnap
	c.mu.Unlock()

	event := diff(oldSnap, newSnap)
	c.listenersMu.Lock()
	listeners := append([]Listener(nil), c.listeners...)
	c.listenersMu.Unlock()
	for _, l := range listeners {
		l(event)
	}
	return newSnap, nil
}

func diff(oldSnap, newSnap Snapshot) ChangedEvent {
	oldNames := make(map[string]bool, len(oldSnap.Tools))
	for _, t := range oldSnap.Tools {
		oldNames[t.QualifiedName] = true
	}
	newNames := make(map[string]bool, len(newSnap.Tools))
	for _, t := range newSnap.Tools {
		newNames[t.QualifiedName] = true
	}

	var added, removed, kept []string
	for n := range newNames {
		if oldNames[n] {
			kept = append(kept, n)
		} else {
			added = append(added, n)
		}
	}
	for n := range oldNames {
		if !newNames[n] {
			removed = append(removed, n)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(kept)
	return ChangedEvent{Added: added, Removed: removed, Kept: kept, Snap: newSnap}
}

// PreferredProvider returns the provider that should win a tie between
// two tools sharing a local name, per the configured ConflictResolution.
// Returns "" when resolution is ConflictPrefix (no tie-breaking beyond
// namespacing) or neither candidate has a recorded priority.
func (c *Catalog) PreferredProvider(a, b string) string {
	if c.resolution != ConflictPriority {
		return ""
	}
	ra, oka := c.priority[a]
	rb, okb := c.priority[b]
	switch {
	case oka && okb && ra < rb:
		return a
	case oka && okb:
		return b
	case oka:
		return a
	case okb:
		return b
	default:
		return ""
	}
}
