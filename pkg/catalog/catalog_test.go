package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualifiedName_RoundTrip(t *testing.T) {
	t.Parallel()

	q := QualifiedNameOf("github", "create_issue")
	assert.Equal(t, "github:create_issue", q)

	provider, local, ok := SplitQualifiedName(q)
	require.True(t, ok)
	assert.Equal(t, "github", provider)
	assert.Equal(t, "create_issue", local)

	_, _, ok = SplitQualifiedName("no-colon-here")
	assert.False(t, ok)
}

func TestFingerprint_StableUnderReordering(t *testing.T) {
	t.Parallel()

	a := []ProviderListing{
		{Provider: "github", Identity: "npx gh-mcp", Tools: []ToolRecord{
			{LocalName: "create_issue", Description: "make an issue"},
			{LocalName: "list_issues", Description: "list issues"},
		}},
		{Provider: "slack", Identity: "http://localhost:9000", Tools: []ToolRecord{
			{LocalName: "post_message", Description: "post"},
		}},
	}
	b := []ProviderListing{
		{Provider: "slack", Identity: "http://localhost:9000", Tools: []ToolRecord{
			{LocalName: "post_message", Description: "post"},
		}},
		{Provider: "github", Identity: "npx gh-mcp", Tools: []ToolRecord{
			{LocalName: "list_issues", Description: "list issues"},
			{LocalName: "create_issue", Description: "make an issue"},
		}},
	}

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_ChangesWithContent(t *testing.T) {
	t.Parallel()

	a := []ProviderListing{{Provider: "github", Tools: []ToolRecord{{LocalName: "x", Description: "d1"}}}}
	b := []ProviderListing{{Provider: "github", Tools: []ToolRecord{{LocalName: "x", Description: "d2"}}}}

	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestCatalog_RebuildAndDiff(t *testing.T) {
	t.Parallel()

	c := New(ConflictPrefix, nil)

	var events []ChangedEvent
	c.Subscribe(func(e ChangedEvent) { events = append(events, e) })

	_, err := c.Rebuild([]ProviderListing{
		{Provider: "github", Tools: []ToolRecord{{LocalName: "create_issue", Description: "d"}}},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.ElementsMatch(t, []string{"github:create_issue"}, events[0].Added)
	assert.Empty(t, events[0].Removed)

	_, err = c.Rebuild([]ProviderListing{
		{Provider: "github", Tools: []ToolRecord{{LocalName: "list_issues", Description: "d"}}},
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.ElementsMatch(t, []string{"github:list_issues"}, events[1].Added)
	assert.ElementsMatch(t, []string{"github:create_issue"}, events[1].Removed)

	snap := c.Snapshot()
	require.Len(t, snap.Tools, 1)
	assert.Equal(t, "github:list_issues", snap.Tools[0].QualifiedName)
}

func TestCatalog_Rebuild_RejectsDuplicateLocalName(t *testing.T) {
	t.Parallel()

	c := New(ConflictPrefix, nil)
	_, err := c.Rebuild([]ProviderListing{
		{Provider: "github", Tools: []ToolRecord{
			{LocalName: "dup", Description: "a"},
			{LocalName: "dup", Description: "b"},
		}},
	})
	require.Error(t, err)
}

func TestCatalog_Rebuild_MarksUnavailableProvider(t *testing.T) {
	t.Parallel()

	c := New(ConflictPrefix, nil)
	snap, err := c.Rebuild([]ProviderListing{
		{Provider: "flaky", Unavailable: true, Unavailable_: "handshake timed out",
			Tools: []ToolRecord{{LocalName: "stale_tool", Description: "cached from last success"}}},
	})
	require.NoError(t, err)
	require.Len(t, snap.Tools, 1)
	assert.False(t, snap.Tools[0].Available)
	assert.Equal(t, "handshake timed out", snap.Tools[0].UnavailableNote)
}

func TestCatalog_PreferredProvider(t *testing.T) {
	t.Parallel()

	t.Run("prefix strategy never picks a winner", func(t *testing.T) {
		t.Parallel()
		c := New(ConflictPrefix, []string{"a", "b"})
		assert.Equal(t, "", c.PreferredProvider("a", "b"))
	})

	t.Run("priority strategy picks lower rank", func(t *testing.T) {
		t.Parallel()
		c := New(ConflictPriority, []string{"trusted", "untrusted"})
		assert.Equal(t, "trusted", c.PreferredProvider("trusted", "untrusted"))
		assert.Equal(t, "trusted", c.PreferredProvider("untrusted", "trusted"))
	})

	t.Run("priority strategy defaults to the ranked provider when one is unranked", func(t *testing.T) {
		t.Parallel()
		c := New(ConflictPriority, []string{"trusted"})
		assert.Equal(t, "trusted", c.PreferredProvider("trusted", "unknown"))
		assert.Equal(t, "trusted", c.PreferredProvider("unknown", "trusted"))
	})
}

func TestSnapshot_ByQualifiedName(t *testing.T) {
	t.Parallel()

	snap := Snapshot{Tools: []ToolRecord{
		{QualifiedName: "a:x", InputSchema: json.RawMessage(`{}`)},
	}}
	m := snap.ByQualifiedName()
	require.Contains(t, m, "a:x")
}
