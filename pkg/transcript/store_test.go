package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomgee18/TomGeeEdgeAI/pkg/bench"
)

func TestStore_AppendAndLastEntry(t *testing.T) {
	s := NewStore()
	_, ok := s.LastEntry("gemma")
	require.False(t, ok)

	s.Append("gemma", NewTextEntry(SideUser, "hi"))
	s.Append("gemma", NewLoadingEntry())

	last, ok := s.LastEntry("gemma")
	require.True(t, ok)
	assert.Equal(t, KindLoading, last.Kind)
	assert.Len(t, s.Entries("gemma"), 2)
}

func TestStore_ModelsAreIsolated(t *testing.T) {
	s := NewStore()
	s.Append("a", NewTextEntry(SideUser, "for a"))
	s.Append("b", NewTextEntry(SideUser, "for b"))

	s.RemoveLast("a")
	assert.Empty(t, s.Entries("a"))

	entries := s.Entries("b")
	require.Len(t, entries, 1)
	assert.Equal(t, "for b", entries[0].Text)
}

func TestStore_ReplaceLast(t *testing.T) {
	s := NewStore()
	s.Append("m", NewLoadingEntry())
	s.ReplaceLast("m", NewTextEntry(SideAgent, ""))

	entries := s.Entries("m")
	require.Len(t, entries, 1)
	assert.Equal(t, KindText, entries[0].Kind)
}

func TestStore_ReplaceLastOnEmptyAppends(t *testing.T) {
	s := NewStore()
	s.ReplaceLast("m", NewTextEntry(SideAgent, "x"))
	assert.Len(t, s.Entries("m"), 1)
}

func TestStore_MutateLastTextAccumulates(t *testing.T) {
	s := NewStore()
	s.Append("m", NewTextEntry(SideAgent, ""))
	s.MutateLastText("m", "Hel", 10)
	s.MutateLastText("m", "lo", 25)

	last, ok := s.LastEntry("m")
	require.True(t, ok)
	assert.Equal(t, "Hello", last.Text)
	assert.Equal(t, 25.0, last.LatencyMs)
}

func TestStore_RemoveLastOnEmptyIsNoop(t *testing.T) {
	s := NewStore()
	s.RemoveLast("m")
	assert.Empty(t, s.Entries("m"))
}

func TestStore_Clear(t *testing.T) {
	s := NewStore()
	s.Append("m", NewTextEntry(SideUser, "1"))
	s.Append("m", NewTextEntry(SideAgent, "2"))
	s.Clear("m")
	assert.Empty(t, s.Entries("m"))
}

func TestEntry_CloneDoesNotAliasStats(t *testing.T) {
	e := NewTextEntry(SideAgent, "done")
	e.Stats = &bench.Stats{Latency: 1}

	cp := e.Clone()
	cp.Stats.Latency = 99

	assert.NotEqual(t, e.Stats.Latency, cp.Stats.Latency)
}
