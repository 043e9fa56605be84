package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_Unique(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestKindValidate(t *testing.T) {
	assert.NoError(t, KindChunk.Validate())
	assert.NoError(t, KindPhoto.Validate())
	assert.NoError(t, KindTable.Validate())
	assert.Error(t, Kind("video").Validate())
	assert.Error(t, Kind("").Validate())
}

func TestPath(t *testing.T) {
	t.Run("join", func(t *testing.T) {
		assert.Equal(t, Path("root.hr"), PathRoot.Join("hr"))
		assert.Equal(t, Path("root.hr.payroll"), PathRoot.Join("hr").Join("payroll"))
	})

	t.Run("prefix matches whole labels only", func(t *testing.T) {
		p := Path("root.hr.payroll")
		assert.True(t, p.HasPrefix("root"))
		assert.True(t, p.HasPrefix("root.hr"))
		assert.True(t, p.HasPrefix("root.hr.payroll"))
		assert.False(t, p.HasPrefix("root.h"))
		assert.False(t, p.HasPrefix("root.eng"))
	})
}

func TestClone_DeepCopies(t *testing.T) {
	t.Run("document", func(t *testing.T) {
		d := &Document{
			ID:           "doc-1",
			Tags:         []string{"a"},
			ComponentIDs: []ID{"comp-1"},
		}
		clone := d.Clone()
		clone.Tags[0] = "mutated"
		clone.ComponentIDs[0] = "mutated"

		assert.Equal(t, "a", d.Tags[0])
		assert.Equal(t, ID("comp-1"), d.ComponentIDs[0])
	})

	t.Run("component", func(t *testing.T) {
		c := &Component{
			ID:           "comp-1",
			Embedding:    []float32{1, 2},
			SearchTokens: []string{"tok"},
		}
		clone := c.Clone()
		clone.Embedding[0] = 99
		clone.SearchTokens[0] = "mutated"

		assert.Equal(t, float32(1), c.Embedding[0])
		assert.Equal(t, "tok", c.SearchTokens[0])
	})

	t.Run("account and knowledge base", func(t *testing.T) {
		a := &Account{ID: "acct-1", KnowledgeBaseIDs: []ID{"kb-1"}}
		a.Clone().KnowledgeBaseIDs[0] = "mutated"
		require.Equal(t, ID("kb-1"), a.KnowledgeBaseIDs[0])

		kb := &KnowledgeBase{ID: "kb-1", DocumentIDs: []ID{"doc-1"}}
		kb.Clone().DocumentIDs[0] = "mutated"
		require.Equal(t, ID("doc-1"), kb.DocumentIDs[0])
	})
}
