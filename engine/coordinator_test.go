package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/corpusdb/knn"
	"github.com/hupe1980/corpusdb/lexical"
	"github.com/hupe1980/corpusdb/model"
	"github.com/hupe1980/corpusdb/store"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	return New(store.New(), lexical.NewIndex(nil), knn.NewFlat(knn.MetricCosine), nil)
}

func seedDocument(t *testing.T, c *Coordinator) (accountID, kbID, docID model.ID) {
	t.Helper()
	ctx := context.Background()

	accountID = "acct-1"
	require.NoError(t, c.EnsureAccount(ctx, accountID))

	kbID, err := c.CreateKnowledgeBase(ctx, accountID, KnowledgeBaseInput{Name: "Handbook"})
	require.NoError(t, err)

	docID, err = c.CreateDocument(ctx, kbID, DocumentInput{Name: "Onboarding"})
	require.NoError(t, err)
	return accountID, kbID, docID
}

func intPtr(i int) *int { return &i }

func strPtr(s string) *string { return &s }

func TestIngestComponent_AppendsAtEnd(t *testing.T) {
	c := newTestCoordinator(t)
	_, _, docID := seedDocument(t, c)
	ctx := context.Background()

	first, err := c.IngestComponent(ctx, docID, ComponentInput{Kind: model.KindChunk, Text: "one"})
	require.NoError(t, err)
	second, err := c.IngestComponent(ctx, docID, ComponentInput{Kind: model.KindChunk, Text: "two"})
	require.NoError(t, err)

	c1, err := c.GetComponent(first)
	require.NoError(t, err)
	c2, err := c.GetComponent(second)
	require.NoError(t, err)
	assert.Equal(t, 0, c1.Position)
	assert.Equal(t, 1, c2.Position)
}

func TestIngestComponent_PositionConflictRepairedSilently(t *testing.T) {
	c := newTestCoordinator(t)
	_, _, docID := seedDocument(t, c)
	ctx := context.Background()

	_, err := c.IngestComponent(ctx, docID, ComponentInput{Kind: model.KindChunk, Text: "one", Position: intPtr(0)})
	require.NoError(t, err)

	// Same requested position: no error, repaired to end-of-document.
	id, err := c.IngestComponent(ctx, docID, ComponentInput{Kind: model.KindChunk, Text: "two", Position: intPtr(0)})
	require.NoError(t, err)

	comp, err := c.GetComponent(id)
	require.NoError(t, err)
	assert.Equal(t, 1, comp.Position)
}

func TestIngestComponent_DocumentAggregation(t *testing.T) {
	c := newTestCoordinator(t)
	_, _, docID := seedDocument(t, c)
	ctx := context.Background()

	// Ingest out of position order; the aggregate follows positions.
	b, err := c.IngestComponent(ctx, docID, ComponentInput{Kind: model.KindChunk, Text: "beta", Position: intPtr(5)})
	require.NoError(t, err)
	a, err := c.IngestComponent(ctx, docID, ComponentInput{Kind: model.KindChunk, Text: "alpha", Position: intPtr(2)})
	require.NoError(t, err)

	doc, err := c.GetDocument(docID)
	require.NoError(t, err)
	assert.Equal(t, "alpha\n\nbeta", doc.Text)
	assert.Equal(t, []model.ID{a, b}, doc.ComponentIDs)
}

func TestIngestComponent_Validation(t *testing.T) {
	c := newTestCoordinator(t)
	_, _, docID := seedDocument(t, c)
	ctx := context.Background()

	t.Run("missing document", func(t *testing.T) {
		_, err := c.IngestComponent(ctx, "missing", ComponentInput{Kind: model.KindChunk})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate id", func(t *testing.T) {
		_, err := c.IngestComponent(ctx, docID, ComponentInput{ID: "dup", Kind: model.KindChunk})
		require.NoError(t, err)
		_, err = c.IngestComponent(ctx, docID, ComponentInput{ID: "dup", Kind: model.KindChunk})
		assert.ErrorIs(t, err, store.ErrConstraintViolation)
	})

	t.Run("invalid kind", func(t *testing.T) {
		_, err := c.IngestComponent(ctx, docID, ComponentInput{Kind: "video"})
		assert.ErrorIs(t, err, store.ErrConstraintViolation)
	})
}

func TestIngestComponent_CancelledContextLeavesNoTrace(t *testing.T) {
	c := newTestCoordinator(t)
	_, _, docID := seedDocument(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.IngestComponent(ctx, docID, ComponentInput{Kind: model.KindChunk, Text: "ghost"})
	require.Error(t, err)

	doc, err := c.GetDocument(docID)
	require.NoError(t, err)
	assert.Empty(t, doc.ComponentIDs)
	assert.Empty(t, searchKeyword(t, c, "ghost"))
}

func searchKeyword(t *testing.T, c *Coordinator, query string) []SearchKeywordResult {
	t.Helper()
	hits, err := c.SearchKeyword(query, 10)
	require.NoError(t, err)
	return hits
}

func TestUpdateComponent_TextRefreshesAggregateAndIndex(t *testing.T) {
	c := newTestCoordinator(t)
	_, _, docID := seedDocument(t, c)
	ctx := context.Background()

	id, err := c.IngestComponent(ctx, docID, ComponentInput{Kind: model.KindChunk, Text: "old words"})
	require.NoError(t, err)

	require.NoError(t, c.UpdateComponent(ctx, id, ComponentUpdate{Text: strPtr("new words")}))

	doc, err := c.GetDocument(docID)
	require.NoError(t, err)
	assert.Equal(t, "new words", doc.Text)

	assert.Empty(t, searchKeyword(t, c, "old"))
	assert.Len(t, searchKeyword(t, c, "new"), 1)
}

func TestUpdateComponent_PositionMove(t *testing.T) {
	c := newTestCoordinator(t)
	_, _, docID := seedDocument(t, c)
	ctx := context.Background()

	a, err := c.IngestComponent(ctx, docID, ComponentInput{Kind: model.KindChunk, Text: "alpha"})
	require.NoError(t, err)
	_, err = c.IngestComponent(ctx, docID, ComponentInput{Kind: model.KindChunk, Text: "beta"})
	require.NoError(t, err)

	// Move alpha after beta.
	require.NoError(t, c.UpdateComponent(ctx, a, ComponentUpdate{Position: intPtr(5)}))

	doc, err := c.GetDocument(docID)
	require.NoError(t, err)
	assert.Equal(t, "beta\n\nalpha", doc.Text)
}

func TestUpdateComponent_Reparenting(t *testing.T) {
	c := newTestCoordinator(t)
	_, kbID, docID := seedDocument(t, c)
	ctx := context.Background()

	otherDoc, err := c.CreateDocument(ctx, kbID, DocumentInput{Name: "Other"})
	require.NoError(t, err)

	id, err := c.IngestComponent(ctx, docID, ComponentInput{Kind: model.KindChunk, Text: "moving"})
	require.NoError(t, err)
	_, err = c.IngestComponent(ctx, otherDoc, ComponentInput{Kind: model.KindChunk, Text: "resident"})
	require.NoError(t, err)

	require.NoError(t, c.UpdateComponent(ctx, id, ComponentUpdate{DocumentID: &otherDoc}))

	oldDoc, err := c.GetDocument(docID)
	require.NoError(t, err)
	assert.Empty(t, oldDoc.ComponentIDs)
	assert.Empty(t, oldDoc.Text)

	newDoc, err := c.GetDocument(otherDoc)
	require.NoError(t, err)
	assert.Equal(t, "resident\n\nmoving", newDoc.Text)

	// Index source now carries the new document's name.
	hits := searchKeyword(t, c, "other")
	require.NotEmpty(t, hits)

	moved, err := c.GetComponent(id)
	require.NoError(t, err)
	assert.Equal(t, otherDoc, moved.DocumentID)
	assert.Equal(t, 1, moved.Position)
}

func TestUpdateComponent_ReparentToMissingDocument(t *testing.T) {
	c := newTestCoordinator(t)
	_, _, docID := seedDocument(t, c)
	ctx := context.Background()

	id, err := c.IngestComponent(ctx, docID, ComponentInput{Kind: model.KindChunk, Text: "x"})
	require.NoError(t, err)

	missing := model.ID("missing")
	err = c.UpdateComponent(ctx, id, ComponentUpdate{DocumentID: &missing})
	assert.ErrorIs(t, err, store.ErrConstraintViolation)
}

func TestDeleteComponent(t *testing.T) {
	c := newTestCoordinator(t)
	_, _, docID := seedDocument(t, c)
	ctx := context.Background()

	id, err := c.IngestComponent(ctx, docID, ComponentInput{
		Kind: model.KindChunk, Text: "ephemeral", Embedding: []float32{1, 0},
	})
	require.NoError(t, err)

	require.NoError(t, c.DeleteComponent(ctx, id))

	_, err = c.GetComponent(id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	doc, err := c.GetDocument(docID)
	require.NoError(t, err)
	assert.Empty(t, doc.Text)
	assert.Empty(t, searchKeyword(t, c, "ephemeral"))
	assert.Zero(t, c.Vector().Len())
}

func TestSearchSimilar(t *testing.T) {
	c := newTestCoordinator(t)
	_, _, docID := seedDocument(t, c)
	ctx := context.Background()

	near, err := c.IngestComponent(ctx, docID, ComponentInput{
		Kind: model.KindChunk, Text: "near", Embedding: []float32{1, 0},
	})
	require.NoError(t, err)
	_, err = c.IngestComponent(ctx, docID, ComponentInput{
		Kind: model.KindChunk, Text: "far", Embedding: []float32{0, 1},
	})
	require.NoError(t, err)

	hits, err := c.SearchSimilar([]float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, near, hits[0].Component.ID)
}

func TestConcurrentIngest_SameDocument(t *testing.T) {
	c := newTestCoordinator(t)
	_, _, docID := seedDocument(t, c)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.IngestComponent(ctx, docID, ComponentInput{
				Kind: model.KindChunk, Text: fmt.Sprintf("part %d", i), Position: intPtr(0),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	comps, err := c.ListComponents(docID)
	require.NoError(t, err)
	require.Len(t, comps, n)

	// Positions stay unique despite every writer requesting 0.
	seen := make(map[int]bool, n)
	for _, comp := range comps {
		assert.False(t, seen[comp.Position], "duplicate position %d", comp.Position)
		seen[comp.Position] = true
	}

	doc, err := c.GetDocument(docID)
	require.NoError(t, err)
	assert.Len(t, doc.ComponentIDs, n)
}

func TestConcurrentIngest_DisjointDocuments(t *testing.T) {
	c := newTestCoordinator(t)
	_, kbID, _ := seedDocument(t, c)
	ctx := context.Background()

	const docs = 8
	const perDoc = 10

	ids := make([]model.ID, docs)
	for i := range ids {
		id, err := c.CreateDocument(ctx, kbID, DocumentInput{Name: fmt.Sprintf("Doc %d", i)})
		require.NoError(t, err)
		ids[i] = id
	}

	var wg sync.WaitGroup
	for _, docID := range ids {
		for j := 0; j < perDoc; j++ {
			wg.Add(1)
			go func(docID model.ID, j int) {
				defer wg.Done()
				_, err := c.IngestComponent(ctx, docID, ComponentInput{
					Kind: model.KindChunk, Text: fmt.Sprintf("chunk %d", j),
				})
				assert.NoError(t, err)
			}(docID, j)
		}
	}
	wg.Wait()

	for _, docID := range ids {
		comps, err := c.ListComponents(docID)
		require.NoError(t, err)
		assert.Len(t, comps, perDoc)
	}
}

func TestUpdateComponent_ClearEmbedding(t *testing.T) {
	c := newTestCoordinator(t)
	_, _, docID := seedDocument(t, c)
	ctx := context.Background()

	id, err := c.IngestComponent(ctx, docID, ComponentInput{
		Kind: model.KindChunk, Text: "vectorized", Embedding: []float32{1, 0},
	})
	require.NoError(t, err)
	require.Equal(t, 1, c.Vector().Len())

	// An empty non-nil embedding clears the stored vector.
	require.NoError(t, c.UpdateComponent(ctx, id, ComponentUpdate{Embedding: []float32{}}))

	comp, err := c.GetComponent(id)
	require.NoError(t, err)
	assert.Nil(t, comp.Embedding)
	assert.Equal(t, 0, c.Vector().Len())

	hits, err := c.SearchSimilar([]float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIngestComponent_EmptyEmbeddingSkipsIndex(t *testing.T) {
	c := newTestCoordinator(t)
	_, _, docID := seedDocument(t, c)
	ctx := context.Background()

	_, err := c.IngestComponent(ctx, docID, ComponentInput{
		Kind: model.KindChunk, Text: "plain", Embedding: []float32{},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, c.Vector().Len())
}

func TestExport_ConsistentCutUnderIngest(t *testing.T) {
	c := newTestCoordinator(t)
	_, _, docID := seedDocument(t, c)
	ctx := context.Background()

	const n = 200
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			_, err := c.IngestComponent(ctx, docID, ComponentInput{
				Kind: model.KindChunk, Text: fmt.Sprintf("part %d", i),
			})
			assert.NoError(t, err)
		}
	}()

	for {
		st := c.Store().Export()

		live := 0
		for _, comp := range st.Components {
			if comp.DocumentID == docID {
				live++
			}
		}
		listed := 0
		if doc, ok := st.Documents[docID]; ok {
			listed = len(doc.ComponentIDs)
		}
		// Every cut must agree between the rows and the derived list.
		require.Equal(t, live, listed)

		select {
		case <-done:
			return
		default:
		}
	}
}
