package engine

import (
	"sort"

	"github.com/hupe1980/corpusdb/model"
)

// GetAccount returns the account row.
func (c *Coordinator) GetAccount(id model.ID) (*model.Account, error) {
	return c.store.GetAccount(id)
}

// GetKnowledgeBase returns the knowledge base row.
func (c *Coordinator) GetKnowledgeBase(id model.ID) (*model.KnowledgeBase, error) {
	return c.store.GetKnowledgeBase(id)
}

// GetDocument returns the document row, including its aggregated text
// and position-ordered component id list. A read lock on the row keeps
// the aggregate consistent with a concurrent rebuild.
func (c *Coordinator) GetDocument(id model.ID) (*model.Document, error) {
	lock := c.store.RowLock(id)
	lock.RLock()
	defer lock.RUnlock()
	return c.store.GetDocument(id)
}

// GetComponent returns the component row.
func (c *Coordinator) GetComponent(id model.ID) (*model.Component, error) {
	return c.store.GetComponent(id)
}

// ListComponents returns a document's components ordered by position.
func (c *Coordinator) ListComponents(docID model.ID) ([]*model.Component, error) {
	lock := c.store.RowLock(docID)
	lock.RLock()
	defer lock.RUnlock()

	if _, err := c.store.GetDocument(docID); err != nil {
		return nil, err
	}
	return c.store.ComponentsByDocument(docID), nil
}

// ListDocuments returns a knowledge base's documents in ascending id
// order.
func (c *Coordinator) ListDocuments(kbID model.ID) ([]*model.Document, error) {
	if _, err := c.store.GetKnowledgeBase(kbID); err != nil {
		return nil, err
	}
	return c.store.DocumentsByKnowledgeBase(kbID), nil
}

// ListDocumentsUnder returns the documents of a knowledge base whose
// hierarchy path sits at or below the given prefix, in ascending id
// order.
func (c *Coordinator) ListDocumentsUnder(kbID model.ID, prefix model.Path) ([]*model.Document, error) {
	docs, err := c.ListDocuments(kbID)
	if err != nil {
		return nil, err
	}
	out := docs[:0]
	for _, d := range docs {
		if d.Path.HasPrefix(prefix) {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListKnowledgeBases returns an account's knowledge bases in ascending
// id order.
func (c *Coordinator) ListKnowledgeBases(accountID model.ID) ([]*model.KnowledgeBase, error) {
	if _, err := c.store.GetAccount(accountID); err != nil {
		return nil, err
	}
	return c.store.KnowledgeBasesByAccount(accountID), nil
}

// SearchKeywordResult pairs a matching component with its relevance
// score and owning document.
type SearchKeywordResult struct {
	Component *model.Component
	Document  *model.Document
	Score     float32
}

// SearchKeyword runs a lexical query over the component search index
// and resolves the hits to live rows. Hits whose rows vanished under a
// concurrent delete are dropped.
func (c *Coordinator) SearchKeyword(query string, k int) ([]SearchKeywordResult, error) {
	hits := c.lex.Search(query, k)
	out := make([]SearchKeywordResult, 0, len(hits))
	for _, h := range hits {
		comp, err := c.store.GetComponent(h.ID)
		if err != nil {
			continue
		}
		doc, err := c.store.GetDocument(comp.DocumentID)
		if err != nil {
			continue
		}
		out = append(out, SearchKeywordResult{Component: comp, Document: doc, Score: h.Score})
	}
	return out, nil
}

// SearchSimilarResult pairs a component with its vector similarity
// score.
type SearchSimilarResult struct {
	Component *model.Component
	Document  *model.Document
	Score     float32
}

// SearchSimilar runs a nearest-neighbor query over component
// embeddings and resolves the hits to live rows.
func (c *Coordinator) SearchSimilar(query []float32, k int) ([]SearchSimilarResult, error) {
	hits, err := c.vec.Search(query, k)
	if err != nil {
		return nil, err
	}
	out := make([]SearchSimilarResult, 0, len(hits))
	for _, h := range hits {
		comp, err := c.store.GetComponent(h.ID)
		if err != nil {
			continue
		}
		doc, err := c.store.GetDocument(comp.DocumentID)
		if err != nil {
			continue
		}
		out = append(out, SearchSimilarResult{Component: comp, Document: doc, Score: h.Score})
	}
	return out, nil
}

// RebuildIndexes re-derives the lexical and vector indexes from the
// component rows. Snapshot restore uses this, since indexes are
// projections and are not serialized.
func (c *Coordinator) RebuildIndexes() {
	comps := c.store.Export().Components
	ids := make([]model.ID, 0, len(comps))
	for id := range comps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		comp := comps[id]
		name := ""
		if doc, err := c.store.GetDocument(comp.DocumentID); err == nil {
			name = doc.Name
		}
		c.lex.Add(comp.ID, searchSource(name, comp.Text))
		if len(comp.Embedding) > 0 {
			if err := c.vec.Add(comp.ID, comp.Embedding); err != nil {
				c.log.Warn("skipping embedding during index rebuild", "component_id", string(comp.ID), "error", err)
			}
		}
	}
}
