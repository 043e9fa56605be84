package model

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID is the stable identifier of an entity. IDs are minted as UUID
// strings so they can be produced by external ingestion pipelines as
// well as by the store itself.
type ID string

// NewID mints a fresh random ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// Kind classifies a component's content.
type Kind string

const (
	// KindChunk is a text chunk produced by a splitter.
	KindChunk Kind = "chunk"
	// KindPhoto is an image with a caption.
	KindPhoto Kind = "photo"
	// KindTable is a table rendered to text/markdown.
	KindTable Kind = "table"
)

// Validate reports whether k is one of the supported kinds.
func (k Kind) Validate() error {
	switch k {
	case KindChunk, KindPhoto, KindTable:
		return nil
	}
	return fmt.Errorf("invalid kind: %q", string(k))
}

// PathRoot is the default hierarchy path for documents that have not
// been placed in a classification tree.
const PathRoot Path = "root"

// Path is a materialized hierarchy label in dotted form ("root.a.b"),
// used for subtree-range queries over documents.
type Path string

// Join appends a label to the path.
func (p Path) Join(label string) Path {
	if p == "" {
		return Path(label)
	}
	return Path(string(p) + "." + label)
}

// HasPrefix reports whether p lies within the subtree rooted at q.
// A path is considered inside its own subtree.
func (p Path) HasPrefix(q Path) bool {
	if p == q {
		return true
	}
	return strings.HasPrefix(string(p), string(q)+".")
}

// Account is the root of the ownership tree. KnowledgeBaseIDs is a
// denormalized view maintained by the engine; it is never writable by
// callers.
type Account struct {
	ID               ID        `json:"id"`
	KnowledgeBaseIDs []ID      `json:"knowledge_base_ids"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := *a
	c.KnowledgeBaseIDs = slices.Clone(a.KnowledgeBaseIDs)
	return &c
}

// KnowledgeBase groups documents under exactly one owning account.
// DocumentIDs is a denormalized view maintained by the engine.
type KnowledgeBase struct {
	ID          ID        `json:"id"`
	AccountID   ID        `json:"account_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	DocumentIDs []ID      `json:"document_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the knowledge base.
func (kb *KnowledgeBase) Clone() *KnowledgeBase {
	c := *kb
	c.DocumentIDs = slices.Clone(kb.DocumentIDs)
	return &c
}

// Document groups components under exactly one owning knowledge base.
//
// Text and ComponentIDs are derived: Text is the position-ordered join
// of all component texts separated by a blank line, and ComponentIDs
// mirrors the same order. Both are rebuilt by the engine on every
// component mutation and are never writable by callers.
type Document struct {
	ID              ID        `json:"id"`
	KnowledgeBaseID ID        `json:"knowledge_base_id"`
	Name            string    `json:"name"`
	Path            Path      `json:"hierarchy_path"`
	Tags            []string  `json:"tags,omitempty"`
	ComponentIDs    []ID      `json:"component_ids"`
	Text            string    `json:"text"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	c := *d
	c.Tags = slices.Clone(d.Tags)
	c.ComponentIDs = slices.Clone(d.ComponentIDs)
	return &c
}

// Component is the atomic content unit of a document.
//
// (DocumentID, Position) is unique. SearchTokens is the derived
// tokenized representation of the owning document's name plus the
// component text; it is recomputed whenever Text changes and is never
// writable by callers. Embedding is an opaque vector provided by an
// external embedder; nil means not yet embedded.
type Component struct {
	ID         ID        `json:"id"`
	DocumentID ID        `json:"document_id"`
	Position   int       `json:"position"`
	Kind       Kind      `json:"kind"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding,omitempty"`

	// Photo/table payload, empty for chunks. Alternate ingestion paths
	// (photo records) are normalized into this one shape.
	PhotoURL    string `json:"photo_url,omitempty"`
	PhotoBase64 string `json:"photo_base64,omitempty"`

	SearchTokens []string  `json:"search_tokens,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the component.
func (c *Component) Clone() *Component {
	cp := *c
	cp.Embedding = slices.Clone(c.Embedding)
	cp.SearchTokens = slices.Clone(c.SearchTokens)
	return &cp
}
