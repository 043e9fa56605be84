// Package corpusdb provides an embedded consistency-and-indexing
// engine for hierarchical document corpora.
//
// Content is organized in four levels: account, knowledge base,
// document and component. Every mutation keeps the derived state in
// step with the rows it is derived from:
//
//   - parent entities carry denormalized child id lists
//   - a document's text is the concatenation of its components'
//     texts in position order
//   - every component carries a keyword search index derived from its
//     text and its document's name, and optionally an embedding in a
//     nearest-neighbor index
//
// Quick start:
//
//	ctx := context.Background()
//	db, err := corpusdb.Open(ctx,
//	    corpusdb.WithLogger(corpusdb.NewTextLogger(slog.LevelInfo)),
//	)
//	if err != nil {
//	    panic(err)
//	}
//	defer db.Close()
//
//	_ = db.EnsureAccount(ctx, "acct-1")
//	kbID, _ := db.CreateKnowledgeBase(ctx, "acct-1", "Handbook", "")
//	docID, _ := db.CreateDocument(ctx, kbID, "Onboarding", "root.hr", nil)
//
//	id, err := db.IngestComponent(ctx, docID, corpusdb.ComponentInput{
//	    Kind: model.KindChunk,
//	    Text: "Welcome to the team.",
//	})
//
//	hits, err := db.SearchKeyword(ctx, "welcome", 10)
//
// Snapshots persist the full state to a blob store (filesystem, MinIO,
// S3) and restore it elsewhere; search indexes are rebuilt on restore.
package corpusdb

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/corpusdb/engine"
	"github.com/hupe1980/corpusdb/knn"
	"github.com/hupe1980/corpusdb/lexical"
	"github.com/hupe1980/corpusdb/model"
	"github.com/hupe1980/corpusdb/snapshot"
	"github.com/hupe1980/corpusdb/store"
)

// ComponentInput describes a component to ingest.
type ComponentInput = engine.ComponentInput

// ComponentUpdate is a partial component update. Setting DocumentID
// re-parents the component.
type ComponentUpdate = engine.ComponentUpdate

// KnowledgeBaseUpdate is a partial knowledge base update.
type KnowledgeBaseUpdate = engine.KnowledgeBaseUpdate

// DocumentUpdate is a partial document update.
type DocumentUpdate = engine.DocumentUpdate

// KeywordHit is a keyword search result.
type KeywordHit = engine.SearchKeywordResult

// SimilarHit is an embedding search result.
type SimilarHit = engine.SearchSimilarResult

// PhotoInput describes an image-bearing component. Exactly one of URL
// or Base64 should be set; Caption becomes the component text and
// feeds the keyword index.
type PhotoInput struct {
	ID        model.ID
	URL       string
	Base64    string
	Caption   string
	Kind      model.Kind
	Embedding []float32
	Position  *int
}

// DB is the public handle. All methods are safe for concurrent use.
type DB struct {
	coord   *engine.Coordinator
	snaps   *snapshot.Manager
	commits commitStore
	limiter *rate.Limiter
	log     *Logger

	batchConcurrency int

	restoreMu sync.RWMutex
	closed    atomic.Bool
}

type commitStore interface {
	Commit(ctx context.Context, name string) error
	Latest(ctx context.Context) (string, error)
}

// Open creates a database with the given options.
func Open(_ context.Context, optFns ...Option) (*DB, error) {
	opts := options{
		logger:           NoopLogger(),
		metric:           knn.MetricCosine,
		batchConcurrency: 4,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.batchConcurrency < 1 {
		opts.batchConcurrency = 1
	}

	lex := lexical.NewIndex(opts.tokenizer)
	vec := knn.NewFlat(opts.metric)
	coord := engine.New(store.New(), lex, vec, opts.logger.Logger)

	db := &DB{
		coord:            coord,
		commits:          opts.commits,
		log:              opts.logger,
		batchConcurrency: opts.batchConcurrency,
	}
	if opts.snapshots != nil {
		db.snaps = snapshot.NewManager(opts.snapshots, opts.codec, opts.compression)
	}
	if opts.rateLimit > 0 {
		burst := opts.rateBurst
		if burst < 1 {
			burst = 1
		}
		db.limiter = rate.NewLimiter(rate.Limit(opts.rateLimit), burst)
	}
	return db, nil
}

// Close marks the database closed. Further calls return ErrClosed.
func (db *DB) Close() error {
	db.closed.Store(true)
	return nil
}

func (db *DB) guard(ctx context.Context) (func(), error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	if db.limiter != nil {
		if err := db.limiter.Wait(ctx); err != nil {
			return nil, translateError(err)
		}
	}
	db.restoreMu.RLock()
	return db.restoreMu.RUnlock, nil
}

// EnsureAccount creates the account if it does not exist yet.
func (db *DB) EnsureAccount(ctx context.Context, accountID model.ID) error {
	done, err := db.guard(ctx)
	if err != nil {
		return err
	}
	defer done()
	return translateError(db.coord.EnsureAccount(ctx, accountID))
}

// CreateKnowledgeBase creates a knowledge base under an account.
func (db *DB) CreateKnowledgeBase(ctx context.Context, accountID model.ID, name, description string) (model.ID, error) {
	done, err := db.guard(ctx)
	if err != nil {
		return "", err
	}
	defer done()
	id, err := db.coord.CreateKnowledgeBase(ctx, accountID, engine.KnowledgeBaseInput{
		Name:        name,
		Description: description,
	})
	return id, translateError(err)
}

// UpdateKnowledgeBase applies a partial update to a knowledge base.
func (db *DB) UpdateKnowledgeBase(ctx context.Context, kbID model.ID, upd KnowledgeBaseUpdate) error {
	done, err := db.guard(ctx)
	if err != nil {
		return err
	}
	defer done()
	return translateError(db.coord.UpdateKnowledgeBase(ctx, kbID, upd))
}

// TransferKnowledgeBase moves a knowledge base to another account.
func (db *DB) TransferKnowledgeBase(ctx context.Context, kbID, newAccountID model.ID) error {
	done, err := db.guard(ctx)
	if err != nil {
		return err
	}
	defer done()
	return translateError(db.coord.TransferKnowledgeBase(ctx, kbID, newAccountID))
}

// CreateDocument creates an empty document under a knowledge base.
func (db *DB) CreateDocument(ctx context.Context, kbID model.ID, name string, path model.Path, tags []string) (model.ID, error) {
	done, err := db.guard(ctx)
	if err != nil {
		return "", err
	}
	defer done()
	id, err := db.coord.CreateDocument(ctx, kbID, engine.DocumentInput{
		Name: name,
		Path: path,
		Tags: tags,
	})
	return id, translateError(err)
}

// UpdateDocument applies a partial update to a document. Renaming
// refreshes the keyword index of every component under it.
func (db *DB) UpdateDocument(ctx context.Context, docID model.ID, upd DocumentUpdate) error {
	done, err := db.guard(ctx)
	if err != nil {
		return err
	}
	defer done()
	return translateError(db.coord.UpdateDocument(ctx, docID, upd))
}

// EnsureHierarchy creates any missing ancestors for externally minted
// ids: account, knowledge base (auto-named) and document. Ingestion
// pipelines call this before pushing components.
func (db *DB) EnsureHierarchy(ctx context.Context, accountID, kbID, docID model.ID, docName string) error {
	done, err := db.guard(ctx)
	if err != nil {
		return err
	}
	defer done()
	return translateError(db.coord.EnsureHierarchy(ctx, accountID, kbID, docID, docName))
}

// IngestComponent adds a component to a document. The document's text
// and id list, and the search indexes, are updated in the same
// transaction.
func (db *DB) IngestComponent(ctx context.Context, docID model.ID, in ComponentInput) (model.ID, error) {
	done, err := db.guard(ctx)
	if err != nil {
		return "", err
	}
	defer done()
	id, err := db.coord.IngestComponent(ctx, docID, in)
	return id, translateError(err)
}

// IngestPhoto normalizes an image record into a component and ingests
// it. The caption is the indexed text; the image payload rides along
// on the component row.
func (db *DB) IngestPhoto(ctx context.Context, docID model.ID, in PhotoInput) (model.ID, error) {
	if in.URL == "" && in.Base64 == "" {
		return "", fmt.Errorf("%w: photo needs a url or base64 payload", ErrConstraintViolation)
	}
	if in.Base64 != "" {
		payload := in.Base64
		if i := strings.IndexByte(payload, ','); i >= 0 && strings.HasPrefix(payload, "data:") {
			payload = payload[i+1:]
		}
		if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
			return "", fmt.Errorf("%w: invalid base64 image payload: %v", ErrConstraintViolation, err)
		}
		in.Base64 = payload
	}
	kind := in.Kind
	if kind == "" {
		kind = model.KindPhoto
	}
	if kind != model.KindPhoto && kind != model.KindTable {
		return "", fmt.Errorf("%w: photo ingestion accepts kinds %q and %q", ErrConstraintViolation, model.KindPhoto, model.KindTable)
	}

	done, err := db.guard(ctx)
	if err != nil {
		return "", err
	}
	defer done()
	id, err := db.coord.IngestComponent(ctx, docID, ComponentInput{
		ID:          in.ID,
		Kind:        kind,
		Text:        in.Caption,
		Embedding:   in.Embedding,
		Position:    in.Position,
		PhotoURL:    in.URL,
		PhotoBase64: in.Base64,
	})
	return id, translateError(err)
}

// BatchIngest adds components to a document with bounded parallelism.
// Returned ids are positionally aligned with the inputs. The batch is
// not atomic as a whole: each component commits individually, and the
// first failure cancels the remainder.
func (db *DB) BatchIngest(ctx context.Context, docID model.ID, inputs []ComponentInput) ([]model.ID, error) {
	done, err := db.guard(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	ids := make([]model.ID, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(db.batchConcurrency)

	for i, in := range inputs {
		g.Go(func() error {
			id, err := db.coord.IngestComponent(gctx, docID, in)
			if err != nil {
				return err
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, translateError(err)
	}
	return ids, nil
}

// UpdateComponent applies a partial update to a component, refreshing
// the affected documents and indexes.
func (db *DB) UpdateComponent(ctx context.Context, id model.ID, upd ComponentUpdate) error {
	done, err := db.guard(ctx)
	if err != nil {
		return err
	}
	defer done()
	return translateError(db.coord.UpdateComponent(ctx, id, upd))
}

// DeleteComponent removes a component and refreshes its document.
func (db *DB) DeleteComponent(ctx context.Context, id model.ID) error {
	done, err := db.guard(ctx)
	if err != nil {
		return err
	}
	defer done()
	return translateError(db.coord.DeleteComponent(ctx, id))
}

// DeleteDocument removes a document and all its components.
func (db *DB) DeleteDocument(ctx context.Context, id model.ID) error {
	done, err := db.guard(ctx)
	if err != nil {
		return err
	}
	defer done()
	return translateError(db.coord.DeleteDocument(ctx, id))
}

// DeleteKnowledgeBase removes a knowledge base and everything below it.
func (db *DB) DeleteKnowledgeBase(ctx context.Context, id model.ID) error {
	done, err := db.guard(ctx)
	if err != nil {
		return err
	}
	defer done()
	return translateError(db.coord.DeleteKnowledgeBase(ctx, id))
}

// DeleteAccount removes an account and everything below it.
func (db *DB) DeleteAccount(ctx context.Context, id model.ID) error {
	done, err := db.guard(ctx)
	if err != nil {
		return err
	}
	defer done()
	return translateError(db.coord.DeleteAccount(ctx, id))
}

// GetAccount returns an account.
func (db *DB) GetAccount(_ context.Context, id model.ID) (*model.Account, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	a, err := db.coord.GetAccount(id)
	return a, translateError(err)
}

// GetKnowledgeBase returns a knowledge base.
func (db *DB) GetKnowledgeBase(_ context.Context, id model.ID) (*model.KnowledgeBase, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	kb, err := db.coord.GetKnowledgeBase(id)
	return kb, translateError(err)
}

// GetDocument returns a document with its aggregated text and
// position-ordered component ids.
func (db *DB) GetDocument(_ context.Context, id model.ID) (*model.Document, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	d, err := db.coord.GetDocument(id)
	return d, translateError(err)
}

// GetComponent returns a component.
func (db *DB) GetComponent(_ context.Context, id model.ID) (*model.Component, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	c, err := db.coord.GetComponent(id)
	return c, translateError(err)
}

// ListComponents returns a document's components ordered by position.
func (db *DB) ListComponents(_ context.Context, docID model.ID) ([]*model.Component, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	cs, err := db.coord.ListComponents(docID)
	return cs, translateError(err)
}

// ListDocuments returns a knowledge base's documents.
func (db *DB) ListDocuments(_ context.Context, kbID model.ID) ([]*model.Document, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	ds, err := db.coord.ListDocuments(kbID)
	return ds, translateError(err)
}

// ListDocumentsUnder returns the documents whose hierarchy path sits
// at or below the given prefix.
func (db *DB) ListDocumentsUnder(_ context.Context, kbID model.ID, prefix model.Path) ([]*model.Document, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	ds, err := db.coord.ListDocumentsUnder(kbID, prefix)
	return ds, translateError(err)
}

// ListKnowledgeBases returns an account's knowledge bases.
func (db *DB) ListKnowledgeBases(_ context.Context, accountID model.ID) ([]*model.KnowledgeBase, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	kbs, err := db.coord.ListKnowledgeBases(accountID)
	return kbs, translateError(err)
}

// SearchKeyword runs a BM25-ranked keyword query over component text.
func (db *DB) SearchKeyword(_ context.Context, query string, k int) ([]KeywordHit, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	hits, err := db.coord.SearchKeyword(query, k)
	return hits, translateError(err)
}

// SearchSimilar runs a nearest-neighbor query over component
// embeddings.
func (db *DB) SearchSimilar(_ context.Context, embedding []float32, k int) ([]SimilarHit, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	hits, err := db.coord.SearchSimilar(embedding, k)
	return hits, translateError(err)
}

// Stats returns row counts per entity level.
func (db *DB) Stats() store.Stats {
	return db.coord.Store().Stats()
}

// Snapshot serializes the full state to the configured blob store and,
// when a commit store is configured, publishes it as the latest.
// Returns the snapshot name.
func (db *DB) Snapshot(ctx context.Context) (string, error) {
	done, err := db.guard(ctx)
	if err != nil {
		return "", err
	}
	defer done()

	if db.snaps == nil {
		return "", fmt.Errorf("no snapshot store configured")
	}
	name, err := db.snaps.Save(ctx, db.coord.Store().Export())
	if err != nil {
		return "", translateError(err)
	}
	if db.commits != nil {
		if err := db.commits.Commit(ctx, name); err != nil {
			return "", translateError(err)
		}
	}
	db.log.Info("snapshot written", "name", name)
	return name, nil
}

// Restore replaces the full state with a named snapshot and rebuilds
// the search indexes from the restored rows.
func (db *DB) Restore(ctx context.Context, name string) error {
	if db.closed.Load() {
		return ErrClosed
	}
	if db.snaps == nil {
		return fmt.Errorf("no snapshot store configured")
	}

	st, err := db.snaps.Load(ctx, name)
	if err != nil {
		return translateError(err)
	}

	db.restoreMu.Lock()
	defer db.restoreMu.Unlock()

	db.coord.Store().Import(st)
	db.coord.Lexical().Reset()
	db.coord.Vector().Reset()
	db.coord.RebuildIndexes()

	db.log.Info("snapshot restored", "name", name)
	return nil
}

// RestoreLatest restores the most recent snapshot: the commit store's
// pointer when configured, otherwise the lexically greatest name.
func (db *DB) RestoreLatest(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}
	if db.snaps == nil {
		return fmt.Errorf("no snapshot store configured")
	}

	if db.commits != nil {
		name, err := db.commits.Latest(ctx)
		if err != nil {
			return translateError(err)
		}
		return db.Restore(ctx, name)
	}

	names, err := db.snaps.List(ctx)
	if err != nil {
		return translateError(err)
	}
	if len(names) == 0 {
		return fmt.Errorf("%w: no snapshots", ErrNotFound)
	}
	return db.Restore(ctx, names[len(names)-1])
}
