package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/corpusdb/model"
	"github.com/hupe1980/corpusdb/store"
)

// EnsureAccount creates the account if it does not exist yet. Accounts
// come into being on first reference, so this is an idempotent upsert.
func (c *Coordinator) EnsureAccount(ctx context.Context, accountID model.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := c.store.RowLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := c.store.GetAccount(accountID); err == nil {
		return nil
	}

	now := c.now()
	c.store.PutAccount(&model.Account{
		ID:        accountID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	c.log.Debug("account created", "account_id", string(accountID))
	return nil
}

// KnowledgeBaseInput describes a knowledge base to create. ID is
// optional and minted when empty.
type KnowledgeBaseInput struct {
	ID          model.ID
	Name        string
	Description string
}

// CreateKnowledgeBase creates a knowledge base under an account and
// appends it to the account's id list.
func (c *Coordinator) CreateKnowledgeBase(ctx context.Context, accountID model.ID, in KnowledgeBaseInput) (model.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := in.ID
	if id == "" {
		id = model.NewID()
	}

	unlock := c.lockRows(accountID, id)
	defer unlock()

	if _, err := c.store.GetAccount(accountID); err != nil {
		return "", err
	}
	if _, err := c.store.GetKnowledgeBase(id); err == nil {
		return "", fmt.Errorf("%w: knowledge base %s already exists", store.ErrConstraintViolation, id)
	}

	tx := c.store.Begin()
	defer tx.Rollback()

	now := c.now()
	kb := &model.KnowledgeBase{
		ID:          id,
		AccountID:   accountID,
		Name:        in.Name,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.PutKnowledgeBase(kb); err != nil {
		return "", err
	}
	if err := c.syncAccountList(tx, accountID, id, opAppend); err != nil {
		return "", err
	}
	tx.Commit()

	c.log.Debug("knowledge base created", "knowledge_base_id", string(id), "account_id", string(accountID))
	return id, nil
}

// KnowledgeBaseUpdate is a partial knowledge base update.
type KnowledgeBaseUpdate struct {
	Name        *string
	Description *string
}

// UpdateKnowledgeBase applies a partial update. Even a no-op update
// refreshes the owning account's id list (remove-then-append).
func (c *Coordinator) UpdateKnowledgeBase(ctx context.Context, kbID model.ID, upd KnowledgeBaseUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	kb, unlock, err := c.lockKnowledgeBase(kbID)
	if err != nil {
		return err
	}
	defer unlock()

	tx := c.store.Begin()
	defer tx.Rollback()

	if upd.Name != nil {
		kb.Name = *upd.Name
	}
	if upd.Description != nil {
		kb.Description = *upd.Description
	}
	kb.UpdatedAt = c.now()
	if err := tx.PutKnowledgeBase(kb); err != nil {
		return err
	}
	if err := c.syncAccountList(tx, kb.AccountID, kbID, opTouch); err != nil {
		return err
	}
	tx.Commit()
	return nil
}

// TransferKnowledgeBase moves a knowledge base to another account:
// removed from the old owner's list, appended to the new owner's.
func (c *Coordinator) TransferKnowledgeBase(ctx context.Context, kbID, newAccountID model.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		kb     *model.KnowledgeBase
		unlock func()
	)
	for {
		cur, err := c.store.GetKnowledgeBase(kbID)
		if err != nil {
			return err
		}

		first, second := cur.AccountID, newAccountID
		if second < first {
			first, second = second, first
		}
		var u func()
		if first == second {
			u = c.lockRows(first, kbID)
		} else {
			u = c.lockRows(first, second, kbID)
		}

		// Re-read under lock; retry if the owner moved meanwhile.
		kb, err = c.store.GetKnowledgeBase(kbID)
		if err != nil {
			u()
			return err
		}
		if kb.AccountID != cur.AccountID {
			u()
			continue
		}
		unlock = u
		break
	}
	defer unlock()

	if _, err := c.store.GetAccount(newAccountID); err != nil {
		return err
	}
	if kb.AccountID == newAccountID {
		return nil
	}

	tx := c.store.Begin()
	defer tx.Rollback()

	oldAccountID := kb.AccountID
	kb.AccountID = newAccountID
	kb.UpdatedAt = c.now()
	if err := tx.PutKnowledgeBase(kb); err != nil {
		return err
	}
	if err := c.syncAccountList(tx, oldAccountID, kbID, opRemove); err != nil {
		return err
	}
	if err := c.syncAccountList(tx, newAccountID, kbID, opAppend); err != nil {
		return err
	}
	tx.Commit()

	c.log.Debug("knowledge base transferred",
		"knowledge_base_id", string(kbID),
		"from_account_id", string(oldAccountID),
		"to_account_id", string(newAccountID),
	)
	return nil
}

// DocumentInput describes a document to create. ID is optional and
// minted when empty; an empty Path defaults to the hierarchy root.
type DocumentInput struct {
	ID   model.ID
	Name string
	Path model.Path
	Tags []string
}

// CreateDocument creates an empty document under a knowledge base and
// appends it to the knowledge base's id list.
func (c *Coordinator) CreateDocument(ctx context.Context, kbID model.ID, in DocumentInput) (model.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := in.ID
	if id == "" {
		id = model.NewID()
	}
	path := in.Path
	if path == "" {
		path = model.PathRoot
	}

	_, unlockKB, err := c.lockKnowledgeBase(kbID)
	if err != nil {
		return "", err
	}
	defer unlockKB()

	docLock := c.store.RowLock(id)
	docLock.Lock()
	defer docLock.Unlock()

	if _, err := c.store.GetDocument(id); err == nil {
		return "", fmt.Errorf("%w: document %s already exists", store.ErrConstraintViolation, id)
	}

	tx := c.store.Begin()
	defer tx.Rollback()

	now := c.now()
	doc := &model.Document{
		ID:              id,
		KnowledgeBaseID: kbID,
		Name:            in.Name,
		Path:            path,
		Tags:            in.Tags,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.PutDocument(doc); err != nil {
		return "", err
	}
	if err := c.syncKnowledgeBaseList(tx, kbID, id, opAppend); err != nil {
		return "", err
	}
	tx.Commit()

	c.log.Debug("document created", "document_id", string(id), "knowledge_base_id", string(kbID))
	return id, nil
}

// DocumentUpdate is a partial document update. Renaming a document
// re-derives the search index of every component under it, since the
// index source includes the document name.
type DocumentUpdate struct {
	Name *string
	Path *model.Path
	Tags []string
}

// UpdateDocument applies a partial update. Even a no-op update
// refreshes the owning knowledge base's id list (remove-then-append).
func (c *Coordinator) UpdateDocument(ctx context.Context, docID model.ID, upd DocumentUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc, _, unlock, err := c.lockDocument(docID)
	if err != nil {
		return err
	}
	defer unlock()

	tx := c.store.Begin()
	defer tx.Rollback()

	oldName := doc.Name
	if upd.Name != nil {
		doc.Name = *upd.Name
	}
	if upd.Path != nil {
		doc.Path = *upd.Path
	}
	if upd.Tags != nil {
		doc.Tags = upd.Tags
	}
	doc.UpdatedAt = c.now()
	if err := tx.PutDocument(doc); err != nil {
		return err
	}

	if doc.Name != oldName {
		for _, comp := range c.store.ComponentsByDocument(docID) {
			oldSource := searchSource(oldName, comp.Text)
			comp.SearchTokens = c.indexText(tx, comp.ID, searchSource(doc.Name, comp.Text), &oldSource)
			comp.UpdatedAt = c.now()
			if err := tx.PutComponent(comp); err != nil {
				return err
			}
		}
	}

	if err := c.syncKnowledgeBaseList(tx, doc.KnowledgeBaseID, docID, opTouch); err != nil {
		return err
	}
	tx.Commit()
	return nil
}

// DeleteDocument removes a document, cascading through its components,
// and removes it from the owning knowledge base's id list.
func (c *Coordinator) DeleteDocument(ctx context.Context, docID model.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc, _, unlock, err := c.lockDocument(docID)
	if err != nil {
		return err
	}
	defer unlock()

	tx := c.store.Begin()
	defer tx.Rollback()

	for _, comp := range tx.DeleteDocument(docID) {
		c.unindexComponent(tx, comp, doc.Name)
	}
	if err := c.syncKnowledgeBaseList(tx, doc.KnowledgeBaseID, docID, opRemove); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.Commit()

	c.log.Debug("document deleted", "document_id", string(docID))
	return nil
}

// DeleteKnowledgeBase removes a knowledge base, cascading through all
// owned documents and their components, and removes it from the owning
// account's id list.
func (c *Coordinator) DeleteKnowledgeBase(ctx context.Context, kbID model.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	kb, unlock, err := c.lockKnowledgeBase(kbID)
	if err != nil {
		return err
	}
	defer unlock()

	docs := c.store.DocumentsByKnowledgeBase(kbID)
	unlockDocs := c.lockDocumentRows(docs)
	defer unlockDocs()

	tx := c.store.Begin()
	defer tx.Rollback()

	names := make(map[model.ID]string, len(docs))
	for _, d := range docs {
		names[d.ID] = d.Name
	}
	_, comps := tx.DeleteKnowledgeBase(kbID)
	for _, comp := range comps {
		c.unindexComponent(tx, comp, names[comp.DocumentID])
	}
	if err := c.syncAccountList(tx, kb.AccountID, kbID, opRemove); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.Commit()

	c.log.Debug("knowledge base deleted",
		"knowledge_base_id", string(kbID),
		"documents", len(docs),
		"components", len(comps),
	)
	return nil
}

// DeleteAccount removes an account and everything below it.
func (c *Coordinator) DeleteAccount(ctx context.Context, accountID model.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := c.store.RowLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := c.store.GetAccount(accountID); err != nil {
		return err
	}

	// Every row lock is taken before the transaction opens and held
	// until after commit or rollback, so a pre-commit failure rolls the
	// cascade back before any reader can observe it. The account lock
	// blocks new knowledge bases and documents from appearing under it,
	// so the scope gathered here is stable.
	var unlocks []func()
	defer func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}()

	kbs := c.store.KnowledgeBasesByAccount(accountID)
	names := make(map[model.ID]string)
	for _, kb := range kbs {
		kbLock := c.store.RowLock(kb.ID)
		kbLock.Lock()
		unlocks = append(unlocks, kbLock.Unlock)

		docs := c.store.DocumentsByKnowledgeBase(kb.ID)
		unlocks = append(unlocks, c.lockDocumentRows(docs))
		for _, d := range docs {
			names[d.ID] = d.Name
		}
	}

	tx := c.store.Begin()
	defer tx.Rollback()

	for _, kb := range kbs {
		_, comps := tx.DeleteKnowledgeBase(kb.ID)
		for _, comp := range comps {
			c.unindexComponent(tx, comp, names[comp.DocumentID])
		}
	}

	_, _, _ = tx.DeleteAccount(accountID)
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.Commit()

	c.log.Debug("account deleted", "account_id", string(accountID))
	return nil
}

// EnsureHierarchy creates any missing ancestors for an externally
// minted id chain: the account, the knowledge base (auto-named when
// absent) and the document. Ingestion pipelines call this before
// pushing components.
func (c *Coordinator) EnsureHierarchy(ctx context.Context, accountID, kbID, docID model.ID, docName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := c.lockRows(accountID, kbID, docID)
	defer unlock()

	tx := c.store.Begin()
	defer tx.Rollback()

	now := c.now()

	if _, err := c.store.GetAccount(accountID); err != nil {
		tx.PutAccount(&model.Account{ID: accountID, CreatedAt: now, UpdatedAt: now})
	}

	kb, err := c.store.GetKnowledgeBase(kbID)
	if err != nil {
		kb = &model.KnowledgeBase{
			ID:          kbID,
			AccountID:   accountID,
			Name:        fmt.Sprintf("Knowledge Base %s", kbID),
			Description: fmt.Sprintf("Auto-created knowledge base for account %s", accountID),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.PutKnowledgeBase(kb); err != nil {
			return err
		}
		if err := c.syncAccountList(tx, accountID, kbID, opAppend); err != nil {
			return err
		}
	} else if kb.AccountID != accountID {
		return fmt.Errorf("%w: knowledge base %s is owned by account %s", store.ErrConstraintViolation, kbID, kb.AccountID)
	}

	if doc, err := c.store.GetDocument(docID); err != nil {
		doc = &model.Document{
			ID:              docID,
			KnowledgeBaseID: kbID,
			Name:            docName,
			Path:            model.PathRoot,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.PutDocument(doc); err != nil {
			return err
		}
		if err := c.syncKnowledgeBaseList(tx, kbID, docID, opAppend); err != nil {
			return err
		}
	} else if doc.KnowledgeBaseID != kbID {
		return fmt.Errorf("%w: document %s is owned by knowledge base %s", store.ErrConstraintViolation, docID, doc.KnowledgeBaseID)
	}

	tx.Commit()
	return nil
}

// lockKnowledgeBase locks a knowledge base together with its owner
// account and returns a stable read. The owner can change between the
// unlocked read and the lock acquisition (TransferKnowledgeBase), so it
// re-reads and retries until the owner is stable, like
// lockComponentDocs does for re-parented components.
func (c *Coordinator) lockKnowledgeBase(kbID model.ID) (*model.KnowledgeBase, func(), error) {
	for {
		kb, err := c.store.GetKnowledgeBase(kbID)
		if err != nil {
			return nil, nil, err
		}

		unlock := c.lockRows(kb.AccountID, kbID)

		cur, err := c.store.GetKnowledgeBase(kbID)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		if cur.AccountID != kb.AccountID {
			unlock()
			continue
		}
		return cur, unlock, nil
	}
}

// lockDocument locks a document together with its owning knowledge base
// and account, retrying until the ancestor chain read under lock
// matches the one the locks were taken for.
func (c *Coordinator) lockDocument(docID model.ID) (*model.Document, *model.KnowledgeBase, func(), error) {
	for {
		doc, err := c.store.GetDocument(docID)
		if err != nil {
			return nil, nil, nil, err
		}
		kb, err := c.store.GetKnowledgeBase(doc.KnowledgeBaseID)
		if err != nil {
			return nil, nil, nil, err
		}

		unlock := c.lockRows(kb.AccountID, kb.ID, docID)

		curDoc, err := c.store.GetDocument(docID)
		if err != nil {
			unlock()
			return nil, nil, nil, err
		}
		curKB, err := c.store.GetKnowledgeBase(curDoc.KnowledgeBaseID)
		if err != nil {
			unlock()
			return nil, nil, nil, err
		}
		if curDoc.KnowledgeBaseID != kb.ID || curKB.AccountID != kb.AccountID {
			unlock()
			continue
		}
		return curDoc, curKB, unlock, nil
	}
}

// lockRows locks rows in the given order and returns the combined
// unlock. Callers pass ids in the global lock order: account,
// knowledge base, document.
func (c *Coordinator) lockRows(ids ...model.ID) func() {
	locks := make([]*sync.RWMutex, 0, len(ids))
	for _, id := range ids {
		l := c.store.RowLock(id)
		l.Lock()
		locks = append(locks, l)
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

// lockDocumentRows locks document rows in ascending id order (the
// order DocumentsByKnowledgeBase returns them in).
func (c *Coordinator) lockDocumentRows(docs []*model.Document) func() {
	locks := make([]*sync.RWMutex, 0, len(docs))
	for _, d := range docs {
		l := c.store.RowLock(d.ID)
		l.Lock()
		locks = append(locks, l)
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}
