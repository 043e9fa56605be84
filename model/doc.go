// Package model defines the entity types shared across corpusdb:
// the account → knowledge base → document → component ownership tree
// and the identifiers used to navigate it.
//
// Parent-side id lists (Account.KnowledgeBaseIDs, KnowledgeBase.
// DocumentIDs, Document.ComponentIDs) are denormalized views. The
// source of truth is always the child's parent-id field; the views are
// maintained by the engine and must never be mutated directly.
package model
