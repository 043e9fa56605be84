package corpusdb_test

import (
	"context"
	"fmt"

	"github.com/hupe1980/corpusdb"
	"github.com/hupe1980/corpusdb/model"
)

func Example() {
	ctx := context.Background()

	db, err := corpusdb.Open(ctx)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	_ = db.EnsureAccount(ctx, "acme")
	kbID, _ := db.CreateKnowledgeBase(ctx, "acme", "Handbook", "")
	docID, _ := db.CreateDocument(ctx, kbID, "Onboarding", "root.hr", nil)

	_, _ = db.IngestComponent(ctx, docID, corpusdb.ComponentInput{
		Kind: model.KindChunk,
		Text: "Welcome aboard.",
	})
	_, _ = db.IngestComponent(ctx, docID, corpusdb.ComponentInput{
		Kind: model.KindChunk,
		Text: "Badge pickup is on floor two.",
	})

	doc, _ := db.GetDocument(ctx, docID)
	fmt.Println(doc.Text)
	// Output:
	// Welcome aboard.
	//
	// Badge pickup is on floor two.
}

func ExampleDB_SearchKeyword() {
	ctx := context.Background()

	db, err := corpusdb.Open(ctx)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	_ = db.EnsureHierarchy(ctx, "acme", "kb-1", "doc-1", "Runbook")
	_, _ = db.IngestComponent(ctx, "doc-1", corpusdb.ComponentInput{
		Kind: model.KindChunk,
		Text: "Rotate credentials every ninety days.",
	})

	hits, _ := db.SearchKeyword(ctx, "credentials", 5)
	for _, hit := range hits {
		fmt.Println(hit.Document.Name, "->", hit.Component.Text)
	}
	// Output:
	// Runbook -> Rotate credentials every ninety days.
}
