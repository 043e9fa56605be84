// Package lexical provides keyword indexing for component text: a
// pluggable tokenizer and an in-memory BM25 inverted index backed by
// roaring bitmaps.
package lexical
