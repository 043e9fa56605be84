package corpusdb

import (
	"github.com/hupe1980/corpusdb/blobstore"
	"github.com/hupe1980/corpusdb/codec"
	"github.com/hupe1980/corpusdb/knn"
	"github.com/hupe1980/corpusdb/lexical"
	"github.com/hupe1980/corpusdb/snapshot"
)

type options struct {
	logger           *Logger
	tokenizer        lexical.Tokenizer
	metric           knn.Metric
	codec            codec.Codec
	snapshots        blobstore.Store
	commits          blobstore.CommitStore
	compression      snapshot.Compression
	rateLimit        float64
	rateBurst        int
	batchConcurrency int
}

// Option configures Open behavior.
type Option func(*options)

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithTokenizer sets the tokenizer used for the keyword search index.
// Defaults to whitespace tokenization; use lexical.Bigram for CJK
// corpora.
func WithTokenizer(t lexical.Tokenizer) Option {
	return func(o *options) {
		o.tokenizer = t
	}
}

// WithDistance sets the similarity metric for embedding search.
// Defaults to cosine similarity.
func WithDistance(m knn.Metric) Option {
	return func(o *options) {
		o.metric = m
	}
}

// WithCodec configures the codec used for encoding snapshots.
//
// If nil is passed, codec.Default is used. Existing snapshots are
// self-describing and decode with whatever codec wrote them.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithSnapshotStore sets the blob store snapshots are written to.
// Without one, Snapshot and Restore return an error.
func WithSnapshotStore(s blobstore.Store) Option {
	return func(o *options) {
		o.snapshots = s
	}
}

// WithCommitStore sets the commit store that tracks the latest
// published snapshot. Without one, RestoreLatest falls back to the
// lexically greatest snapshot name.
func WithCommitStore(c blobstore.CommitStore) Option {
	return func(o *options) {
		o.commits = c
	}
}

// WithSnapshotCompression sets how snapshot payloads are compressed.
// Defaults to none.
func WithSnapshotCompression(c snapshot.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithRateLimit throttles mutating operations to the given rate per
// second with the given burst. Zero or negative disables throttling.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		o.rateLimit = perSecond
		o.rateBurst = burst
	}
}

// WithBatchConcurrency bounds the number of components ingested in
// parallel by BatchIngest. Defaults to 4.
func WithBatchConcurrency(n int) Option {
	return func(o *options) {
		o.batchConcurrency = n
	}
}
