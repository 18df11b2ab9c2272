// Package ingest implements the batch-import pipeline (spec §4.9 step L10)
// that turns a stream of parsed records into Databank.Store calls: a bounded
// pool of worker goroutines, each tokenizing into its own staging lexicon and
// batching documents before remapping and storing them.
//
// Grounded on original_source/src/M6Builder.cpp's M6Processor (a file-queue
// feeding a document-queue feeding N processing threads, each accumulating a
// 100-document batch against its own staging word list before flushing
// against the shared lexicon) and, for the external filter pipe, on
// original_source/src/M6Exec.h/M6Exec.cpp's ForkExec/M6Process (run an
// external decompressor/parser as a subprocess, read its stdout).
package ingest

// ValueIndex names which of a Document's declared Attributes feeds a
// direct-value index (spec's M6InputDocument::Index(name, type, unique,
// value) overload) rather than the tokenized full-text/phrase indexes.
type ValueIndex struct {
	// IndexName is the databank index this value is stored into.
	IndexName string
	// Attribute is the key into Document.Attributes this index's value is
	// read from.
	Attribute string
}

// Document is one parsed record handed to the pipeline: the raw body text to
// tokenize, its attributes (some of which may also feed a ValueIndex), and
// its outgoing links. Parsing a source format (FASTA, DBGET, XML, ...) into
// this shape is out of this package's scope (spec's ingest Non-goals);
// package ingest only ever consumes the channel of already-parsed Documents.
type Document struct {
	Text       string
	Attributes map[string]string
	Links      map[string][]string
}

// Config declares how a Pipeline tokenizes and indexes incoming Documents.
type Config struct {
	// TextIndex is the full-text index every Document's Text is tokenized
	// into (IndexText or IndexPhrase).
	TextIndex string
	// ValueIndexes lists the direct-value indexes fed from
	// Document.Attributes, evaluated in order.
	ValueIndexes []ValueIndex
	// Workers bounds the number of concurrent processing goroutines
	// (spec's "N processing threads"); Workers <= 0 defaults to 1.
	Workers int
	// BatchSize is the number of documents a worker accumulates in its own
	// staging lexicon before flushing against the shared lexicon and
	// calling Databank.Store (spec's 100-document batch); BatchSize <= 0
	// defaults to 100.
	BatchSize int
	// StopWords, when non-empty, is pre-interned into the databank's shared
	// lexicon at NewPipeline time, establishing a lowest-ids-are-stop-words
	// ceiling every worker gaps its token stream against (spec §4.7's
	// stop-word ceiling rule; relies on the lexicon being empty when the
	// pipeline is constructed, true for a freshly CreateNew-ed databank).
	StopWords []string
}

func (c Config) workers() int {
	if c.Workers <= 0 {
		return 1
	}
	return c.Workers
}

func (c Config) batchSize() int {
	if c.BatchSize <= 0 {
		return 100
	}
	return c.BatchSize
}
