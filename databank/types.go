// Package databank implements the public databank object (spec §4.9, L9):
// the on-disk directory of indexes + document store that batch import fills
// and queries read from, plus the high/low-level find API that backs
// package ingest's writers and the query.Resolver contract package query
// needs to turn an Ast into an Iterator.
//
// Grounded on original_source/src/M6Databank.h for the public surface
// (Store/Fetch/Find/batch-import lifecycle/GetInfo/Validate/DumpIndex) and
// on original_source/src/M6Document.h's M6InputDocument for the input shape
// (IndexTokens for tokenized full-text/phrase indexes, IndexValues for
// direct-value unique/attribute indexes, per-doc links).
package databank

import (
	"fmt"
)

// IndexType is the B+ tree leaf flavor and key comparator an index uses
// (spec §3's index type catalog).
type IndexType int

const (
	// IndexUnique maps a key directly to one doc-nr (M6's unique character
	// index, e.g. the "id" attribute).
	IndexUnique IndexType = iota
	// IndexText maps a case-folded word to an ascending posting list
	// (M6's character multi-index).
	IndexText
	// IndexPhrase is IndexText plus a per-key offset into the companion IDL
	// file holding per-document in-text position lists, enabling phrase
	// search (M6's character multi-index with IDL).
	IndexPhrase
	// IndexWeighted maps a case-folded word to a posting list of (doc-nr,
	// 5-bit weight) pairs, stored by weight descending then doc-nr
	// ascending (M6's weighted character index, spec §4.2), backing
	// FindRanked's BM25-like scoring.
	IndexWeighted
	// IndexNumber maps an integer value, sortable-encoded, to a posting
	// list.
	IndexNumber
	// IndexFloat maps a floating-point value, sortable-encoded, to a
	// posting list.
	IndexFloat
)

func (t IndexType) String() string {
	switch t {
	case IndexUnique:
		return "unique"
	case IndexText:
		return "text"
	case IndexPhrase:
		return "phrase"
	case IndexWeighted:
		return "weighted"
	case IndexNumber:
		return "number"
	case IndexFloat:
		return "float"
	default:
		return "unknown"
	}
}

// IndexSchema declares one index by name, used both at CreateNew time and
// as the catalog persisted in header.meta.
type IndexSchema struct {
	Name string
	Type IndexType
	Desc string
}

// IndexInfo reports one index's run-time statistics for Info/DatabankInfo
// (spec §6's "per-index name/type/key-count/file-size").
type IndexInfo struct {
	Name     string
	Type     IndexType
	Desc     string
	KeyCount uint32
	FileSize int64
}

// DatabankInfo is the result of Info (spec §6's info(db) -> DatabankInfo).
type DatabankInfo struct {
	DocCount      uint32
	RawTextSize   int64
	DataStoreSize int64
	TotalSize     int64
	UUID          string
	Version       string
	LastUpdate    string
	Directory     string
	Indexes       []IndexInfo
}

// String renders a human-readable summary, the shape a CLI's "info"
// subcommand would print (byte counts via go-humanize, spec's [ADD]
// dependency for DatabankInfo formatting).
func (i DatabankInfo) String() string {
	return fmt.Sprintf("%s (%s): %d documents, %s raw text, %s store, %s total",
		i.UUID, i.Version, i.DocCount, humanBytes(i.RawTextSize), humanBytes(i.DataStoreSize), humanBytes(i.TotalSize))
}

// IndexTokens is one tokenized full-text or phrase index's token stream for
// one input document: TokenIDs are shared-lexicon word ids (already
// remapped by the ingest worker per spec §4.5's staging-lexicon protocol),
// slice position is the in-document token position, and a 0 entry is a
// stop-word gap (spec §4.7's GapStopWords) that preserves position
// alignment without contributing a posting.
type IndexTokens struct {
	IndexName string
	TokenIDs  []uint32
}

// IndexValue is one direct (non-tokenized) index entry for one input
// document: an attribute-like value indexed verbatim rather than word by
// word (M6's M6InputDocument::Index(name, type, unique, value) overload).
type IndexValue struct {
	IndexName string
	Value     string
}

// InputDocument is what a batch-import worker hands to Store: the document
// body plus every index's contribution, already tokenized and (for
// full-text indexes) remapped into shared-lexicon ids.
type InputDocument struct {
	Text       string
	Attributes map[string]string
	Links      map[string][]string
	Tokens     []IndexTokens
	Values     []IndexValue
}
