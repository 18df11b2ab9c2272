package databank

import (
	"sort"

	m6 "github.com/mhekkel/m6"
	"github.com/mhekkel/m6/docstore"
	"github.com/mhekkel/m6/lexicon"
	"github.com/mhekkel/m6/tokenizer"
)

// StartBatchImport begins a batch-import session (spec §4.9 step 1):
// resets every index's accumulator. The databank must have been opened
// writable.
func (db *Databank) StartBatchImport() error {
	if !db.writable {
		return m6.New("databank.StartBatchImport", m6.KindInvariant, "databank is read-only")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.importing {
		return m6.New("databank.StartBatchImport", m6.KindInvariant, "batch import already in progress")
	}
	db.importing = true
	for _, ix := range db.indexes {
		ix.startBatch()
	}
	return nil
}

// Store persists one document's body via the document store, then folds
// every declared index contribution into that index's batch accumulator
// (spec §4.9 step 2, grounded on M6Databank::Store / M6Processor::
// ProcessDocument). By the time Store is called, doc.Tokens[i].TokenIDs are
// already shared-lexicon ids: the ingest worker's staging lexicon is
// remapped and flushed before Store ever runs (spec §4.5's staging-lexicon
// protocol, original_source/src/M6Builder.cpp's M6Processor::
// ProcessDocument).
func (db *Databank) Store(doc InputDocument) (uint32, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.importing {
		return 0, m6.New("databank.Store", m6.KindInvariant, "no batch import in progress")
	}

	docNr, err := db.docs.Store(docstore.Document{
		Text:       doc.Text,
		Attributes: doc.Attributes,
		Links:      doc.Links,
	})
	if err != nil {
		return 0, err
	}
	if len(doc.Links) > 0 {
		db.linkAccum = append(db.linkAccum, linkedDoc{docNr: docNr, links: doc.Links})
	}

	for _, v := range doc.Values {
		ix, ok := db.indexes[v.IndexName]
		if !ok {
			return 0, m6.New("databank.Store", m6.KindNotFound, "no such index: "+v.IndexName)
		}
		if ix.schema.Type == IndexUnique {
			if err := ix.storeUnique(v.Value, docNr); err != nil {
				return 0, err
			}
		} else if err := ix.storePosting(v.Value, docNr); err != nil {
			return 0, err
		}
	}

	for _, toks := range doc.Tokens {
		ix, ok := db.indexes[toks.IndexName]
		if !ok {
			return 0, m6.New("databank.Store", m6.KindNotFound, "no such index: "+toks.IndexName)
		}
		switch ix.schema.Type {
		case IndexWeighted:
			// A weighted index wants one posting per distinct word, carrying
			// that word's in-document term frequency as its weight, plus the
			// document's total token count for FindRanked's length norm —
			// unlike IndexText/IndexPhrase, which post once per occurrence.
			counts := make(map[string]uint32)
			var total uint32
			for _, id := range toks.TokenIDs {
				if id == 0 {
					continue // stop-word gap (tokenizer.GapStopWords)
				}
				word := db.lexicon.GetString(id)
				if word == "" {
					continue
				}
				counts[word]++
				total++
			}
			for word, tf := range counts {
				if err := ix.storeWeighted(word, docNr, tf); err != nil {
					return 0, err
				}
			}
			ix.recordLength(docNr, total)
		default:
			for pos, id := range toks.TokenIDs {
				if id == 0 {
					continue // stop-word gap (tokenizer.GapStopWords)
				}
				word := db.lexicon.GetString(id)
				if word == "" {
					continue
				}
				if ix.schema.Type == IndexPhrase {
					if err := ix.storePosition(word, docNr, uint32(pos)); err != nil {
						return 0, err
					}
				} else if err := ix.storePosting(word, docNr); err != nil {
					return 0, err
				}
			}
		}
	}

	return docNr, nil
}

// TokenizeAndIntern scans text with the given mode-default tokenizer and
// interns every non-gap word into staging, returning the staging-local
// token-id stream that, once remapped through staging's FlushInto table,
// goes into an InputDocument's IndexTokens (spec §4.5, §4.7's GapStopWords). Stop-word ids (below lastStopWord in the staging
// lexicon's first-seen order) are left to the caller to gap out once the
// final stop-word boundary is known, mirroring M6InputDocument::Tokenize.
func TokenizeAndIntern(text string, staging *lexicon.Staging) []uint32 {
	t := tokenizer.New(text)
	var ids []uint32
	for {
		tok := t.Next()
		if tok.Kind == tokenizer.EOF {
			break
		}
		if tok.Kind != tokenizer.Word && tok.Kind != tokenizer.Number && tok.Kind != tokenizer.Float {
			continue
		}
		word := tok.Fold
		if word == "" {
			word = tok.Text
		}
		ids = append(ids, staging.Intern(word))
	}
	return ids
}

// EndBatchImport flushes every index's accumulator into its B+ tree in
// ascending key order (spec §4.9 step 6), ends the batch import and
// persists the updated catalog. Call FinishBatchImport afterwards to flush
// the index pages.
func (db *Databank) EndBatchImport() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.importing {
		return m6.New("databank.EndBatchImport", m6.KindInvariant, "no batch import in progress")
	}

	names := make([]string, 0, len(db.indexes))
	for name := range db.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := db.indexes[name].flush(); err != nil {
			return err
		}
	}
	db.importing = false
	return db.writeMeta()
}

// FinishBatchImport flushes every index's dirty pages and the updated
// catalog (spec's finish_batch_import). It runs after EndBatchImport, which
// is the call that ends the import: EndBatchImport moves the accumulators
// into the B+ trees and clears the batch-import state, and running it a
// second time reports that no import is in progress. The document store's own pages are only guaranteed
// durable once Close runs (docstore.Store has no standalone flush), so
// callers that need the import durable without closing should Close and
// reopen.
func (db *Databank) FinishBatchImport() error {
	for _, ix := range db.indexes {
		if err := ix.store.Flush(); err != nil {
			return err
		}
	}
	return db.writeMeta()
}
