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
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	m6 "github.com/mhekkel/m6"
	"github.com/mhekkel/m6/docstore"
	"github.com/mhekkel/m6/lexicon"
	"github.com/mhekkel/m6/query"
	"github.com/mhekkel/m6/tokenizer"
)

const metaFileName = "header.meta"
const schemaVersion = "1"

// meta is the JSON-encoded catalog persisted in header.meta (spec §6: "4-byte
// signature, header, UUID, schema version, timestamp, index catalog").
type meta struct {
	UUID       string        `json:"uuid"`
	Version    string        `json:"version"`
	Created    string        `json:"created"`
	LastUpdate string        `json:"last_update"`
	TextIndex  string        `json:"text_index"`
	IDIndex    string        `json:"id_index"`
	Indexes    []IndexSchema `json:"indexes"`
}

// Databank ties together a document store, a shared lexicon, and one or
// more B+ tree indexes under a single directory, plus the in-progress batch
// import state.
type Databank struct {
	dir      string
	writable bool

	meta meta

	docs    *docstore.Store
	lexicon *lexicon.Store
	indexes map[string]*index

	// textIndex is the index name "*" maps to (spec's default full-text
	// search); idIndex is the unique index Linked's bracket syntax
	// resolves a bare term against.
	textIndex string
	idIndex   string

	mu         sync.Mutex // serializes Store during batch import (spec §5's single-writer invariant)
	importing  bool
	linkAccum  []linkedDoc
}

// linkedDoc records one document's outgoing links. Store appends one to
// linkAccum for each document with links, and Open rebuilds the list from
// the document store (spec §6's "link map": we keep it process-resident rather than paging it, since
// it is only ever scanned by LinkedDocuments, never range-queried).
type linkedDoc struct {
	docNr uint32
	links map[string][]string
}

// CreateNew allocates a fresh, empty databank directory (spec's
// M6Databank::CreateNew) declaring textIndex as the index "*" resolves to
// and idIndex as the unique index Linked's `[db/term]` syntax resolves
// against.
func CreateNew(dir string, schemas []IndexSchema, textIndex, idIndex string) (*Databank, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, m6.Wrap("databank.CreateNew", m6.KindIO, err)
	}
	ds, err := docstore.Create(filepath.Join(dir, "docstore.data"))
	if err != nil {
		return nil, err
	}
	db := &Databank{
		dir:       dir,
		writable:  true,
		docs:      ds,
		lexicon:   lexicon.NewStore(),
		indexes:   make(map[string]*index),
		textIndex: textIndex,
		idIndex:   idIndex,
	}
	now := time.Now().UTC().Format(time.RFC3339)
	db.meta = meta{
		UUID:       uuid.NewString(),
		Version:    schemaVersion,
		Created:    now,
		LastUpdate: now,
		TextIndex:  textIndex,
		IDIndex:    idIndex,
		Indexes:    schemas,
	}
	for _, s := range schemas {
		ix, err := createIndex(dir, s)
		if err != nil {
			db.Close()
			return nil, err
		}
		db.indexes[s.Name] = ix
	}
	if err := db.writeMeta(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Open reopens a databank previously built by CreateNew + batch import.
func Open(dir string, writable bool) (*Databank, error) {
	raw, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		return nil, m6.Wrap("databank.Open", m6.KindIO, err)
	}
	var m meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, m6.Wrap("databank.Open", m6.KindCorruption, err)
	}
	ds, err := docstore.Open(filepath.Join(dir, "docstore.data"), writable)
	if err != nil {
		return nil, err
	}
	db := &Databank{
		dir:       dir,
		writable:  writable,
		meta:      m,
		docs:      ds,
		lexicon:   lexicon.NewStore(),
		indexes:   make(map[string]*index),
		textIndex: m.TextIndex,
		idIndex:   m.IDIndex,
	}
	for _, s := range m.Indexes {
		ix, err := openIndex(dir, s, writable)
		if err != nil {
			db.Close()
			return nil, err
		}
		db.indexes[s.Name] = ix
	}
	if err := db.loadLinks(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *Databank) writeMeta() error {
	db.meta.LastUpdate = time.Now().UTC().Format(time.RFC3339)
	raw, err := json.MarshalIndent(db.meta, "", "  ")
	if err != nil {
		return m6.Wrap("databank.writeMeta", m6.KindIO, err)
	}
	if err := os.WriteFile(filepath.Join(db.dir, metaFileName), raw, 0644); err != nil {
		return m6.Wrap("databank.writeMeta", m6.KindIO, err)
	}
	return nil
}

// Close flushes and releases every underlying file.
func (db *Databank) Close() error {
	var err error
	if db.docs != nil {
		if cerr := db.docs.Close(); cerr != nil {
			err = cerr
		}
	}
	for _, ix := range db.indexes {
		if cerr := ix.close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// UUID returns the databank's persistent identifier.
func (db *Databank) UUID() string { return db.meta.UUID }

// Lexicon returns the shared word table ingest workers flush their staging
// lexicons into (spec §4.5's staging-lexicon protocol).
func (db *Databank) Lexicon() *lexicon.Store { return db.lexicon }

// MaxDocNr implements query.Resolver.
func (db *Databank) MaxDocNr() uint32 { return db.docs.MaxDocNr() }

// Fetch retrieves a stored document by doc-nr (spec's Fetch(doc_nr)).
func (db *Databank) Fetch(docNr uint32) (docstore.Document, error) {
	return db.docs.Fetch(docNr)
}

// Exists reports whether value is present in index, and the doc-nr it
// resolves to: the key's doc-nr for a unique index, the first (lowest)
// doc-nr of its postings for a multi-valued index.
func (db *Databank) Exists(indexName, value string) (bool, uint32, error) {
	ix, ok := db.indexes[indexName]
	if !ok {
		return false, 0, m6.New("databank.Exists", m6.KindNotFound, "no such index: "+indexName)
	}
	if ix.schema.Type == IndexUnique {
		key, err := ix.encodeKey(value)
		if err != nil {
			return false, 0, err
		}
		doc, ok, err := ix.unique.Find(key)
		return ok, doc, err
	}
	it, err := ix.find(value)
	if err != nil {
		return false, 0, err
	}
	doc, _, ok := it.Next()
	return ok, doc, nil
}

// DocNrForID resolves the configured id index's unique key to a doc-nr,
// returning 0 if not found.
func (db *Databank) DocNrForID(id string) (uint32, error) {
	_, doc, err := db.Exists(db.idIndex, id)
	return doc, err
}

// FetchBy resolves value against a unique index and fetches the matching
// document in one call (spec §6's fetch_by(db, index, value) -> Document).
func (db *Databank) FetchBy(indexName, value string) (docstore.Document, error) {
	ix, ok := db.indexes[indexName]
	if !ok {
		return docstore.Document{}, m6.New("databank.FetchBy", m6.KindNotFound, "no such index: "+indexName)
	}
	if ix.schema.Type != IndexUnique {
		return docstore.Document{}, m6.New("databank.FetchBy", m6.KindInvariant,
			"FetchBy requires a unique index, got "+ix.schema.Type.String())
	}
	key, err := ix.encodeKey(value)
	if err != nil {
		return docstore.Document{}, err
	}
	doc, ok, err := ix.unique.Find(key)
	if err != nil {
		return docstore.Document{}, err
	}
	if !ok {
		return docstore.Document{}, m6.New("databank.FetchBy", m6.KindNotFound, "no such value: "+value)
	}
	return db.Fetch(doc)
}

// Validate walks every index's B+ tree checking the ascending-key-order
// structural invariant (spec §6's validate(db)).
func (db *Databank) Validate() error {
	for _, ix := range db.indexes {
		if err := ix.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Vacuum rebuilds every index's B+ tree into a freshly packed set of pages
// (spec §6's vacuum(db)). The document store itself is append-only and has
// nothing to compact.
func (db *Databank) Vacuum() error {
	for _, ix := range db.indexes {
		if err := ix.vacuum(); err != nil {
			return err
		}
	}
	return db.writeMeta()
}

// DumpIndex writes one line per key in indexName to w: the key followed by
// its posting count (spec §6's dump_index(db, name)).
func (db *Databank) DumpIndex(indexName string, w io.Writer) error {
	ix, ok := db.indexes[indexName]
	if !ok {
		return m6.New("databank.DumpIndex", m6.KindNotFound, "no such index: "+indexName)
	}
	return ix.dumpKeys(w)
}

// Info reports run-time statistics for every index plus document-store
// totals (spec's info(db) -> DatabankInfo).
func (db *Databank) Info() (DatabankInfo, error) {
	info := DatabankInfo{
		DocCount:   db.docs.MaxDocNr(),
		UUID:       db.meta.UUID,
		Version:    db.meta.Version,
		LastUpdate: db.meta.LastUpdate,
		Directory:  db.dir,
	}
	for name, ix := range db.indexes {
		st, err := os.Stat(filepath.Join(db.dir, name+".index"))
		size := int64(0)
		if err == nil {
			size = st.Size()
		}
		count, err := ix.keyCount()
		if err != nil {
			return DatabankInfo{}, err
		}
		info.Indexes = append(info.Indexes, IndexInfo{
			Name: name, Type: ix.schema.Type, Desc: ix.schema.Desc,
			KeyCount: count, FileSize: size,
		})
		info.TotalSize += size
	}
	return info, nil
}

// Find implements query.Resolver: Index "*" resolves to the declared
// default text index.
func (db *Databank) Find(indexName, value string) (query.Iterator, error) {
	ix, err := db.resolveIndex(indexName)
	if err != nil {
		return nil, err
	}
	return ix.find(value)
}

func (db *Databank) FindPattern(indexName, pattern string) (query.Iterator, error) {
	ix, err := db.resolveIndex(indexName)
	if err != nil {
		return nil, err
	}
	return ix.findPattern(pattern)
}

func (db *Databank) FindRange(indexName string, op query.Op, value string) (query.Iterator, error) {
	ix, err := db.resolveIndex(indexName)
	if err != nil {
		return nil, err
	}
	return ix.findRange(op, value)
}

func (db *Databank) FindBetween(indexName, lo, hi string) (query.Iterator, error) {
	ix, err := db.resolveIndex(indexName)
	if err != nil {
		return nil, err
	}
	return ix.findBetween(lo, hi)
}

// FindString resolves a multi-word phrase query against a phrase-capable
// index, requiring every word's occurrence to be position-adjacent in a
// matching document (spec's find_string / phrase search).
func (db *Databank) FindString(indexName, phrase string) (query.Iterator, error) {
	ix, err := db.resolveIndex(indexName)
	if err != nil {
		return nil, err
	}
	if ix.schema.Type != IndexPhrase {
		return ix.find(phrase)
	}

	words := tokenizeWords(phrase)
	if len(words) == 0 {
		return query.NewVectorIterator(nil), nil
	}
	if len(words) == 1 {
		return ix.find(words[0])
	}

	parts := make([]query.PhrasePart, len(words))
	for i, w := range words {
		it, err := ix.find(w)
		if err != nil {
			return nil, err
		}
		positions, err := ix.positionsByDoc(w)
		if err != nil {
			return nil, err
		}
		parts[i] = query.PhrasePart{Iter: it, Position: i, Positions: positions}
	}
	return query.NewPhraseIterator(parts), nil
}

// Linked implements query.Resolver's bracket-syntax navigation (`[db/id]` or
// `[db/docNr]`) into another currently loaded databank (spec's process-wide
// link map).
func (db *Databank) Linked(otherDB string, docNr uint32, id string) (query.Iterator, error) {
	other, ok := lookupRegistered(otherDB)
	if !ok {
		return nil, m6.New("databank.Linked", m6.KindNotFound, "databank not loaded: "+otherDB)
	}
	if docNr != 0 {
		if docNr > other.MaxDocNr() {
			return query.NewVectorIterator(nil), nil
		}
		return query.NewSingleDocIterator(docNr, 1), nil
	}
	return other.Find(other.idIndex, id)
}

// LinkedDocuments returns every document in db whose link map names
// foreignID under otherDB (spec's linked_documents(other_db, id) -> Iterator;
// the inverse direction from Linked, searching this databank's own
// outgoing links rather than hopping into another databank).
func (db *Databank) LinkedDocuments(otherDB, foreignID string) (query.Iterator, error) {
	var hits []query.Hit
	for _, ld := range db.linkAccum {
		for _, v := range ld.links[otherDB] {
			if v == foreignID {
				hits = append(hits, query.Hit{Doc: ld.docNr, Rank: 1})
				break
			}
		}
	}
	return query.NewVectorIterator(hits), nil
}

func (db *Databank) resolveIndex(name string) (*index, error) {
	// "*" is query.Build's wildcard for Contains/Phrase nodes; "full-text"
	// is what the parser names a bare top-level Pattern node's index
	// (query/parse.go's parseTest) — both mean "the declared default
	// search index".
	if name == "*" || name == "" || name == "full-text" {
		name = db.textIndex
	}
	ix, ok := db.indexes[name]
	if !ok {
		return nil, m6.New("databank.resolveIndex", m6.KindNotFound, "no such index: "+name)
	}
	return ix, nil
}

// FindQuery parses query string s and builds an Iterator against this
// databank (spec's top-level find(query_string, all_terms_required,
// max_results)). Ranking/limiting the returned hits is left to the caller,
// matching query.Iterator's pull model.
func (db *Databank) FindQuery(s string, allTermsRequired bool) (query.Iterator, error) {
	res, err := query.Parse(s, allTermsRequired)
	if err != nil {
		return nil, err
	}
	return query.Build(res.Ast, db)
}

// tokenizeWords folds phrase into its constituent Words, dropping
// punctuation, for FindString's position-adjacency search.
func tokenizeWords(phrase string) []string {
	t := tokenizer.New(phrase)
	var words []string
	for {
		tok := t.Next()
		if tok.Kind == tokenizer.EOF {
			break
		}
		switch tok.Kind {
		case tokenizer.Word:
			words = append(words, tok.Fold)
		case tokenizer.Number, tokenizer.Float:
			words = append(words, tok.Text)
		}
	}
	return words
}

// loadLinks rebuilds the in-memory link accumulator by scanning the
// document store once at Open time (spec's link map is process-resident,
// not itself paged to disk as a separate index).
func (db *Databank) loadLinks() error {
	return db.docs.Iter(func(d docstore.Document) bool {
		if len(d.Links) > 0 {
			db.linkAccum = append(db.linkAccum, linkedDoc{docNr: d.DocNr, links: d.Links})
		}
		return true
	})
}

var registry = struct {
	mu     sync.RWMutex
	byName map[string]*Databank
}{byName: make(map[string]*Databank)}

// Register makes db resolvable by name for other databanks' Linked lookups
// (spec §6's process-wide link map).
func Register(name string, db *Databank) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.byName[name] = db
}

// Unregister removes a previously Register-ed databank.
func Unregister(name string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	delete(registry.byName, name)
}

func lookupRegistered(name string) (*Databank, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	db, ok := registry.byName[name]
	return db, ok
}
