package ingest

import (
	"context"

	"golang.org/x/sync/errgroup"

	m6 "github.com/mhekkel/m6"
	"github.com/mhekkel/m6/databank"
	"github.com/mhekkel/m6/lexicon"
	"github.com/mhekkel/m6/tokenizer"
)

// Pipeline fans a channel of Documents out to a bounded pool of worker
// goroutines, each tokenizing against its own staging lexicon and flushing
// batches of databank.InputDocument into db.Store (spec §4.9's batch-import
// step, original_source/src/M6Builder.cpp's M6Processor).
type Pipeline struct {
	cfg          Config
	db           *databank.Databank
	lastStopWord uint32
}

// NewPipeline pre-interns cfg.StopWords into db's shared lexicon, fixing the
// stop-word ceiling (spec §4.7) every worker's token stream gets gapped
// against: ids at or below the highest stop-word id are dropped from the
// text index, not by their word but by where they landed in intern order.
// This assumes db's lexicon is still empty, true for a freshly CreateNew-ed
// databank (original_source/src/M6Builder.cpp loads the stop-word list once,
// before processing any document, for exactly this reason).
func NewPipeline(db *databank.Databank, cfg Config) *Pipeline {
	p := &Pipeline{cfg: cfg, db: db}
	for _, w := range cfg.StopWords {
		id := db.Lexicon().Intern(tokenizer.Fold(w))
		if id > p.lastStopWord {
			p.lastStopWord = id
		}
	}
	return p
}

// Run starts StartBatchImport, drains docs across cfg.workers() worker
// goroutines until the channel closes or an error/cancellation occurs, then
// calls EndBatchImport/FinishBatchImport. The first worker error cancels the
// rest (errgroup's first-error-wins, spec §5's "shared error cell; on set,
// all pools are interrupted").
func (p *Pipeline) Run(ctx context.Context, docs <-chan Document) error {
	if err := p.db.StartBatchImport(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.workers(); i++ {
		g.Go(func() error {
			return p.worker(ctx, docs)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := p.db.EndBatchImport(); err != nil {
		return err
	}
	return p.db.FinishBatchImport()
}

// worker drains docs, accumulating up to cfg.batchSize() documents against
// its own staging lexicon before flushing (original_source/src/
// M6Builder.cpp's per-thread staging word list, flushed once per batch
// rather than once per document to keep shared-lexicon lock contention
// bounded).
func (p *Pipeline) worker(ctx context.Context, docs <-chan Document) error {
	staging := lexicon.NewStaging()
	batch := make([]databank.InputDocument, 0, p.cfg.batchSize())
	ids := make([][]uint32, 0, p.cfg.batchSize())

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		remap := staging.FlushInto(p.db.Lexicon())
		for i := range batch {
			tokenIDs := make([]uint32, len(ids[i]))
			for j, id := range ids[i] {
				tokenIDs[j] = remap[id]
			}
			tokenizer.GapStopWords(tokenIDs, p.lastStopWord)
			batch[i].Tokens = []databank.IndexTokens{{IndexName: p.cfg.TextIndex, TokenIDs: tokenIDs}}
			if _, err := p.db.Store(batch[i]); err != nil {
				return err
			}
		}
		staging = lexicon.NewStaging()
		batch = batch[:0]
		ids = ids[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case doc, ok := <-docs:
			if !ok {
				return flush()
			}
			tokenIDs := databank.TokenizeAndIntern(doc.Text, staging)
			values, err := p.values(doc)
			if err != nil {
				return err
			}
			batch = append(batch, databank.InputDocument{
				Text:       doc.Text,
				Attributes: doc.Attributes,
				Links:      doc.Links,
				Values:     values,
			})
			ids = append(ids, tokenIDs)
			if len(batch) >= p.cfg.batchSize() {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
}

// values resolves cfg.ValueIndexes against doc.Attributes into the
// databank.IndexValue list Store expects.
func (p *Pipeline) values(doc Document) ([]databank.IndexValue, error) {
	if len(p.cfg.ValueIndexes) == 0 {
		return nil, nil
	}
	out := make([]databank.IndexValue, 0, len(p.cfg.ValueIndexes))
	for _, vi := range p.cfg.ValueIndexes {
		v, ok := doc.Attributes[vi.Attribute]
		if !ok {
			return nil, m6.New("ingest.values", m6.KindInvariant, "document missing attribute: "+vi.Attribute)
		}
		out = append(out, databank.IndexValue{IndexName: vi.IndexName, Value: v})
	}
	return out, nil
}
