// Package pipeline wires chunking, embedding, the vector store and the LLM
// into the ingestion and question answering flows.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ragbridge/app/agent"
	"ragbridge/chunker"
	"ragbridge/config"
	"ragbridge/model"
	"ragbridge/store"
	"ragbridge/types"
)

type Settings struct {
	Dimension       int
	Distance        types.Distance
	BatchSize       int
	Concurrency     int
	SearchTopK      int
	AnswerTopK      int
	MaxContextChars int
	Preamble        string
}

func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		Dimension:       cfg.Embedding.Dimension,
		Distance:        cfg.Store.Distance,
		BatchSize:       cfg.Store.BatchSize,
		Concurrency:     cfg.Embedding.Concurrency,
		SearchTopK:      cfg.Retrieval.SearchTopK,
		AnswerTopK:      cfg.Retrieval.AnswerTopK,
		MaxContextChars: cfg.Retrieval.MaxContextChars,
		Preamble:        cfg.LLM.Preamble,
	}
}

type Pipeline struct {
	settings  Settings
	chunker   *chunker.Chunker
	embedder  model.EmbedderInterface
	generator model.Generator
	store     store.VectorStorer
	log       *slog.Logger
}

func New(s Settings, ch *chunker.Chunker, emb model.EmbedderInterface, gen model.Generator, st store.VectorStorer) *Pipeline {
	if s.BatchSize <= 0 {
		s.BatchSize = 64
	}
	if s.Concurrency <= 0 {
		s.Concurrency = 1
	}
	if s.Distance == "" {
		s.Distance = types.DistanceCosine
	}
	return &Pipeline{
		settings:  s,
		chunker:   ch,
		embedder:  emb,
		generator: gen,
		store:     st,
		log:       slog.Default().With("component", "pipeline"),
	}
}

type ingestOptions struct {
	progress func(done, total int)
}

type IngestOption func(*ingestOptions)

// WithProgress is called after every embedded chunk. It may be called from
// several goroutines but never concurrently.
func WithProgress(fn func(done, total int)) IngestOption {
	return func(o *ingestOptions) { o.progress = fn }
}

// Preview chunks documents without touching any provider.
func (p *Pipeline) Preview(docs []types.Document) ([]types.Chunk, error) {
	return p.chunker.ChunkDocuments(docs)
}

// IngestDocuments chunks docs and stores every chunk in collection. The
// result is always non-nil; on failure it carries the message and the chunk
// position that stopped the run, and the error is returned as well.
func (p *Pipeline) IngestDocuments(ctx context.Context, collection string, docs []types.Document, opts ...IngestOption) (*types.IngestResult, error) {
	res := newResult(collection)
	if strings.TrimSpace(collection) == "" {
		return fail(res, types.NewConfigError(types.ErrEmptyCollection))
	}

	chunks, err := p.chunker.ChunkDocuments(docs)
	if err != nil {
		return fail(res, err)
	}
	if len(chunks) == 0 {
		return fail(res, types.NewConfigError(types.ErrNoContent))
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return p.ingest(ctx, res, texts, opts)
}

// IngestEntries stores each entry as one chunk, without splitting.
func (p *Pipeline) IngestEntries(ctx context.Context, collection string, entries []string, opts ...IngestOption) (*types.IngestResult, error) {
	res := newResult(collection)
	if strings.TrimSpace(collection) == "" {
		return fail(res, types.NewConfigError(types.ErrEmptyCollection))
	}
	if len(entries) == 0 {
		return fail(res, types.NewConfigError(types.ErrNoContent))
	}
	for i, e := range entries {
		if strings.TrimSpace(e) == "" {
			res.FailedIndex = i
			return fail(res, types.NewConfigError(fmt.Errorf("entry %d: %w", i, types.ErrEmptyInput)))
		}
	}
	return p.ingest(ctx, res, entries, opts)
}

func newResult(collection string) *types.IngestResult {
	return &types.IngestResult{ID: uuid.New(), Collection: collection, FailedIndex: -1}
}

func fail(res *types.IngestResult, err error) (*types.IngestResult, error) {
	res.Success = false
	res.Message = err.Error()
	var ie *types.IngestError
	if errors.As(err, &ie) && ie.Index >= 0 {
		res.FailedIndex = ie.Index
	}
	return res, err
}

// ingest embeds every text before the first upsert, so an embedding failure
// leaves the collection without any entry of this run.
func (p *Pipeline) ingest(ctx context.Context, res *types.IngestResult, texts []string, opts []IngestOption) (*types.IngestResult, error) {
	var o ingestOptions
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	defer func() { res.Took = time.Since(start) }()
	res.Chunks = len(texts)
	log := p.log.With("ingest_id", res.ID, "collection", res.Collection, "chunks", len(texts))
	log.Info("ingestion started")

	if err := p.ensureCollection(ctx, res.Collection); err != nil {
		log.Error("collection check failed", "err", err)
		return fail(res, &types.IngestError{Stage: "collection", Index: -1, Err: err})
	}

	vectors, err := p.embedAll(ctx, texts, o.progress)
	for _, v := range vectors {
		if v != nil {
			res.Embedded++
		}
	}
	if err != nil {
		log.Error("embedding failed", "err", err, "embedded", res.Embedded)
		return fail(res, err)
	}

	for from := 0; from < len(texts); from += p.settings.BatchSize {
		to := min(from+p.settings.BatchSize, len(texts))
		if err := ctx.Err(); err != nil {
			return fail(res, &types.IngestError{Stage: "upload", Index: from, Err: err})
		}

		batch := make([]types.CollectionEntry, 0, to-from)
		for i := from; i < to; i++ {
			batch = append(batch, types.CollectionEntry{ID: int64(i), Vector: vectors[i], Name: texts[i]})
		}
		if err := p.store.Upsert(ctx, res.Collection, batch); err != nil {
			log.Error("upload failed", "err", err, "from", from, "uploaded", res.Uploaded)
			return fail(res, &types.IngestError{Stage: "upload", Index: from, Err: err})
		}
		res.Uploaded += len(batch)
	}

	res.Success = true
	res.Message = fmt.Sprintf("%d chunks stored in %s", res.Uploaded, res.Collection)
	log.Info("ingestion finished", "uploaded", res.Uploaded, "took", time.Since(start))
	return res, nil
}

func (p *Pipeline) ensureCollection(ctx context.Context, collection string) error {
	ok, err := p.store.Exists(ctx, collection)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	p.log.Info("creating collection", "collection", collection, "dimension", p.settings.Dimension, "distance", p.settings.Distance)
	return p.store.Create(ctx, collection, p.settings.Dimension, p.settings.Distance)
}

func (p *Pipeline) embedAll(ctx context.Context, texts []string, progress func(done, total int)) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	var (
		mu   sync.Mutex
		done int
	)
	report := func() {
		if progress == nil {
			return
		}
		mu.Lock()
		done++
		progress(done, len(texts))
		mu.Unlock()
	}

	if p.settings.Concurrency <= 1 {
		for i, text := range texts {
			if err := ctx.Err(); err != nil {
				return vectors, &types.IngestError{Stage: "embed", Index: i, Err: err}
			}
			vec, err := p.embedder.Embed(ctx, text)
			if err != nil {
				return vectors, &types.IngestError{Stage: "embed", Index: i, Err: err}
			}
			vectors[i] = vec
			report()
		}
		return vectors, nil
	}

	errs := make([]error, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.settings.Concurrency)
	for i, text := range texts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return err
			}
			vec, err := p.embedder.Embed(gctx, text)
			if err != nil {
				errs[i] = err
				return err
			}
			vectors[i] = vec
			report()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		i := firstFailure(errs)
		return vectors, &types.IngestError{Stage: "embed", Index: i, Err: errs[i]}
	}
	return vectors, nil
}

// firstFailure prefers the lowest index that failed on its own over chunks
// that were only cancelled because of it.
func firstFailure(errs []error) int {
	first := -1
	for i, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, context.Canceled) {
			return i
		}
		if first < 0 {
			first = i
		}
	}
	return first
}

// Search embeds text and returns the topK nearest chunks. topK <= 0 uses the
// configured default.
func (p *Pipeline) Search(ctx context.Context, collection, text string, topK int) ([]types.SearchMatch, error) {
	if strings.TrimSpace(collection) == "" {
		return nil, types.NewConfigError(types.ErrEmptyCollection)
	}
	if topK <= 0 {
		topK = p.settings.SearchTopK
	}
	vec, err := p.Embedding(ctx, text)
	if err != nil {
		return nil, err
	}
	return p.store.Query(ctx, collection, vec, topK)
}

// Answer retrieves context for question and asks the LLM. An empty
// collection still produces a prompt, with an empty context.
func (p *Pipeline) Answer(ctx context.Context, collection, question string) (*types.Answer, error) {
	start := time.Now()
	matches, err := p.Search(ctx, collection, question, p.settings.AnswerTopK)
	if err != nil {
		return nil, err
	}

	contextText := agent.ComposeContext(matches, p.settings.MaxContextChars)
	prompt := agent.BuildPrompt(p.settings.Preamble, contextText, question)
	if n, err := agent.CountTokens(prompt); err == nil {
		p.log.Debug("prompt built", "collection", collection, "matches", len(matches), "tokens", n, "chars", len(prompt))
	}

	answer, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	p.log.Info("answer generated", "collection", collection, "matches", len(matches), "took", time.Since(start))

	if matches == nil {
		matches = []types.SearchMatch{}
	}
	return &types.Answer{Answer: answer, Sources: matches, Timestamp: time.Now()}, nil
}

// Embedding returns the raw vector for text.
func (p *Pipeline) Embedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, types.NewConfigError(types.ErrEmptyInput)
	}
	return p.embedder.Embed(ctx, text)
}

// Chat forwards prompt to the LLM as is.
func (p *Pipeline) Chat(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", types.NewConfigError(types.ErrEmptyInput)
	}
	return p.generator.Generate(ctx, prompt)
}
