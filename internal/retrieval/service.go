// Package retrieval builds, loads, and queries the corpus vector index.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/keeperhq/keeper/internal/chunker"
	"github.com/keeperhq/keeper/internal/config"
	"github.com/keeperhq/keeper/internal/embedding"
	"github.com/keeperhq/keeper/internal/models"
	"github.com/keeperhq/keeper/internal/vector"
	"github.com/keeperhq/keeper/pkg/utils"
)

// ErrIndexUnavailable indicates the index could not be loaded even after a
// delete-and-rebuild recovery. Fatal at startup.
var ErrIndexUnavailable = errors.New("vector index unavailable")

// buildLockName is the advisory lock file created beside the index directory
// to serialize first-time builds across processes.
const buildLockName = "rag_build.lock"

// Service owns the corpus vector index: idempotent lock-guarded construction,
// load with one automatic rebuild recovery, and fixed top-K retrieval.
type Service struct {
	cfg      config.RetrievalConfig
	embedder embedding.Embedder
	splitter *chunker.Splitter
	index    *vector.FlatIndex
	logger   *zap.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets a logger for build and retrieval events.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a retrieval service. Call Init before Retrieve.
func NewService(cfg config.RetrievalConfig, embedder embedding.Embedder, opts ...ServiceOption) *Service {
	s := &Service{
		cfg:      cfg,
		embedder: embedder,
		splitter: chunker.NewSplitter(cfg.ChunkSize),
		index:    vector.NewFlatIndex(embedder, cfg.IndexDir),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init builds the index if no persisted artifacts exist, then loads it.
// A load failure deletes the stale artifacts and rebuilds once; a second
// failure is ErrIndexUnavailable.
func (s *Service) Init(ctx context.Context) error {
	if err := s.Build(ctx); err != nil {
		return err
	}
	if err := s.index.Load(s.cfg.IndexName); err != nil {
		s.logger.Warn("index load failed, rebuilding", zap.Error(err))
		if err := s.Rebuild(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
		}
	}
	s.logger.Info("vector index ready",
		zap.String("name", s.cfg.IndexName),
		zap.Int("chunks", s.index.Size()),
	)
	return nil
}

// Build constructs and persists the index unless artifacts already exist.
// The corpus is read and chunked before the cross-process build lock is
// taken, and existence is re-checked under the lock, so concurrent starters
// neither build twice nor hold the lock for a no-op.
func (s *Service) Build(ctx context.Context) error {
	if vector.Exists(s.cfg.IndexDir, s.cfg.IndexName) {
		s.logger.Info("vector index already exists, skipping build")
		return nil
	}

	texts, metas, err := s.prepareChunks()
	if err != nil {
		return err
	}
	s.logger.Info("building vector index", zap.Int("chunks", len(texts)))

	lock := flock.New(filepath.Join(filepath.Dir(s.cfg.IndexDir), buildLockName))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire build lock: %w", err)
	}
	defer lock.Unlock()

	if vector.Exists(s.cfg.IndexDir, s.cfg.IndexName) {
		s.logger.Info("vector index built by another process, skipping")
		return nil
	}

	idx := vector.NewFlatIndex(s.embedder, s.cfg.IndexDir)
	if err := idx.Add(ctx, texts, metas); err != nil {
		return fmt.Errorf("index corpus: %w", err)
	}
	if err := idx.Save(s.cfg.IndexName); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	s.logger.Info("vector index built and saved", zap.String("name", s.cfg.IndexName))
	return nil
}

// Rebuild deletes the persisted artifacts, builds from the corpus, and
// reloads. Used for recovery and when the corpus file changes.
func (s *Service) Rebuild(ctx context.Context) error {
	if err := vector.RemoveArtifacts(s.cfg.IndexDir, s.cfg.IndexName); err != nil {
		return fmt.Errorf("remove stale artifacts: %w", err)
	}
	if err := s.Build(ctx); err != nil {
		return err
	}
	if err := s.index.Load(s.cfg.IndexName); err != nil {
		return fmt.Errorf("reload after rebuild: %w", err)
	}
	return nil
}

// Retrieve returns the text of the top-K most relevant chunks for query.
// Scores and metadata are logged for observability but not returned.
func (s *Service) Retrieve(ctx context.Context, query string) ([]string, error) {
	results, err := s.index.Search(ctx, query, s.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	docs := make([]string, 0, len(results))
	for _, r := range results {
		s.logger.Debug("retrieved chunk",
			zap.Int("chunk_id", r.Metadata.ChunkID),
			zap.Float64("score", r.Score),
			zap.String("preview", utils.Truncate(r.Document, 100)),
		)
		docs = append(docs, r.Document)
	}
	return docs, nil
}

// IndexSize returns the number of chunks in the loaded index.
func (s *Service) IndexSize() int {
	return s.index.Size()
}

func (s *Service) prepareChunks() ([]string, []models.ChunkMeta, error) {
	content, err := os.ReadFile(s.cfg.CorpusPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read corpus: %w", err)
	}
	texts := s.splitter.Split(string(content))
	if len(texts) == 0 {
		return nil, nil, fmt.Errorf("corpus %s contains no paragraphs", s.cfg.CorpusPath)
	}
	metas := make([]models.ChunkMeta, len(texts))
	for i, t := range texts {
		metas[i] = models.ChunkMeta{ChunkID: i, Source: s.cfg.CorpusSource, Length: len(t)}
	}
	return texts, metas, nil
}
