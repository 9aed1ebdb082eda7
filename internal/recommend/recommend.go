// Package recommend serves nearest-neighbor thesis recommendations from
// a loaded snapshot pair.
//
// The service is a small state machine: NotLoaded → Loading → Ready on a
// clean load, or → Failed with the error retained. Failed is terminal;
// recovery is an operator concern (fix the snapshot, restart). After
// Ready the loaded snapshot is never mutated, so concurrent queries need
// no locking beyond the state read.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/andeslab/thesisrec/internal/embedding"
	"github.com/andeslab/thesisrec/internal/index"
	"github.com/andeslab/thesisrec/internal/metadata"
	"github.com/andeslab/thesisrec/internal/storage"
)

// Errors signaled to callers per query.
var (
	// ErrNotReady indicates the service has no usable index. It is an
	// explicit signal, never a silent empty answer.
	ErrNotReady = errors.New("recommendation service is not ready")

	// ErrEmptyQuery indicates the query text was empty after trimming.
	ErrEmptyQuery = errors.New("query text is empty")

	// ErrInvalidK indicates a non-positive k. Oversized k is clamped
	// instead.
	ErrInvalidK = errors.New("k must be a positive integer")
)

// State is the service lifecycle state.
type State int

const (
	StateNotLoaded State = iota
	StateLoading
	StateReady
	StateFailed
)

// String returns the state name as reported in health payloads.
func (s State) String() string {
	switch s {
	case StateNotLoaded:
		return "not_loaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// availabilityProber is implemented by providers that can check their
// backing service, e.g. the Ollama provider.
type availabilityProber interface {
	IsAvailable(ctx context.Context) error
}

// Status is the health report. It is always answerable, whatever state
// the service is in.
type Status struct {
	Ready       bool   `json:"ready"`
	State       string `json:"state"`
	IndexLoaded bool   `json:"index_loaded"`
	IndexCount  int    `json:"index_count"`
	Model       string `json:"model"`
	Device      string `json:"device"`
	Error       string `json:"error,omitempty"`
}

// Recommendation is one scored result with stored metadata joined in.
type Recommendation struct {
	UUID         string  `json:"uuid"`
	Title        string  `json:"title"`
	URL          string  `json:"url,omitempty"`
	Score        float32 `json:"score"`
	University   string  `json:"university,omitempty"`
	ClusterID    *int    `json:"cluster_id,omitempty"`
	Label        string  `json:"label,omitempty"`
	AbstractNorm string  `json:"abstract_norm,omitempty"`
}

// Service answers recommendation queries against a loaded snapshot.
type Service struct {
	provider embedding.Provider
	store    *storage.Store
	modelDir string
	device   string

	mu      sync.RWMutex
	state   State
	loadErr error
	snap    *index.Snapshot
}

// Option configures a Service.
type Option func(*Service)

// WithDevice sets the device string reported in health payloads, e.g.
// the configured provider name.
func WithDevice(device string) Option {
	return func(s *Service) {
		s.device = device
	}
}

// New creates a service in the NotLoaded state. Call Load before
// querying.
func New(provider embedding.Provider, store *storage.Store, modelDir string, opts ...Option) *Service {
	s := &Service{
		provider: provider,
		store:    store,
		modelDir: modelDir,
		device:   "external",
		state:    StateNotLoaded,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load loads and validates the snapshot pair, transitioning to Ready or
// Failed. It runs once per process; repeat calls error without changing
// state.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateNotLoaded {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("load already attempted, state is %s", state)
	}
	s.state = StateLoading
	s.mu.Unlock()

	snap, err := s.load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateFailed
		s.loadErr = err
		return err
	}
	s.state = StateReady
	s.snap = snap
	return nil
}

// load performs the actual snapshot load and validation.
func (s *Service) load(ctx context.Context) (*index.Snapshot, error) {
	snap, err := index.Load(s.modelDir)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	// Querying with a different model than the one that built the index
	// is undefined; refuse to come up rather than serve garbage.
	if err := snap.ValidateModel(s.provider.ModelName()); err != nil {
		return nil, err
	}
	if snap.Dimensions() != s.provider.Dimensions() {
		return nil, fmt.Errorf("%w: snapshot has %d, provider produces %d",
			index.ErrDimensionChange, snap.Dimensions(), s.provider.Dimensions())
	}

	if prober, ok := s.provider.(availabilityProber); ok {
		if err := prober.IsAvailable(ctx); err != nil {
			return nil, fmt.Errorf("embedding provider unavailable: %w", err)
		}
	}

	return snap, nil
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Health reports the current status. It never errors; a Failed service
// reports ready=false with the captured load error.
func (s *Service) Health() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Ready:  s.state == StateReady,
		State:  s.state.String(),
		Model:  s.provider.ModelName(),
		Device: s.device,
	}
	if s.snap != nil {
		st.IndexLoaded = true
		st.IndexCount = s.snap.Count()
	}
	if s.loadErr != nil {
		st.Error = s.loadErr.Error()
	}
	return st
}

// Recommend embeds the query text and returns the k most similar items,
// most-similar-first, enriched from the metadata store. Oversized k is
// clamped to the indexed count.
func (s *Service) Recommend(ctx context.Context, text string, k int, includeAbstract bool) ([]Recommendation, error) {
	s.mu.RLock()
	snap, state := s.snap, s.state
	s.mu.RUnlock()

	if state != StateReady {
		return nil, fmt.Errorf("%w: state is %s", ErrNotReady, state)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}

	query := metadata.NormalizeText(text)
	emb, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits := snap.Search(emb.Vector, k)
	if len(hits) == 0 {
		return []Recommendation{}, nil
	}

	uuids := make([]string, len(hits))
	for i, h := range hits {
		uuids[i] = h.UUID
	}
	enriched, err := s.store.EnrichItems(uuids, snap.ModelName())
	if err != nil {
		return nil, fmt.Errorf("enriching results: %w", err)
	}

	out := make([]Recommendation, 0, len(hits))
	for _, h := range hits {
		rec := Recommendation{UUID: h.UUID, Score: h.Score}
		if it, ok := enriched[h.UUID]; ok {
			rec.Title = it.Title
			rec.URL = it.URL
			rec.University = it.University
			rec.ClusterID = it.ClusterID
			rec.Label = it.Label
			if includeAbstract {
				rec.AbstractNorm = it.AbstractNorm
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetItem returns one item with its cluster enrichment. Unknown uuids
// return storage.ErrItemNotFound.
func (s *Service) GetItem(uuid string) (metadata.Item, error) {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()

	model := s.provider.ModelName()
	if snap != nil {
		model = snap.ModelName()
	}

	enriched, err := s.store.EnrichItems([]string{uuid}, model)
	if err != nil {
		return metadata.Item{}, err
	}
	it, ok := enriched[uuid]
	if !ok {
		return metadata.Item{}, storage.ErrItemNotFound
	}
	return it, nil
}

// RelatedByTopic returns other items from the same topic cluster as the
// given item, newest first. Items without a cluster assignment have no
// topic neighbors; that is an empty answer, not an error.
func (s *Service) RelatedByTopic(uuid string, limit int) ([]metadata.Item, error) {
	if limit <= 0 {
		limit = 10
	}

	it, err := s.GetItem(uuid)
	if err != nil {
		return nil, err
	}
	if it.ClusterID == nil {
		return []metadata.Item{}, nil
	}
	return s.store.SameTopicItems(s.ModelName(), *it.ClusterID, uuid, limit)
}

// ModelName returns the serving model identifier.
func (s *Service) ModelName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap != nil {
		return s.snap.ModelName()
	}
	return s.provider.ModelName()
}
