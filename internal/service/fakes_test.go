package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/confmail/mailbatch/internal/domain"
	"github.com/confmail/mailbatch/internal/provider"
)

// memStore is an in-memory stand-in for the sqlite store, shared by the batch
// and request repo fakes so service tests can observe cross-collection state.
type memStore struct {
	mu       sync.Mutex
	batches  map[string]domain.Batch
	requests []domain.Request
}

func newMemStore() *memStore {
	return &memStore{batches: make(map[string]domain.Batch)}
}

func (s *memStore) batchRepo() *memBatchRepo     { return &memBatchRepo{store: s} }
func (s *memStore) requestRepo() *memRequestRepo { return &memRequestRepo{store: s} }

type memBatchRepo struct {
	store *memStore
}

func (r *memBatchRepo) Create(_ context.Context, b *domain.Batch) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.batches[b.BatchID]; ok {
		return domain.ErrDuplicateBatch
	}
	r.store.batches[b.BatchID] = *b
	return nil
}

func (r *memBatchRepo) GetByID(_ context.Context, batchID string) (*domain.Batch, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	batch, ok := r.store.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrBatchNotFound, batchID)
	}
	return &batch, nil
}

func (r *memBatchRepo) List(_ context.Context) ([]domain.Batch, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	batches := make([]domain.Batch, 0, len(r.store.batches))
	for _, batch := range r.store.batches {
		batches = append(batches, batch)
	}
	return batches, nil
}

func (r *memBatchRepo) Delete(_ context.Context, batchID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.batches, batchID)
	return nil
}

type memRequestRepo struct {
	store *memStore

	createErr   error
	markSentErr error
}

func (r *memRequestRepo) Create(_ context.Context, req *domain.Request) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.requests {
		if existing.Digest == req.Digest {
			return domain.ErrDuplicateRequest
		}
	}
	clone := *req
	clone.Fields = req.Fields.Clone()
	r.store.requests = append(r.store.requests, clone)
	return nil
}

func (r *memRequestRepo) ExistsByDigest(_ context.Context, digest string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.requests {
		if existing.Digest == digest {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRequestRepo) GetByDigest(_ context.Context, digest string) (*domain.Request, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for i := range r.store.requests {
		if r.store.requests[i].Digest == digest {
			clone := r.store.requests[i]
			clone.Fields = r.store.requests[i].Fields.Clone()
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memRequestRepo) ListByBatch(_ context.Context, batchID string) ([]domain.Request, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var requests []domain.Request
	for _, existing := range r.store.requests {
		if existing.BatchID == batchID {
			clone := existing
			clone.Fields = existing.Fields.Clone()
			requests = append(requests, clone)
		}
	}
	return requests, nil
}

func (r *memRequestRepo) CountByBatch(_ context.Context, batchID string) (int64, int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var added, sent int64
	for _, existing := range r.store.requests {
		if existing.BatchID != batchID {
			continue
		}
		added++
		if existing.Sent {
			sent++
		}
	}
	return added, sent, nil
}

func (r *memRequestRepo) MarkSent(_ context.Context, digest string) error {
	if r.markSentErr != nil {
		return r.markSentErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for i := range r.store.requests {
		if r.store.requests[i].Digest == digest {
			r.store.requests[i].Sent = true
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memRequestRepo) DeleteByBatch(_ context.Context, batchID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	kept := r.store.requests[:0]
	for _, existing := range r.store.requests {
		if existing.BatchID != batchID {
			kept = append(kept, existing)
		}
	}
	r.store.requests = kept
	return nil
}

type fakeMailer struct {
	listTemplatesFn func(ctx context.Context) ([]provider.TemplateInfo, error)
	getTemplateFn   func(ctx context.Context, templateKey string) (*provider.Template, error)
	sendFn          func(ctx context.Context, msg *provider.Message) error

	sent []*provider.Message
}

func (m *fakeMailer) ListTemplates(ctx context.Context) ([]provider.TemplateInfo, error) {
	if m.listTemplatesFn != nil {
		return m.listTemplatesFn(ctx)
	}
	return nil, nil
}

func (m *fakeMailer) GetTemplate(ctx context.Context, templateKey string) (*provider.Template, error) {
	if m.getTemplateFn != nil {
		return m.getTemplateFn(ctx, templateKey)
	}
	return &provider.Template{ID: templateKey}, nil
}

func (m *fakeMailer) Send(ctx context.Context, msg *provider.Message) error {
	if m.sendFn != nil {
		if err := m.sendFn(ctx, msg); err != nil {
			return err
		}
	}
	m.sent = append(m.sent, msg)
	return nil
}
