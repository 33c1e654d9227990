package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/confmail/mailbatch/internal/domain"
)

func newIngestService(t *testing.T, store *memStore, confirm ConfirmPolicy) *IngestService {
	t.Helper()

	svc, err := NewIngestService(store.batchRepo(), store.requestRepo(), confirm, zap.NewNop())
	if err != nil {
		t.Fatalf("NewIngestService() error = %v", err)
	}
	svc.now = func() time.Time { return time.Date(2020, 10, 1, 9, 0, 0, 0, time.UTC) }
	return svc
}

func storeWithBatch(tokens ...string) *memStore {
	store := newMemStore()
	store.batches["oct"] = domain.Batch{BatchID: "oct", TemplateKey: "d-1", Tokens: tokens}
	return store
}

func validItem(email string) domain.Fields {
	return domain.Fields{
		"from_email": "org@example.org",
		"from_name":  "The Conference",
		"to_email":   email,
		"categories": "conference",
		"name":       "Ada",
		"talk":       "Engines",
	}
}

func TestIngestAddUnknownBatch(t *testing.T) {
	t.Parallel()

	svc := newIngestService(t, newMemStore(), nil)

	err := svc.Add(context.Background(), "ghost", []domain.Fields{validItem("a@example.org")})
	if !errors.Is(err, domain.ErrBatchNotFound) {
		t.Fatalf("Add() error = %v, want ErrBatchNotFound", err)
	}
}

func TestIngestAddPersistsValidItems(t *testing.T) {
	t.Parallel()

	store := storeWithBatch("name", "talk")
	svc := newIngestService(t, store, nil)
	ctx := context.Background()

	items := []domain.Fields{validItem("a@example.org"), validItem("b@example.org")}
	if err := svc.Add(ctx, "oct", items); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	added, sent, err := store.requestRepo().CountByBatch(ctx, "oct")
	if err != nil {
		t.Fatalf("CountByBatch() error = %v", err)
	}
	if added != 2 || sent != 0 {
		t.Fatalf("counts = (%d, %d), want (2, 0)", added, sent)
	}

	for _, request := range store.requests {
		if request.Sent {
			t.Fatal("fresh requests must not be marked sent")
		}
		if request.Digest == "" {
			t.Fatal("requests must carry a digest")
		}
		if request.Added.IsZero() {
			t.Fatal("requests must carry the ingestion time")
		}
	}
}

func TestIngestMissingTokenDeclined(t *testing.T) {
	t.Parallel()

	store := storeWithBatch("name", "talk")
	var gotWarnings []TokenWarning
	decline := func(warnings []TokenWarning) bool {
		gotWarnings = warnings
		return false
	}
	svc := newIngestService(t, store, decline)

	incomplete := validItem("a@example.org")
	delete(incomplete, "talk")
	items := []domain.Fields{incomplete, validItem("b@example.org")}

	err := svc.Add(context.Background(), "oct", items)
	if !errors.Is(err, domain.ErrUserAborted) {
		t.Fatalf("Add() error = %v, want ErrUserAborted", err)
	}

	// On decline, zero requests are persisted.
	if len(store.requests) != 0 {
		t.Fatalf("requests persisted after decline: %d", len(store.requests))
	}

	if len(gotWarnings) != 1 {
		t.Fatalf("warnings = %+v, want one entry", gotWarnings)
	}
	if gotWarnings[0].Token != "talk" || gotWarnings[0].Missing != 1 {
		t.Fatalf("warning = %+v, want {talk 1}", gotWarnings[0])
	}
}

func TestIngestMissingTokenAccepted(t *testing.T) {
	t.Parallel()

	store := storeWithBatch("name", "talk")
	accept := func([]TokenWarning) bool { return true }
	svc := newIngestService(t, store, accept)
	ctx := context.Background()

	incomplete := validItem("a@example.org")
	delete(incomplete, "talk")

	if err := svc.Add(ctx, "oct", []domain.Fields{incomplete, validItem("b@example.org")}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if len(store.requests) != 2 {
		t.Fatalf("persisted = %d, want 2", len(store.requests))
	}
	// The missing field is simply absent from the stored mapping.
	if _, ok := store.requests[0].Fields["talk"]; ok {
		t.Fatal("missing token should stay absent from the stored mapping")
	}
}

func TestIngestNoPolicyDefaultsToDecline(t *testing.T) {
	t.Parallel()

	store := storeWithBatch("name")
	svc := newIngestService(t, store, nil)

	incomplete := domain.Fields{
		"from_email": "org@example.org",
		"from_name":  "The Conference",
		"to_email":   "a@example.org",
		"categories": "conference",
	}

	err := svc.Add(context.Background(), "oct", []domain.Fields{incomplete})
	if !errors.Is(err, domain.ErrUserAborted) {
		t.Fatalf("Add() error = %v, want ErrUserAborted", err)
	}
}

func TestIngestDuplicateContentRejectedAcrossBatches(t *testing.T) {
	t.Parallel()

	store := storeWithBatch("name", "talk")
	store.batches["nov"] = domain.Batch{BatchID: "nov", TemplateKey: "d-2", Tokens: []string{"name", "talk"}}
	svc := newIngestService(t, store, nil)
	ctx := context.Background()

	item := validItem("a@example.org")
	if err := svc.Add(ctx, "oct", []domain.Fields{item}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	err := svc.Add(ctx, "nov", []domain.Fields{item.Clone()})
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("Add() error = %v, want ErrDuplicateRequest", err)
	}
}

func TestIngestMissingSenderFields(t *testing.T) {
	t.Parallel()

	store := storeWithBatch("name", "talk")
	svc := newIngestService(t, store, nil)

	item := validItem("a@example.org")
	delete(item, "from_email")

	err := svc.Add(context.Background(), "oct", []domain.Fields{item})
	if !errors.Is(err, domain.ErrMissingField) {
		t.Fatalf("Add() error = %v, want ErrMissingField", err)
	}
}

func TestIngestAddCSV(t *testing.T) {
	t.Parallel()

	store := storeWithBatch("name", "talk")
	svc := newIngestService(t, store, nil)
	ctx := context.Background()

	csvSource := strings.NewReader(
		"from_email,from_name,to_email,categories,name,talk\n" +
			"org@example.org,The Conference,a@example.org,conference,Ada,Engines\n" +
			"org@example.org,The Conference,b@example.org,conference,Grace,Compilers\n")

	if err := svc.AddCSV(ctx, "oct", csvSource); err != nil {
		t.Fatalf("AddCSV() error = %v", err)
	}

	requests, err := store.requestRepo().ListByBatch(ctx, "oct")
	if err != nil {
		t.Fatalf("ListByBatch() error = %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("persisted = %d, want 2", len(requests))
	}
	// Row order is preserved.
	if requests[0].Fields["name"] != "Ada" || requests[1].Fields["name"] != "Grace" {
		t.Fatalf("row order not preserved: %v, %v", requests[0].Fields, requests[1].Fields)
	}
	if requests[0].Fields["to_email"] != "a@example.org" {
		t.Fatalf("header mapping broken: %v", requests[0].Fields)
	}
}

func TestIngestAddCSVEmptySource(t *testing.T) {
	t.Parallel()

	svc := newIngestService(t, storeWithBatch(), nil)

	err := svc.AddCSV(context.Background(), "oct", strings.NewReader(""))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("AddCSV() error = %v, want ErrValidation", err)
	}
}

func TestIngestAddCSVRaggedRow(t *testing.T) {
	t.Parallel()

	svc := newIngestService(t, storeWithBatch(), nil)

	csvSource := strings.NewReader("to_email,name\na@example.org\n")
	err := svc.AddCSV(context.Background(), "oct", csvSource)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("AddCSV() error = %v, want ErrValidation", err)
	}
}
