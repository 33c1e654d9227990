package domain

import (
	"fmt"
	"strings"
	"time"
)

// Batch groups recipient requests that share one template and token contract.
// Tokens are a snapshot taken when the batch is created; they do not refresh
// if the remote template changes later.
type Batch struct {
	BatchID     string
	TemplateKey string
	Tokens      []string
	CreatedAt   time.Time
}

func (b *Batch) Validate() error {
	if strings.TrimSpace(b.BatchID) == "" {
		return fmt.Errorf("%w: batch id is required", ErrValidation)
	}
	if strings.TrimSpace(b.TemplateKey) == "" {
		return fmt.Errorf("%w: template key is required", ErrValidation)
	}
	return nil
}

// BatchSummary is one row of the batch listing: ingestion and delivery counts
// next to the token contract.
type BatchSummary struct {
	BatchID string
	Added   int64
	Sent    int64
	Tokens  []string
}
