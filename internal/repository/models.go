package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/confmail/mailbatch/internal/domain"
)

// BatchModel is the persistence model for the batches table. Tokens are stored
// as a JSON array in a text column.
type BatchModel struct {
	BatchID     string `gorm:"primaryKey"`
	TemplateKey string `gorm:"type:varchar(255);not null"`
	Tokens      string `gorm:"type:text;not null"`
	CreatedAt   time.Time
}

func (BatchModel) TableName() string {
	return "batches"
}

// RequestModel is the persistence model for the requests table. The open
// payload mapping is stored as a JSON object in a text column; the digest is
// unique across the whole table, not per batch.
type RequestModel struct {
	ID      string    `gorm:"type:uuid;primaryKey"`
	BatchID string    `gorm:"type:varchar(255);not null;index"`
	Digest  string    `gorm:"type:varchar(64);not null;uniqueIndex"`
	Fields  string    `gorm:"type:text;not null"`
	Added   time.Time `gorm:"not null"`
	Sent    bool      `gorm:"not null;default:false"`
}

func (RequestModel) TableName() string {
	return "requests"
}

func batchModelFromDomain(b *domain.Batch) (*BatchModel, error) {
	if b == nil {
		return nil, nil
	}

	tokens := b.Tokens
	if tokens == nil {
		tokens = []string{}
	}
	encoded, err := json.Marshal(tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tokens: %w", err)
	}

	return &BatchModel{
		BatchID:     b.BatchID,
		TemplateKey: b.TemplateKey,
		Tokens:      string(encoded),
		CreatedAt:   b.CreatedAt,
	}, nil
}

func batchModelToDomain(m *BatchModel) (*domain.Batch, error) {
	if m == nil {
		return nil, nil
	}

	var tokens []string
	if err := json.Unmarshal([]byte(m.Tokens), &tokens); err != nil {
		return nil, fmt.Errorf("corrupt tokens for batch %q: %w", m.BatchID, err)
	}

	return &domain.Batch{
		BatchID:     m.BatchID,
		TemplateKey: m.TemplateKey,
		Tokens:      tokens,
		CreatedAt:   m.CreatedAt,
	}, nil
}

func requestModelFromDomain(r *domain.Request) (*RequestModel, error) {
	if r == nil {
		return nil, nil
	}

	encoded, err := json.Marshal(r.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request fields: %w", err)
	}

	return &RequestModel{
		ID:      r.ID,
		BatchID: r.BatchID,
		Digest:  r.Digest,
		Fields:  string(encoded),
		Added:   r.Added,
		Sent:    r.Sent,
	}, nil
}

func requestModelToDomain(m *RequestModel) (*domain.Request, error) {
	if m == nil {
		return nil, nil
	}

	var fields domain.Fields
	if err := json.Unmarshal([]byte(m.Fields), &fields); err != nil {
		return nil, fmt.Errorf("corrupt fields for request %q: %w", m.Digest, err)
	}

	return &domain.Request{
		ID:      m.ID,
		BatchID: m.BatchID,
		Digest:  m.Digest,
		Fields:  fields,
		Added:   m.Added,
		Sent:    m.Sent,
	}, nil
}
