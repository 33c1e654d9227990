package domain

import "errors"

// Sentinel errors for the batch mailing pipeline. Callers classify with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")

	ErrDuplicateBatch   = errors.New("batch already exists")
	ErrBatchNotFound    = errors.New("batch does not exist")
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrMissingField     = errors.New("missing required field")
	ErrTemplateNotFound = errors.New("template does not exist")
	ErrUserAborted      = errors.New("import aborted")
	ErrAttachmentRead   = errors.New("attachment is not readable")

	ErrDeliveryForbidden = errors.New("delivery provider rejected credentials")
	ErrDeliveryFailed    = errors.New("delivery failed")
)
