package core

import "errors"

// Pipeline error taxonomy. Stages wrap these with fmt.Errorf("...: %w", ...)
// so callers can branch with errors.Is.
var (
	// ErrObjectNotFound: the requested key does not exist in object storage.
	ErrObjectNotFound = errors.New("object not found")

	// ErrStorageUnavailable: object storage rejected or failed the call.
	ErrStorageUnavailable = errors.New("object storage unavailable")

	// ErrExtractionFailed: a supported format could not be parsed
	// (corrupt or truncated file).
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrOCRNotImplemented: image input reached the extractor but no OCR
	// backend is wired. Distinct from "the image contained no text".
	ErrOCRNotImplemented = errors.New("image OCR not implemented")

	// ErrEmbeddingUnavailable: every provider failed and the deterministic
	// fallback is disabled.
	ErrEmbeddingUnavailable = errors.New("no embedding provider available")

	// ErrIndexUnavailable: the vector backing store rejected a read/write.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrRecordNotFound: no vector record with the given id.
	ErrRecordNotFound = errors.New("vector record not found")
)
