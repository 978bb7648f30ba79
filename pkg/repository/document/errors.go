package document

import "errors"

var (
	// ErrInvalidArgument is returned for malformed filters, options, pipelines and index specs.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidRecord is returned when a document fails the collection validator.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrDuplicateID is returned when an inserted document reuses an existing _id.
	ErrDuplicateID = errors.New("duplicate _id")
)
