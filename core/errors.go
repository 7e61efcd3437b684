package core

import "errors"

// Precondition and fatal errors. Precondition errors are returned before any
// edit session is opened; transform errors abort the run and roll back.
var (
	ErrMissingLayer        = errors.New("required layer missing")
	ErrMissingField        = errors.New("required attribute field missing")
	ErrLayerEditing        = errors.New("layer is being edited by another process")
	ErrInvalidScope        = errors.New("invalid or empty scope")
	ErrTransform           = errors.New("coordinate transform failed")
	ErrPrecisionMismatch   = errors.New("vertex sets built with different precision")
	ErrAborted             = errors.New("operation aborted before commit")
	ErrNothingToProcess    = errors.New("no layers selected for processing")
	ErrUnsupportedGeometry = errors.New("unsupported geometry type")
)
