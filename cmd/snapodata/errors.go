package main

import "errors"

// Sentinel errors for command operations
var (
	ErrQueryFileNotFound = errors.New("query file not found")
	ErrInvalidQueryFile  = errors.New("invalid query file")
	ErrUnknownResource   = errors.New("unknown resource")
	ErrMetadataRequired  = errors.New("metadata document is required")
	ErrInvalidFormat     = errors.New("invalid output format")
)
