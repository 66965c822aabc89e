package repository

import "errors"

var (
	// ErrMissingID indicates a reference without an image identifier
	ErrMissingID = errors.New("image reference has no id")

	// ErrNoSource indicates a reference with neither URL nor inline data
	ErrNoSource = errors.New("image reference has no source")

	// ErrAmbiguousSource indicates a reference with both URL and inline data
	ErrAmbiguousSource = errors.New("image reference has both url and inline data")

	// ErrUndecodable indicates bytes that could not be decoded as an image
	ErrUndecodable = errors.New("image bytes could not be decoded")
)
