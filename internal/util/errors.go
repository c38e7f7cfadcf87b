package util

import "errors"

var (
	ErrInvalidLimit = errors.New("limit must be a positive integer")
	ErrEmptyAnswer  = errors.New("answer must not be empty")
)
