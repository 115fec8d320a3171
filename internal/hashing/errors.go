package hashing

import "errors"

// ErrIO is returned when the path is unreadable.
var ErrIO = errors.New("hashing: path unreadable")

// ErrEmptyFile is returned for zero-byte input.
var ErrEmptyFile = errors.New("hashing: empty file")
