package kmerdb

// errors.go collects the sentinel errors returned by the public API.

import (
	"errors"

	"github.com/aalhour/kmerdb/internal/format"
	"github.com/aalhour/kmerdb/internal/kmer"
	"github.com/aalhour/kmerdb/internal/table"
)

var (
	// ErrEmptyInput is returned when encoding an empty sequence.
	ErrEmptyInput = kmer.ErrEmptyInput

	// ErrInvalidAlphabet is returned when a sequence contains a byte other
	// than A, C, G or T.
	ErrInvalidAlphabet = kmer.ErrInvalidAlphabet

	// ErrLengthMismatch is returned when a query's length differs from the
	// database's k-mer length.
	ErrLengthMismatch = table.ErrLengthMismatch

	// ErrFormat is returned when a database file is structurally invalid.
	// ErrCorruption and ErrChecksumMismatch wrap it.
	ErrFormat = format.ErrFormat

	// ErrCorruption is returned when damaged data is found while answering a
	// query: out-of-order or duplicate records, or an undecodable page.
	ErrCorruption = format.ErrCorruption

	// ErrChecksumMismatch is returned when stored data fails its checksum.
	ErrChecksumMismatch = format.ErrChecksumMismatch

	// ErrOpen is returned when the database file cannot be opened or read.
	ErrOpen = errors.New("db: cannot open database")

	// ErrClosed is returned by queries on a closed database.
	ErrClosed = errors.New("db: database is closed")
)
