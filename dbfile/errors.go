package dbfile

import "errors"

var (
	// ErrNilDatabase indicates Encode was called without a database.
	ErrNilDatabase = errors.New("dbfile: database is nil")

	// ErrUnsupportedFormat indicates the document format or version is not recognized.
	ErrUnsupportedFormat = errors.New("dbfile: unsupported document format")

	// ErrMalformedDocument indicates the document cannot be decoded.
	ErrMalformedDocument = errors.New("dbfile: malformed document")

	// ErrDecompressedTooLarge indicates a compressed binary expands past MaxBinarySize.
	ErrDecompressedTooLarge = errors.New("dbfile: decompressed binary exceeds maximum size")
)
