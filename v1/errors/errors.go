package errors

import "errors"

var (
	// ErrEmptyIngest is reported when a source ends without producing any chunk.
	ErrEmptyIngest = errors.New("ingest produced no data")
	// ErrSourceClosed is returned when writing to a source that already ended or failed.
	ErrSourceClosed = errors.New("source closed")
	// ErrUnsupportedTarget is returned by codecs that cannot decode into the given value.
	ErrUnsupportedTarget = errors.New("unsupported decode target")
	// ErrMissingKey is returned by watch handlers when neither a key nor a prefix was given.
	ErrMissingKey = errors.New("missing key or prefix")
)
