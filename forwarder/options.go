package forwarder

import "github.com/turbot/tailpipe-elb-log-forwarder/artifact_mapper"

type ForwarderOption func(*Forwarder)

func WithMaxLineSize(maxLineSize int) ForwarderOption {
	return func(f *Forwarder) {
		f.maxLineSize = maxLineSize
	}
}

// WithSkipMalformedLines makes lines without a valid timestamp a warning rather than a fatal error
func WithSkipMalformedLines(skip bool) ForwarderOption {
	return func(f *Forwarder) {
		f.skipMalformedLines = skip
	}
}

func WithMapper(mapper artifact_mapper.Mapper) ForwarderOption {
	return func(f *Forwarder) {
		f.mapper = mapper
	}
}
