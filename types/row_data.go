package types

// RawLogLine is a single decoded line of the decompressed artifact, with surrounding whitespace trimmed
type RawLogLine struct {
	// 1-based line number within the decompressed artifact
	Number int
	Text   string
}

// LogRecord is the unit published to the log store
type LogRecord struct {
	// epoch milliseconds
	Timestamp int64
	Message   string
}
