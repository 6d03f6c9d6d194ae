package handlers

// Frame is one whole wire message, channel tag included.
type Frame struct {
	Data []byte

	// Telemetry
	RecvTimestamp int64
}

type CloseCommand struct {
	Reason string
	Error  error
}
