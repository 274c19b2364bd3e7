package interfaces

// Connection is the registry's view of one live real-time channel.
// ARCHITECTURAL DISCOVERY: The registry only needs to push envelopes and, when it
// prunes, release the handle; everything else about the socket stays in the
// transport layer
type Connection interface {
	// WriteJSON sends a JSON message to the client (thread-safe)
	// FUNCTIONAL DISCOVERY: Thread-safety requirement documented in interface
	// so all implementations serialise writes
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources
	Close() error
}
