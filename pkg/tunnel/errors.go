package tunnel

import "errors"

// Error taxonomy from §7. Each is a local, non-fatal condition; the
// tunnel core never treats any of these as grounds for process
// termination.
var (
	// ErrMacMismatch means every key (current header key, next header
	// key, every skipped key) failed to authenticate the frame.
	ErrMacMismatch = errors.New("tunnel: crypto mac mismatch")
	// ErrGapExceeded means the peer advertised a message number more
	// than MaxKeyGap past Nr (I3).
	ErrGapExceeded = errors.New("tunnel: crypto gap exceeded")
	// ErrFrameTooShort means the ciphertext is smaller than the
	// mandatory MAC + encrypted-header region.
	ErrFrameTooShort = errors.New("tunnel: frame shorter than header")
	// ErrQueueCancelled is returned by SendQueue.Cancel when the
	// handle no longer refers to a queued (not yet dispatched) entry.
	ErrQueueCancelled = errors.New("tunnel: queue entry already dispatched or unknown")
	// ErrChannelNotFound is returned by ChannelTable.Remove for an
	// unknown channel number.
	ErrChannelNotFound = errors.New("tunnel: channel number not found")
	// ErrTunnelShutdown is returned by operations invoked after the
	// tunnel has entered SHUTDOWN.
	ErrTunnelShutdown = errors.New("tunnel: shutdown")
)
