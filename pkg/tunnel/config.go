package tunnel

import "time"

// Config collects the tunable parameters the tunnel core consumes
// (§6.4). Zero-value fields are replaced with DefaultConfig's values
// by withDefaults, which New applies.
type Config struct {
	// IdleDestroyDelay is how long a tunnel waits with an empty
	// ChannelTable before the idle-destroy timer fires.
	IdleDestroyDelay time.Duration
	// MaxSkippedKeys bounds the SkippedKeyStore (I2).
	MaxSkippedKeys int
	// MaxKeyGap is the reject-threshold for a forward gap (I3).
	MaxKeyGap uint32
	// DesiredConnections is the target size of the ConnectionSet.
	DesiredConnections int
	// MaintenanceInterval paces ConnectionSet.maintenance_tick.
	MaintenanceInterval time.Duration
	// RatchetMessages is the send-count threshold that permits a DH
	// ratchet step once RatchetAllowed is true.
	RatchetMessages uint32
	// RatchetTime is the deadline after which a ratchet step is
	// forced on the next send, independent of RatchetMessages.
	RatchetTime time.Duration
	// ReKXOnGapExceeded, when set, makes a CryptoGapExceeded failure
	// (§7, §9 TODO) also log an info line recommending a fresh KX; the
	// tunnel itself does not start one. Disabled by default.
	ReKXOnGapExceeded bool
	// RekeyInterval is how long the encryption state machine stays in
	// OK before arming a fresh rekey (§4.1, §5 "Rekey timer"). Reset
	// every time the machine (re)enters OK.
	RekeyInterval time.Duration
}

// DefaultConfig returns the tunable defaults named in §6.4.
func DefaultConfig() Config {
	return Config{
		IdleDestroyDelay:    90 * time.Second,
		MaxSkippedKeys:      64,
		MaxKeyGap:           256,
		DesiredConnections:  3,
		MaintenanceInterval: 30 * time.Second,
		RatchetMessages:     100,
		RatchetTime:         10 * time.Minute,
		ReKXOnGapExceeded:   false,
		RekeyInterval:       60 * time.Minute,
	}
}

// withDefaults fills zero-valued fields of c with DefaultConfig's
// values so callers may supply a partial Config.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.IdleDestroyDelay == 0 {
		c.IdleDestroyDelay = d.IdleDestroyDelay
	}
	if c.MaxSkippedKeys == 0 {
		c.MaxSkippedKeys = d.MaxSkippedKeys
	}
	if c.MaxKeyGap == 0 {
		c.MaxKeyGap = d.MaxKeyGap
	}
	if c.DesiredConnections == 0 {
		c.DesiredConnections = d.DesiredConnections
	}
	if c.MaintenanceInterval == 0 {
		c.MaintenanceInterval = d.MaintenanceInterval
	}
	if c.RatchetMessages == 0 {
		c.RatchetMessages = d.RatchetMessages
	}
	if c.RatchetTime == 0 {
		c.RatchetTime = d.RatchetTime
	}
	if c.RekeyInterval == 0 {
		c.RekeyInterval = d.RekeyInterval
	}
	return c
}
