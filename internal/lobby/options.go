package lobby

import "time"

// Option configures a Lobby at construction time.
type Option func(*Lobby)

// WithMailboxSize sets the per-instance mailbox buffer capacity handed to
// every instance the lobby spawns.
func WithMailboxSize(size int) Option {
	return func(l *Lobby) { l.mailboxSize = size }
}

// WithIdleGrace sets the duration an instance with zero connected players
// is kept alive before auto-terminating. Zero (the default) disables
// auto-termination.
func WithIdleGrace(d time.Duration) Option {
	return func(l *Lobby) { l.idleGrace = d }
}

// WithTombstoneCacheSize bounds how many recently-removed instance ids the
// lobby remembers purely to distinguish "never existed" from "existed, now
// gone" in logs.
func WithTombstoneCacheSize(n int) Option {
	return func(l *Lobby) { l.tombstoneSize = n }
}
