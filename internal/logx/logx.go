// Package logx gives every actor a named, prefixed *log.Logger, the way the
// teacher's scattered log.Printf("[whatever] ...") calls do it, but
// centralized so each subsystem doesn't hand-roll its own prefix string.
package logx

import (
	"log"
	"os"
)

// New returns a logger prefixed with the subsystem and, when asset is
// non-empty, the asset symbol — e.g. New("executor", "BTC") logs lines like
// "[executor BTC] 2026/07/31 00:00:00 resting order 42 filled".
func New(subsystem, asset string) *log.Logger {
	prefix := "[" + subsystem
	if asset != "" {
		prefix += " " + asset
	}
	prefix += "] "
	return log.New(os.Stderr, prefix, log.LstdFlags)
}
