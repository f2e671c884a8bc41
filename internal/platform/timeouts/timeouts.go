// Package timeouts defines shared timeout constants used by gateway commands.
//
// Contract calls carry no timeout of their own: a hung ledger call blocks
// the caller until its own context ends.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second

// NodeProbe caps the boot-time reachability check against the ledger node.
const NodeProbe = 10 * time.Second
