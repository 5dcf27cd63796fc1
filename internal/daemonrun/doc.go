// Package daemonrun builds the runtime graph from configuration and runs
// the daemon process.
//
// NewResolver and NewManager are shared with the one-shot CLI commands so a
// conversion started from the command line goes through exactly the same
// resolver, optimizer, probe and codec backends as one submitted to the
// daemon API.
package daemonrun
