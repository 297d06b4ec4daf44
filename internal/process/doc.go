// Package process runs external commands.
//
// Process supervises one long-running subprocess:
//   - stdout and stderr are delivered line by line to a LineHandler
//   - cancellation sends SIGINT to the process group, then SIGKILL after a timeout
//   - the caller decides whether and when to start it again
//
// Output runs a short command to completion under a context, used for
// now-playing probes and device reconfiguration commands.
//
// Commands are plain strings split by ParseCommand; no shell is involved
// unless the command invokes one explicitly.
package process
