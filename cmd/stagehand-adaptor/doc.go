// Package main hosts the stagehand-adaptor CLI.
//
// The adaptor keeps one Houdini process alive across the tasks of a render
// step. "daemon start" forks a detached session process, waits for it to
// publish its connection file, and returns; run, stop, cancel, and status
// talk to the session over its control socket.
package main
