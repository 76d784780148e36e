// Package main hosts the stagehand CLI entrypoint and command graph.
//
// The Cobra-based command tree covers scene bundling and submission, asset
// inspection, queue parameter sync, submission history, plugin installation,
// and dependency packaging. It centralizes configuration resolution and
// logging setup so subcommands can focus on user experience instead of
// wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
