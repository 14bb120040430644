// Package buildinfo exposes build metadata injected at link time.
package buildinfo

// Commit is the VCS revision set via -ldflags "-X ...buildinfo.Commit=<sha>".
var Commit = "unknown"

// Date is the build timestamp set via -ldflags "-X ...buildinfo.Date=<ts>".
var Date = "unknown"
