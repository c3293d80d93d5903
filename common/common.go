// Package common holds shared constants for GCFL components.
package common

// PackageName identifies the project in metrics and logs.
const PackageName = "gcfl"

// Version is the release version, overridden at build time via ldflags.
var Version = "dev"
