package ir

// Compiler identity recorded in the metadata trailer.
const (
	// CompilerName is the name key of the compiler identity map.
	CompilerName = "kiln"

	// Version is the compiler version.
	Version = "0.1.0"
)

// VersionTriple is Version as [major, minor, patch].
var VersionTriple = [3]uint64{0, 1, 0}
