package version

// Version is the current version of argo-fleet.
// This value is set at build time using ldflags:
// -ldflags "-X github.com/rxtech-lab/argo-fleet/internal/version.Version=1.2.3"
// The default value "main" indicates a development build.
var Version = "main"

// SchemaVersion is the version of the persisted record layout written by this build.
const SchemaVersion = "1.1.0"

// GetVersion returns the current version of the binary.
func GetVersion() string {
	return Version
}
