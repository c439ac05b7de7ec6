package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

// CheckSchemaCompatibility checks whether records stored at storedVersion can be read by a
// binary that writes binaryVersion.
// Returns nil if compatible, an ErrCodeSchemaVersion error with details if not.
//
// Compatibility Rules:
//   - Major versions must match exactly
//   - A stored minor version newer than the binary's is refused (unknown columns)
//   - An older stored minor or any patch difference is accepted; the store migrates forward
//
// Examples:
//   - Binary 1.1.0, Stored 1.1.0 -> OK (exact match)
//   - Binary 1.1.0, Stored 1.0.3 -> OK (older minor)
//   - Binary 1.1.0, Stored 1.2.0 -> ERROR (stored is newer)
//   - Binary 2.0.0, Stored 1.1.0 -> ERROR (major differs)
func CheckSchemaCompatibility(binaryVersion, storedVersion string) error {
	binarySemver, err := parse(binaryVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeSchemaVersion, err, "invalid binary schema version '%s'", binaryVersion)
	}

	storedSemver, err := parse(storedVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeSchemaVersion, err, "invalid stored schema version '%s'", storedVersion)
	}

	if binarySemver.Major() != storedSemver.Major() {
		return errors.Newf(errors.ErrCodeSchemaVersion,
			"major version mismatch: binary writes %d.x.x but store holds %d.x.x",
			binarySemver.Major(), storedSemver.Major())
	}

	if storedSemver.Minor() > binarySemver.Minor() {
		return errors.Newf(errors.ErrCodeSchemaVersion,
			"store schema %d.%d.x is newer than binary schema %d.%d.x",
			storedSemver.Major(), storedSemver.Minor(),
			binarySemver.Major(), binarySemver.Minor())
	}

	return nil
}

// NeedsMigration reports whether stored is older than binary.
func NeedsMigration(binaryVersion, storedVersion string) bool {
	binarySemver, err := parse(binaryVersion)
	if err != nil {
		return false
	}

	storedSemver, err := parse(storedVersion)
	if err != nil {
		return false
	}

	return storedSemver.LessThan(binarySemver)
}

func parse(v string) (*semver.Version, error) {
	return semver.NewVersion(strings.TrimPrefix(strings.TrimSpace(v), "v"))
}
