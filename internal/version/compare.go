// Package version carries the server version and the compatibility check
// applied to uploading terminal clients.
package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CheckClientCompatibility checks whether an uploading client's version is
// compatible with this server. Returns nil if compatible.
//
// Compatibility rules:
//   - If either version is "main" (development build), the check is skipped
//   - Major versions must match exactly
//   - Minor versions must match exactly
//   - Patch versions can differ (e.g., 1.2.0 is compatible with 1.2.5)
func CheckClientCompatibility(serverVersion, clientVersion string) error {
	serverVersion = strings.TrimPrefix(serverVersion, "v")
	clientVersion = strings.TrimPrefix(clientVersion, "v")

	if serverVersion == "main" || clientVersion == "main" {
		return nil
	}

	serverSemver, err := semver.NewVersion(serverVersion)
	if err != nil {
		return fmt.Errorf("invalid server version '%s': %w", serverVersion, err)
	}

	clientSemver, err := semver.NewVersion(clientVersion)
	if err != nil {
		return fmt.Errorf("invalid client version '%s': %w", clientVersion, err)
	}

	if serverSemver.Major() != clientSemver.Major() {
		return fmt.Errorf(
			"major version mismatch: server %s is not compatible with client %s",
			serverVersion, clientVersion,
		)
	}

	if serverSemver.Minor() != clientSemver.Minor() {
		return fmt.Errorf(
			"minor version mismatch: server %s is not compatible with client %s",
			serverVersion, clientVersion,
		)
	}

	return nil
}
