package secrets

import (
	"fmt"
	"strconv"
	"strings"
)

// LatestVersion is the alias resolved to the highest enabled version.
const LatestVersion = "latest"

const versionsSegment = "/versions/"

// VersionedName returns path unchanged when it already names a version and
// otherwise pins it to the latest version.
func VersionedName(path string) string {
	if strings.Contains(path, versionsSegment) {
		return path
	}
	return strings.TrimRight(path, "/") + versionsSegment + LatestVersion
}

// SplitName separates a versioned name into its secret and version parts.
// A name without a version refers to the latest one.
func SplitName(name string) (secret, version string, err error) {
	name = strings.TrimSpace(name)
	i := strings.LastIndex(name, versionsSegment)
	if i < 0 {
		secret, version = strings.TrimRight(name, "/"), LatestVersion
	} else {
		secret, version = name[:i], name[i+len(versionsSegment):]
	}
	if secret == "" || version == "" || strings.Contains(version, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return secret, version, nil
}

// numericVersion parses a concrete version number; "latest" yields 0.
func numericVersion(version string) (int64, error) {
	if version == LatestVersion {
		return 0, nil
	}
	n, err := strconv.ParseInt(version, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: version %q", ErrInvalidName, version)
	}
	return n, nil
}

func versionName(secret string, n int64) string {
	return secret + versionsSegment + strconv.FormatInt(n, 10)
}
