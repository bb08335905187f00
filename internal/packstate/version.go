package packstate

import (
	"strconv"
	"strings"
)

// Release versions are compared on MAJOR.MINOR only: "1.5", "v1.5" and
// "1.5.2" are the same release line.

// NormalizeVersion returns "vMAJOR.MINOR" for s, or false if s does not start
// with two numeric dot-separated tokens.
func NormalizeVersion(s string) (string, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "v"), "V")

	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return "", false
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return "", false
	}
	minor, err := strconv.Atoi(leadingDigits(parts[1]))
	if err != nil || minor < 0 {
		return "", false
	}

	return "v" + strconv.Itoa(major) + "." + strconv.Itoa(minor), true
}

// leadingDigits keeps "2" from "2-beta" so prerelease suffixes do not make a
// version malformed.
func leadingDigits(s string) string {
	for i, r := range s {
		if r < '0' || r > '9' {
			return s[:i]
		}
	}
	return s
}

// NeedsUpdate reports whether the release tag differs from the installed
// version. A malformed or empty version on either side always needs an update.
func NeedsUpdate(installed, releaseTag string) bool {
	a, ok := NormalizeVersion(installed)
	if !ok {
		return true
	}
	b, ok := NormalizeVersion(releaseTag)
	if !ok {
		return true
	}
	return a != b
}

// VersionFromFolder guesses the installed version from a pack folder name
// such as "The Pack 1.4", taking the last space-separated token.
func VersionFromFolder(dir string) string {
	fields := strings.Fields(lastElem(dir))
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func lastElem(p string) string {
	p = strings.TrimRight(strings.ReplaceAll(p, `\`, "/"), "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
