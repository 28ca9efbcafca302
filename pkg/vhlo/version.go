// Package vhlo implements the versioned vocabulary: a serialization-stable
// mirror of the hlo operation set in which every op carries an explicit
// revision, plus the compatibility model that migrates programs between
// format versions.
package vhlo

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/mod/semver"
)

// Version identifies one release of the versioned vocabulary.
type Version struct {
	Major, Minor, Patch int
}

// CurrentToken is accepted wherever a version string is expected and means
// the newest version the engine knows about.
const CurrentToken = "current"

// Current is the newest version of the vocabulary this engine was built
// against. It is >= every other version the registry knows.
var Current = Version{1, 3, 0}

// MinimumSupported is the oldest version programs can be migrated to or from.
var MinimumSupported = Version{0, 9, 0}

// String returns the "MAJOR.MINOR.PATCH" form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// canonical returns the semver form used for comparisons.
func (v Version) canonical() string {
	return "v" + v.String()
}

// Compare returns -1, 0 or +1 as v is older than, equal to or newer than
// other.
func (v Version) Compare(other Version) int {
	return semver.Compare(v.canonical(), other.canonical())
}

// Less returns whether v is strictly older than other.
func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

// Equal returns whether both versions are the same release.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// ParseVersion parses a "MAJOR.MINOR.PATCH" string, or the token "current"
// which resolves to Current.
func ParseVersion(text string) (Version, error) {
	if text == CurrentToken {
		return Current, nil
	}
	if !semver.IsValid("v" + text) {
		return Version{}, errors.Errorf("invalid version %q: want MAJOR.MINOR.PATCH or %q", text, CurrentToken)
	}
	var v Version
	if _, err := fmt.Sscanf(text, "%d.%d.%d", &v.Major, &v.Minor, &v.Patch); err != nil {
		return Version{}, errors.Wrapf(err, "invalid version %q: want MAJOR.MINOR.PATCH or %q", text, CurrentToken)
	}
	return v, nil
}
