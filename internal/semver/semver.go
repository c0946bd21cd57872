// Package semver wraps Masterminds/semver/v3 into the two version types the
// core data model needs: SemanticVersion (component/schema versions) and the
// compatibility rules spec.md §3 defines over them.
package semver

import (
	"fmt"

	mmsemver "github.com/Masterminds/semver/v3"
)

// Version is a parsed, comparable semantic version.
type Version struct {
	v *mmsemver.Version
}

// New builds a Version from major/minor/patch components.
func New(major, minor, patch uint64) Version {
	v, err := mmsemver.NewVersion(fmt.Sprintf("%d.%d.%d", major, minor, patch))
	if err != nil {
		// major/minor/patch are always valid inputs to this format string.
		panic(err)
	}
	return Version{v: v}
}

// Parse parses a version string such as "1.2.3" or "1.2.3-beta.1".
func Parse(s string) (Version, error) {
	v, err := mmsemver.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("semver: parse %q: %w", s, err)
	}
	return Version{v: v}, nil
}

// Major returns the major version component.
func (v Version) Major() uint64 { return v.v.Major() }

// Minor returns the minor version component.
func (v Version) Minor() uint64 { return v.v.Minor() }

// Patch returns the patch version component.
func (v Version) Patch() uint64 { return v.v.Patch() }

// String renders the version in "major.minor.patch" form.
func (v Version) String() string {
	if v.v == nil {
		return "0.0.0"
	}
	return v.v.String()
}

// IsZero reports whether this is the unset (major.minor.patch == 0) value.
func (v Version) IsZero() bool {
	return v.v == nil || (v.Major() == 0 && v.Minor() == 0 && v.Patch() == 0)
}

// Compare returns -1, 0, or 1 comparing v to other.
func (v Version) Compare(other Version) int {
	return v.v.Compare(other.v)
}

// GreaterThan reports whether v is strictly greater than other.
func (v Version) GreaterThan(other Version) bool {
	return v.Compare(other) > 0
}

// LessThan reports whether v is strictly less than other.
func (v Version) LessThan(other Version) bool {
	return v.Compare(other) < 0
}

// Equal reports whether v and other denote the same version.
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

// IsCompatibleWith implements spec.md §3/§8's compatibility rule: two
// versions are compatible iff their major numbers are equal. It is
// reflexive but not necessarily symmetric in spirit (a 1.2.0 consumer is
// compatible with a 1.0.0 producer and vice versa here, since the rule is
// defined purely on major-version equality); callers that need asymmetric
// "can read" semantics should compare against IsMigrationCandidateFrom instead.
func (v Version) IsCompatibleWith(other Version) bool {
	return v.Major() == other.Major()
}

// IsMigrationCandidateFrom reports whether v is strictly greater than from,
// i.e. v is a valid migration target starting from the from version.
func (v Version) IsMigrationCandidateFrom(from Version) bool {
	return v.GreaterThan(from)
}

// IsBreakingChangeFrom reports whether moving from `from` to `v` crosses a
// major-version boundary, which is the only boundary spec.md §4.2 allows
// breaking field changes (type change on required field, required field
// removal without default) to occur across.
func (v Version) IsBreakingChangeFrom(from Version) bool {
	return v.Major() != from.Major()
}

// MarshalJSON renders the version as a JSON string.
func (v Version) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", v.String())), nil
}

// UnmarshalJSON parses a JSON string into a Version.
func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		s = string(data[1 : len(data)-1])
	} else {
		s = string(data)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
