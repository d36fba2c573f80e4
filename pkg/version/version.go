// Package version implements semantic version values and constraint
// matching for rpg packages, on top of Masterminds/semver.
package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/gitrustux/rustica/pkg/rpgerrors"
)

// Version is a totally ordered semantic version: (major, minor, patch)
// plus optional pre-release and build metadata. Pre-release versions sort
// below a release of the same (major, minor, patch).
type Version struct {
	v *semver.Version
}

// Parse parses a version string, failing with InvalidVersion on malformed
// input.
func Parse(s string) (Version, error) {
	v, err := semver.NewVersion(s)
	if err != nil {
		return Version{}, rpgerrors.Wrap(rpgerrors.InvalidVersion, err, "invalid version %q", s)
	}
	return Version{v: v}, nil
}

// MustParse is Parse but panics on error; intended for tests and literals.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// New constructs a release Version directly from its numeric components.
func New(major, minor, patch uint64) Version {
	v := semver.New(major, minor, patch, "", "")
	return Version{v: v}
}

func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

func (v Version) Major() uint64 { return v.v.Major() }
func (v Version) Minor() uint64 { return v.v.Minor() }
func (v Version) Patch() uint64 { return v.v.Patch() }
func (v Version) Prerelease() string { return v.v.Prerelease() }
func (v Version) Metadata() string   { return v.v.Metadata() }

// IsZero reports whether this is the unparsed zero value.
func (v Version) IsZero() bool { return v.v == nil }

// Compare returns -1, 0, or 1 per the semantic-version ordering rule.
func (v Version) Compare(o Version) int {
	return v.v.Compare(o.v)
}

func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }
func (v Version) Less(o Version) bool  { return v.Compare(o) < 0 }
func (v Version) Greater(o Version) bool { return v.Compare(o) > 0 }

// NextMajor returns the next major release with pre-release and build
// metadata cleared, e.g. 1.2.3-rc1 -> 2.0.0.
func (v Version) NextMajor() Version {
	nv := semver.New(v.v.Major()+1, 0, 0, "", "")
	return Version{v: nv}
}

// NextMinor returns the next minor release, pre-release cleared.
func (v Version) NextMinor() Version {
	nv := semver.New(v.v.Major(), v.v.Minor()+1, 0, "", "")
	return Version{v: nv}
}

// NextPatch returns the next patch release, pre-release cleared.
func (v Version) NextPatch() Version {
	nv := semver.New(v.v.Major(), v.v.Minor(), v.v.Patch()+1, "", "")
	return Version{v: nv}
}

// MarshalJSON/UnmarshalJSON make Version usable directly in manifest and
// registry structs.
func (v Version) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

func (v *Version) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Constraint is a textual version requirement that either matches or does
// not match a Version.
type Constraint struct {
	raw string
	c   *semver.Constraints
}

// ParseConstraint parses a requirement string using the usual operators
// (=, >=, <=, >, <, ^, ~, and comma-separated AND ranges).
func ParseConstraint(s string) (Constraint, error) {
	c, err := semver.NewConstraint(s)
	if err != nil {
		return Constraint{}, rpgerrors.Wrap(rpgerrors.InvalidVersion, err, "invalid constraint %q", s)
	}
	return Constraint{raw: s, c: c}, nil
}

// Exact requires the version to equal v exactly.
func Exact(v Version) Constraint {
	c, _ := ParseConstraint("=" + v.String())
	return c
}

// Caret requires the version to be compatible with v under caret
// semantics: same major version (or same minor, for 0.x releases), >= v.
func Caret(v Version) Constraint {
	c, _ := ParseConstraint("^" + v.String())
	return c
}

// Tilde requires the version to share v's major.minor, >= v.
func Tilde(v Version) Constraint {
	c, _ := ParseConstraint("~" + v.String())
	return c
}

// GTE requires the version to be >= v.
func GTE(v Version) Constraint {
	c, _ := ParseConstraint(">=" + v.String())
	return c
}

// LT requires the version to be < v.
func LT(v Version) Constraint {
	c, _ := ParseConstraint("<" + v.String())
	return c
}

func (c Constraint) String() string { return c.raw }

// Satisfies reports whether v meets this constraint.
func (c Constraint) Satisfies(v Version) bool {
	if c.c == nil {
		return false
	}
	return c.c.Check(v.v)
}

func (c Constraint) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", c.raw)), nil
}

func (c *Constraint) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseConstraint(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// SortVersions sorts versions ascending in place.
func SortVersions(versions []Version) {
	for i := 1; i < len(versions); i++ {
		for j := i; j > 0 && versions[j-1].Greater(versions[j]); j-- {
			versions[j-1], versions[j] = versions[j], versions[j-1]
		}
	}
}
