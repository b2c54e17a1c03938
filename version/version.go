package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/reportlib/errors"
)

// Build information. These variables are set at build time via ldflags.
var (
	// CommitHash is the git commit hash when the binary was built
	CommitHash = "dev"

	// BuildTime is when the binary was built
	BuildTime = "unknown"

	// Version is the semantic version (if tagged)
	Version = "dev"
)

// Protocol is the report library protocol version announced to the parent during init.
// The parent checks it against its accepted semver constraint.
const Protocol = "1.4.0"

// Info contains version and build information
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	Protocol   string `json:"protocol"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the current version information
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		Protocol:   Protocol,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a human-readable version string
func (i Info) String() string {
	if i.Version != "dev" {
		return fmt.Sprintf("reportlib %s (protocol %s, commit %s, built %s)", i.Version, i.Protocol, i.CommitHash, i.BuildTime)
	}
	return fmt.Sprintf("reportlib dev (protocol %s, commit %s, built %s)", i.Protocol, i.CommitHash, i.BuildTime)
}

// Range is a semver constraint a parent accepts for the library version
// announced at init, e.g. ">= 1.0.0, < 2.0.0".
type Range struct {
	expr        string
	constraints *semver.Constraints
}

// ParseRange parses a constraint expression
func ParseRange(expr string) (*Range, error) {
	c, err := semver.NewConstraint(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "version constraint %q", expr)
	}
	return &Range{expr: expr, constraints: c}, nil
}

// Check returns an error wrapping errors.ErrIncompatibleVersion when libVersion
// is not semver or falls outside the range.
func (r *Range) Check(libVersion string) error {
	v, err := semver.NewVersion(libVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrIncompatibleVersion, "library version %q is not semver", libVersion)
	}
	if !r.constraints.Check(v) {
		return errors.Wrapf(errors.ErrIncompatibleVersion, "library version %s does not satisfy %s", v, r.expr)
	}
	return nil
}

func (r *Range) String() string {
	return r.expr
}
