package pkgdef

import (
	"strconv"
	"strings"
)

// CompareVersions compares two dotted version strings numerically,
// component by component. Missing components count as zero; components
// that are not numeric fall back to string comparison. Returns -1, 0, or 1.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}

	for i := 0; i < n; i++ {
		var ac, bc string
		if i < len(as) {
			ac = as[i]
		}
		if i < len(bs) {
			bc = bs[i]
		}

		ai, aerr := strconv.Atoi(ac)
		bi, berr := strconv.Atoi(bc)
		if aerr == nil && berr == nil {
			if ai != bi {
				if ai < bi {
					return -1
				}
				return 1
			}
			continue
		}

		if ac != bc {
			if ac < bc {
				return -1
			}
			return 1
		}
	}

	return 0
}

// MatchesConstraint reports whether version satisfies constraint.
// Supported constraint forms:
//   - "" or "latest": any version
//   - "~X.Y.Z": same major.minor, any patch
//   - "^X.Y.Z": same major, any minor/patch
//   - anything else: exact equality
func MatchesConstraint(version, constraint string) bool {
	switch {
	case constraint == "" || constraint == "latest":
		return true

	case strings.HasPrefix(constraint, "~"):
		want := strings.Split(constraint[1:], ".")
		got := strings.Split(version, ".")
		if len(want) < 2 || len(got) < 2 {
			return false
		}
		return want[0] == got[0] && want[1] == got[1]

	case strings.HasPrefix(constraint, "^"):
		want := strings.Split(constraint[1:], ".")
		got := strings.Split(version, ".")
		if len(want) < 1 || len(got) < 1 {
			return false
		}
		return want[0] == got[0]

	default:
		return version == constraint
	}
}
