package envres

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/stagehand/stagehand/pkg/pkgdef"
)

// placeholderPattern matches {key} and {pkg.key} placeholders in edit
// values.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_][A-Za-z0-9_.-]*)\}`)

// expandValue substitutes every placeholder in value. A bare {key} is
// looked up in the owning package's data; {pkg.key} is looked up in the
// data of pkg, which must already have been resolved. Any placeholder
// that resolves to nothing is a fatal TemplateResolutionError.
func expandValue(owner *pkgdef.Package, value string, resolved map[string]*pkgdef.Package) (string, error) {
	var resolveErr error

	expanded := placeholderPattern.ReplaceAllStringFunc(value, func(match string) string {
		if resolveErr != nil {
			return match
		}
		placeholder := match[1 : len(match)-1]

		out, ok := lookupPlaceholder(owner, placeholder, resolved)
		if !ok {
			resolveErr = &TemplateResolutionError{
				Package:     owner.Name,
				Placeholder: placeholder,
				Value:       value,
			}
			return match
		}
		return out
	})

	if resolveErr != nil {
		return "", resolveErr
	}
	return expanded, nil
}

// lookupPlaceholder resolves a single placeholder against the owner's own
// data and the data of previously-resolved packages.
func lookupPlaceholder(owner *pkgdef.Package, placeholder string, resolved map[string]*pkgdef.Package) (string, bool) {
	pkgName, key, qualified := strings.Cut(placeholder, ".")

	if qualified {
		if pkg, ok := resolved[pkgName]; ok {
			if v, ok := dataValue(pkg, key); ok {
				return v, true
			}
		}
		// Fall through: the whole placeholder may be a dotted key in the
		// owner's own data.
	}

	if v, ok := dataValue(owner, placeholder); ok {
		return v, true
	}

	// "version" and "name" resolve against the package itself even
	// without a data entry, qualified or not.
	target := owner
	lookupKey := placeholder
	if qualified {
		if pkg, ok := resolved[pkgName]; ok {
			target, lookupKey = pkg, key
		}
	}
	switch lookupKey {
	case "version":
		return target.Version, true
	case "name":
		return target.Name, true
	}

	return "", false
}

// dataValue fetches a scalar from a package's declared data.
func dataValue(pkg *pkgdef.Package, key string) (string, bool) {
	v, ok := pkg.Data[key]
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case fmt.Stringer:
		return val.String(), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(val), true
	}
}
