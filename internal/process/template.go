package process

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fulmenhq/convoy/pkg/versioning"
)

// Vars are the values available to instance name and argument templates.
// Only these names can be referenced; there is no expression evaluation.
type Vars struct {
	ID      string
	Offset  int
	Alpha   string
	Version *versioning.Version
}

func (v Vars) lookup() map[string]string {
	m := map[string]string{
		"id":     v.ID,
		"offset": strconv.Itoa(v.Offset),
		"alpha":  v.Alpha,
	}
	if v.Version != nil {
		m["version"] = v.Version.Core()
		m["major"] = strconv.Itoa(v.Version.Major())
		m["minor"] = strconv.Itoa(v.Version.Minor())
		m["patch"] = strconv.Itoa(v.Version.Patch())
	}
	return m
}

// Names lists the variables a template may reference
func Names() []string {
	names := []string{"id", "offset", "alpha", "version", "major", "minor", "patch"}
	sort.Strings(names)
	return names
}

// Expand substitutes ${name} placeholders. Unknown names, version variables
// without a known version, and unterminated placeholders are errors.
func Expand(tmpl string, vars Vars) (string, error) {
	values := vars.lookup()
	var b strings.Builder
	rest := tmpl
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:start])
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return "", fmt.Errorf("unterminated placeholder in %q", tmpl)
		}
		name := strings.TrimSpace(rest[start+2 : start+end])
		value, ok := values[name]
		if !ok {
			if isVersionVar(name) {
				return "", fmt.Errorf("placeholder ${%s} in %q needs a package version", name, tmpl)
			}
			return "", fmt.Errorf("unknown placeholder ${%s} in %q (available: %s)", name, tmpl, strings.Join(Names(), ", "))
		}
		b.WriteString(value)
		rest = rest[start+end+1:]
	}
}

func isVersionVar(name string) bool {
	switch name {
	case "version", "major", "minor", "patch":
		return true
	}
	return false
}
