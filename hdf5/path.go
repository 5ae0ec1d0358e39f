package hdf5

import (
	"fmt"
	"strings"
)

// SplitPath splits a slash separated path into its non-empty components.
func SplitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	return parts
}

// CleanPath returns path in absolute form without repeated slashes.
func CleanPath(path string) string {
	return "/" + strings.Join(SplitPath(path), "/")
}

// JoinPath joins a group path and a member name.
func JoinPath(group, name string) string {
	if group == "" || group == "/" {
		return "/" + name
	}
	return strings.TrimSuffix(group, "/") + "/" + name
}

// JoinAttrPath forms the "object@attribute" notation used by the tools.
func JoinAttrPath(objPath, attr string) string {
	return CleanPath(objPath) + "@" + attr
}

// ParseAttrPath splits "object@attribute" at its last '@'.
func ParseAttrPath(s string) (objPath, attr string, err error) {
	i := strings.LastIndex(s, "@")
	if i < 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("%w: %q has no attribute name", ErrInvalidPath, s)
	}
	return CleanPath(s[:i]), s[i+1:], nil
}

func baseName(path string) string {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return "/"
	}
	return parts[len(parts)-1]
}

func validName(name string) error {
	if name == "" || name == "." || strings.Contains(name, "/") {
		return fmt.Errorf("%w: %q is not a valid link name", ErrInvalidPath, name)
	}
	return nil
}
