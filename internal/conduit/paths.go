package conduit

import (
	"fmt"
	"strings"
)

// CanonicalizePath resolves `.`/`..` segments against a virtual root and
// normalizes slashes. Both candidate paths and allowlist prefixes go through
// the same canonicalization before comparison. A path that resolves to the
// root while containing `..` is rejected as a traversal escape.
func CanonicalizePath(p string) (string, error) {
	normalized := strings.ReplaceAll(p, `\`, "/")
	var resolved []string
	for _, seg := range strings.Split(normalized, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(resolved) > 0 {
				resolved = resolved[:len(resolved)-1]
			}
		default:
			resolved = append(resolved, seg)
		}
	}
	canonical := "/" + strings.Join(resolved, "/")
	if canonical == "/" && strings.Contains(normalized, "..") {
		return "", fmt.Errorf("path %q escapes the virtual root", p)
	}
	return canonical, nil
}

// pathAllowed reports whether the canonical path equals or is a strict
// subdirectory of some canonical allowlist prefix.
func pathAllowed(canonical string, allow []string) bool {
	for _, prefix := range allow {
		if canonical == prefix {
			return true
		}
		withSlash := prefix
		if !strings.HasSuffix(withSlash, "/") {
			withSlash += "/"
		}
		if strings.HasPrefix(canonical, withSlash) {
			return true
		}
	}
	return false
}

// allowlistFromConstraints extracts and canonicalizes `allow:` prefixes from
// proposal constraints. No allowlist means deny-by-default.
func allowlistFromConstraints(constraints []string) ([]string, error) {
	var allow []string
	for _, c := range constraints {
		if !strings.HasPrefix(c, "allow:") {
			continue
		}
		canonical, err := CanonicalizePath(strings.TrimPrefix(c, "allow:"))
		if err != nil {
			return nil, err
		}
		allow = append(allow, canonical)
	}
	return allow, nil
}
