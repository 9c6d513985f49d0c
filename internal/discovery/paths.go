package discovery

import "strings"

func baseName(relPath string) string {
	rel := strings.TrimRight(relPath, "/")
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		return rel[i+1:]
	}
	return rel
}

func joinRel(a, b string) string {
	if a == "" || a == "." {
		return b
	}
	return strings.TrimRight(a, "/") + "/" + b
}

func extOf(relPath string) string {
	name := strings.ToLower(baseName(relPath))
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[i:]
}

func stemOf(relPath string) string {
	name := baseName(relPath)
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return name
	}
	return name[:i]
}
