package confkit

import "os"

// fileExists backs the go.mod/.git probe both ProjectRoot and
// LoadDotenvOnce's upward directory walk use to find the repository root.
func fileExists(p string) bool {
	if p == "" {
		return false
	}
	if _, err := os.Stat(p); err == nil {
		return true
	}
	return false
}
