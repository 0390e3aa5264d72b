package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// systemDirs are top-level directories a data directory must never
// resolve into, so a misconfigured or attacker-controlled base_dir
// can't point vidqr at the operating system's own files.
var systemDirs = []string{
	string(filepath.Separator) + "etc",
	string(filepath.Separator) + "bin",
	string(filepath.Separator) + "sbin",
	string(filepath.Separator) + "usr",
	string(filepath.Separator) + "sys",
	string(filepath.Separator) + "proc",
	string(filepath.Separator) + "dev",
	string(filepath.Separator) + "boot",
	string(filepath.Separator) + "root",
}

// ValidatePath resolves targetPath to an absolute, cleaned path and
// confirms it lies within basePath, rejecting any "../" traversal that
// would escape it. It returns the resolved absolute path.
func ValidatePath(basePath, targetPath string) (string, error) {
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return "", fmt.Errorf("resolve base path: %w", err)
	}
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return "", fmt.Errorf("resolve target path: %w", err)
	}
	absBase = filepath.Clean(absBase)
	absTarget = filepath.Clean(absTarget)

	if absTarget != absBase && !strings.HasPrefix(absTarget, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes base %q", targetPath, basePath)
	}
	return absTarget, nil
}

// SanitizeDataDir resolves dataDir to an absolute, cleaned path and
// rejects filesystem roots or well-known system directories, so a
// config file can't (accidentally or otherwise) point a store's data
// directory at the host's own files.
func SanitizeDataDir(dataDir string) (string, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return "", fmt.Errorf("resolve data dir: %w", err)
	}
	abs = filepath.Clean(abs)

	if abs == string(filepath.Separator) {
		return "", fmt.Errorf("data dir %q resolves to the filesystem root", dataDir)
	}
	for _, dir := range systemDirs {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return "", fmt.Errorf("data dir %q resolves inside the system directory %q", dataDir, dir)
		}
	}
	return abs, nil
}
