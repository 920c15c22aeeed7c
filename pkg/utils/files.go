package utils

import (
	"os"
	"path/filepath"
	"strings"
)

func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Convert to absolute path (resolves ../../ and cleans the path)
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}

	parentDir = filepath.Dir(fullPath)

	return fullPath, parentDir, nil
}

// AssemblyPath returns the default output path for a C source file: the
// same name with a .s extension, next to the input.
func AssemblyPath(srcPath string) string {
	ext := filepath.Ext(srcPath)
	return strings.TrimSuffix(srcPath, ext) + ".s"
}

// SamePath reports whether a and b name the same file. Paths that do not
// exist yet are compared by their cleaned absolute form.
func SamePath(a, b string) (bool, error) {
	absA, _, err := GetPathInfo(a)
	if err != nil {
		return false, err
	}
	absB, _, err := GetPathInfo(b)
	if err != nil {
		return false, err
	}
	if absA == absB {
		return true, nil
	}
	infoA, errA := os.Stat(absA)
	infoB, errB := os.Stat(absB)
	if errA != nil || errB != nil {
		return false, nil
	}
	return os.SameFile(infoA, infoB), nil
}
