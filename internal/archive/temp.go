package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExtractEntryToTemp writes one ZIP entry into tempDir (os.TempDir() when
// empty) and returns the file's path. The file is named after the entry path
// with every separator replaced by "_".
func ExtractEntryToTemp(archivePath, entryPath, tempDir string) (string, error) {
	format := Detect(archivePath)
	if format == Unknown {
		return "", fmt.Errorf("%s: %w", archivePath, ErrUnsupportedFormat)
	}
	if format != Zip {
		return "", unsupported("extracting single entries", format)
	}

	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}

	r, err := openZip(archivePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	f, err := findZipEntry(&r.Reader, entryPath)
	if err != nil {
		return "", err
	}

	name := flattenName(entryPath)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%s: no usable file name: %w", entryPath, ErrTraversal)
	}
	outPath := filepath.Join(tempDir, name)

	rc, err := f.Open()
	if err != nil {
		return "", formatError("opening "+entryPath, err)
	}
	defer rc.Close()

	if err := writeFile(outPath, rc, 0644); err != nil {
		return "", err
	}
	return outPath, nil
}

func flattenName(entryPath string) string {
	return strings.NewReplacer("/", "_", "\\", "_").Replace(entryPath)
}
