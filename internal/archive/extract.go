package archive

import (
	"fmt"
	"os"
)

// ExtractAll writes every entry of the archive at path beneath dest and
// returns the number of files written. Each target path is validated before
// it is created. The first error stops extraction; files already written are
// left in place.
func ExtractAll(path, dest string) (int, error) {
	format := Detect(path)
	if format == Unknown {
		return 0, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return 0, fmt.Errorf("creating destination: %w", err)
	}

	if format == Zip {
		return extractZip(path, dest)
	}
	return extractTar(path, format, dest)
}
