package archive

import "strings"

// Format identifies an archive container and its compression codec.
type Format int

const (
	Unknown Format = iota
	Zip
	Tar
	TarGz
	TarBz2
	TarXz
)

func (f Format) String() string {
	switch f {
	case Zip:
		return "zip"
	case Tar:
		return "tar"
	case TarGz:
		return "tar.gz"
	case TarBz2:
		return "tar.bz2"
	case TarXz:
		return "tar.xz"
	default:
		return "unknown"
	}
}

// IsTar reports whether the format is a TAR container, compressed or not.
func (f Format) IsTar() bool {
	switch f {
	case Tar, TarGz, TarBz2, TarXz:
		return true
	}
	return false
}

// Compound suffixes come first so "x.tar.gz" is never taken for plain TAR.
var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", TarGz},
	{".tgz", TarGz},
	{".tar.bz2", TarBz2},
	{".tbz2", TarBz2},
	{".tbz", TarBz2},
	{".tar.xz", TarXz},
	{".txz", TarXz},
	{".tar", Tar},
	{".zip", Zip},
}

// Detect determines the archive format from the file name. It does no I/O.
func Detect(path string) Format {
	_, _, format := splitSuffix(path)
	return format
}

// splitSuffix separates path into the part before the format suffix and the
// suffix itself, preserving the original case of both.
func splitSuffix(path string) (base, suffix string, format Format) {
	for _, s := range suffixes {
		cut := len(path) - len(s.suffix)
		if cut >= 0 && strings.EqualFold(path[cut:], s.suffix) {
			return path[:cut], path[cut:], s.format
		}
	}
	return path, "", Unknown
}
