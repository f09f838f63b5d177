package archive

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	dsbzip2 "github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"
)

// decompress wraps r in the decoder for the format's compression layer.
func decompress(r io.Reader, format Format) (io.ReadCloser, error) {
	switch format {
	case Tar:
		return io.NopCloser(r), nil
	case TarGz:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, formatError("opening gzip", err)
		}
		return gz, nil
	case TarBz2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case TarXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, formatError("opening xz", err)
		}
		return io.NopCloser(xr), nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// compress wraps w in the encoder for the format's compression layer. Closing
// the returned writer flushes the encoder but leaves w open.
func compress(w io.Writer, format Format) (io.WriteCloser, error) {
	switch format {
	case Tar:
		return nopWriteCloser{w}, nil
	case TarGz:
		return gzip.NewWriter(w), nil
	case TarBz2:
		bw, err := dsbzip2.NewWriter(w, &dsbzip2.WriterConfig{Level: dsbzip2.DefaultCompression})
		if err != nil {
			return nil, fmt.Errorf("opening bzip2 writer: %w", err)
		}
		return bw, nil
	case TarXz:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("opening xz writer: %w", err)
		}
		return xw, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// tarStream is an open TAR archive with its decoder stack.
type tarStream struct {
	*tar.Reader
	file *os.File
	dec  io.ReadCloser
}

func openTar(path string, format Format) (*tarStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening tar: %w", err)
	}
	dec, err := decompress(f, format)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &tarStream{Reader: tar.NewReader(dec), file: f, dec: dec}, nil
}

// next returns the next header, or io.EOF at the end of the archive.
// Insecure names are returned as-is for ValidateExtractPath to judge.
func (s *tarStream) next() (*tar.Header, error) {
	hdr, err := s.Next()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
		return nil, formatError("reading tar", err)
	}
	return hdr, nil
}

func (s *tarStream) Close() error {
	_ = s.dec.Close()
	return s.file.Close()
}

func listTar(path string, format Format) ([]Entry, error) {
	s, err := openTar(path, format)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var entries []Entry
	for {
		hdr, err := s.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entryFromTar(hdr))
	}
	return entries, nil
}

func entryFromTar(hdr *tar.Header) Entry {
	kind := KindFile
	if hdr.Typeflag == tar.TypeDir {
		kind = KindDir
	}
	return Entry{
		Path:     hdr.Name,
		Name:     extractName(hdr.Name),
		Size:     hdr.Size,
		Kind:     kind,
		Modified: timePtr(hdr.ModTime),
	}
}

func extractTar(path string, format Format, dest string) (int, error) {
	s, err := openTar(path, format)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	written := 0
	for {
		hdr, err := s.next()
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}

		outPath, err := ValidateExtractPath(dest, hdr.Name)
		if err != nil {
			return written, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(outPath, 0755); err != nil {
				return written, fmt.Errorf("creating directory: %w", err)
			}
		case tar.TypeReg:
			if err := writeFile(outPath, s, hdr.FileInfo().Mode().Perm()); err != nil {
				return written, err
			}
			written++
		default:
			// Links, devices and FIFOs are never materialized.
		}
	}
}

// tarWriter builds a TAR container on top of an optional compressor.
type tarWriter struct {
	tw   *tar.Writer
	comp io.WriteCloser
}

func newTarWriter(out io.Writer, format Format) (*tarWriter, error) {
	comp, err := compress(out, format)
	if err != nil {
		return nil, err
	}
	return &tarWriter{tw: tar.NewWriter(comp), comp: comp}, nil
}

func (t *tarWriter) addDir(name string, modTime time.Time) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeDir,
		Name:     name,
		Mode:     0755,
		ModTime:  modTime,
	}
	if err := t.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("adding directory %s: %w", name, err)
	}
	return nil
}

func (t *tarWriter) addFile(name string, info fs.FileInfo, r io.Reader) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0644,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}
	if err := t.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("adding file %s: %w", name, err)
	}
	// The header promised info.Size() bytes; a file that changed size since
	// it was stat'ed fails here instead of producing a corrupt archive.
	n, err := io.Copy(t.tw, io.LimitReader(r, info.Size()))
	if err != nil {
		return fmt.Errorf("writing file %s: %w", name, err)
	}
	if n != info.Size() {
		return fmt.Errorf("writing file %s: short read (%d of %d bytes)", name, n, info.Size())
	}
	return nil
}

// copyFrom copies every kept header and its content from the TAR at path.
func (t *tarWriter) copyFrom(path string, keep func(name string) bool) (int, error) {
	format := Detect(path)
	s, err := openTar(path, format)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	dropped := 0
	for {
		hdr, err := s.next()
		if err == io.EOF {
			return dropped, nil
		}
		if err != nil {
			return dropped, err
		}
		if !keep(hdr.Name) {
			dropped++
			continue
		}
		if err := t.tw.WriteHeader(hdr); err != nil {
			return dropped, fmt.Errorf("copying %s: %w", hdr.Name, err)
		}
		if err := copyData(t.tw, s); err != nil {
			return dropped, fmt.Errorf("copying %s: %w", hdr.Name, err)
		}
	}
}

func (t *tarWriter) Close() error {
	if err := t.tw.Close(); err != nil {
		return fmt.Errorf("closing tar: %w", err)
	}
	if err := t.comp.Close(); err != nil {
		return fmt.Errorf("closing compressor: %w", err)
	}
	return nil
}
