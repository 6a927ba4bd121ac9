// Package archive reads and writes the compressed tar bundles that hold a
// rendered songbook. Bundles are normally .tar.xz; .tar.gz is accepted when
// reading so that bundles repacked by other tools still open.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/LeadSheetML/core/errors"
)

// Reader wraps a tar.Reader with automatic decompression handling.
type Reader struct {
	*tar.Reader
	file         *os.File
	decompressor io.Closer
}

// NewReader creates a new archive reader for the given path.
// It automatically detects and handles .tar.gz and .tar.xz compression.
func NewReader(path string) (*Reader, error) {
	format := DetectFormat(path)
	if format != FormatTarXz && format != FormatTarGz {
		return nil, errors.NewUnsupported("archive format", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open archive", path, err)
	}

	var reader io.Reader
	var decompressor io.Closer

	switch format {
	case FormatTarXz:
		xzr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		reader = xzr
	case FormatTarGz:
		gzr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		reader = gzr
		decompressor = gzr
	}

	return &Reader{
		Reader:       tar.NewReader(reader),
		file:         f,
		decompressor: decompressor,
	}, nil
}

// Close closes the archive reader and any underlying decompressors.
func (r *Reader) Close() error {
	var first error
	if r.decompressor != nil {
		first = r.decompressor.Close()
	}
	if err := r.file.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// Visitor is a callback function for iterating archive entries.
// Return true to stop iteration, false to continue.
type Visitor func(header *tar.Header, content io.Reader) (stop bool, err error)

// Iterate walks through all entries in the archive, calling the visitor for each.
func (r *Reader) Iterate(visitor Visitor) error {
	for {
		header, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}

		stop, err := visitor(header, r)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// IterateArchive opens an archive and iterates through its entries.
func IterateArchive(path string, visitor Visitor) error {
	r, err := NewReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Iterate(visitor)
}

// ReadAll returns every regular file in the archive, in archive order.
func ReadAll(path string) ([]File, error) {
	var files []File
	err := IterateArchive(path, func(header *tar.Header, r io.Reader) (bool, error) {
		if header.Typeflag != tar.TypeReg {
			return false, nil
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return true, fmt.Errorf("read %s: %w", header.Name, err)
		}
		files = append(files, File{Name: header.Name, Data: data, ModTime: header.ModTime})
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// ReadFile reads a specific file from the archive. The name matches either
// the full entry name or the name below the bundle's top directory.
func ReadFile(archivePath, filename string) ([]byte, error) {
	var content []byte
	err := IterateArchive(archivePath, func(header *tar.Header, r io.Reader) (bool, error) {
		name := header.Name
		if idx := strings.Index(name, "/"); idx >= 0 {
			name = name[idx+1:]
		}
		if name == filename || header.Name == filename {
			var err error
			content, err = io.ReadAll(r)
			return true, err
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, errors.NewNotFound("archive entry", filename)
	}
	return content, nil
}
