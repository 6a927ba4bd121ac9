package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/LeadSheetML/core/errors"
	"github.com/FocuswithJustin/LeadSheetML/internal/validation"
)

// File is one entry of a bundle. Name is slash separated and relative to the
// bundle's top directory.
type File struct {
	Name    string
	Data    []byte
	ModTime time.Time
}

// Write creates a bundle at dstPath holding files below baseDir. The
// compression follows the extension (.tar.xz or .tar.gz). Directory entries
// are generated, entries are sorted by name, and a zero ModTime is replaced
// by modTime so that identical input yields identical archives.
func Write(dstPath, baseDir string, files []File, modTime time.Time) error {
	format := DetectFormat(dstPath)
	if format != FormatTarXz && format != FormatTarGz {
		return errors.NewUnsupported("archive format", dstPath)
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	outFile, err := os.Create(dstPath)
	if err != nil {
		return errors.NewIO("create archive", dstPath, err)
	}
	defer outFile.Close()

	var compressor io.WriteCloser
	switch format {
	case FormatTarXz:
		compressor, err = xz.NewWriter(outFile)
		if err != nil {
			return fmt.Errorf("xz writer: %w", err)
		}
	case FormatTarGz:
		compressor = gzip.NewWriter(outFile)
	}

	if err := writeTar(compressor, baseDir, files, modTime); err != nil {
		compressor.Close()
		return fmt.Errorf("failed to create archive: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return outFile.Close()
}

// WriteTarXz is Write for .tar.xz bundles.
func WriteTarXz(dstPath, baseDir string, files []File, modTime time.Time) error {
	if DetectFormat(dstPath) != FormatTarXz {
		return errors.NewValidation("path", fmt.Sprintf("%s does not end in .tar.xz", dstPath))
	}
	return Write(dstPath, baseDir, files, modTime)
}

func writeTar(w io.Writer, baseDir string, files []File, modTime time.Time) error {
	sorted := make([]File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	tw := tar.NewWriter(w)
	dirs := map[string]bool{}

	writeDir := func(dir string) error {
		if dir == "." || dir == "" || dirs[dir] {
			return nil
		}
		dirs[dir] = true
		return tw.WriteHeader(&tar.Header{
			Name:     dir + "/",
			Mode:     0755,
			Typeflag: tar.TypeDir,
			ModTime:  modTime,
		})
	}

	if baseDir != "" {
		if err := writeDir(baseDir); err != nil {
			return err
		}
	}

	for _, f := range sorted {
		name := path.Clean(f.Name)
		if name == "." || !validation.IsPathSafe(name) {
			return errors.NewValidation("name", fmt.Sprintf("%q escapes the bundle", f.Name))
		}
		if baseDir != "" {
			name = baseDir + "/" + name
		}

		// Parents first, shallowest first.
		var parents []string
		for dir := path.Dir(name); dir != "." && !dirs[dir]; dir = path.Dir(dir) {
			parents = append([]string{dir}, parents...)
		}
		for _, dir := range parents {
			if err := writeDir(dir); err != nil {
				return err
			}
		}

		mt := f.ModTime
		if mt.IsZero() {
			mt = modTime
		}
		if err := tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(f.Data)),
			Typeflag: tar.TypeReg,
			ModTime:  mt,
		}); err != nil {
			return err
		}
		if _, err := tw.Write(f.Data); err != nil {
			return err
		}
	}
	return tw.Close()
}
