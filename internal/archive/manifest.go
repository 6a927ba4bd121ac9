package archive

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ManifestName is the manifest's path below the bundle's top directory.
const ManifestName = "manifest.json"

// Archive formats recognised by extension.
const (
	FormatTarXz   = "tar.xz"
	FormatTarGz   = "tar.gz"
	FormatUnknown = "unknown"
)

// Manifest describes a rendered songbook bundle.
type Manifest struct {
	Version   string         `json:"version"`
	Title     string         `json:"title,omitempty"`
	Format    string         `json:"format"`
	Layout    string         `json:"layout"`
	Semitones int            `json:"semitones,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
	Songs     []ManifestSong `json:"songs"`
}

// ManifestSong is one song in a bundle.
type ManifestSong struct {
	Source string `json:"source"`
	File   string `json:"file"`
	Title  string `json:"title,omitempty"`
	Key    string `json:"key,omitempty"`
	Hash   string `json:"hash"`
}

// ReadManifest reads and decodes the manifest of the bundle at path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := ReadFile(path, ManifestName)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// BundleName strips the bundle extensions from a filename.
func BundleName(filename string) string {
	for _, ext := range []string{".songbook.tar.xz", ".songbook.tar.gz", ".tar.xz", ".tar.gz"} {
		if strings.HasSuffix(filename, ext) {
			return strings.TrimSuffix(filename, ext)
		}
	}
	return filename
}

// DetectFormat detects the archive format from the file extension.
func DetectFormat(path string) string {
	switch {
	case strings.HasSuffix(path, ".tar.xz"):
		return FormatTarXz
	case strings.HasSuffix(path, ".tar.gz"):
		return FormatTarGz
	default:
		return FormatUnknown
	}
}

// IsSupportedFormat returns true if the file has a supported archive extension.
func IsSupportedFormat(path string) bool {
	return DetectFormat(path) != FormatUnknown
}
