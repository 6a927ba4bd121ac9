// Package songbook works on directories of lead-sheet files: finding them,
// indexing them into the catalog and bundling their rendered output.
package songbook

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/FocuswithJustin/LeadSheetML/core/ast"
	"github.com/FocuswithJustin/LeadSheetML/core/errors"
	"github.com/FocuswithJustin/LeadSheetML/internal/archive"
	"github.com/FocuswithJustin/LeadSheetML/internal/catalog"
	"github.com/FocuswithJustin/LeadSheetML/internal/convert"
	"github.com/FocuswithJustin/LeadSheetML/internal/logging"
	"github.com/FocuswithJustin/LeadSheetML/internal/validation"
)

// Extension is the lead-sheet file extension.
const Extension = validation.LeadSheetExtension

// DefaultPattern matches every lead sheet below a directory.
const DefaultPattern = "**/*" + Extension

// ManifestVersion is written into every bundle manifest.
const ManifestVersion = "1"

// Discover returns the lead sheets below root that match any of patterns
// (DefaultPattern when none are given), sorted and without duplicates.
// Patterns use doublestar syntax and are relative to root. A root that is
// itself a lead-sheet file is returned as is.
func Discover(root string, patterns ...string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.NewIO("stat", root, err)
	}
	if !info.IsDir() {
		if filepath.Ext(root) != Extension {
			return nil, errors.NewValidation("path", fmt.Sprintf("%s is not a %s file", root, Extension))
		}
		return []string{root}, nil
	}

	if len(patterns) == 0 {
		patterns = []string{DefaultPattern}
	}

	fsys := os.DirFS(root)
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.NewValidation("pattern", fmt.Sprintf("invalid glob %q", pattern))
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			p := filepath.Join(root, filepath.FromSlash(m))
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Failure records a file that could not be indexed or rendered.
type Failure struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

// MarshalJSON includes the error text.
func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Path  string `json:"path"`
		Error string `json:"error"`
	}{f.Path, f.Err.Error()})
}

// Report is the outcome of Index.
type Report struct {
	Indexed []*catalog.Entry `json:"indexed"`
	Failed  []Failure        `json:"failed,omitempty"`
}

// Index parses every path and records it in cat. Files that cannot be read
// or parsed are collected in the report; catalog errors and cancellation
// abort the run.
func Index(ctx context.Context, cat *catalog.Catalog, conv *convert.Converter, paths []string) (*Report, error) {
	report := &Report{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		src, err := os.ReadFile(path)
		if err != nil {
			report.Failed = append(report.Failed, Failure{Path: path, Err: errors.NewIO("read", path, err)})
			continue
		}
		song, err := conv.Parse(path, string(src))
		if err != nil {
			logging.OperationFailed("index", err, "path", path)
			report.Failed = append(report.Failed, Failure{Path: path, Err: err})
			continue
		}

		stored, err := cat.Upsert(ctx, EntryFor(path, src, song))
		if err != nil {
			return report, err
		}
		report.Indexed = append(report.Indexed, stored)
	}
	return report, nil
}

// EntryFor summarises a parsed song as a catalog entry.
func EntryFor(path string, src []byte, song *ast.Song) catalog.Entry {
	chords := 0
	song.Chords(func(*ast.Chord) { chords++ })
	e := catalog.Entry{
		Path:     path,
		Sections: len(song.Blocks),
		Chords:   chords,
		Hash:     catalog.Hash(src),
	}
	e.Title, _ = song.Directive(ast.DirectiveTitle)
	e.Artist, _ = song.Directive(ast.DirectiveArtist)
	e.Key, _ = song.Directive(ast.DirectiveKey)
	return e
}

// BundleOptions configures Bundle.
type BundleOptions struct {
	// Out is the bundle path, ending in .tar.xz or .tar.gz.
	Out string
	// Root is the directory entry names are made relative to.
	Root string
	// Title is recorded in the manifest.
	Title     string
	Format    string
	Layout    string
	Semitones int
	// ModTime stamps every entry; zero means now.
	ModTime time.Time
}

// Bundle renders every path and writes the results, with a manifest, into
// one archive. Any failure aborts the bundle.
func Bundle(conv *convert.Converter, paths []string, opts BundleOptions) (*archive.Manifest, error) {
	if len(paths) == 0 {
		return nil, errors.NewValidation("paths", "no songs to bundle")
	}
	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now().UTC().Truncate(time.Second)
	}

	manifest := &archive.Manifest{
		Version:   ManifestVersion,
		Title:     opts.Title,
		Semitones: opts.Semitones,
		CreatedAt: modTime.Format(time.RFC3339),
	}
	var files []archive.File

	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.NewIO("read", path, err)
		}
		res, err := conv.Convert(convert.Request{
			Name:      path,
			Source:    string(src),
			Format:    opts.Format,
			Layout:    opts.Layout,
			Semitones: opts.Semitones,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "render %s", path)
		}
		manifest.Format = res.Format
		manifest.Layout = res.Layout

		name := "songs/" + outputName(opts.Root, path, res.Format)
		files = append(files, archive.File{Name: name, Data: []byte(res.Output)})
		manifest.Songs = append(manifest.Songs, archive.ManifestSong{
			Source: filepath.ToSlash(relativeTo(opts.Root, path)),
			File:   name,
			Title:  res.Title,
			Key:    res.Key,
			Hash:   catalog.Hash(src),
		})
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	files = append(files, archive.File{Name: archive.ManifestName, Data: data})

	base := archive.BundleName(filepath.Base(opts.Out))
	if err := archive.Write(opts.Out, base, files, modTime); err != nil {
		return nil, err
	}
	logging.Info("songbook_bundled", "path", opts.Out, "songs", len(manifest.Songs), "format", manifest.Format)
	return manifest, nil
}

func relativeTo(root, path string) string {
	if root == "" {
		return filepath.Base(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(path)
	}
	return rel
}

// outputName maps a source path to its rendered file name.
func outputName(root, path, format string) string {
	ext := ".md"
	if format == "html" {
		ext = ".html"
	}
	rel := filepath.ToSlash(relativeTo(root, path))
	return strings.TrimSuffix(rel, Extension) + ext
}
