// Command leadsheet renders, transposes and catalogues LeadSheetML songs.
// It also bundles rendered songbooks, watches files for live re-rendering and
// serves the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/LeadSheetML/core/errors"
	"github.com/FocuswithJustin/LeadSheetML/internal/api"
	"github.com/FocuswithJustin/LeadSheetML/internal/archive"
	"github.com/FocuswithJustin/LeadSheetML/internal/catalog"
	"github.com/FocuswithJustin/LeadSheetML/internal/config"
	"github.com/FocuswithJustin/LeadSheetML/internal/convert"
	"github.com/FocuswithJustin/LeadSheetML/internal/logging"
	"github.com/FocuswithJustin/LeadSheetML/internal/songbook"
	"github.com/FocuswithJustin/LeadSheetML/internal/validation"
	"github.com/FocuswithJustin/LeadSheetML/internal/watch"
)

const version = "0.2.0"

// stdout receives command output. Logs go to stderr.
var stdout io.Writer = os.Stdout

// Globals are the flags shared by every command.
type Globals struct {
	Config   string `help:"YAML configuration file" type:"path" env:"LEADSHEET_CONFIG"`
	LogLevel string `name:"log-level" help:"Override the configured log level (debug, info, warn, error)"`
}

// CLI defines the command-line interface for leadsheet.
type CLI struct {
	Globals

	Render  RenderCmd   `cmd:"" help:"Render a lead sheet to markdown or HTML"`
	Index   IndexCmd    `cmd:"" help:"Index lead sheets into the catalog"`
	List    ListCmd     `cmd:"" help:"List catalogued songs"`
	Show    ShowCmd     `cmd:"" help:"Show a catalogued song"`
	Bundle  BundleCmd   `cmd:"" help:"Render a directory of lead sheets into a songbook archive"`
	Inspect InspectCmd  `cmd:"" help:"Describe a songbook archive"`
	Watch   WatchCmd    `cmd:"" help:"Re-render a lead sheet whenever it changes"`
	Serve   ServeCmd    `cmd:"" help:"Start the HTTP API server"`
	Config  ConfigGroup `cmd:"" help:"Configuration file operations"`
	Version VersionCmd  `cmd:"" help:"Print version information"`
}

// ConfigGroup contains configuration file operations.
type ConfigGroup struct {
	Init ConfigInitCmd `cmd:"" help:"Write the default configuration to a file"`
}

// load reads the configuration and applies the logging settings.
func (g *Globals) load() (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	if err := cfg.ApplyLogging(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newConverter(cfg *config.Config) *convert.Converter {
	return convert.New(convert.Options{
		Format:       cfg.Render.Format,
		Render:       cfg.RenderOptions(),
		CacheTTL:     cfg.Server.CacheTTL,
		CacheEntries: cfg.Server.CacheEntries,
	})
}

// RenderFlags select the output of a render.
type RenderFlags struct {
	Format        string `short:"f" help:"Output format (markdown, md, html); defaults to the configured format"`
	Layout        string `short:"l" help:"Layout: rows or pre; defaults to the configured layout"`
	Transpose     int    `short:"t" help:"Semitones to transpose up"`
	TransposeDown int    `name:"transpose-down" short:"d" help:"Semitones to transpose down"`
}

// semitones combines the up and down amounts. Opposite amounts that cancel
// out still shift by an octave so that the key is validated.
func (f RenderFlags) semitones() int {
	n := f.Transpose - f.TransposeDown
	if n == 0 && (f.Transpose != 0 || f.TransposeDown != 0) {
		return 12
	}
	return n
}

func (f RenderFlags) request(name, source string) convert.Request {
	return convert.Request{
		Name:      name,
		Source:    source,
		Format:    f.Format,
		Layout:    f.Layout,
		Semitones: f.semitones(),
	}
}

// readLeadSheet reads a lead sheet named on the command line.
func readLeadSheet(path string) (string, error) {
	if err := validation.ValidateLeadSheetPath(path); err != nil {
		return "", err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return "", errors.NewIO("read", path, err)
	}
	if err := validation.ValidateSource(path, src); err != nil {
		return "", err
	}
	return string(src), nil
}

// RenderCmd renders one lead sheet.
type RenderCmd struct {
	File string `arg:"" help:"Lead sheet to render" type:"existingfile"`
	RenderFlags
	Out string `short:"o" help:"Write output to this file instead of stdout" type:"path"`
}

func (c *RenderCmd) Run(g *Globals) error {
	src, err := readLeadSheet(c.File)
	if err != nil {
		return err
	}
	cfg, err := g.load()
	if err != nil {
		return err
	}

	res, err := newConverter(cfg).Convert(c.request(c.File, src))
	if err != nil {
		return err
	}
	return writeOutput(c.Out, res.Output)
}

func writeOutput(path, output string) error {
	if path == "" {
		_, err := io.WriteString(stdout, output)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewIO("create", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(output), 0644); err != nil {
		return errors.NewIO("write", path, err)
	}
	return nil
}

// CatalogFlags locate the catalog database.
type CatalogFlags struct {
	Catalog string `help:"Catalog database path; defaults to the configured path" type:"path"`
}

func (f CatalogFlags) open(ctx context.Context, cfg *config.Config) (*catalog.Catalog, error) {
	path := f.Catalog
	if path == "" {
		path = cfg.Catalog.Path
	}
	return catalog.Open(ctx, path)
}

// IndexCmd indexes a directory (or one file) into the catalog.
type IndexCmd struct {
	Path    string   `arg:"" optional:"" help:"Directory or lead sheet to index" type:"path" default:"."`
	Pattern []string `help:"Glob patterns relative to the directory" default:"**/*.lmpl"`
	CatalogFlags
}

func (c *IndexCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	ctx := context.Background()

	root, err := filepath.Abs(c.Path)
	if err != nil {
		return errors.NewIO("resolve", c.Path, err)
	}
	paths, err := songbook.Discover(root, c.Pattern...)
	if err != nil {
		return err
	}

	cat, err := c.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	report, err := songbook.Index(ctx, cat, newConverter(cfg), paths)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Indexed %d of %d songs into %s\n", len(report.Indexed), len(paths), cat.Path())
	for _, f := range report.Failed {
		fmt.Fprintf(stdout, "  FAIL %s: %v\n", f.Path, f.Err)
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d songs could not be indexed", len(report.Failed))
	}
	return nil
}

// ListCmd lists catalogued songs.
type ListCmd struct {
	Query string `arg:"" optional:"" help:"Only list songs whose title or artist contains this text"`
	JSON  bool   `help:"Print JSON instead of a table"`
	CatalogFlags
}

func (c *ListCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	cat, err := c.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	entries, err := cat.List(ctx, c.Query)
	if err != nil {
		return err
	}
	if c.JSON {
		if entries == nil {
			entries = []*catalog.Entry{}
		}
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "No songs found.")
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tARTIST\tKEY\tPATH")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, orDash(e.Title), orDash(e.Artist), orDash(e.Key), e.Path)
	}
	return w.Flush()
}

// ShowCmd prints one catalog entry, optionally rendering the song.
type ShowCmd struct {
	ID     string `arg:"" help:"Song ID"`
	JSON   bool   `help:"Print JSON"`
	Render bool   `help:"Render the song after its details"`
	RenderFlags
	CatalogFlags
}

func (c *ShowCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	cat, err := c.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	e, err := cat.Get(ctx, c.ID)
	if err != nil {
		return err
	}

	if c.JSON {
		if err := printJSON(e); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(stdout, "ID:        %s\n", e.ID)
		fmt.Fprintf(stdout, "Title:     %s\n", orDash(e.Title))
		fmt.Fprintf(stdout, "Artist:    %s\n", orDash(e.Artist))
		fmt.Fprintf(stdout, "Key:       %s\n", orDash(e.Key))
		fmt.Fprintf(stdout, "Sections:  %d\n", e.Sections)
		fmt.Fprintf(stdout, "Chords:    %d\n", e.Chords)
		fmt.Fprintf(stdout, "Path:      %s\n", e.Path)
		fmt.Fprintf(stdout, "Hash:      %s\n", e.Hash)
		fmt.Fprintf(stdout, "Indexed:   %s\n", e.IndexedAt.Format(time.RFC3339))
	}

	if !c.Render {
		return nil
	}
	src, err := readLeadSheet(e.Path)
	if err != nil {
		return err
	}
	if hash := catalog.Hash([]byte(src)); hash != e.Hash {
		logging.Warn("song changed since it was indexed", "id", e.ID, "path", e.Path)
	}
	res, err := newConverter(cfg).Convert(c.request(e.Path, src))
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout)
	return writeOutput("", res.Output)
}

// BundleCmd renders a directory into a songbook archive.
type BundleCmd struct {
	Dir     string   `arg:"" help:"Directory of lead sheets" type:"existingdir"`
	Out     string   `short:"o" required:"" help:"Output archive (.tar.xz or .tar.gz)" type:"path"`
	Title   string   `help:"Songbook title recorded in the manifest"`
	Pattern []string `help:"Glob patterns relative to the directory" default:"**/*.lmpl"`
	RenderFlags
}

func (c *BundleCmd) Run(g *Globals) error {
	if !archive.IsSupportedFormat(c.Out) {
		return errors.NewUnsupported("archive format", c.Out+" (use .tar.xz or .tar.gz)")
	}
	cfg, err := g.load()
	if err != nil {
		return err
	}

	paths, err := songbook.Discover(c.Dir, c.Pattern...)
	if err != nil {
		return err
	}
	title := c.Title
	if title == "" {
		title = archive.BundleName(filepath.Base(c.Out))
	}

	manifest, err := songbook.Bundle(newConverter(cfg), paths, songbook.BundleOptions{
		Out:       c.Out,
		Root:      c.Dir,
		Title:     title,
		Format:    c.Format,
		Layout:    c.Layout,
		Semitones: c.semitones(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Bundled %d songs (%s, %s) into %s\n", len(manifest.Songs), manifest.Format, manifest.Layout, c.Out)
	return nil
}

// InspectCmd describes a songbook archive.
type InspectCmd struct {
	File string `arg:"" help:"Songbook archive" type:"existingfile"`
	JSON bool   `help:"Print the manifest as JSON"`
}

func (c *InspectCmd) Run(g *Globals) error {
	if _, err := g.load(); err != nil {
		return err
	}
	m, err := archive.ReadManifest(c.File)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(m)
	}

	fmt.Fprintf(stdout, "Songbook:  %s\n", orDash(m.Title))
	fmt.Fprintf(stdout, "Archive:   %s\n", archive.DetectFormat(c.File))
	fmt.Fprintf(stdout, "Format:    %s (%s)\n", m.Format, m.Layout)
	if m.Semitones != 0 {
		fmt.Fprintf(stdout, "Transpose: %+d\n", m.Semitones)
	}
	if m.CreatedAt != "" {
		fmt.Fprintf(stdout, "Created:   %s\n", m.CreatedAt)
	}
	fmt.Fprintf(stdout, "Songs:     %d\n", len(m.Songs))

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	for i, s := range m.Songs {
		fmt.Fprintf(w, "  %d.\t%s\t%s\t%s\n", i+1, orDash(s.Title), orDash(s.Key), s.File)
	}
	return w.Flush()
}

// WatchCmd re-renders a lead sheet whenever it is saved.
type WatchCmd struct {
	File string `arg:"" help:"Lead sheet to watch" type:"existingfile"`
	RenderFlags
	Out      string        `short:"o" help:"Write output to this file instead of stdout" type:"path"`
	Debounce time.Duration `help:"Quiet period before re-rendering" default:"200ms"`
}

func (c *WatchCmd) Run(g *Globals) error {
	if err := validation.ValidateLeadSheetPath(c.File); err != nil {
		return err
	}
	cfg, err := g.load()
	if err != nil {
		return err
	}
	conv := newConverter(cfg)

	w, err := watch.New(c.Debounce, c.File)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c.renderOnce(conv, c.File)
	logging.Info("watching", "path", c.File, "debounce", c.Debounce)
	return w.Run(ctx, func(path string) { c.renderOnce(conv, path) })
}

// renderOnce renders path, logging failures so that watching continues.
func (c *WatchCmd) renderOnce(conv *convert.Converter, path string) {
	src, err := readLeadSheet(path)
	if err != nil {
		logging.OperationFailed("watch_render", err, "path", path)
		return
	}
	res, err := conv.Convert(c.request(path, src))
	if err != nil {
		logging.OperationFailed("watch_render", err, "path", path)
		return
	}
	if err := writeOutput(c.Out, res.Output); err != nil {
		logging.OperationFailed("watch_render", err, "path", path)
	}
}

// ServeCmd starts the HTTP API.
type ServeCmd struct {
	Port      int      `help:"HTTP server port; defaults to the configured port"`
	Watch     []string `help:"Lead sheets or directories to watch; changes are pushed to websocket clients" type:"path"`
	NoCatalog bool     `name:"no-catalog" help:"Serve without the songbook catalog"`
	JSONLogs  bool     `name:"json-logs" help:"Log JSON instead of the configured format" default:"true" negatable:""`
	CatalogFlags
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.JSONLogs {
		cfg.Logging.Format = "json"
		if err := cfg.ApplyLogging(); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cat *catalog.Catalog
	if !c.NoCatalog {
		cat, err = c.open(ctx, cfg)
		if err != nil {
			return err
		}
		defer cat.Close()
	}

	conv := newConverter(cfg)
	srv := api.New(api.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ReadTimeout:    cfg.Server.ReadTimeout,
		MaxSourceBytes: cfg.Server.MaxSourceBytes,
		Version:        version,
	}, conv, cat)

	if len(c.Watch) > 0 {
		w, err := newServeWatcher(c.Watch)
		if err != nil {
			return err
		}
		go func() {
			err := w.Run(ctx, func(path string) { publish(ctx, srv, conv, cat, path) })
			if err != nil {
				logging.OperationFailed("watch", err)
			}
		}()
	}

	return srv.Run(ctx)
}

// newServeWatcher watches every lead sheet found under targets.
func newServeWatcher(targets []string) (*watch.Watcher, error) {
	var paths []string
	for _, t := range targets {
		found, err := songbook.Discover(t)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return nil, errors.NewValidation("watch", "no lead sheets found in "+strings.Join(targets, ", "))
	}
	return watch.New(watch.DefaultDebounce, paths...)
}

// publish pushes a changed song to websocket clients and re-indexes it.
func publish(ctx context.Context, srv *api.Server, conv *convert.Converter, cat *catalog.Catalog, path string) {
	src, err := os.ReadFile(path)
	if err != nil {
		logging.OperationFailed("publish", err, "path", path)
		return
	}
	if err := srv.Publish(convert.Request{Name: path, Source: string(src)}); err != nil {
		return
	}
	if cat == nil {
		return
	}
	if _, err := songbook.Index(ctx, cat, conv, []string{path}); err != nil {
		logging.OperationFailed("reindex", err, "path", path)
	}
}

// ConfigInitCmd writes the default configuration.
type ConfigInitCmd struct {
	Path  string `arg:"" help:"Where to write the configuration" type:"path" default:"leadsheet.yaml"`
	Force bool   `help:"Overwrite an existing file"`
}

func (c *ConfigInitCmd) Run() error {
	if _, err := os.Stat(c.Path); err == nil && !c.Force {
		return errors.NewValidation("path", c.Path+" already exists (use --force to overwrite)")
	}
	if err := config.DefaultConfig().SaveToFile(c.Path); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote default configuration to %s\n", c.Path)
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Fprintf(stdout, "leadsheet version %s\n", version)
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("leadsheet"),
		kong.Description("LeadSheetML - render and transpose chord lead sheets"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
