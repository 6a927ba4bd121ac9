// Package convert runs the parse, transpose and render pipeline for every
// outer surface (CLI, watcher, HTTP API and songbook bundler) and memoises
// the rendered output.
package convert

import (
	"time"

	"github.com/FocuswithJustin/LeadSheetML/core/ast"
	"github.com/FocuswithJustin/LeadSheetML/core/parser"
	"github.com/FocuswithJustin/LeadSheetML/core/render"
	"github.com/FocuswithJustin/LeadSheetML/core/transpose"
	"github.com/FocuswithJustin/LeadSheetML/internal/cache"
	"github.com/FocuswithJustin/LeadSheetML/internal/logging"
)

// Request describes one conversion.
type Request struct {
	// Name labels the source in logs, usually a file path.
	Name string `json:"name,omitempty"`
	// Source is the lead-sheet text.
	Source string `json:"source"`
	// Format is a backend name; empty selects the converter default.
	Format string `json:"format,omitempty"`
	// Layout is "rows" or "pre"; empty selects the converter default.
	Layout string `json:"layout,omitempty"`
	// Semitones shifts every chord and the key. Zero skips transposition.
	Semitones int `json:"semitones,omitempty"`
}

// Result is a rendered song.
type Result struct {
	Output   string        `json:"output"`
	Format   string        `json:"format"`
	Layout   string        `json:"layout"`
	CacheKey string        `json:"cache_key"`
	Title    string        `json:"title,omitempty"`
	Key      string        `json:"key,omitempty"`
	CacheHit bool          `json:"cache_hit"`
	Duration time.Duration `json:"duration_ns"`
}

// Options configures a Converter.
type Options struct {
	// Format is used when a request leaves Format empty.
	Format string
	// Render holds the default layout and minimum chord width.
	Render render.Options
	// CacheTTL and CacheEntries size the result cache. A zero TTL disables it.
	CacheTTL     time.Duration
	CacheEntries int
}

// DefaultOptions returns markdown output with the stock render options and a
// ten minute cache.
func DefaultOptions() Options {
	return Options{
		Format:       "markdown",
		Render:       render.DefaultOptions(),
		CacheTTL:     10 * time.Minute,
		CacheEntries: 512,
	}
}

// Converter is safe for concurrent use.
type Converter struct {
	opts  Options
	cache *cache.TTLCache[string, Result]
}

// New creates a Converter.
func New(opts Options) *Converter {
	if opts.Format == "" {
		opts.Format = "markdown"
	}
	if opts.Render.MinChordWidth <= 0 {
		opts.Render.MinChordWidth = render.DefaultMinChordWidth
	}
	return &Converter{
		opts:  opts,
		cache: cache.New[string, Result](opts.CacheTTL, opts.CacheEntries),
	}
}

// Options returns the converter's defaults.
func (c *Converter) Options() Options { return c.opts }

// Parse parses source and logs the outcome under name.
func (c *Converter) Parse(name, source string) (*ast.Song, error) {
	start := time.Now()
	song, err := parser.Parse(source)
	if err != nil {
		return nil, err
	}
	chords := 0
	song.Chords(func(*ast.Chord) { chords++ })
	logging.SongParsed(name, len(song.Blocks), chords, time.Since(start))
	return song, nil
}

// Convert renders req.Source. Parse, key and option errors are returned
// unwrapped so callers can match them with errors.As.
func (c *Converter) Convert(req Request) (*Result, error) {
	start := time.Now()

	format := req.Format
	if format == "" {
		format = c.opts.Format
	}
	backend, err := render.BackendFor(format)
	if err != nil {
		return nil, err
	}
	format = formatName(backend)

	opts := c.opts.Render
	if req.Layout != "" {
		layout, err := render.ParseLayout(req.Layout)
		if err != nil {
			return nil, err
		}
		opts.Layout = layout
	}

	key := cache.Key(req.Source, format, opts.Layout.String(), cacheSteps(req.Semitones), opts.MinChordWidth)
	if cached, ok := c.cache.Get(key); ok {
		cached.CacheHit = true
		cached.Duration = time.Since(start)
		logging.SongRendered(req.Name, format, len(cached.Output), true)
		return &cached, nil
	}

	song, err := c.Parse(req.Name, req.Source)
	if err != nil {
		return nil, err
	}
	if req.Semitones != 0 {
		song, err = transpose.Transpose(song, req.Semitones)
		if err != nil {
			return nil, err
		}
		newKey, _ := song.Directive(ast.DirectiveKey)
		logging.SongTransposed(req.Name, req.Semitones, newKey)
	}

	out := render.New(opts).Render(song, backend)
	res := Result{
		Output: out,
		Format: format,
		Layout:   opts.Layout.String(),
		CacheKey: key,
	}
	res.Title, _ = song.Directive(ast.DirectiveTitle)
	res.Key, _ = song.Directive(ast.DirectiveKey)
	c.cache.Set(key, res)

	res.Duration = time.Since(start)
	logging.SongRendered(req.Name, format, len(out), false)
	return &res, nil
}

// CacheLen reports how many rendered results are cached.
func (c *Converter) CacheLen() int { return c.cache.Len() }

// Invalidate drops every cached result.
func (c *Converter) Invalidate() { c.cache.Invalidate() }

// cacheSteps reduces semitones to the step count that determines the output.
// An octave shift still validates the key, so it gets its own entry.
func cacheSteps(semitones int) int {
	steps := transpose.Steps(semitones)
	if steps == 0 && semitones != 0 {
		return 12
	}
	return steps
}

func formatName(b render.Backend) string {
	switch b.(type) {
	case render.HTML:
		return "html"
	default:
		return "markdown"
	}
}
