// Package report stores gathered evidence as numbered steps per test:
// one PNG per distinct screenshot and a JSON-lines log of every step.
//
// Layout:
//
//	<dir>/<test>/entries.jsonl
//	<dir>/<test>/001.png
//	<dir>/<test>/002.png
package report

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/gatherer/fingerprint"
	"github.com/use-agent/gatherer/gatherer"
	"github.com/use-agent/gatherer/models"
)

const (
	entriesFile = "entries.jsonl"
	paletteSize = 3
)

var (
	// ErrInvalidTest is returned for a test name with no usable characters.
	ErrInvalidTest = errors.New("report: invalid test name")

	// ErrNoReport is returned by Entries for a test nothing was recorded for.
	ErrNoReport = errors.New("report: no entries recorded")

	// ErrNoScreenshot is returned by ScreenshotPath for an unknown file.
	ErrNoScreenshot = errors.New("report: no such screenshot")
)

var screenshotName = regexp.MustCompile(`^[0-9]{3,}\.png$`)

// Entry is one recorded step.
type Entry = models.ReportEntry

// Step describes what to record.
type Step struct {
	Name     string
	FullPage bool
}

// Evidence is what was gathered for a step.
type Evidence struct {
	Location   gatherer.Result[string]
	Screenshot gatherer.Result[[]byte] // PNG
	HTML       string
}

// Options configures a Recorder.
type Options struct {
	// Dedup stores a screenshot that is pixel-identical to the test's
	// previous stored one only by reference to the earlier file.
	Dedup bool

	Logger *slog.Logger
}

// Recorder writes evidence under a root directory. It is safe for
// concurrent use.
type Recorder struct {
	dir    string
	g      *gatherer.Gatherer
	dedup  bool
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	tests map[string]*testState
}

// testState tracks numbering and the last stored screenshot of one test.
type testState struct {
	seq      int
	last     uint64
	lastFile string

	// lastText is the visible-text fingerprint of the latest step that
	// had a page source.
	lastText uint64
	hasText  bool
}

// NewRecorder returns a Recorder rooted at dir. g gathers the evidence for
// Record and may be nil.
func NewRecorder(dir string, g *gatherer.Gatherer, opts Options) *Recorder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		dir:    dir,
		g:      g,
		dedup:  opts.Dedup,
		logger: logger,
		now:    time.Now,
		tests:  make(map[string]*testState),
	}
}

// Record gathers the location and a screenshot from s and stores them as
// the next step of test. Gathering failures are recorded in the entry; the
// error is reserved for storage failures.
func (r *Recorder) Record(ctx context.Context, test string, step Step, s gatherer.Session) (*Entry, error) {
	ev := Evidence{Location: r.g.Location(ctx, s)}
	if step.FullPage {
		ev.Screenshot = r.g.FullPagePNG(ctx, s)
	} else {
		ev.Screenshot = r.g.Screenshot(ctx, s)
	}
	if src, ok := s.(gatherer.HTMLSource); ok {
		if html, err := src.HTML(ctx); err == nil {
			ev.HTML = html
		} else {
			r.logger.Debug("report: page source unavailable", "test", test, "error", err)
		}
	}
	return r.Add(test, step, ev)
}

// Add stores already gathered evidence as the next step of test.
func (r *Recorder) Add(test string, step Step, ev Evidence) (*Entry, error) {
	name, err := SanitizeName(test)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(r.dir, name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create %s: %w", dir, err)
	}
	st, err := r.state(name, dir)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Seq:              st.seq + 1,
		Test:             name,
		Step:             step.Name,
		Time:             r.now().UTC().Format(time.RFC3339Nano),
		Location:         ev.Location.Value,
		LocationStatus:   ev.Location.Status.String(),
		ScreenshotStatus: ev.Screenshot.Status.String(),
	}
	if entry.Location == "" {
		entry.Location = gatherer.NoLocation
	}
	var errs []string
	if ev.Location.Err != nil && ev.Location.Status == gatherer.StatusFailed {
		errs = append(errs, "location: "+ev.Location.Err.Error())
	}
	if ev.Screenshot.Err != nil && ev.Screenshot.Status == gatherer.StatusFailed {
		errs = append(errs, "screenshot: "+ev.Screenshot.Err.Error())
	}
	var text uint64
	if ev.HTML != "" {
		entry.DOMFingerprint = hex64(fingerprint.DOM(ev.HTML))
		text = fingerprint.PageText(ev.HTML)
		entry.TextFingerprint = hex64(text)
		entry.TextUnchanged = st.hasText && fingerprint.Similar(text, st.lastText, fingerprint.TextDistance)
	}

	var hash uint64
	var file string
	if ev.Screenshot.OK() {
		img, decodeErr := png.Decode(bytes.NewReader(ev.Screenshot.Value))
		if decodeErr != nil {
			errs = append(errs, "screenshot: "+decodeErr.Error())
		} else {
			hash = fingerprint.Image(img)
			entry.Fingerprint = hex64(hash)
			r.describe(entry, img)
		}

		if decodeErr == nil && r.repeats(st, dir, hash, img) {
			entry.Screenshot = st.lastFile
			entry.Duplicate = true
		} else {
			file = fmt.Sprintf("%03d.png", entry.Seq)
			if err := os.WriteFile(filepath.Join(dir, file), ev.Screenshot.Value, 0o644); err != nil {
				return nil, fmt.Errorf("report: write screenshot: %w", err)
			}
			entry.Screenshot = file
		}
	}
	entry.Error = strings.Join(errs, "; ")

	if err := appendEntry(filepath.Join(dir, entriesFile), entry); err != nil {
		if file != "" {
			_ = os.Remove(filepath.Join(dir, file))
		}
		return nil, err
	}

	st.seq = entry.Seq
	if entry.TextFingerprint != "" {
		st.lastText, st.hasText = text, true
	}
	if file != "" && entry.Fingerprint != "" {
		st.last, st.lastFile = hash, file
	}
	r.logger.Debug("report: step recorded",
		"test", name,
		"seq", entry.Seq,
		"step", entry.Step,
		"screenshot", entry.Screenshot,
		"duplicate", entry.Duplicate,
	)
	return entry, nil
}

// repeats reports whether img is pixel-identical to the last screenshot
// stored for the test. The dHash only rules candidates out; a matching
// hash is confirmed against the stored file.
func (r *Recorder) repeats(st *testState, dir string, hash uint64, img image.Image) bool {
	if !r.dedup || st.lastFile == "" || hash != st.last {
		return false
	}
	f, err := os.Open(filepath.Join(dir, st.lastFile))
	if err != nil {
		r.logger.Debug("report: previous screenshot unreadable", "file", st.lastFile, "error", err)
		return false
	}
	defer f.Close()
	prev, err := png.Decode(f)
	if err != nil {
		r.logger.Debug("report: previous screenshot undecodable", "file", st.lastFile, "error", err)
		return false
	}
	return samePixels(prev, img)
}

// samePixels compares two images pixel by pixel in RGBA space.
func samePixels(a, b image.Image) bool {
	if a.Bounds().Size() != b.Bounds().Size() {
		return false
	}
	return bytes.Equal(toRGBA(a).Pix, toRGBA(b).Pix)
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == 4*rgba.Rect.Dx() {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// describe adds the screenshot's prominent colours to entry and flags a
// blank page.
func (r *Recorder) describe(entry *Entry, img image.Image) {
	palette, err := fingerprint.Palette(img, paletteSize)
	if err != nil {
		r.logger.Debug("report: palette unavailable", "test", entry.Test, "seq", entry.Seq, "error", err)
		return
	}
	for _, sw := range palette {
		entry.Palette = append(entry.Palette, sw.Hex)
	}
	entry.Blank = fingerprint.Blank(palette)
	if entry.Blank {
		r.logger.Warn("report: screenshot is blank",
			"test", entry.Test,
			"seq", entry.Seq,
			"location", entry.Location,
			"color", palette[0].Hex,
		)
	}
}

// Entries returns the recorded steps of test in order.
func (r *Recorder) Entries(test string) ([]Entry, error) {
	name, err := SanitizeName(test)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := readEntries(filepath.Join(r.dir, name, entriesFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoReport
	}
	return entries, err
}

// ScreenshotPath returns the path of a stored screenshot of test. file must
// be a name as it appears in Entry.Screenshot.
func (r *Recorder) ScreenshotPath(test, file string) (string, error) {
	name, err := SanitizeName(test)
	if err != nil {
		return "", err
	}
	if !screenshotName.MatchString(file) {
		return "", fmt.Errorf("%w: %q", ErrNoScreenshot, file)
	}
	path := filepath.Join(r.dir, name, file)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %q", ErrNoScreenshot, file)
	}
	return path, nil
}

// state returns the in-memory state of a test, resuming numbering and
// dedup from entries already on disk. Callers hold r.mu.
func (r *Recorder) state(name, dir string) (*testState, error) {
	if st, ok := r.tests[name]; ok {
		return st, nil
	}
	st := &testState{}
	entries, err := readEntries(filepath.Join(dir, entriesFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	for _, e := range entries {
		st.seq = max(st.seq, e.Seq)
		if e.TextFingerprint != "" {
			if h, err := strconv.ParseUint(e.TextFingerprint, 16, 64); err == nil {
				st.lastText, st.hasText = h, true
			}
		}
		if e.Screenshot != "" && !e.Duplicate && e.Fingerprint != "" {
			if h, err := strconv.ParseUint(e.Fingerprint, 16, 64); err == nil {
				st.last, st.lastFile = h, e.Screenshot
			}
		}
	}
	r.tests[name] = st
	return st, nil
}

func appendEntry(path string, e *Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("report: marshal entry: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("report: open %s: %w", path, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("report: append entry: %w", err)
	}
	return f.Close()
}

func readEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("report: %s line %d: %w", path, line, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("report: read %s: %w", path, err)
	}
	return entries, nil
}

func hex64(v uint64) string {
	return fmt.Sprintf("%016x", v)
}

// SanitizeName maps a test name to a single safe path element: characters
// outside [A-Za-z0-9._-] become '_', and leading dots are dropped.
func SanitizeName(test string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(test) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.TrimLeft(b.String(), ".")
	if len(name) > 128 {
		name = name[:128]
	}
	if strings.Trim(name, "_") == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTest, test)
	}
	return name, nil
}
