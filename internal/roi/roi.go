// Package roi keeps the region of interest that frames are cropped to
// before the pupil is searched, and persists it across runs.
package roi

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Label prefixes the persisted rectangle. Files written by older versions
// of the tracker carry the same label, so it must not change.
const Label = "(top left x, top left y, width, height) = "

// DefaultFile is where the rectangle is persisted unless configured
// otherwise.
const DefaultFile = "roi_coords.txt"

// ErrInvalid is returned for rectangles with negative fields.
var ErrInvalid = errors.New("invalid roi")

// Rect is a region of interest: top left corner, width and height.
type Rect struct {
	X, Y, W, H int
}

// Default is the rectangle used when none is persisted, and the one
// restored by Reset.
var Default = Rect{X: 0, Y: 0, W: 540, H: 720}

// FromRectangle converts r to a Rect.
func FromRectangle(r image.Rectangle) Rect {
	r = r.Canon()
	return Rect{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Rectangle returns r as an image.Rectangle.
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Validate reports whether every field is non-negative.
func (r Rect) Validate() error {
	if r.X < 0 || r.Y < 0 || r.W < 0 || r.H < 0 {
		return fmt.Errorf("%w: %v has negative fields", ErrInvalid, r)
	}
	return nil
}

// String formats r as a tuple, "(x, y, w, h)".
func (r Rect) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", r.X, r.Y, r.W, r.H)
}

// Format returns the persisted form of r, one labelled line.
func Format(r Rect) string {
	return Label + r.String() + "\n"
}

// Parse reads a rectangle in the form written by Format. Only the first
// line is considered.
func Parse(s string) (Rect, error) {
	line, _, _ := strings.Cut(s, "\n")
	line = strings.TrimSpace(line)
	rest, ok := strings.CutPrefix(line, strings.TrimSpace(Label))
	if !ok {
		return Rect{}, fmt.Errorf("%w: missing label in %q", ErrInvalid, line)
	}
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
		return Rect{}, fmt.Errorf("%w: %q is not a tuple", ErrInvalid, rest)
	}
	fields := strings.Split(rest[1:len(rest)-1], ",")
	if len(fields) != 4 {
		return Rect{}, fmt.Errorf("%w: want 4 fields, got %d", ErrInvalid, len(fields))
	}
	var vals [4]int
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return Rect{}, fmt.Errorf("%w: field %d: %v", ErrInvalid, i, err)
		}
		vals[i] = v
	}
	r := Rect{X: vals[0], Y: vals[1], W: vals[2], H: vals[3]}
	return r, r.Validate()
}

// Store holds the current rectangle and persists every change to a file.
// Replacing the rectangle is atomic with respect to Rect.
type Store struct {
	path string
	log  *zap.SugaredLogger

	mu   sync.RWMutex
	rect Rect
}

// Load reads the rectangle persisted at path. If the file is missing or
// unreadable the store starts with Default; this is logged, not returned.
func Load(path string, logger *zap.SugaredLogger) *Store {
	s := &Store{path: path, log: logger, rect: Default}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warnw("cannot read roi file, using default", "path", path, "roi", Default, "error", err)
		return s
	}
	r, err := Parse(string(data))
	if err != nil {
		logger.Warnw("cannot parse roi file, using default", "path", path, "roi", Default, "error", err)
		return s
	}
	s.rect = r
	logger.Infow("roi loaded", "path", path, "roi", r)
	return s
}

// Path returns the file the store persists to.
func (s *Store) Path() string { return s.path }

// Rect returns the current rectangle.
func (s *Store) Rect() Rect {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rect
}

// Set validates r, persists it and makes it current. If persisting fails
// the current rectangle is left unchanged.
func (s *Store) Set(r Rect) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.path, []byte(Format(r)), 0o644); err != nil {
		return fmt.Errorf("persist roi: %w", err)
	}
	s.rect = r
	s.log.Infow("roi file updated", "path", s.path, "roi", r)
	return nil
}

// Reset restores Default.
func (s *Store) Reset() error {
	return s.Set(Default)
}
