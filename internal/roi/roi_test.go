package roi

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestFormat(t *testing.T) {
	got := Format(Rect{X: 12, Y: 34, W: 56, H: 78})
	assert.Equal(t, "(top left x, top left y, width, height) = (12, 34, 56, 78)\n", got)
	assert.Len(t, Label, 42)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Rect
		wantErr bool
	}{
		{name: "written by Format", in: Format(Rect{1, 2, 3, 4}), want: Rect{1, 2, 3, 4}},
		{name: "no newline", in: "(top left x, top left y, width, height) = (0, 0, 540, 720)", want: Default},
		{name: "tight tuple", in: "(top left x, top left y, width, height) = (5,6,7,8)\n", want: Rect{5, 6, 7, 8}},
		{name: "extra lines ignored", in: Format(Rect{9, 9, 9, 9}) + "garbage\n", want: Rect{9, 9, 9, 9}},
		{name: "crlf", in: "(top left x, top left y, width, height) = (1, 1, 2, 2)\r\n", want: Rect{1, 1, 2, 2}},
		{name: "empty", in: "", wantErr: true},
		{name: "no label", in: "(1, 2, 3, 4)\n", wantErr: true},
		{name: "three fields", in: Label + "(1, 2, 3)\n", wantErr: true},
		{name: "float field", in: Label + "(1.5, 2, 3, 4)\n", wantErr: true},
		{name: "not a tuple", in: Label + "1, 2, 3, 4\n", wantErr: true},
		{name: "negative", in: Label + "(-1, 2, 3, 4)\n", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRectConversions(t *testing.T) {
	r := Rect{X: 10, Y: 20, W: 30, H: 40}
	assert.Equal(t, image.Rect(10, 20, 40, 60), r.Rectangle())
	assert.Equal(t, r, FromRectangle(r.Rectangle()))
	assert.Equal(t, r, FromRectangle(image.Rectangle{Min: image.Pt(40, 60), Max: image.Pt(10, 20)}))
	assert.Equal(t, "(10, 20, 30, 40)", r.String())
}

func TestLoadMissingFileUsesDefault(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := Load(filepath.Join(t.TempDir(), "missing.txt"), zap.New(core).Sugar())

	assert.Equal(t, Default, s.Rect())
	assert.Equal(t, Rect{0, 0, 540, 720}, s.Rect())
	assert.Equal(t, 1, logs.FilterMessage("cannot read roi file, using default").Len())
}

func TestLoadCorruptFileUsesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("(top left x, top left y, width, height) = (a, b)\n"), 0o644))

	core, logs := observer.New(zapcore.InfoLevel)
	s := Load(path, zap.New(core).Sugar())

	assert.Equal(t, Default, s.Rect())
	assert.Equal(t, 1, logs.FilterMessage("cannot parse roi file, using default").Len())
}

func TestSetThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	logger := zaptest.NewLogger(t).Sugar()

	s := Load(path, logger)
	want := Rect{X: 101, Y: 57, W: 320, H: 240}
	require.NoError(t, s.Set(want))
	assert.Equal(t, want, s.Rect())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Format(want), string(data))

	assert.Equal(t, want, Load(path, logger).Rect())
}

func TestSetOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	s := Load(path, zaptest.NewLogger(t).Sugar())

	require.NoError(t, s.Set(Rect{1, 2, 300, 400}))
	require.NoError(t, s.Set(Rect{5, 6, 7, 8}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Format(Rect{5, 6, 7, 8}), string(data))
}

func TestSetRejectsNegative(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	s := Load(path, zaptest.NewLogger(t).Sugar())

	err := s.Set(Rect{X: -1, Y: 0, W: 10, H: 10})
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, Default, s.Rect())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSetPersistFailureKeepsRect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no-such-dir", DefaultFile)
	s := Load(path, zaptest.NewLogger(t).Sugar())

	err := s.Set(Rect{1, 1, 1, 1})
	assert.Error(t, err)
	assert.Equal(t, Default, s.Rect())
}

func TestReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	logger := zaptest.NewLogger(t).Sugar()
	s := Load(path, logger)

	require.NoError(t, s.Set(Rect{3, 3, 3, 3}))
	require.NoError(t, s.Reset())
	assert.Equal(t, Default, s.Rect())
	assert.Equal(t, Default, Load(path, logger).Rect())
}
