package acquisition

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Stats summarizes a session.
type Stats struct {
	// Frames counts frames that were fully processed. Incomplete frames
	// are not included, but the time spent on them is part of Elapsed.
	Frames     int
	Incomplete int
	// Sent counts records delivered to the consumer.
	Sent    int
	Start   time.Time
	Elapsed time.Duration
}

// FrameRate returns processed frames per second, or 0 if there are none.
func (s Stats) FrameRate() float64 {
	if s.Frames == 0 || s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Frames) / s.Elapsed.Seconds()
}

// PerFrame returns the mean time per processed frame, or 0 if there are
// none.
func (s Stats) PerFrame() time.Duration {
	if s.Frames == 0 {
		return 0
	}
	return s.Elapsed / time.Duration(s.Frames)
}

func ms(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 3, 64)
}

// Report writes the throughput summary of s to w.
func Report(w io.Writer, s Stats) error {
	if s.Frames == 0 {
		_, err := fmt.Fprintln(w, "no frames processed")
		return err
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Net time (ms)", ms(s.Elapsed)},
		{"Frames processed", s.Frames},
		{"Incomplete frames", s.Incomplete},
		{"Coordinates sent", s.Sent},
		{"Framerate (Hz)", strconv.FormatFloat(s.FrameRate(), 'f', 2, 64)},
		{"Time per frame (ms)", ms(s.PerFrame())},
	})
	t.Render()
	return nil
}
