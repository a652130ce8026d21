package executor

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// Unit : what the completed counter of the tasks measures
type Unit string

const (
	UnitRows  Unit = "rows"
	UnitBytes Unit = "bytes"
)

// Progress : one sample of the execute phase
type Progress struct {
	Total     int
	Complete  int
	Failed    int
	Executing int
	Size      int64
	Completed int64
	Percent   float64
	// Speed : units per second, 0 while unknown
	Speed float64
	// ETA : negative while unknown
	ETA     time.Duration
	Elapsed time.Duration
	Unit    Unit
}

func (p Progress) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%.2f%% (%d/%d)", p.Percent, p.Complete+p.Failed, p.Total)
	if p.Executing > 0 {
		fmt.Fprintf(&sb, ", %d running", p.Executing)
	}
	if p.Failed > 0 {
		fmt.Fprintf(&sb, ", %d failed", p.Failed)
	}
	if p.Speed > 0 {
		sb.WriteString(", ")
		sb.WriteString(p.Unit.rate(p.Speed))
	}
	if p.ETA >= 0 {
		sb.WriteString(", ")
		sb.WriteString(FormatETA(p.ETA))
	}
	return sb.String()
}

func (u Unit) rate(perSecond float64) string {
	if u == UnitBytes {
		return humanize.Bytes(uint64(perSecond)) + "/s"
	}
	return humanize.CommafWithDigits(perSecond, 1) + " " + string(u) + "/s"
}

// FormatETA : H:mm:ss
func FormatETA(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%d:%02d:%02d", h, m, d/time.Second)
}

// Reporter : receives the samples of both phases
type Reporter interface {
	Initialized(initialized int, total int)
	Progress(p Progress)
	Done(p Progress)
}

// LogReporter : one log line per sample
type LogReporter struct {
	log zerolog.Logger
}

func NewLogReporter(log zerolog.Logger, unit Unit) *LogReporter {
	return &LogReporter{log: log.With().Str("component", "progress").Str("unit", string(unit)).Logger()}
}

func (r *LogReporter) Initialized(initialized int, total int) {
	r.log.Info().Msgf("%d/%d tasks initialized", initialized, total)
}

func (r *LogReporter) Progress(p Progress) {
	r.log.Info().Msg(p.String())
}

func (r *LogReporter) Done(p Progress) {
	r.log.Info().
		Int("complete", p.Complete).
		Int("failed", p.Failed).
		Str("elapsed", FormatETA(p.Elapsed)).
		Msg(p.String())
}

// BarReporter : interactive progress bar, the bar is created once sizes are known
type BarReporter struct {
	mu  sync.Mutex
	out io.Writer
	bar *progressbar.ProgressBar
}

func NewBarReporter(out io.Writer) *BarReporter {
	return &BarReporter{out: out}
}

func (r *BarReporter) Initialized(initialized int, total int) {}

func (r *BarReporter) Progress(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar == nil {
		r.bar = progressbar.NewOptions64(p.Size,
			progressbar.OptionSetWriter(r.out),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionShowBytes(p.Unit == UnitBytes),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
	}
	r.bar.Describe(fmt.Sprintf("(%d/%d) %d running", p.Complete+p.Failed, p.Total, p.Executing))
	_ = r.bar.Set64(p.Completed)
}

func (r *BarReporter) Done(p Progress) {
	r.Progress(p)
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.bar.Finish()
	fmt.Fprintln(r.out)
}
