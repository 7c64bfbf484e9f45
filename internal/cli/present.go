package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

// Theme holds the console colors for outcomes. ANSI 256-color codes.
type Theme struct {
	Granted lipgloss.Color
	Denied  lipgloss.Color
	Muted   lipgloss.Color
	Failed  lipgloss.Color
	Label   lipgloss.Color
}

var DefaultTheme = Theme{
	Granted: lipgloss.Color("42"),
	Denied:  lipgloss.Color("196"),
	Muted:   lipgloss.Color("244"),
	Failed:  lipgloss.Color("208"),
	Label:   lipgloss.Color("252"),
}

// Presenter prints one line per outcome for the person at the reader.
// It is safe for concurrent use by the reader loop and the HTTP bridge.
type Presenter struct {
	mu     sync.Mutex
	w      io.Writer
	json   bool
	loc    *time.Location
	banner lipgloss.Style
	theme  Theme
}

func NewPresenter(w io.Writer, format string, loc *time.Location) *Presenter {
	if loc == nil {
		loc = time.Local
	}
	return &Presenter{
		w:      w,
		json:   format == "json",
		loc:    loc,
		banner: lipgloss.NewStyle().Bold(true).Padding(0, 1),
		theme:  DefaultTheme,
	}
}

type outcomeLine struct {
	Outcome      types.OutcomeKind `json:"outcome"`
	Granted      bool              `json:"granted"`
	Transition   types.Transition  `json:"transition,omitempty"`
	ExternalCode string            `json:"external_code,omitempty"`
	DisplayName  string            `json:"display_name,omitempty"`
	At           time.Time         `json:"at"`
	DwellSeconds *int64            `json:"dwell_seconds,omitempty"`
	Error        string            `json:"error,omitempty"`
}

func (p *Presenter) Present(out types.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		line := outcomeLine{
			Outcome:      out.Kind,
			Granted:      out.Granted(),
			Transition:   out.Transition,
			ExternalCode: out.Identity.ExternalCode,
			DisplayName:  out.Identity.DisplayName,
			At:           out.ObservedAt,
		}
		if out.Dwell != nil {
			secs := int64(out.Dwell.Duration() / time.Second)
			line.DwellSeconds = &secs
		}
		if out.Err != nil {
			line.Error = out.Err.Error()
		}
		_ = json.NewEncoder(p.w).Encode(line)
		return
	}

	fmt.Fprintln(p.w, p.Render(out))
}

// Render formats out as a single styled console line.
func (p *Presenter) Render(out types.Outcome) string {
	at := out.ObservedAt.In(p.loc).Format("15:04:05")
	label := lipgloss.NewStyle().Foreground(p.theme.Label)
	muted := lipgloss.NewStyle().Foreground(p.theme.Muted)

	switch out.Kind {
	case types.OutcomeGranted:
		word := "ENTRY"
		if out.Transition == types.TransitionExit {
			word = "EXIT"
		}
		s := p.banner.Foreground(p.theme.Granted).Render(word) + " " +
			label.Render(fmt.Sprintf("%s (%s)", out.Identity.DisplayName, out.Identity.ExternalCode)) + " " +
			muted.Render(at)
		if out.Dwell != nil {
			s += " " + muted.Render("stayed "+FormatDwell(out.Dwell.Duration()))
		}
		if out.SnapshotErr != nil || out.DwellErr != nil {
			s += " " + lipgloss.NewStyle().Foreground(p.theme.Failed).Render("(storage warning)")
		}
		return s
	case types.OutcomeUnknown:
		return p.banner.Foreground(p.theme.Denied).Render("DENIED") + " " +
			label.Render("unknown card "+out.CardID.String()) + " " + muted.Render(at)
	case types.OutcomeCooldown:
		return muted.Render("repeat read ignored " + at)
	}
	return p.banner.Foreground(p.theme.Failed).Render("NOT RECORDED") + " " +
		label.Render("please present the card again") + " " + muted.Render(at)
}

// FormatDwell renders d as 1h02m03s.
func FormatDwell(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
}
