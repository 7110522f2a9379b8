// Package surface builds what an alarm looks like: the overlay payload sent
// to browser tabs, the fallback window URL and the embedded pages that render
// both.
package surface

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/larkalarm/pkg/messages"
	"github.com/harrisonrobin/larkalarm/pkg/model"
)

const (
	// WarningWindow is how close to its deadline a task turns amber.
	WarningWindow = 30 * time.Minute

	detailURL       = "https://applink.larksuite.com/client/todo/detail"
	maxTitleRunes   = 100
	noSummary       = "No summary"
	notSet          = "Not set"
	dueLayout       = "02/01/2006 15:04"
	defaultHeader   = "Task Reminder"
	fallbackWindowW = 600
	fallbackWindowH = 500
)

// Level is the urgency an alarm is drawn with.
type Level int

const (
	LevelNormal Level = iota
	LevelWarning
	LevelOverdue
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelOverdue:
		return "overdue"
	default:
		return "normal"
	}
}

// Classify returns the level for a deadline at now. Tasks without a deadline
// are always normal.
func Classify(due *time.Time, now time.Time) Level {
	if due == nil || due.IsZero() {
		return LevelNormal
	}
	if now.After(*due) {
		return LevelOverdue
	}
	if due.Sub(now) <= WarningWindow {
		return LevelWarning
	}
	return LevelNormal
}

// Header returns the icon and title line for level, picking a random line
// for the urgent levels.
func Header(level Level, picker messages.Picker) (icon, title string) {
	switch level {
	case LevelOverdue:
		return "🔥", picker.Random(messages.Urgent)
	case LevelWarning:
		return "⚠️", picker.Random(messages.Warning)
	default:
		return "🔔", defaultHeader
	}
}

// DueText formats a deadline as DD/MM/YYYY HH:MM in its own location.
func DueText(due *time.Time) string {
	if due == nil || due.IsZero() {
		return notSet
	}
	return due.Format(dueLayout)
}

func DetailURL(guid string) string {
	return detailURL + "?guid=" + url.QueryEscape(guid)
}

// Alarm is the payload an overlay renders. Its JSON form is what the content
// script's show call receives.
type Alarm struct {
	GUID      string `json:"guid"`
	Summary   string `json:"summary"`
	DueMillis int64  `json:"due_timestamp,omitempty"`
	DueText   string `json:"due_text"`
	Level     string `json:"level"`
	Icon      string `json:"icon"`
	Header    string `json:"header"`
	DetailURL string `json:"detail_url"`
	APIBase   string `json:"api_base"`
}

// NewAlarm renders task as of now. apiBase is where the overlay posts its
// dismiss action.
func NewAlarm(task model.Task, now time.Time, picker messages.Picker, apiBase string) Alarm {
	level := Classify(task.Due, now)
	icon, header := Header(level, picker)
	return Alarm{
		GUID:      task.GUID,
		Summary:   task.Summary,
		DueMillis: task.DueMillis(),
		DueText:   DueText(task.Due),
		Level:     level.String(),
		Icon:      icon,
		Header:    header,
		DetailURL: DetailURL(task.GUID),
		APIBase:   strings.TrimRight(apiBase, "/"),
	}
}

// SafeTitle shortens a summary for use in the fallback URL.
func SafeTitle(summary string) string {
	if summary == "" {
		summary = noSummary
	}
	r := []rune(summary)
	if len(r) > maxTitleRunes {
		r = r[:maxTitleRunes]
	}
	return strings.Map(func(c rune) rune {
		switch c {
		case '?', '&', '=':
			return ' '
		}
		return c
	}, string(r))
}

// FallbackURL is the page a standalone alarm window loads.
func FallbackURL(apiBase string, task model.Task) string {
	q := url.Values{}
	q.Set("guid", task.GUID)
	q.Set("title", SafeTitle(task.Summary))
	if task.HasDue() {
		q.Set("due", strconv.FormatInt(task.DueMillis(), 10))
	}
	return strings.TrimRight(apiBase, "/") + "/alarm?" + q.Encode()
}

// Fallback is what the alarm page recovers from its query string.
type Fallback struct {
	GUID  string
	Title string
	Due   *time.Time
}

// ParseFallback reads the parameters written by FallbackURL. A missing or
// malformed due leaves Due nil.
func ParseFallback(q url.Values) Fallback {
	f := Fallback{GUID: q.Get("guid"), Title: q.Get("title")}
	if ms, err := strconv.ParseInt(q.Get("due"), 10, 64); err == nil && ms > 0 {
		due := time.UnixMilli(ms)
		f.Due = &due
	}
	return f
}

// WindowBounds is a screen rectangle in pixels.
type WindowBounds struct {
	Left, Top, Width, Height int
}

// FallbackBounds centres the fallback window on parent. Without a parent
// the window goes to (100, 100). Negative offsets clamp to zero.
func FallbackBounds(parent *WindowBounds) WindowBounds {
	b := WindowBounds{Left: 100, Top: 100, Width: fallbackWindowW, Height: fallbackWindowH}
	if parent != nil && parent.Width > 0 {
		b.Left = parent.Left + roundHalf(parent.Width-fallbackWindowW)
		b.Top = parent.Top + roundHalf(parent.Height-fallbackWindowH)
	}
	b.Left = max(0, b.Left)
	b.Top = max(0, b.Top)
	return b
}

// roundHalf halves n rounding .5 towards positive infinity.
func roundHalf(n int) int {
	if n >= 0 {
		return (n + 1) / 2
	}
	return -((-n) / 2)
}
