package surface

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/harrisonrobin/larkalarm/pkg/messages"
)

//go:embed assets
var assets embed.FS

var alarmPage = template.Must(template.ParseFS(assets, "assets/alarm.html"))

// DismissBinding is the page global the content script calls with a GUID
// when a host exposes one instead of letting it fetch the HTTP API.
const DismissBinding = "__larkAlarmDismiss"

// ContentScript returns the overlay renderer injected into tabs. Evaluating
// it twice is harmless.
func ContentScript() []byte {
	b, _ := assets.ReadFile("assets/content.js")
	return b
}

// CallbackPage returns the page the login bridge redirects to.
func CallbackPage() []byte {
	b, _ := assets.ReadFile("assets/callback.html")
	return b
}

// ShowScript is a JS expression that draws a in a page where the content
// script runs. It throws if the script is not installed.
func ShowScript(a Alarm) (string, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("window.__larkAlarm.show(%s)", payload), nil
}

// RemoveScript is a JS expression removing guid's overlay.
func RemoveScript(guid string) string {
	payload, _ := json.Marshal(guid)
	return fmt.Sprintf("window.__larkAlarm && window.__larkAlarm.remove(%s)", payload)
}

type alarmPageData struct {
	GUID      string
	Title     string
	DueText   string
	Level     string
	Icon      string
	Header    string
	DetailURL string
}

// RenderAlarmPage writes the fallback window page for f as of now.
func RenderAlarmPage(w io.Writer, f Fallback, now time.Time, picker messages.Picker) error {
	level := Classify(f.Due, now)
	icon, header := Header(level, picker)
	title := f.Title
	if title == "" {
		title = "No summary provided"
	}
	return alarmPage.Execute(w, alarmPageData{
		GUID:      f.GUID,
		Title:     title,
		DueText:   DueText(f.Due),
		Level:     level.String(),
		Icon:      icon,
		Header:    header,
		DetailURL: DetailURL(f.GUID),
	})
}
