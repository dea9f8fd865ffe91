package automation

import (
	"strings"
	"time"

	"groupmgr/internal/model"
)

const renderTimeLayout = "2006-01-02 15:04"

// Render substitutes the fixed placeholder set with live event fields.
// Unknown braces pass through untouched; this is deliberately not a
// template language.
func Render(tpl string, ev *model.Event) string {
	if tpl == "" {
		return ""
	}
	r := strings.NewReplacer(
		"{EventName}", ev.Name,
		"{StartTime}", formatStart(ev.StartTime),
		"{Description}", ev.Description,
	)
	return r.Replace(tpl)
}

func formatStart(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(renderTimeLayout)
}
