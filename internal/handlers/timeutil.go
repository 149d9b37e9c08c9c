package handlers

import (
	"html"
	"html/template"
	"strings"
	"time"
)

// TemplateFuncs formats times in the display timezone.
func TemplateFuncs(loc *time.Location) template.FuncMap {
	if loc == nil {
		loc = time.UTC
	}
	return template.FuncMap{
		"year":        func() string { return time.Now().In(loc).Format("2006") },
		"fmtDate":     func(t time.Time) string { return t.In(loc).Format("Mon, 02 Jan 2006") },
		"fmtISODate":  func(t time.Time) string { return t.In(loc).Format("2006-01-02") },
		"fmtDateTime": func(t time.Time) string { return t.In(loc).Format("Mon, 02 Jan 2006 15:04") },
		"nl2br":       nl2br,
	}
}

// nl2br escapes s and turns newlines into <br>.
func nl2br(s string) template.HTML {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	esc := html.EscapeString(s)
	return template.HTML(strings.ReplaceAll(esc, "\n", "<br>"))
}
