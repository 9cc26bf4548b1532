package chess

import (
	"fmt"
	"strings"
	"time"
)

type pgnHeaders struct {
	Event       string
	Site        string
	Date        time.Time
	White       string
	Black       string
	WhiteElo    int
	BlackElo    int
	ECO         string
	Opening     string
	Termination string
	Result      string
}

func buildPGN(h pgnHeaders, movesSAN []string) string {
	result := strings.TrimSpace(h.Result)
	if result == "" {
		result = "*"
	}
	date := h.Date
	if date.IsZero() {
		date = time.Now()
	}
	event := h.Event
	if strings.TrimSpace(event) == "" {
		event = "ASCII Chess"
	}
	site := h.Site
	if strings.TrimSpace(site) == "" {
		site = "Terminal"
	}

	var b strings.Builder
	writeTag := func(name, value string) {
		fmt.Fprintf(&b, "[%s \"%s\"]\n", name, sanitizePGN(value))
	}
	writeTag("Event", event)
	writeTag("Site", site)
	writeTag("Date", fmt.Sprintf("%04d.%02d.%02d", date.Year(), int(date.Month()), date.Day()))
	writeTag("Round", "-")
	writeTag("White", h.White)
	writeTag("Black", h.Black)
	writeTag("Result", result)
	if h.WhiteElo > 0 {
		writeTag("WhiteElo", fmt.Sprint(h.WhiteElo))
	}
	if h.BlackElo > 0 {
		writeTag("BlackElo", fmt.Sprint(h.BlackElo))
	}
	if strings.TrimSpace(h.ECO) != "" {
		writeTag("ECO", h.ECO)
	}
	if strings.TrimSpace(h.Opening) != "" {
		writeTag("Opening", h.Opening)
	}
	if strings.TrimSpace(h.Termination) != "" {
		writeTag("Termination", h.Termination)
	}
	b.WriteString("\n")

	for i := 0; i < len(movesSAN); i += 2 {
		fmt.Fprintf(&b, "%d. %s ", i/2+1, strings.TrimSpace(movesSAN[i]))
		if i+1 < len(movesSAN) {
			b.WriteString(strings.TrimSpace(movesSAN[i+1]))
			b.WriteString(" ")
		}
	}
	b.WriteString(result)
	b.WriteString("\n")
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
