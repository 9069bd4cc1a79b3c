package core

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// TimestampLayout renders envelope timestamps as DD/MM/YYYY HH:MM:SS.
const TimestampLayout = "02/01/2006 15:04:05"

// Message is a chat line relayed to every registered session.
type Message struct {
	From      Identity
	Body      string
	CreatedAt time.Time
}

// Render returns the envelope text: "<username> [<timestamp>]: <body>".
func (m Message) Render() string {
	return fmt.Sprintf("%s [%s]: %s", m.From.Username, m.CreatedAt.Format(TimestampLayout), m.Body)
}

// Fit returns a copy whose rendered envelope is at most limit bytes, cutting
// the body on a rune boundary. The header is never cut, so an oversized
// username still yields an envelope above limit with an empty body.
func (m Message) Fit(limit int) Message {
	header := len(m.From.Username) + len(" [") + len(TimestampLayout) + len("]: ")
	budget := limit - header
	if budget < 0 {
		budget = 0
	}
	if len(m.Body) <= budget {
		return m
	}
	for budget > 0 && !utf8.RuneStart(m.Body[budget]) {
		budget--
	}
	m.Body = m.Body[:budget]
	return m
}
