// Package sections extracts H2/H3 sections from markdown entry bodies.
package sections

import (
	"strings"
)

// Header is one addressable section heading.
type Header struct {
	Title string `json:"title"`
	Level int    `json:"level"` // 2 or 3
	Line  int    `json:"line"`  // 1-based
}

// headerAt parses a markdown line into a header, returning ok=false for
// anything that is not an H2 or H3.
func headerAt(line string) (Header, bool) {
	switch {
	case strings.HasPrefix(line, "### "):
		return Header{Title: strings.TrimSpace(line[4:]), Level: 3}, true
	case strings.HasPrefix(line, "## "):
		return Header{Title: strings.TrimSpace(line[3:]), Level: 2}, true
	}
	return Header{}, false
}

// List returns all H2/H3 headers of a markdown body in document order.
func List(body string) []Header {
	var headers []Header
	for i, line := range strings.Split(body, "\n") {
		if h, ok := headerAt(line); ok {
			h.Line = i + 1
			headers = append(headers, h)
		}
	}
	return headers
}

// Extract returns the body of the first section whose title matches
// (case-insensitive). With includeSubsections, deeper headings stay part of
// the section; otherwise any following H2/H3 ends it.
func Extract(body, title string, includeSubsections bool) (string, bool) {
	lines := strings.Split(body, "\n")

	start := -1
	level := 0
	for i, line := range lines {
		h, ok := headerAt(line)
		if !ok {
			continue
		}
		if strings.EqualFold(h.Title, title) {
			start = i + 1
			level = h.Level
			break
		}
	}
	if start < 0 {
		return "", false
	}

	end := len(lines)
	for i := start; i < len(lines); i++ {
		h, ok := headerAt(lines[i])
		if !ok {
			continue
		}
		if !includeSubsections || h.Level <= level {
			end = i
			break
		}
	}

	return strings.TrimSpace(strings.Join(lines[start:end], "\n")), true
}
