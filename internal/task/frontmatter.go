package task

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontMatterDelim = "---"

// ParseFile splits a task markdown file into its metadata header and body.
// The header is a YAML block delimited by "---" lines at the top of the file.
func ParseFile(data []byte) (*Task, string, error) {
	content := string(data)
	if !strings.HasPrefix(content, frontMatterDelim) {
		return nil, "", fmt.Errorf("missing metadata header")
	}

	rest := content[len(frontMatterDelim):]
	// Header ends at the next delimiter on its own line.
	end := strings.Index(rest, "\n"+frontMatterDelim)
	if end < 0 {
		return nil, "", fmt.Errorf("unterminated metadata header")
	}

	header := rest[:end]
	body := rest[end+len(frontMatterDelim)+1:]
	body = strings.TrimPrefix(body, "\n")

	var t Task
	if err := yaml.Unmarshal([]byte(header), &t); err != nil {
		return nil, "", fmt.Errorf("parse metadata header: %w", err)
	}
	return &t, body, nil
}

// EncodeFile renders a task and body back into file form.
func EncodeFile(t *Task, body string) ([]byte, error) {
	header, err := yaml.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata header: %w", err)
	}

	var b strings.Builder
	b.WriteString(frontMatterDelim)
	b.WriteString("\n")
	b.Write(header)
	b.WriteString(frontMatterDelim)
	b.WriteString("\n")
	if body != "" {
		b.WriteString(body)
	}
	return []byte(b.String()), nil
}

// RewriteStatus returns the file content with only the status field of the
// metadata header replaced, leaving the rest of the header text untouched.
// This keeps diffs minimal for files the runner mutates.
func RewriteStatus(data []byte, status Status) ([]byte, error) {
	t, body, err := ParseFile(data)
	if err != nil {
		return nil, err
	}
	t.Status = status
	return EncodeFile(t, body)
}
