package service

import (
	"context"
	"strings"

	"github.com/brainsh/brain/internal/task"
)

// ValidationIssue reports one dependency reference that did not resolve,
// with up to three nearest-match suggestions.
type ValidationIssue struct {
	Reference   string   `json:"reference"`
	Suggestions []string `json:"suggestions,omitempty"`
}

const maxSuggestions = 3

// ValidateDeps checks raw dependency references against a project's current
// tasks. References are normalized first (strip .md, path prefixes, parse
// project: prefixes). A nil return means every reference resolved.
func (s *Service) ValidateDeps(ctx context.Context, project string, refs []string) ([]ValidationIssue, error) {
	tasks, err := s.ListTasks(ctx, project)
	if err != nil {
		return nil, err
	}

	var issues []ValidationIssue
	for _, raw := range refs {
		ref := task.ParseRef(raw)

		targetProject := project
		if ref.Project != "" {
			targetProject = ref.Project
		}

		candidates := tasks
		if targetProject != project {
			candidates, err = s.ListTasks(ctx, targetProject)
			if err != nil {
				return nil, err
			}
		}

		if resolves(candidates, ref.Value) {
			continue
		}
		issues = append(issues, ValidationIssue{
			Reference:   raw,
			Suggestions: suggest(candidates, ref.Value),
		})
	}
	return issues, nil
}

func resolves(tasks []task.Task, ref string) bool {
	for _, t := range tasks {
		if t.ID == ref || t.Title == ref {
			return true
		}
	}
	return false
}

// suggest returns up to maxSuggestions tasks whose id or title is a
// substring or case-insensitive match for the reference.
func suggest(tasks []task.Task, ref string) []string {
	lower := strings.ToLower(ref)
	var out []string
	for _, t := range tasks {
		if len(out) >= maxSuggestions {
			break
		}
		switch {
		case strings.EqualFold(t.Title, ref),
			strings.Contains(strings.ToLower(t.Title), lower),
			strings.Contains(strings.ToLower(t.ID), lower):
			out = append(out, t.ID+" ("+t.Title+")")
		}
	}
	return out
}
