package api

import (
	"net/http"

	"github.com/brainsh/brain/internal/errors"
	"github.com/brainsh/brain/internal/task"
)

// handleProjects lists every project with a task directory.
func (s *Server) handleProjects(w http.ResponseWriter, _ *http.Request) {
	projects, err := s.svc.ListProjects()
	if err != nil {
		HandleError(w, err)
		return
	}
	if projects == nil {
		projects = []string{}
	}
	JSONResponse(w, map[string]any{
		"projects": projects,
		"count":    len(projects),
	})
}

// knownProject guards the per-project endpoints against typos: an unknown
// project is a 404, not an empty list.
func (s *Server) knownProject(project string) error {
	projects, err := s.svc.ListProjects()
	if err != nil {
		return err
	}
	for _, p := range projects {
		if p == project {
			return nil
		}
	}
	return errors.ErrProjectNotFound(project)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	if err := s.knownProject(project); err != nil {
		HandleError(w, err)
		return
	}

	tasks, err := s.svc.ListTasks(r.Context(), project)
	if err != nil {
		HandleError(w, err)
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	JSONResponse(w, map[string]any{
		"project": project,
		"tasks":   tasks,
		"count":   len(tasks),
	})
}

func (s *Server) handleTaskSelection(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	selection := r.PathValue("selection")
	if err := s.knownProject(project); err != nil {
		HandleError(w, err)
		return
	}

	result, err := s.svc.Classify(r.Context(), project)
	if err != nil {
		HandleError(w, err)
		return
	}

	switch selection {
	case "ready":
		writeSelection(w, project, result.Ready(), result.Stats.Ready)
	case "waiting":
		tasks := append(result.ByClassification(task.ClassWaiting),
			result.ByClassification(task.ClassWaitingOnParent)...)
		writeSelection(w, project, tasks, len(tasks))
	case "blocked":
		tasks := append(result.ByClassification(task.ClassBlocked),
			result.ByClassification(task.ClassBlockedByParent)...)
		writeSelection(w, project, tasks, len(tasks))
	case "next":
		next := result.Next()
		if next == nil {
			HandleError(w, errors.New(errors.CodeTaskNotFound, "no ready task in %s", project))
			return
		}
		JSONResponse(w, next)
	default:
		HandleError(w, errors.New(errors.CodeInvalidRequest,
			"unknown selection %q: want ready, waiting, blocked, or next", selection))
	}
}

func writeSelection(w http.ResponseWriter, project string, tasks []task.Resolved, count int) {
	if tasks == nil {
		tasks = []task.Resolved{}
	}
	JSONResponse(w, map[string]any{
		"project": project,
		"tasks":   tasks,
		"count":   count,
	})
}
