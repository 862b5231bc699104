package executor

import (
	"fmt"

	"github.com/brainsh/brain/internal/task"
)

// freshPrompt is the default instruction for a task's first run.
const freshPrompt = `You are working on the task described in %s.
Read the task file, complete the work it describes, and keep its status field
up to date: set status to completed when done, or blocked with a note in the
file body if you cannot proceed.`

// resumePrompt is used when a task was interrupted mid-run.
const resumePrompt = `You were previously working on the task described in %s
but the session was interrupted. Review the task file and the current state of
the working directory, then continue from where the work left off. Set the
task status to completed when done, or blocked with a note if you cannot
proceed.`

// BuildPrompt returns the prompt text for a task. A direct_prompt on the
// task bypasses the templates entirely.
func BuildPrompt(t *task.Task, resume bool) string {
	if t.DirectPrompt != "" {
		return t.DirectPrompt
	}
	if resume {
		return fmt.Sprintf(resumePrompt, t.Path)
	}
	return fmt.Sprintf(freshPrompt, t.Path)
}
