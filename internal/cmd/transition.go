package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/taskscope/internal/config"
	"github.com/Iron-Ham/taskscope/internal/errors"
	"github.com/Iron-Ham/taskscope/internal/search"
	"github.com/Iron-Ham/taskscope/internal/task"
	"github.com/Iron-Ham/taskscope/internal/taskstate"
	"github.com/Iron-Ham/taskscope/internal/tui/styles"
)

var transitionCmd = &cobra.Command{
	Use:   "transition <task-id> <state>",
	Short: "Move a task to a new status",
	Long: `Move a task to a new status.

The task's current status is looked up first and the change is checked
against the lifecycle before anything is sent:

  pending      -> in_progress, completed
  in_progress  -> blocked, completed
  blocked      -> in_progress, completed
  completed    (terminal)`,
	Args: cobra.ExactArgs(2),
	RunE: runTransition,
}

func init() {
	rootCmd.AddCommand(transitionCmd)
}

func runTransition(cmd *cobra.Command, args []string) error {
	taskID := args[0]
	to, err := taskstate.ParseState(args[1])
	if err != nil {
		return fmt.Errorf("%w (valid states: %s)", err, stateList())
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := loadTask(cmd, rt, taskID); err != nil {
		return err
	}

	before, _ := rt.tasks.Get(taskID)
	changes, err := rt.tasks.RequestTransition(cmd.Context(), taskID, to, rt.client)
	for _, ch := range changes {
		rt.store.InvalidateTask(ch)
	}
	if err != nil {
		if errors.Is(err, errors.ErrInvalidTransition) {
			current, _ := rt.tasks.Get(taskID)
			allowed := taskstate.AllowedTransitions(current.Status)
			if len(allowed) == 0 {
				return fmt.Errorf("%w: %s is terminal", err, current.Status)
			}
			return fmt.Errorf("%w (allowed from %s: %s)", err, current.Status, joinStates(allowed))
		}
		return err
	}

	t, _ := rt.tasks.Get(taskID)
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s → %s\n",
		styles.Title.Render(taskID), styles.Status(before.Status), styles.Status(t.Status))
	return nil
}

// loadTask fetches taskID into the collection by searching for its ID.
func loadTask(cmd *cobra.Command, rt *runtime, taskID string) error {
	q := search.DefaultQuery()
	q.Text = taskID
	q.Pagination.PageSize = config.MaxPageSize
	resp, err := rt.client.Search(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", taskID, err)
	}
	for _, t := range resp.Tasks {
		if t.ID == taskID {
			rt.tasks.Seed([]task.Task{t})
			return nil
		}
	}
	return errors.NewNotFoundError("task", taskID)
}

func stateList() string {
	return joinStates(taskstate.States())
}

func joinStates(states []taskstate.State) string {
	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
