package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/taskscope/internal/config"
	"github.com/Iron-Ham/taskscope/internal/search"
	"github.com/Iron-Ham/taskscope/internal/taskstate"
	"github.com/Iron-Ham/taskscope/internal/tui"
)

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Run one search and print the results",
	Long: `Run one search against the task service and print a page of results.

Query defaults (page size, sort) come from the search section of the config.

Examples:
  # Tasks mentioning "release"
  taskscope search release

  # Blocked or pending tasks assigned to alice, oldest first
  taskscope search --status blocked,pending --assignee alice --order asc

  # Second page as JSON
  taskscope search --page 2 --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

// searchOptions are the query flags of the search command.
type searchOptions struct {
	statuses []string
	priority []string
	assignee []string
	from     string
	to       string
	page     int
	pageSize int
	sort     string
	order    string
	json     bool
}

var searchOpts searchOptions

func init() {
	rootCmd.AddCommand(searchCmd)

	f := searchCmd.Flags()
	f.StringSliceVarP(&searchOpts.statuses, "status", "s", nil, "Filter by status (pending, in_progress, blocked, completed)")
	f.StringSliceVarP(&searchOpts.priority, "priority", "p", nil, "Filter by priority")
	f.StringSliceVarP(&searchOpts.assignee, "assignee", "a", nil, "Filter by assignee")
	f.StringVar(&searchOpts.from, "from", "", "Only tasks updated on or after this date (YYYY-MM-DD)")
	f.StringVar(&searchOpts.to, "to", "", "Only tasks updated on or before this date (YYYY-MM-DD)")
	f.IntVar(&searchOpts.page, "page", 1, "Page number")
	f.IntVar(&searchOpts.pageSize, "page-size", 0, "Results per page (default: search.page_size)")
	f.StringVar(&searchOpts.sort, "sort", "", "Sort field (default: search.sort_field)")
	f.StringVar(&searchOpts.order, "order", "", "Sort direction: asc or desc (default: search.sort_direction)")
	f.BoolVar(&searchOpts.json, "json", false, "Print the raw response as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	text := ""
	if len(args) == 1 {
		text = args[0]
	}
	q, err := buildQuery(cfg.Search.DefaultQuery(), text, searchOpts)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	resp, err := rt.client.Search(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	rt.tasks.Seed(resp.Tasks)

	out := cmd.OutOrStdout()
	if searchOpts.json {
		return writeJSON(out, resp)
	}
	fmt.Fprintln(out, tui.RenderTable(resp, q, outputWidth(out)))
	return nil
}

// buildQuery applies the search flags on top of base.
func buildQuery(base search.Query, text string, opts searchOptions) (search.Query, error) {
	q := base.Clone()
	q.Text = strings.TrimSpace(text)

	for _, s := range opts.statuses {
		st, err := taskstate.ParseState(s)
		if err != nil {
			return search.Query{}, fmt.Errorf("invalid --status: %w", err)
		}
		q.Filter.Status = append(q.Filter.Status, st)
	}
	q.Filter.Priority = append(q.Filter.Priority, opts.priority...)
	q.Filter.Assignee = append(q.Filter.Assignee, opts.assignee...)
	if opts.from != "" || opts.to != "" {
		q.Filter.DateRange = &search.DateRange{From: opts.from, To: opts.to}
	}

	if opts.page < 1 {
		return search.Query{}, fmt.Errorf("invalid --page %d: must be at least 1", opts.page)
	}
	q.Pagination.Page = opts.page
	if opts.pageSize != 0 {
		if opts.pageSize < 1 || opts.pageSize > config.MaxPageSize {
			return search.Query{}, fmt.Errorf("invalid --page-size %d: must be between 1 and %d", opts.pageSize, config.MaxPageSize)
		}
		q.Pagination.PageSize = opts.pageSize
	}

	if opts.sort != "" {
		q.Sort.Field = opts.sort
	}
	if opts.order != "" {
		dir := search.Direction(strings.ToLower(opts.order))
		if !dir.IsValid() {
			return search.Query{}, fmt.Errorf("invalid --order %q: must be asc or desc", opts.order)
		}
		q.Sort.Direction = dir
	}
	return q.Clone(), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputWidth returns the terminal width when w is a terminal, or 0.
func outputWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}
