package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rfpdesk/internal/render"
	"rfpdesk/internal/submission"
	"rfpdesk/pkg/domain"
)

// loadQuestion loads the session user's questions so the tracker knows id.
func (c *cli) loadQuestion(ctx context.Context, id string) (submission.Item, error) {
	if _, err := c.app.Questions(ctx); err != nil {
		return submission.Item{}, err
	}
	it, ok := c.app.Tracker().Item(id)
	if !ok {
		return submission.Item{}, fmt.Errorf("%w: %s", submission.ErrUnknownQuestion, id)
	}
	return it, nil
}

func (c *cli) questionsCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "List the questions assigned to you",
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := c.app.Questions(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, it := range items {
				fmt.Fprintf(out, "[%s] %s  (%s)\n", it.Question.ID, it.Question.Text, it.State.Phase)
				if it.Answer != "" {
					answer := render.Text(it.Answer)
					if !full && len(answer) > 200 {
						answer = answer[:200] + "..."
					}
					fmt.Fprintf(out, "    %s\n", answer)
				}
				if it.Err != "" {
					fmt.Fprintf(out, "    ! %s\n", it.Err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "print answers in full")
	return cmd
}

func (c *cli) generateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <question-id>",
		Short: "Draft an answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.loadQuestion(cmd.Context(), args[0]); err != nil {
				return err
			}
			text, err := c.app.Tracker().Generate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.Text(text))
			return nil
		},
	}
}

func (c *cli) editCmd() *cobra.Command {
	var answer string
	cmd := &cobra.Command{
		Use:   "edit <question-id>",
		Short: "Save a new answer draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, id := cmd.Context(), args[0]
			if _, err := c.loadQuestion(ctx, id); err != nil {
				return err
			}
			tracker := c.app.Tracker()
			if _, err := tracker.ToggleEdit(ctx, id); err != nil {
				return err
			}
			if err := tracker.SetAnswer(id, answer); err != nil {
				_ = tracker.CancelEdit(id)
				return err
			}
			if _, err := tracker.ToggleEdit(ctx, id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Answer saved.")
			return nil
		},
	}
	cmd.Flags().StringVar(&answer, "answer", "", "answer text")
	return cmd
}

func (c *cli) submitCmd() *cobra.Command {
	var answer string
	cmd := &cobra.Command{
		Use:   "submit <question-id>",
		Short: "Submit the final answer (the saved draft unless --answer is given)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.loadQuestion(cmd.Context(), args[0]); err != nil {
				return err
			}
			if err := c.app.Tracker().Submit(cmd.Context(), args[0], answer); err != nil {
				return err
			}
			printCounts(cmd, c.app.Tracker().LastCounts())
			return nil
		},
	}
	cmd.Flags().StringVar(&answer, "answer", "", "answer text")
	return cmd
}

func (c *cli) notForMeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "not-for-me <question-id>",
		Short: "Decline a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.loadQuestion(cmd.Context(), args[0]); err != nil {
				return err
			}
			if err := c.app.Tracker().MarkNotForMe(cmd.Context(), args[0]); err != nil {
				return err
			}
			printCounts(cmd, c.app.Tracker().LastCounts())
			return nil
		},
	}
}

func (c *cli) versionsCmd() *cobra.Command {
	var use string
	cmd := &cobra.Command{
		Use:   "versions <question-id>",
		Short: "List saved answer versions, or save one as the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, id := cmd.Context(), args[0]
			if _, err := c.loadQuestion(ctx, id); err != nil {
				return err
			}
			browser := c.app.Versions()
			if _, err := browser.Toggle(ctx, id); err != nil {
				return err
			}
			if use == "" {
				list, _ := browser.Versions(id)
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tCREATED\tANSWER")
				for _, v := range list {
					created := ""
					if !v.GeneratedAt.IsZero() {
						created = v.GeneratedAt.Local().Format("2006-01-02 15:04")
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", v.ID, created, render.Text(v.Answer))
				}
				return tw.Flush()
			}
			tracker := c.app.Tracker()
			if _, err := tracker.ToggleEdit(ctx, id); err != nil {
				return err
			}
			if _, err := tracker.UseVersion(id, use); err != nil {
				_ = tracker.CancelEdit(id)
				return err
			}
			if _, err := tracker.ToggleEdit(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Version %s saved as the answer.\n", use)
			return nil
		},
	}
	cmd.Flags().StringVar(&use, "use", "", "version id to save as the answer")
	return cmd
}

func (c *cli) refineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refine <question-id> <instruction>",
		Short: "Ask for a reworked answer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.loadQuestion(cmd.Context(), args[0]); err != nil {
				return err
			}
			text, err := c.app.Tracker().Refine(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.Text(text))
			return nil
		},
	}
}

func (c *cli) countsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Show your submitted, declined and pending totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			counts, err := c.app.Counts(cmd.Context())
			if err != nil {
				return err
			}
			printCounts(cmd, counts)
			return nil
		},
	}
}

func printCounts(cmd *cobra.Command, counts domain.StatusCounts) {
	fmt.Fprintf(cmd.OutOrStdout(), "Submitted %d, not for me %d, in process %d, total %d\n",
		counts.Submitted, counts.NotSubmitted, counts.Process, counts.Total)
}

func (c *cli) analyzeCmd() *cobra.Command {
	var cached bool
	var question string
	cmd := &cobra.Command{
		Use:   "analyze <doc-id>",
		Short: "Run the AI review of a document's answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result json.RawMessage
			var err error
			switch {
			case question != "":
				result, err = c.app.AnalyzeQuestion(cmd.Context(), args[0], question)
			case cached:
				var ok bool
				result, ok, err = c.app.Analysis(args[0])
				if err == nil && !ok {
					return fmt.Errorf("no cached analysis for %s", args[0])
				}
			default:
				result, err = c.app.Analyze(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().BoolVar(&cached, "cached", false, "show the last analysis without calling the backend")
	cmd.Flags().StringVar(&question, "question", "", "analyze one question")
	return cmd
}
