package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rfpdesk/internal/assignment"
	"rfpdesk/pkg/domain"
)

func (c *cli) docsCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List uploaded documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			docs, err := c.app.Documents(cmd.Context(), domain.Category(category))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFILE\tPROJECT\tCATEGORY\tUPLOADED")
			for _, d := range docs {
				uploaded := ""
				if !d.UploadedAt.IsZero() {
					uploaded = d.UploadedAt.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Filename, d.ProjectName, d.Category, uploaded)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only this category")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <doc-id>",
		Short: "Delete a document and its local data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.DeleteDocument(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "RFP deleted successfully.")
			return nil
		},
	})
	return cmd
}

func (c *cli) uploadCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload RFP files for question extraction",
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := c.app.Upload(cmd.Context(), project, args)
			out := cmd.OutOrStdout()
			if batch.Message != "" {
				fmt.Fprintln(out, strings.TrimSpace(batch.Message))
			}
			if err != nil {
				return err
			}
			if batch.Summary != "" {
				fmt.Fprintf(out, "\nSummary: %s\n", batch.Summary)
			}
			if batch.DocID != "" {
				fmt.Fprintf(out, "Document id: %s\n", batch.DocID)
			}
			for i, q := range batch.Questions {
				fmt.Fprintf(out, "%3d. %s\n", i+1, q)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name")

	cmd.AddCommand(&cobra.Command{
		Use:   "history <file>",
		Short: "Upload a past RFP and show the extracted text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.app.UploadHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s uploaded (id %s)\n", res.Filename, res.ID)
			if res.Summary != "" {
				fmt.Fprintf(out, "\n%s\n", res.Summary)
			}
			for _, item := range res.Checklist {
				fmt.Fprintf(out, "- %s\n", item)
			}
			return nil
		},
	})

	var category, libProject string
	library := &cobra.Command{
		Use:   "library <file>...",
		Short: "Add reference documents to a knowledge category",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.UploadLibrary(cmd.Context(), domain.Category(category), libProject, args); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d file(s) added to %s.\n", len(args), category)
			return nil
		},
	}
	library.Flags().StringVar(&category, "category", string(domain.CategoryHistory), "history, clean, training or learning")
	library.Flags().StringVar(&libProject, "project", "", "project name")
	cmd.AddCommand(library)
	return cmd
}

func (c *cli) detailsCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "details <doc-id>",
		Short: "Show a document's questions by section with their assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && status != "all" {
				details, err := c.app.Details(cmd.Context(), args[0], status)
				if err != nil {
					return err
				}
				printQuestions(cmd, details.Questions, nil)
				return nil
			}
			loaded, err := c.app.LoadAssignments(cmd.Context(), args[0])
			if err != nil && len(loaded.Questions) == 0 {
				return err
			}
			printQuestions(cmd, loaded.Questions, loaded.View.Labels)
			counts := loaded.View.Counts
			fmt.Fprintf(cmd.OutOrStdout(), "\nAssigned %d, unassigned %d, total %d\n", counts.Assigned, counts.Unassigned, counts.Total)
			return err
		},
	}
	cmd.Flags().StringVar(&status, "status", "all", "all, assigned, unassigned or submitted")
	return cmd
}

func printQuestions(cmd *cobra.Command, questions []domain.Question, labels []string) {
	out := cmd.OutOrStdout()
	section := ""
	for i, q := range questions {
		if q.Section != section {
			section = q.Section
			fmt.Fprintf(out, "\n## %s\n", section)
		}
		fmt.Fprintf(out, "[%d] %s\n", i, q.Text)
		if i < len(labels) && labels[i] != "" {
			fmt.Fprintf(out, "     %s\n", labels[i])
		}
	}
}

func (c *cli) assignCmd() *cobra.Command {
	var questionText string
	cmd := &cobra.Command{
		Use:   "assign <doc-id> <index> <user>... | assign --question <text> <user>",
		Short: "Assign a question to reviewers",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if questionText != "" {
				if len(args) != 1 {
					return errors.New("assign --question takes exactly one user")
				}
				label, err := c.app.AssignText(cmd.Context(), questionText, args[0])
				fmt.Fprintln(out, label)
				return err
			}
			if len(args) < 3 {
				return errors.New("usage: assign <doc-id> <index> <user>...")
			}
			idx, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("index %q: %w", args[1], err)
			}
			view, err := c.app.Assign(cmd.Context(), args[0], idx, args[2:])
			printLabel(cmd, view, idx)
			return err
		},
	}
	cmd.Flags().StringVar(&questionText, "question", "", "assign an extracted question by its text")
	return cmd
}

func (c *cli) unassignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unassign <doc-id> <index> <user>",
		Short: "Remove a reviewer from a question",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("index %q: %w", args[1], err)
			}
			view, err := c.app.Unassign(cmd.Context(), args[0], idx, args[2])
			if err != nil {
				return err
			}
			printLabel(cmd, view, idx)
			return nil
		},
	}
}

func printLabel(cmd *cobra.Command, view assignment.View, idx int) {
	if idx < 0 || idx >= len(view.Labels) {
		return
	}
	label := view.Labels[idx]
	if label == "" {
		label = "Unassigned"
	}
	fmt.Fprintln(cmd.OutOrStdout(), label)
}

func (c *cli) scorecardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scorecard <doc-id>",
		Short: "Show completion by section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sections, err := c.app.Scorecard(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, sec := range sections {
				pct := 0
				if sec.Total > 0 {
					pct = sec.Completed * 100 / sec.Total
				}
				fmt.Fprintf(out, "\n%s  %d/%d completed (%d%%), %d in progress\n", sec.Title, sec.Completed, sec.Total, pct, sec.InProgress)
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, q := range sec.Questions {
					fmt.Fprintf(tw, "  %d\t%s\t%s\t%d%%\t%s\n", q.Index, q.Question.Text, q.Status, q.Percentage, q.AssignedTo)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
