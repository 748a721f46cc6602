package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rfpdesk/internal/app"
	"rfpdesk/internal/render"
	"rfpdesk/pkg/domain"
)

func (c *cli) reviewersCmd() *cobra.Command {
	var user, status string
	cmd := &cobra.Command{
		Use:   "reviewers",
		Short: "Show reviewer workload, or one reviewer's questions with --user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if user != "" {
				rows, err := c.app.ReviewerQuestions(cmd.Context(), user, domain.SubmissionStatus(status))
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "QUESTION\tFILE\tSTATUS\tTEXT")
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.QuestionID, r.FileID, app.DisplayStatus(r.Status), r.Question)
				}
				return tw.Flush()
			}
			stats, err := c.app.Workload(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "USERNAME\tEMAIL\tTOTAL\tSUBMITTED\tPENDING")
			for _, s := range stats {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", s.Username, s.Email, s.Total, s.Submitted, s.Pending)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "reviewer username")
	cmd.Flags().StringVar(&status, "status", "", "submitted, not submitted or process")
	return cmd
}

func (c *cli) reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate, list and download answer documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			docs, err := c.app.Reports(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tCREATED\tURL")
			for _, d := range docs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.FileName, d.CreatedAt, d.DownloadURL)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "generate <doc-id>",
		Short: "Build the answer document and download it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := c.app.GenerateReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			stored, err := c.app.DownloadReport(cmd.Context(), args[0], domain.ReportDoc{FileName: rep.FileName, DownloadURL: rep.DownloadURL})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nSaved to %s (%d bytes)\n", rep.Message, stored.Path, stored.Size)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "local",
		Short: "List downloaded reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reports, err := c.app.LocalReports()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DOC\tFILE\tSIZE\tPATH")
			for _, r := range reports {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.DocID, r.FileName, r.Size, r.Path)
			}
			return tw.Flush()
		},
	})
	return cmd
}

func (c *cli) reviewCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "review",
		Short: "List final answers across reviewers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := c.app.SubmittedQuestions(cmd.Context(), domain.SubmissionStatus(status))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range rows {
				fmt.Fprintf(out, "[%s] %s  %s by %s (%s)\n", r.QuestionID, r.DocumentName, app.DisplayStatus(r.Status), r.Username, r.SubmittedAt)
				fmt.Fprintf(out, "    Q: %s\n", r.Question)
				if r.Answer != "" {
					fmt.Fprintf(out, "    A: %s\n", render.Text(r.Answer))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "submitted or \"not submitted\"")

	var answer string
	edit := &cobra.Command{
		Use:   "edit <question-id>",
		Short: "Replace a reviewer's answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.AdminEditAnswer(cmd.Context(), args[0], answer); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Answer updated.")
			return nil
		},
	}
	edit.Flags().StringVar(&answer, "answer", "", "answer text")

	sendBack := &cobra.Command{
		Use:   "send-back <question-id>",
		Short: "Return a final answer to its reviewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := c.app.SubmittedQuestions(cmd.Context(), "")
			if err != nil {
				return err
			}
			for _, r := range rows {
				if r.QuestionID != args[0] {
					continue
				}
				if err := c.app.SendBack(cmd.Context(), r); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sent back to %s.\n", r.Username)
				return nil
			}
			return fmt.Errorf("no final answer for question %s", args[0])
		},
	}
	cmd.AddCommand(edit, sendBack)
	return cmd
}
