package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heluDuyne/lingolab/core/attempt"
)

func newStatusCmd(cli *commandLine) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status ATTEMPT_ID",
		Short: "Show the status of an attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := cli.svc.GetStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return cli.printJSON(view)
			}
			_, _ = fmt.Fprintf(cli.out, "attempt %s: %s\n", view.AttemptID, view.Status)
			if view.Content != "" {
				_, _ = fmt.Fprintf(cli.out, "  content: %s\n", view.Content)
			}
			if view.Score != nil {
				_, _ = fmt.Fprintf(cli.out, "  score: %g\n", *view.Score)
			}
			if view.ReadOnly {
				_, _ = fmt.Fprintln(cli.out, detailStyle.Render("  read-only"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func newResolveCmd(cli *commandLine) *cobra.Command {
	var na attempt.NewAttempt
	var skill string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Find or create the attempt of a learner for a prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			na.SkillType = attempt.SkillType(skill)
			att, err := cli.svc.Resolve(cmd.Context(), na)
			if err != nil {
				return err
			}
			return cli.printJSON(att)
		},
	}
	cmd.Flags().StringVar(&na.LearnerID, "learner", "", "learner ID")
	cmd.Flags().StringVar(&na.PromptID, "prompt", "", "prompt ID")
	cmd.Flags().StringVar(&na.AssignmentID, "assignment", "", "assignment ID, supplies the prompt when --prompt is empty")
	cmd.Flags().StringVar(&skill, "skill", string(attempt.SkillSpeaking), "speaking or writing")
	return cmd
}

func (cli *commandLine) printJSON(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
