package main

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/heluDuyne/lingolab/apps/speak/tui"
	"github.com/heluDuyne/lingolab/core/capture"
	"github.com/heluDuyne/lingolab/core/preview"
	"github.com/heluDuyne/lingolab/core/submission"
)

func newRecordCmd(cli *commandLine) *cobra.Command {
	var (
		assignmentID string
		prompt       string
		tone         bool
	)
	cmd := &cobra.Command{
		Use:   "record [ATTEMPT_ID]",
		Short: "Record, preview and submit an answer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal(int(os.Stdout.Fd())) {
				return errors.New("record needs an interactive terminal, use submit --file instead")
			}
			ctx := cmd.Context()
			tgt, err := cli.resolveTarget(ctx, args, assignmentID)
			if err != nil {
				return err
			}
			if prompt == "" {
				prompt = tgt.prompt
			}

			var device capture.Device = capture.NewFFmpegDevice(cli.conf.Capture, cli.logger)
			if tone {
				device = &capture.ToneDevice{Interval: cli.conf.Capture.ChunkInterval}
			}
			opts := capture.OptionsFromConfig(cli.conf.Capture)
			opts.Gate = cli.svc.Gate(tgt.attemptID)
			session, err := capture.NewSession(device, cli.logger, opts)
			if err != nil {
				return err
			}
			defer func() { _ = session.Close() }()
			session.OnComplete(func(rec capture.Recording, err error) {
				cli.metrics.ObserveRecording(rec.Duration, rec.Size(), rec.AutoStopped, err)
			})

			tr, err := cli.transcoder()
			if err != nil {
				return err
			}
			orch, err := cli.orchestrator()
			if err != nil {
				return err
			}
			progress := make(chan submission.Stage, 8)
			orch.OnProgress(func(stage submission.Stage) {
				select {
				case progress <- stage:
				default:
				}
			})

			player := preview.New(cli.conf.Capture.FFplayPath, "", cli.logger)
			defer player.Release()

			model := tui.New(tui.Deps{
				AttemptID: tgt.attemptID,
				Prompt:    prompt,
				Recorder:  session,
				Encoder:   tr,
				Submitter: orch,
				Status:    cli.svc,
				Player:    player,
				Progress:  progress,
			})
			_, err = tea.NewProgram(model, tea.WithInput(cli.in), tea.WithOutput(cli.out), tea.WithContext(ctx)).Run()
			if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&assignmentID, "assignment", "", "answer this assignment, resolving its attempt")
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt text to show while recording")
	cmd.Flags().BoolVar(&tone, "tone", false, "record a test tone instead of the microphone")
	return cmd
}
