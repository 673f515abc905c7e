package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/heluDuyne/lingolab/core/capture"
	"github.com/heluDuyne/lingolab/core/submission"
	"github.com/heluDuyne/lingolab/core/transcode"
)

func newSubmitCmd(cli *commandLine) *cobra.Command {
	var (
		assignmentID string
		file         string
		text         string
		uploadedURL  string
		yes          bool
	)
	cmd := &cobra.Command{
		Use:   "submit [ATTEMPT_ID]",
		Short: "Submit a recorded file, an uploaded recording or a text answer",
		Long: "submit sends an answer for an attempt. A WAV file is encoded to MP3 and uploaded first, " +
			"an MP3 file is uploaded as is. Use --url to retry a submission whose upload already succeeded.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tgt, err := cli.resolveTarget(ctx, args, assignmentID)
			if err != nil {
				return err
			}

			req := submission.Request{AttemptID: tgt.attemptID, UploadedURL: uploadedURL, Text: text}
			what := "this answer"
			if file != "" {
				if err := loadAnswer(file, &req); err != nil {
					return err
				}
				what = filepath.Base(file)
			}
			if !yes {
				if !cli.confirm(fmt.Sprintf("Submit %s for attempt %s? It cannot be changed afterwards.", what, tgt.attemptID)) {
					return errAborted
				}
			}

			orch, err := cli.orchestrator()
			if err != nil {
				return err
			}
			orch.OnProgress(func(stage submission.Stage) {
				if stage != submission.StageDone {
					_, _ = fmt.Fprintln(cli.out, detailStyle.Render("  "+string(stage)+"..."))
				}
			})

			res, err := orch.Submit(ctx, req)
			if err != nil {
				var sErr *submission.Error
				if errors.As(err, &sErr) && sErr.UploadedURL != "" {
					_, _ = fmt.Fprintln(cli.out, warnStyle.Render("The recording was uploaded. Retry without uploading it again with:"))
					_, _ = fmt.Fprintf(cli.out, "  speak submit %s --url %s\n", tgt.attemptID, sErr.UploadedURL)
				}
				return err
			}
			_, _ = fmt.Fprintln(cli.out, okStyle.Render("Submitted.")+" "+detailStyle.Render(fmt.Sprintf("attempt %s is %s", res.Attempt.ID, res.Attempt.Status)))
			if res.Artifact != nil {
				_, _ = fmt.Fprintf(cli.out, "  %d bytes, %s, %d kbps\n", res.Artifact.SizeBytes, res.Artifact.Duration.Round(time.Millisecond), res.Artifact.Bitrate)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&assignmentID, "assignment", "", "answer this assignment, resolving its attempt")
	cmd.Flags().StringVarP(&file, "file", "f", "", "WAV or MP3 recording to submit")
	cmd.Flags().StringVar(&text, "text", "", "text answer, for writing prompts")
	cmd.Flags().StringVar(&uploadedURL, "url", "", "URL of a recording uploaded by a failed submission")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// loadAnswer reads a WAV file as a recording, or an MP3 file as a ready artifact.
func loadAnswer(path string, req *submission.Request) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading answer")
	}
	if _, err := transcode.DecodeWAV(data); err == nil {
		req.Recording = &capture.Recording{Data: data, MimeType: "audio/wav"}
		return nil
	}
	info, err := transcode.Inspect(data)
	if err != nil {
		return errors.Errorf("%s is neither a WAV nor an MP3 file", filepath.Base(path))
	}
	channels := 1
	if !info.Mono {
		channels = 2
	}
	req.Artifact = &transcode.Artifact{
		Data:       data,
		MimeType:   transcode.MimeTypeMP3,
		SizeBytes:  len(data),
		SampleRate: info.SampleRate,
		Channels:   channels,
		Bitrate:    info.Bitrate,
		Duration:   info.Duration,
	}
	return nil
}

func (cli *commandLine) confirm(question string) bool {
	_, _ = fmt.Fprint(cli.out, question+" [y/N] ")
	line, _ := bufio.NewReader(cli.in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
