package main

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/heluDuyne/lingolab/core/attempt"
)

const checkTimeout = 5 * time.Second

func newDoctorCmd(cli *commandLine) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			ok := true

			for _, bin := range []struct{ name, path, need string }{
				{"ffmpeg", cli.conf.Capture.FFmpegPath, "recording and encoding"},
				{"ffplay", cli.conf.Capture.FFplayPath, "preview playback"},
			} {
				if p, err := exec.LookPath(bin.path); err != nil {
					cli.check(bin.name, false, fmt.Sprintf("not found, needed for %s", bin.need))
					ok = false
				} else {
					cli.check(bin.name, true, p)
				}
			}

			c := cli.conf.Capture
			device := c.InputDevice
			if device == "" {
				device = "default"
			}
			cli.check("Input", true, fmt.Sprintf("%s:%s, %d Hz, max %s", c.InputFormat, device, c.SampleRate, c.MaxDuration))

			if cli.conf.API.Token != "" {
				cli.check("API token", true, "configured")
			} else {
				cli.check("API token", false, "not set, use --token or set api.token")
				ok = false
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
			defer cancel()
			// any answer but a transport or auth failure means the service is there
			if _, err := cli.attempts.GetAttempt(ctx, "doctor-check"); err == nil || errors.Is(err, attempt.ErrNotFound) {
				cli.check("Grading API", true, cli.conf.API.BaseURL)
			} else {
				cli.check("Grading API", false, err.Error())
				ok = false
			}

			if ok {
				_, _ = fmt.Fprintln(cli.out, okStyle.Render("\nAll prerequisites met. Ready to record!"))
			} else {
				_, _ = fmt.Fprintln(cli.out, warnStyle.Render("\nSome prerequisites are missing."))
			}
			return nil
		},
	}
}
