package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newTranscodeCmd(cli *commandLine) *cobra.Command {
	return &cobra.Command{
		Use:   "transcode INPUT.wav [OUTPUT.mp3]",
		Short: "Encode a WAV file to mono 128 kbps MP3 without submitting it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "reading input")
			}
			out := strings.TrimSuffix(args[0], ".wav") + ".mp3"
			if len(args) == 2 {
				out = args[1]
			}

			tr, err := cli.transcoder()
			if err != nil {
				return err
			}
			start := time.Now()
			art, err := tr.Transcode(cmd.Context(), src)
			cli.metrics.ObserveTranscode(time.Since(start), art.SizeBytes, err)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, art.Data, 0o644); err != nil {
				return errors.Wrap(err, "writing output")
			}
			_, _ = fmt.Fprintf(cli.out, "%s %s\n", okStyle.Render("wrote"), out)
			_, _ = fmt.Fprintln(cli.out, detailStyle.Render(fmt.Sprintf("  %d bytes, %d Hz source, %d Hz mono, %d kbps, %s",
				art.SizeBytes, art.SourceSampleRate, art.SampleRate, art.Bitrate, art.Duration)))
			return nil
		},
	}
}
