package main

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/attempt"
	"github.com/heluDuyne/lingolab/core/submission"
	"github.com/heluDuyne/lingolab/core/transcode"
	"github.com/heluDuyne/lingolab/services/grading"
	logsvc "github.com/heluDuyne/lingolab/services/logger"
	"github.com/heluDuyne/lingolab/services/metrics"
	"github.com/heluDuyne/lingolab/services/upload"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD75F")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD75F"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true)
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))

	defaultIsTerminal = term.IsTerminal
	isTerminal        = defaultIsTerminal // mockable

	errAborted   = errors.New("aborted")
	errNoAttempt = errors.New("an attempt ID or --assignment is required")
)

// commandLine holds what the commands share. Collaborators left nil are
// built from the config by setup.
type commandLine struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	configFile  string
	token       string
	localMedia  bool
	metricsFile string

	conf     *core.Config
	logger   core.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	attempts    attempt.Repository
	assignments attempt.AssignmentRepository
	uploader    submission.Uploader
	newEncoder  transcode.EncoderFactory

	svc *attempt.Service
}

func newRootCmd(cli *commandLine) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "speak",
		Short:             "Record, encode and submit speaking answers",
		Long:              "speak records a spoken answer from the microphone, encodes it to MP3 and submits it to the grading service.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: cli.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return cli.writeMetrics()
		},
	}
	rootCmd.SetIn(cli.in)
	rootCmd.SetOut(cli.out)
	if cli.errOut != nil {
		rootCmd.SetErr(cli.errOut)
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cli.configFile, "config", "", "config file (yaml, json or toml)")
	flags.StringVar(&cli.token, "token", "", "API token, overrides api.token")
	flags.BoolVar(&cli.localMedia, "local-media", false, "store recordings in media.dir instead of uploading them")
	flags.StringVar(&cli.metricsFile, "metrics-file", "", "write prometheus metrics to this file on exit")

	rootCmd.AddCommand(newRecordCmd(cli))
	rootCmd.AddCommand(newSubmitCmd(cli))
	rootCmd.AddCommand(newStatusCmd(cli))
	rootCmd.AddCommand(newResolveCmd(cli))
	rootCmd.AddCommand(newTranscodeCmd(cli))
	rootCmd.AddCommand(newDoctorCmd(cli))
	return rootCmd
}

func (cli *commandLine) setup(cmd *cobra.Command, _ []string) error {
	if cli.conf == nil {
		cli.conf = core.NewConfig(cli.configFile)
	}
	if cli.token != "" {
		cli.conf.API.Token = cli.token
	}
	if cli.logger == nil {
		std := log.New(os.Stderr, "SPEAK : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
		cli.logger = logsvc.NewRollbarLogger(std, cli.conf)
	}
	if cli.registry == nil {
		cli.registry = prometheus.NewRegistry()
	}
	if cli.metrics == nil {
		cli.metrics = metrics.New(cli.registry)
	}

	if cli.attempts == nil || cli.assignments == nil {
		client := grading.NewClient(cli.conf.API, cli.logger)
		cli.attempts, cli.assignments = client, client
	}
	if cli.uploader == nil {
		if cli.localMedia {
			store, err := upload.NewDiskStore(cli.conf.Media, cli.logger)
			if err != nil {
				return err
			}
			cli.uploader = store
		} else {
			cli.uploader = upload.NewClient(cli.conf.API)
		}
	}
	if cli.newEncoder == nil {
		cli.newEncoder = transcode.NewFFmpegEncoderFactory(cli.conf.Capture.FFmpegPath)
	}
	cli.svc = attempt.NewService(cli.attempts, cli.assignments, cli.logger)
	return nil
}

func (cli *commandLine) writeMetrics() error {
	if cli.metricsFile == "" || cli.registry == nil {
		return nil
	}
	return errors.Wrap(prometheus.WriteToTextfile(cli.metricsFile, cli.registry), "writing metrics")
}

func (cli *commandLine) transcoder() (*transcode.Transcoder, error) {
	return transcode.NewTranscoder(cli.newEncoder, cli.conf.Encoding, cli.logger)
}

func (cli *commandLine) orchestrator() (*submission.Orchestrator, error) {
	tr, err := cli.transcoder()
	if err != nil {
		return nil, err
	}
	return submission.NewOrchestrator(cli.svc, tr, cli.uploader, cli.metrics, cli.logger)
}

// target is the attempt a command works on: either the given ID or the
// attempt resolved for an assignment. The prompt is empty for a bare ID.
type target struct {
	attemptID string
	prompt    string
}

func (cli *commandLine) resolveTarget(ctx context.Context, args []string, assignmentID string) (target, error) {
	if assignmentID == "" {
		if len(args) == 0 {
			return target{}, errNoAttempt
		}
		return target{attemptID: args[0]}, nil
	}

	asgmt, err := cli.assignments.GetAssignment(ctx, assignmentID)
	if err != nil {
		return target{}, errors.Wrap(err, "getting assignment")
	}
	att, err := cli.svc.Resolve(ctx, attempt.NewAttempt{
		LearnerID:    asgmt.LearnerID,
		AssignmentID: asgmt.ID,
	})
	if err != nil {
		return target{}, errors.Wrap(err, "resolving attempt")
	}
	return target{attemptID: att.ID, prompt: asgmt.Prompt.Content}, nil
}

func (cli *commandLine) check(name string, ok bool, detail string) {
	mark := okStyle.Render("✓")
	if !ok {
		mark = errorStyle.Render("✗")
	}
	_, _ = io.WriteString(cli.out, "  "+mark+" "+name+": "+detailStyle.Render(detail)+"\n")
}
