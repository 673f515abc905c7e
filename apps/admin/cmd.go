package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/attempt"
)

var (
	defaultReadPasswordFunc = term.ReadPassword
	readPasswordFunc        = defaultReadPasswordFunc // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf     *core.Config
	db       *sqlx.DB
	registry *attempt.Registry
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                             - run a goose migration command (up, down, status...)")
	_, _ = fmt.Fprintln(cli.out, "  token -subject ID [-role learner|teacher] [-ask-secret] - print a signed API token")
	_, _ = fmt.Fprintln(cli.out, "  addassignment -learner ID -prompt ID [-content TEXT] [-skill speaking|writing] - assign a prompt")
	_, _ = fmt.Fprintln(cli.out, "  score -attempt ID -score N [-feedback TEXT]        - score a submitted attempt")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "token":
		tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
		tokenCmd.SetOutput(cli.out)
		subject := tokenCmd.String("subject", "", "The learner's or teacher's ID.")
		role := tokenCmd.String("role", "learner", "learner or teacher.")
		askSecret := tokenCmd.Bool("ask-secret", false, "Prompt for the signing secret instead of using the configured one.")
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *subject == "" {
			tokenCmd.Usage()
			return errHelp
		}
		secret := cli.conf.SecretKey
		if *askSecret {
			_, _ = fmt.Fprint(cli.out, "Enter secret:")
			s, err := readPasswordFunc(int(syscall.Stdin))
			_, _ = fmt.Fprintln(cli.out)
			if err != nil {
				return err
			}
			if len(s) == 0 {
				tokenCmd.Usage()
				return errHelp
			}
			secret = string(s)
		}
		return cli.token(*subject, *role, secret)

	case "addassignment":
		asgmtCmd := flag.NewFlagSet("addassignment", flag.ContinueOnError)
		asgmtCmd.SetOutput(cli.out)
		learner := asgmtCmd.String("learner", "", "The learner's ID.")
		prompt := asgmtCmd.String("prompt", "", "The prompt's ID.")
		content := asgmtCmd.String("content", "", "The prompt's text.")
		skill := asgmtCmd.String("skill", string(attempt.SkillSpeaking), "speaking or writing.")
		if err := asgmtCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *learner == "" || *prompt == "" {
			asgmtCmd.Usage()
			return errHelp
		}
		return cli.addAssignment(*learner, attempt.Prompt{ID: *prompt, Content: *content, SkillType: attempt.SkillType(*skill)})

	case "score":
		scoreCmd := flag.NewFlagSet("score", flag.ContinueOnError)
		scoreCmd.SetOutput(cli.out)
		attemptID := scoreCmd.String("attempt", "", "The attempt's ID.")
		score := scoreCmd.Float64("score", -1, "Score between 0 and 100.")
		feedback := scoreCmd.String("feedback", "", "Feedback for the learner.")
		if err := scoreCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *attemptID == "" || *score < 0 {
			scoreCmd.Usage()
			return errHelp
		}
		return cli.score(*attemptID, attempt.Grade{Score: score, Feedback: *feedback})

	default:
		cli.printUsage()
		return errHelp
	}
}
