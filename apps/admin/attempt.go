package main

import (
	"context"
	"fmt"

	echoapi "github.com/heluDuyne/lingolab/apps/api/echo"
	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/attempt"
)

func (cli *commandLine) token(subject, role, secret string) error {
	conf := *cli.conf
	conf.SecretKey = secret
	token, err := echoapi.GenerateToken(&conf, echoapi.NewClaims(&conf, core.CleanString(subject), role))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cli.out, token)
	return err
}

func (cli *commandLine) addAssignment(learnerID string, prompt attempt.Prompt) error {
	asgmt, err := cli.registry.CreateAssignment(context.Background(), learnerID, prompt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cli.out, "assignment %s: prompt %s assigned to %s\n", asgmt.ID, asgmt.Prompt.ID, asgmt.LearnerID)
	return err
}

func (cli *commandLine) score(attemptID string, grade attempt.Grade) error {
	att, err := cli.registry.ScoreAttempt(context.Background(), attemptID, grade)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cli.out, "attempt %s scored %.1f\n", att.ID, *att.Score)
	return err
}
