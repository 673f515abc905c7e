package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/heluDuyne/lingolab/core"
)

func newTestLogger(debug bool) (*RollbarLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	conf := &core.Config{Env: "TEST", Debug: debug, TestMode: true}
	return NewRollbarLogger(log.New(&buf, "", 0), conf), &buf
}

func TestRollbarLogger_Print(t *testing.T) {
	logger, buf := newTestLogger(true)

	logger.Error("upload failed", errors.New("503"), map[string]interface{}{"attempt_id": "a1"}, core.Person{ID: "learner1"})
	assert.Equal(t, "ERROR upload failed error=\"503\" attempt_id=a1 person=learner1\n", buf.String())

	buf.Reset()
	logger.Debug("transcoded")
	assert.Equal(t, "DEBUG transcoded\n", buf.String())
}

func TestRollbarLogger_DebugSilenced(t *testing.T) {
	logger, buf := newTestLogger(false)
	logger.Debug("noise")
	assert.Empty(t, buf.String())

	logger.Info("attempt submitted")
	assert.Equal(t, "INFO attempt submitted\n", buf.String())
}

func TestRollbarLogger_Prepare(t *testing.T) {
	logger, _ := newTestLogger(true)
	err := errors.New("boom")
	extras := map[string]interface{}{"k": "v"}

	args := logger.prepare("msg", []interface{}{err, core.Person{ID: "p1"}, extras, &core.Person{ID: "p2"}})
	assert.Equal(t, []interface{}{"msg", err, extras}, args)
}
