package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/attempt"
	"github.com/heluDuyne/lingolab/storage/database"
)

// NewConfig returns the default config pointed at a throwaway sqlite database.
func NewConfig(t *testing.T) *core.Config {
	t.Helper()
	t.Setenv("ENV", "TEST")
	conf := core.NewConfig()
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Path = filepath.Join(t.TempDir(), "test.sqlite")
	conf.Media.Dir = filepath.Join(t.TempDir(), "media")
	return conf
}

// OpenDB opens and migrates the test database. It is closed when the test ends.
func OpenDB(t *testing.T, conf *core.Config) *sqlx.DB {
	t.Helper()
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("database.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("database.Migrate() failed: %v", err)
	}
	return db
}

func CreateAssignment(t *testing.T, reg *attempt.Registry, learnerID, promptID string) attempt.Assignment {
	t.Helper()
	asgmt, err := reg.CreateAssignment(context.Background(), learnerID, attempt.Prompt{
		ID:        promptID,
		Content:   "Describe your favourite place.",
		SkillType: attempt.SkillSpeaking,
	})
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	return asgmt
}

func CreateAttempt(t *testing.T, reg *attempt.Registry, learnerID, promptID string, status attempt.Status) attempt.Attempt {
	t.Helper()
	ctx := context.Background()
	att, err := reg.CreateAttempt(ctx, attempt.NewAttempt{LearnerID: learnerID, PromptID: promptID, SkillType: attempt.SkillSpeaking})
	if err != nil {
		t.Fatalf("CreateAttempt() failed: %v", err)
	}
	if status == attempt.StatusSubmitted || status == attempt.StatusScored {
		if att, err = reg.SubmitAttempt(ctx, att.ID, attempt.Submission{Content: "http://localhost/media/" + att.ID + ".mp3"}); err != nil {
			t.Fatalf("SubmitAttempt() failed: %v", err)
		}
	}
	if status == attempt.StatusScored {
		score := 80.0
		if att, err = reg.ScoreAttempt(ctx, att.ID, attempt.Grade{Score: &score}); err != nil {
			t.Fatalf("ScoreAttempt() failed: %v", err)
		}
	}
	return att
}

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records log entries in memory.
type Logger struct {
	mu      sync.Mutex
	Entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger { return &Logger{} }

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log("fatal", msg, args)
	panic(fmt.Sprintf("fatal: %s", msg))
}

// Messages returns the logged messages of a level.
func (l *Logger) Messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := make([]string, 0)
	for _, e := range l.Entries {
		if e.Level == level {
			msgs = append(msgs, e.Msg)
		}
	}
	return msgs
}
