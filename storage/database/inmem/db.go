package inmemdb

import (
	"sync"

	"github.com/heluDuyne/lingolab/core/attempt"
)

type (
	attemptTable struct {
		mutex sync.RWMutex
		table map[string]*attempt.Attempt
	}

	assignmentTable struct {
		mutex sync.RWMutex
		table map[string]*attempt.Assignment
	}

	DB struct {
		attempt    *attemptTable
		assignment *assignmentTable
	}
)

func NewDB() *DB {
	return &DB{
		attempt:    &attemptTable{table: make(map[string]*attempt.Attempt)},
		assignment: &assignmentTable{table: make(map[string]*attempt.Assignment)},
	}
}
