package core

import (
	"testing"

	"github.com/kat-co/vala"
	"github.com/stretchr/testify/assert"
)

type valueLogger struct{}

func (valueLogger) Debug(string, ...interface{}) {}
func (valueLogger) Info(string, ...interface{})  {}
func (valueLogger) Warn(string, ...interface{})  {}
func (valueLogger) Error(string, ...interface{}) {}
func (valueLogger) Fatal(string, ...interface{}) {}

func TestIsNotNil(t *testing.T) {
	var nilLogger Logger
	var nilPtr *valueLogger
	var nilFunc func()

	tests := []struct {
		name    string
		arg     interface{}
		wantErr bool
	}{
		{name: "nil interface", arg: nilLogger, wantErr: true},
		{name: "nil pointer", arg: nilPtr, wantErr: true},
		{name: "nil func", arg: nilFunc, wantErr: true},
		{name: "pointer", arg: &valueLogger{}},
		{name: "struct value", arg: valueLogger{}},
		{name: "func", arg: func() {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			assert.NotPanics(t, func() {
				err = vala.BeginValidation().Validate(IsNotNil(tt.arg, "arg")).Check()
			})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
