package main

import (
	"fmt"

	signin "github.com/goliatone/go-signin"
)

// structuredLogger is the subset of glog.Logger the adapter needs
type structuredLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// printfLogger formats messages before handing them to a structured logger
type printfLogger struct {
	lgr structuredLogger
}

var _ signin.Logger = printfLogger{}

func newPrintfLogger(lgr structuredLogger) signin.Logger {
	return printfLogger{lgr: lgr}
}

func (l printfLogger) Debug(format string, args ...any) {
	l.lgr.Debug(fmt.Sprintf(format, args...))
}

func (l printfLogger) Info(format string, args ...any) {
	l.lgr.Info(fmt.Sprintf(format, args...))
}

func (l printfLogger) Warn(format string, args ...any) {
	l.lgr.Warn(fmt.Sprintf(format, args...))
}

func (l printfLogger) Error(format string, args ...any) {
	l.lgr.Error(fmt.Sprintf(format, args...))
}
