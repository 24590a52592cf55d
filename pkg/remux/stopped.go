package remux

import (
	stderrors "errors"
	"fmt"
	"os/exec"
	"strings"
)

// The domain/code pair a platform media framework uses for "operation stopped".
const (
	StoppedDomain = "AVFoundationErrorDomain"
	StoppedCode   = -11838
)

// stopIndicators are lowercase fragments that mark an aborted, not a broken, remux.
var stopIndicators = []string{
	"operation stopped",
	"immediate exit requested",
	"received signal",
	"connection reset by peer",
}

// StoppedError reports that the remux service aborted mid-operation.
// Callers treat it as a signal to fall back to segment download.
type StoppedError struct {
	Domain string
	Code   int
	Reason string
	Err    error
}

func (e *StoppedError) Error() string {
	msg := "remux operation stopped"
	if e.Domain != "" {
		msg = fmt.Sprintf("%s (%s %d)", msg, e.Domain, e.Code)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *StoppedError) Unwrap() error { return e.Err }

// domainError is implemented by errors that carry a platform domain and code.
type domainError interface {
	Domain() string
	Code() int
}

// IsOperationStopped reports whether err is the transient "operation stopped" condition:
// a StoppedError, an error exposing the stopped domain/code pair, a process killed by a
// signal, or an error whose text carries one of the known stop indicators.
func IsOperationStopped(err error) bool {
	if err == nil {
		return false
	}

	var stopped *StoppedError
	if stderrors.As(err, &stopped) {
		return true
	}

	var de domainError
	if stderrors.As(err, &de) && de.Domain() == StoppedDomain && de.Code() == StoppedCode {
		return true
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) && exitErr.ProcessState != nil && exitErr.ProcessState.ExitCode() == -1 {
		return true
	}

	return hasStopIndicator(err.Error())
}

func hasStopIndicator(text string) bool {
	text = strings.ToLower(text)
	for _, ind := range stopIndicators {
		if strings.Contains(text, ind) {
			return true
		}
	}
	return false
}
