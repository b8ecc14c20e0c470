package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/loykin/checkin/internal/common"
)

// Exit codes.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitConfig = 2
)

// exitError carries a non-zero exit code without an error message.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// exitCode maps a command error to the process exit code. Errors that are
// not an exitError are configuration or start-up faults.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitConfig
}

// ExitHandler provides a testable way to handle program termination
type ExitHandler interface {
	Exit(code int)
	LogFatalError(err error, msg string, keyvals ...any)
}

// DefaultExitHandler implements ExitHandler for production use
type DefaultExitHandler struct {
	logger *common.Logger
}

func NewDefaultExitHandler() *DefaultExitHandler {
	logger := common.New(common.Options{Level: common.LogLevelInfo, Output: os.Stderr, Masker: common.NewMasker()})
	return &DefaultExitHandler{logger: logger.WithComponent("main")}
}

func (h *DefaultExitHandler) Exit(code int) {
	os.Exit(code)
}

// LogFatalError logs err and exits with the code it maps to.
func (h *DefaultExitHandler) LogFatalError(err error, msg string, keyvals ...any) {
	code := exitCode(err)
	if code == ExitConfig {
		h.logger.Error(msg, append([]any{"error", err}, keyvals...)...)
	}
	h.Exit(code)
}

// Global exit handler (can be replaced for testing)
var exitHandler ExitHandler = NewDefaultExitHandler()
