// Package ftpclient provides an FTP session for the sync engine with error
// classification and transfer progress reporting.
package ftpclient

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"syscall"
)

// Sentinel errors for FTP reply code classification.
// Use errors.Is(err, ftpclient.ErrNotFound) to check.
var (
	ErrNotFound       = errors.New("ftp: file unavailable")
	ErrNotLoggedIn    = errors.New("ftp: not logged in")
	ErrTransient      = errors.New("ftp: transient failure")
	ErrConnectionLost = errors.New("ftp: connection lost")
	ErrProtocol       = errors.New("ftp: protocol error")
)

// FTP reply codes the engine distinguishes.
const (
	codeServiceNotAvailable = 421
	codeNotLoggedIn         = 530
	codeFileUnavailable     = 550
	codeTransientMin        = 400
	codeTransientMax        = 499
)

// Error wraps a sentinel error with the FTP reply code, the operation and
// remote path that failed, and the server message for debugging.
type Error struct {
	Code    int
	Op      string
	Path    string
	Message string
	Err     error // sentinel, for errors.Is()
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("ftp: %s %s: %d %s", e.Op, e.Path, e.Code, e.Message)
	}

	return fmt.Sprintf("ftp: %s %s: %s", e.Op, e.Path, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classifyCode maps an FTP reply code to a sentinel error.
func classifyCode(code int) error {
	switch {
	case code == codeFileUnavailable:
		return ErrNotFound
	case code == codeNotLoggedIn:
		return ErrNotLoggedIn
	case code == codeServiceNotAvailable:
		return ErrConnectionLost
	case code >= codeTransientMin && code <= codeTransientMax:
		return ErrTransient
	default:
		return ErrProtocol
	}
}

// wrapError converts an error returned by the FTP library into an *Error.
// Returns nil for a nil error.
func wrapError(op, remotePath string, err error) error {
	if err == nil {
		return nil
	}

	var own *Error
	if errors.As(err, &own) {
		return err
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return &Error{
			Code:    tpErr.Code,
			Op:      op,
			Path:    remotePath,
			Message: tpErr.Msg,
			Err:     classifyCode(tpErr.Code),
		}
	}

	if isConnectionError(err) {
		return &Error{Op: op, Path: remotePath, Message: err.Error(), Err: ErrConnectionLost}
	}

	return &Error{Op: op, Path: remotePath, Message: err.Error(), Err: ErrProtocol}
}

// isConnectionError reports whether err means the control connection is gone.
func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr)
}
