package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeError(t *testing.T) {
	err := &DecodeError{
		RawFrame: `@enginebridge@{"kind":`,
		Err:      ErrUnknownKind,
	}

	require.Equal(t, "failed to decode frame: unknown envelope kind", err.Error())
	require.ErrorIs(t, err, ErrUnknownKind)
	require.True(t, err.IsBridgeError())
}

func TestRequestError_WithOrigin(t *testing.T) {
	err := &RequestError{
		Message:      "bad input",
		OriginMember: "main.handleGreet",
		OriginFile:   "greet.go",
		OriginLine:   42,
	}

	require.Equal(t, "request failed: bad input (main.handleGreet at greet.go:42)", err.Error())
	require.True(t, err.IsBridgeError())
}

func TestRequestError_MessageOnly(t *testing.T) {
	err := &RequestError{Message: "bad input"}

	require.Equal(t, "request failed: bad input", err.Error())
	require.NoError(t, err.Unwrap())
}

func TestRequestError_FallsBackToWrapped(t *testing.T) {
	root := errors.New("disk full")
	err := &RequestError{Err: root, OriginFile: "store.go", OriginLine: 7}

	require.Equal(t, "request failed: disk full (<unknown> at store.go:7)", err.Error())
	require.ErrorIs(t, err, root)
}

func TestMisuseError(t *testing.T) {
	err := &MisuseError{Op: "respond", Err: ErrNotRequest}

	require.Equal(t, "respond: message is not a request", err.Error())
	require.ErrorIs(t, err, ErrNotRequest)

	var target *MisuseError
	require.ErrorAs(t, err, &target)
	require.True(t, target.IsBridgeError())
}

func TestProcessError(t *testing.T) {
	exitErr := errors.New("exit status 3")

	err := &ProcessError{ExitCode: 3, Stderr: "engine crashed", Err: exitErr}
	require.Equal(t, "engine process exited with code 3: engine crashed", err.Error())
	require.ErrorIs(t, err, exitErr)

	quiet := &ProcessError{ExitCode: 1}
	require.Equal(t, "engine process exited with code 1", quiet.Error())
}
