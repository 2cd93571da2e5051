package dmxp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCode_String(t *testing.T) {
	cases := map[Code]string{
		CodeSuccess:            "success",
		CodeLayoutMismatch:     "layout_mismatch",
		CodeDirectoryFull:      "directory_full",
		CodeCapacityInvalid:    "capacity_invalid",
		CodeChannelNotFound:    "channel_not_found",
		CodeFull:               "full",
		CodeEmpty:              "empty",
		CodeTimeout:            "timeout",
		CodePayloadTooLarge:    "payload_too_large",
		CodeCorruption:         "corruption",
		CodeIOError:            "io_error",
		CodeInsufficientRegion: "insufficient_region",
	}
	for code, want := range cases {
		require.Equal(t, want, code.String())
	}
	require.Equal(t, "code(-99)", Code(-99).String())
}

func TestCode_TimeoutPinned(t *testing.T) {
	// FFI callers hardcode this value; it must never move.
	require.Equal(t, Code(-7), CodeTimeout)
}

func TestError_IsMatchesByCodeOnly(t *testing.T) {
	e1 := newError(CodeFull, "Send", errors.New("boom"))
	e2 := newError(CodeFull, "SendBatch", nil)

	require.True(t, errors.Is(e1, e2))
	require.True(t, errors.Is(e1, ErrFull))
	require.False(t, errors.Is(e1, ErrEmpty))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	e := newError(CodeCorruption, "decodeMeta", cause)
	require.Equal(t, cause, errors.Unwrap(e))
}

func TestError_MessageIncludesOpAndCode(t *testing.T) {
	e := newError(CodeDirectoryFull, "CreateChannel", nil)
	require.Contains(t, e.Error(), "CreateChannel")
	require.Contains(t, e.Error(), "directory_full")
}

func TestWrapError_NilCausePassesThrough(t *testing.T) {
	e := wrapError(CodeIOError, "OpenOrCreate", nil)
	require.Nil(t, e.Unwrap())
}

func TestWrapError_PreservesCode(t *testing.T) {
	e := wrapError(CodeIOError, "OpenOrCreate", errors.New("disk full"))
	require.Equal(t, CodeIOError, e.Code)
	require.Error(t, e.Unwrap())
}
