package errors

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Origin:  OriginNativeAsync,
				Kind:    KindGroupTooBig,
				Code:    7,
				Native:  true,
				Op:      "create_group",
				Message: "invalid group",
				Context: "core",
			},
			contains: []string{"[native-async]", "group_too_big", "(7)", "create_group", "invalid group", "[core]"},
		},
		{
			name: "minimal error",
			err: &Error{
				Origin: OriginSessionClosed,
				Kind:   KindSessionClosed,
			},
			contains: []string{"[session-closed]", "session_closed"},
		},
		{
			name: "error with cause",
			err: &Error{
				Origin:  OriginNetwork,
				Kind:    KindNetworkError,
				Message: "dial failed",
				Cause:   errors.New("connection refused"),
			},
			contains: []string{"[network]", "network_error", "dial failed", "caused by", "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Origin: OriginNetwork,
		Kind:   KindNetworkError,
		Cause:  cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause")
	}
}

func TestError_Is(t *testing.T) {
	err := Translate(CodeGroupTooBig, "invalid group")

	if !err.Is(&Error{Origin: OriginNativeAsync, Kind: KindGroupTooBig}) {
		t.Error("Is should match same origin and kind")
	}
	if err.Is(&Error{Origin: OriginNativeSync, Kind: KindGroupTooBig}) {
		t.Error("Is should not match different origin")
	}
	if err.Is(&Error{Origin: OriginNativeAsync, Kind: KindConflict}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, &Error{Kind: KindGroupTooBig}) {
		t.Error("empty origin should match any origin")
	}
	if errors.Is(err, ErrSessionClosed) {
		t.Error("native error should not match session closed")
	}
	if !errors.Is(SessionClosed("encrypt"), ErrSessionClosed) {
		t.Error("SessionClosed should match ErrSessionClosed")
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		code   uint32
		kind   Kind
		origin Origin
	}{
		{0, KindNoError, OriginNativeAsync},
		{1, KindInvalidArgument, OriginNativeAsync},
		{2, KindInternalError, OriginNativeAsync},
		{3, KindNetworkError, OriginNetwork},
		{4, KindPreconditionFailed, OriginNativeAsync},
		{5, KindOperationCanceled, OriginNativeAsync},
		{6, KindDecryptionFailed, OriginNativeAsync},
		{7, KindGroupTooBig, OriginNativeAsync},
		{8, KindInvalidVerification, OriginNativeAsync},
		{9, KindTooManyAttempts, OriginNativeAsync},
		{10, KindExpiredVerification, OriginNativeAsync},
		{11, KindIOError, OriginNativeAsync},
		{12, KindDeviceRevoked, OriginNativeAsync},
		{13, KindConflict, OriginNativeAsync},
		{14, KindUpgradeRequired, OriginNativeAsync},
		{15, KindNative, OriginNativeAsync},
		{9999, KindNative, OriginNativeAsync},
		{math.MaxUint32, KindNative, OriginNativeAsync},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := Translate(tt.code, "msg")
			if err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", err.Kind, tt.kind)
			}
			if err.Origin != tt.origin {
				t.Errorf("Origin = %v, want %v", err.Origin, tt.origin)
			}
			if err.Code != tt.code || !err.Native {
				t.Errorf("Code = %d (native %v), want %d", err.Code, err.Native, tt.code)
			}
			if err.Message != "msg" {
				t.Errorf("Message = %q, want %q", err.Message, "msg")
			}
		})
	}
}

func TestTranslate_GroupTooBig(t *testing.T) {
	err := Translate(7, "invalid group")
	if err.Code != 7 || err.Message != "invalid group" {
		t.Fatalf("got code %d message %q", err.Code, err.Message)
	}

	unknown := Translate(9999, "something else")
	if unknown.Kind != KindNative || unknown.Code != 9999 {
		t.Fatalf("got kind %v code %d", unknown.Kind, unknown.Code)
	}
	if !strings.Contains(unknown.Error(), "9999") {
		t.Fatalf("raw code missing from %q", unknown.Error())
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(OriginProtocol, KindInvariantViolated).
		Op("stream_read").
		Code(2).
		Context("stream").
		Cause(cause).
		Message("read %d bytes into %d", 10, 5).
		Build()

	if err.Origin != OriginProtocol {
		t.Errorf("Origin = %v, want %v", err.Origin, OriginProtocol)
	}
	if err.Kind != KindInvariantViolated {
		t.Errorf("Kind = %v, want %v", err.Kind, KindInvariantViolated)
	}
	if err.Op != "stream_read" {
		t.Errorf("Op = %v, want stream_read", err.Op)
	}
	if err.Code != 2 || !err.Native {
		t.Errorf("Code = %v, want 2", err.Code)
	}
	if err.Context != "stream" {
		t.Errorf("Context = %v, want stream", err.Context)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Message != "read 10 bytes into 5" {
		t.Errorf("Message = %v, want 'read 10 bytes into 5'", err.Message)
	}
}

func TestBuilder_BuildCopies(t *testing.T) {
	b := New(OriginArgument, KindInvalidArgument).Message("first")
	first := b.Build()
	second := b.Message("second").Build()

	if first.Message != "first" {
		t.Errorf("built error mutated: %q", first.Message)
	}
	if second.Message != "second" {
		t.Errorf("Message = %q, want second", second.Message)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("InvalidArgument", func(t *testing.T) {
		err := InvalidArgument("start", "identity is empty")
		if err.Origin != OriginArgument || err.Kind != KindInvalidArgument {
			t.Errorf("got %v/%v", err.Origin, err.Kind)
		}
		if !errors.Is(err, ErrArgument) {
			t.Error("should match ErrArgument")
		}
	})

	t.Run("SessionClosed", func(t *testing.T) {
		err := SessionClosed("encrypt")
		if !strings.Contains(err.Error(), "session closed") {
			t.Errorf("message %q", err.Error())
		}
	})

	t.Run("ProtocolViolation", func(t *testing.T) {
		err := ProtocolViolation("future", "completed twice")
		if !errors.Is(err, ErrProtocol) {
			t.Error("should match ErrProtocol")
		}
		if !strings.Contains(err.Error(), "internal bridge invariant violated") {
			t.Errorf("message %q", err.Error())
		}
	})

	t.Run("NativeSync", func(t *testing.T) {
		cause := errors.New("null future")
		err := NativeSync("encrypt", "native call rejected", cause)
		if err.Origin != OriginNativeSync {
			t.Errorf("Origin = %v", err.Origin)
		}
		if !errors.Is(err, cause) {
			t.Error("should wrap cause")
		}
	})

	t.Run("Network", func(t *testing.T) {
		err := Network("http", errors.New("timeout"))
		if !errors.Is(err, ErrNetwork) {
			t.Error("should match ErrNetwork")
		}
	})

	t.Run("WithOp", func(t *testing.T) {
		base := Translate(6, "bad mac")
		tagged := WithOp(base, "decrypt")
		if base.Op != "" {
			t.Error("WithOp mutated the original")
		}
		if tagged.Op != "decrypt" || tagged.Code != 6 {
			t.Errorf("got op %q code %d", tagged.Op, tagged.Code)
		}
	})

	t.Run("WithOrigin", func(t *testing.T) {
		base := Translate(1, "bad")
		sync := WithOrigin(base, OriginNativeSync)
		if base.Origin != OriginNativeAsync || sync.Origin != OriginNativeSync {
			t.Errorf("got %v and %v", base.Origin, sync.Origin)
		}
	})
}
