//go:build !(cgo && ctanker)

package ctanker

import (
	"errors"
	"testing"

	"github.com/wippyai/tanker-go/native"
)

func TestNewNotBuilt(t *testing.T) {
	lib, err := New()
	if !errors.Is(err, native.ErrNotBuilt) {
		t.Fatalf("expected ErrNotBuilt, got %v", err)
	}
	if lib != nil {
		t.Fatal("expected no library")
	}
}
