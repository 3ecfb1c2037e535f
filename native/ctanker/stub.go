//go:build !(cgo && ctanker)

package ctanker

import "github.com/wippyai/tanker-go/native"

// New reports native.ErrNotBuilt: the binary was built without the
// ctanker tag or without cgo.
func New() (native.Library, error) {
	return nil, native.ErrNotBuilt
}
