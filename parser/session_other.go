//go:build !windows
// +build !windows

package parser

import (
	"github.com/pkg/errors"
)

// OpenVolume needs the windows control interface. Use OpenImage()
// to work on collected $MFT and $J files.
func OpenVolume(name string, options Options) (Session, error) {
	return nil, errors.Wrapf(ErrNotSupported,
		"OpenVolume %v: live volumes are only supported on windows", name)
}
