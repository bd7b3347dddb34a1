//go:build !linux

package transport

import (
	"io"

	"github.com/pkg/errors"
)

func dialRFCOMM([6]byte, uint8) (io.ReadCloser, error) {
	return nil, errors.New("bluetooth rfcomm is only supported on linux")
}
