//go:build linux

package transport

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func dialRFCOMM(bdaddr [6]byte, channel uint8) (io.ReadCloser, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create rfcomm socket")
	}
	if err := unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: bdaddr, Channel: channel}); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "rfcomm connect")
	}
	// non-blocking so the runtime poller owns the fd and Close interrupts Read
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "unable to set rfcomm socket non-blocking")
	}
	return os.NewFile(uintptr(fd), "rfcomm"), nil
}
