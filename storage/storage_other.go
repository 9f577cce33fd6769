//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package storage

import "errors"

var errNoMmap = errors.New("storage: mmap not supported on this platform")

func mapAnonymous(size int) ([]byte, error) {
	return nil, errNoMmap
}

func unmap(data []byte) error {
	return errNoMmap
}
