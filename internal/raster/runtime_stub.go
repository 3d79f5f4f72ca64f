//go:build !govips || !cgo

package raster

import "fmt"

func Startup() error {
	return nil
}

func Shutdown() {}

func newLinkedTool() (Tool, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags govips and cgo enabled", ErrBackendUnavailable)
}
