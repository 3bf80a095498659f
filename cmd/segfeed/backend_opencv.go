//go:build opencv

package main

import (
	"github.com/bamsammich/segfeed/internal/imgproc"
	"github.com/bamsammich/segfeed/internal/imgproc/cvbackend"
)

//nolint:ireturn // factory returns interface by design
func opencvBackend() (imgproc.Backend, error) {
	return cvbackend.New(), nil
}
