//go:build !opencv

package main

import "github.com/bamsammich/segfeed/internal/imgproc"

//nolint:ireturn // factory returns interface by design
func opencvBackend() (imgproc.Backend, error) {
	return nil, errNoOpenCV
}
