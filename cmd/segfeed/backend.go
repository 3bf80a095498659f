package main

import (
	"fmt"

	"github.com/bamsammich/segfeed/internal/errdefs"
	"github.com/bamsammich/segfeed/internal/imgproc"
)

// backendFor resolves --backend. opencvBackend is provided per build tag.
//
//nolint:ireturn // factory returns interface by design
func backendFor(name string) (imgproc.Backend, error) {
	switch name {
	case "", "cpu":
		return imgproc.NewCPU(), nil
	case "opencv":
		return opencvBackend()
	default:
		return nil, errdefs.Configf("backend", "unknown backend %q (want cpu or opencv)", name)
	}
}

var errNoOpenCV = fmt.Errorf("%w: segfeed was built without the opencv tag", errdefs.ErrConfig)
