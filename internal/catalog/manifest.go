package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bamsammich/segfeed/internal/filter"
)

// LabelType says what a manifest line carries besides the image path.
type LabelType int

const (
	// LabelNone lines hold only an image; labels are synthesized as ignore.
	LabelNone LabelType = iota
	// LabelImage lines hold an image and two integer classes that fill the
	// whole mask and edge map.
	LabelImage
	// LabelPixel lines hold an image and optional mask and edge paths.
	LabelPixel
)

var labelTypeNames = [...]string{
	LabelNone:  "none",
	LabelImage: "image",
	LabelPixel: "pixel",
}

func (t LabelType) String() string {
	if int(t) < len(labelTypeNames) {
		return labelTypeNames[t]
	}
	return fmt.Sprintf("LabelType(%d)", int(t))
}

// ParseLabelType accepts "none", "image" or "pixel" in any case.
func ParseLabelType(s string) (LabelType, error) {
	for i, name := range labelTypeNames {
		if strings.EqualFold(s, name) {
			return LabelType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown label type %q (want none, image or pixel)", s)
}

// ParseManifest reads one sample per line. Tokens are whitespace separated;
// blank lines and lines starting with # are skipped.
func ParseManifest(r io.Reader, lt LabelType) ([]Sample, error) {
	var samples []Sample
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		s, err := parseLine(strings.Fields(line), lt)
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", n, err)
		}
		samples = append(samples, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return samples, nil
}

func parseLine(fields []string, lt LabelType) (Sample, error) {
	s := Sample{Image: fields[0]}
	switch lt {
	case LabelNone:
	case LabelImage:
		if len(fields) != 3 {
			return s, fmt.Errorf("want <image> <class> <edge class>, got %d fields", len(fields))
		}
		var err error
		if s.MaskClass, err = strconv.Atoi(fields[1]); err != nil {
			return s, fmt.Errorf("class: %w", err)
		}
		if s.EdgeClass, err = strconv.Atoi(fields[2]); err != nil {
			return s, fmt.Errorf("edge class: %w", err)
		}
	case LabelPixel:
		switch len(fields) {
		case 1:
		case 3:
			s.Mask, s.Edge = fields[1], fields[2]
		default:
			return s, fmt.Errorf("want <image> [<mask> <edge>], got %d fields", len(fields))
		}
	default:
		return s, fmt.Errorf("unsupported label type %v", lt)
	}
	return s, nil
}

// LoadManifest parses the manifest at path and drops samples whose image path
// the chain rejects. chain may be nil.
func LoadManifest(path string, lt LabelType, chain *filter.Chain) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	samples, err := ParseManifest(f, lt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if chain.Empty() {
		return samples, nil
	}
	kept := samples[:0]
	for _, s := range samples {
		if chain.Keep(s.Image) {
			kept = append(kept, s)
		}
	}
	return kept, nil
}
