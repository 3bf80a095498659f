// Package filter selects manifest entries with ordered include/exclude glob
// rules, and parses human-readable byte sizes for I/O limits.
package filter

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

type rule struct {
	re      *regexp.Regexp
	include bool
}

// Chain is an ordered list of glob rules matched against sample paths.
// The first matching rule decides; a path matching no rule is kept.
type Chain struct {
	rules []rule
}

// NewChain creates an empty chain that keeps everything.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude appends a rule dropping paths that match pattern.
func (c *Chain) AddExclude(pattern string) error {
	return c.add(pattern, false)
}

// AddInclude appends a rule keeping paths that match pattern.
func (c *Chain) AddInclude(pattern string) error {
	return c.add(pattern, true)
}

func (c *Chain) add(pattern string, include bool) error {
	re, err := compileGlob(pattern)
	if err != nil {
		return fmt.Errorf("pattern %q: %w", pattern, err)
	}
	c.rules = append(c.rules, rule{re: re, include: include})
	return nil
}

// Empty reports whether the chain has no rules.
func (c *Chain) Empty() bool {
	return c == nil || len(c.rules) == 0
}

// Keep reports whether the manifest path survives the chain. A nil chain
// keeps everything.
func (c *Chain) Keep(path string) bool {
	if c == nil {
		return true
	}
	path = strings.TrimPrefix(path, "./")
	for _, r := range c.rules {
		if r.re.MatchString(path) {
			return r.include
		}
	}
	return true
}

// LoadFile appends rules from a file, one per line:
//
//	+ pattern   include
//	- pattern   exclude
//	pattern     exclude
//
// Blank lines and lines starting with # are ignored.
func (c *Chain) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		include := false
		switch {
		case strings.HasPrefix(line, "+ "):
			include, line = true, strings.TrimSpace(line[2:])
		case strings.HasPrefix(line, "- "):
			line = strings.TrimSpace(line[2:])
		}
		if err := c.add(line, include); err != nil {
			return fmt.Errorf("%s:%d: %w", path, n, err)
		}
	}
	return sc.Err()
}

// compileGlob turns a glob into an anchored regexp. "*" and "?" stop at "/",
// "**" crosses directories, and [...] classes accept "!" for negation.
// A pattern without "/" matches the final path element (or any suffix
// starting at an element boundary); a pattern with "/" must match from the
// start of the path.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	anchored := strings.Contains(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")

	var b strings.Builder
	if anchored {
		b.WriteString("^")
	} else {
		b.WriteString("(^|/)")
	}
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			if strings.HasPrefix(pattern[i:], "**/") {
				b.WriteString("(.*/)?")
				i += 2
			} else if strings.HasPrefix(pattern[i:], "**") {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := pattern[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
