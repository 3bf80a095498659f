package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_EmptyKeepsAll(t *testing.T) {
	c := NewChain()
	assert.True(t, c.Empty())
	assert.True(t, c.Keep("images/a.png"))

	var nilChain *Chain
	assert.True(t, nilChain.Empty())
	assert.True(t, nilChain.Keep("anything"))
}

func TestChain_FirstMatchWins(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("keep_*.png"))
	require.NoError(t, c.AddExclude("*.png"))

	assert.True(t, c.Keep("train/keep_01.png"))
	assert.False(t, c.Keep("train/drop_01.png"))
	assert.True(t, c.Keep("train/a.jpg"))
}

func TestCompileGlob(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*.png", "a.png", true},
		{"*.png", "dir/a.png", true},
		{"*.png", "a.png.bak", false},
		{"img_??.jpg", "img_01.jpg", true},
		{"img_??.jpg", "img_001.jpg", false},
		{"val/*.png", "val/a.png", true},
		{"val/*.png", "train/val/a.png", false},
		{"val/*.png", "val/sub/a.png", false},
		{"/val/**", "val/sub/a.png", true},
		{"**/masks/*.png", "a/b/masks/x.png", true},
		{"**/masks/*.png", "masks/x.png", true},
		{"[!a]*.png", "b.png", true},
		{"[!a]*.png", "a.png", false},
		{"iris(1).png", "iris(1).png", true},
	}
	for _, tt := range tests {
		re, err := compileGlob(tt.pattern)
		require.NoError(t, err, tt.pattern)
		assert.Equal(t, tt.want, re.MatchString(tt.path), "%q vs %q", tt.pattern, tt.path)
	}
}

func TestChain_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules")
	content := `# keep validation-quality crops only
+ good_*.png

- *.png
*.bmp
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c := NewChain()
	require.NoError(t, c.LoadFile(path))
	assert.True(t, c.Keep("good_1.png"))
	assert.False(t, c.Keep("bad_1.png"))
	assert.False(t, c.Keep("x.bmp"))
	assert.True(t, c.Keep("x.jpg"))
}

func TestChain_LoadFileMissing(t *testing.T) {
	err := NewChain().LoadFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"512", 512},
		{"512B", 512},
		{"64k", 64 << 10},
		{"1.5M", 3 << 19},
		{"2G", 2 << 30},
		{" 1T ", 1 << 40},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "M", "abc", "-5", "1.2.3K"} {
		_, err := ParseSize(bad)
		assert.Error(t, err, bad)
	}
}
