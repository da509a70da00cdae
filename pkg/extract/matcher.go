package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultPatterns qualify the image formats the vision model accepts.
var DefaultPatterns = []string{"*.{png,jpg,jpeg,gif,webp}"}

// placeholder files keep empty upload folders under version control.
const placeholder = ".gitkeep"

// Matcher decides which files in a notes directory are transcribed.
// Patterns match the lower-cased base name; excludes win over includes.
type Matcher struct {
	include []glob.Glob
	exclude []glob.Glob
}

// NewMatcher compiles include and exclude patterns. No include patterns
// means DefaultPatterns.
func NewMatcher(include, exclude []string) (*Matcher, error) {
	if len(include) == 0 {
		include = DefaultPatterns
	}
	m := &Matcher{}
	for _, p := range include {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("invalid pattern '%s': %w", p, err)
		}
		m.include = append(m.include, g)
	}
	for _, p := range exclude {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern '%s': %w", p, err)
		}
		m.exclude = append(m.exclude, g)
	}
	return m, nil
}

// Match reports whether path qualifies.
func (m *Matcher) Match(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	if name == placeholder {
		return false
	}
	for _, g := range m.exclude {
		if g.Match(name) {
			return false
		}
	}
	for _, g := range m.include {
		if g.Match(name) {
			return true
		}
	}
	return false
}
