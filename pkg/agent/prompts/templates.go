package prompts

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/stages.yaml defaults/base_prompt.txt
var defaults embed.FS

const (
	stagesFile = "stages.yaml"
	seedFile   = "base_prompt.txt"
)

// Placeholders recognised in the seed template. "{{" and "}}" produce
// literal braces.
const (
	PlaceholderTitle       = "{title}"
	PlaceholderDestination = "{notion_page_id}"
	PlaceholderDraft       = "{draft}"
)

// Bundle holds every instruction the pipeline sends to a model.
type Bundle struct {
	Structure         string `yaml:"structure"`
	Enhance           string `yaml:"enhance"`
	Verify            string `yaml:"verify"`
	Transcribe        string `yaml:"transcribe"`
	EnsureDestination string `yaml:"ensure_destination"`

	// Seed is the publishing template, loaded from base_prompt.txt.
	Seed string `yaml:"-"`
}

// Default returns the embedded bundle.
func Default() (*Bundle, error) {
	stages, err := defaults.ReadFile("defaults/" + stagesFile)
	if err != nil {
		return nil, err
	}
	seed, err := defaults.ReadFile("defaults/" + seedFile)
	if err != nil {
		return nil, err
	}
	b := &Bundle{Seed: string(seed)}
	if err := yaml.Unmarshal(stages, b); err != nil {
		return nil, fmt.Errorf("parse embedded %s: %w", stagesFile, err)
	}
	return b, nil
}

// Load returns the embedded bundle overlaid with whatever dir provides.
// Missing files keep their defaults; empty fields in stages.yaml do too.
func Load(dir string) (*Bundle, error) {
	b, err := Default()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return b, nil
	}

	if data, err := os.ReadFile(filepath.Join(dir, stagesFile)); err == nil {
		var override Bundle
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Join(dir, stagesFile), err)
		}
		b.merge(&override)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if data, err := os.ReadFile(filepath.Join(dir, seedFile)); err == nil {
		b.Seed = string(data)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	return b, b.Validate()
}

func (b *Bundle) merge(o *Bundle) {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&b.Structure, o.Structure)
	set(&b.Enhance, o.Enhance)
	set(&b.Verify, o.Verify)
	set(&b.Transcribe, o.Transcribe)
	set(&b.EnsureDestination, o.EnsureDestination)
}

// Validate checks that the seed template carries the draft placeholder.
func (b *Bundle) Validate() error {
	if !strings.Contains(b.Seed, PlaceholderDraft) {
		return fmt.Errorf("seed template must contain %s", PlaceholderDraft)
	}
	return nil
}

// SeedValues are the substitutions made into the seed template.
type SeedValues struct {
	Title         string
	DestinationID string
	Draft         string
}

// FillSeed substitutes the placeholders in a single pass, so text inside
// the values is never substituted again.
func FillSeed(tmpl string, v SeedValues) string {
	r := strings.NewReplacer(
		"{{", "{",
		"}}", "}",
		PlaceholderTitle, v.Title,
		PlaceholderDestination, v.DestinationID,
		PlaceholderDraft, v.Draft,
	)
	return r.Replace(tmpl)
}

var placeholderRe = regexp.MustCompile(`\{\{|\}\}|\{title\}|\{notion_page_id\}|\{draft\}`)

// ParseSeed recovers the values FillSeed substituted into tmpl. It requires
// the literal text between placeholders to be unambiguous in filled.
func ParseSeed(tmpl, filled string) (SeedValues, error) {
	var pattern strings.Builder
	var order []string

	pattern.WriteString(`(?s)\A`)
	last := 0
	for _, loc := range placeholderRe.FindAllStringIndex(tmpl, -1) {
		pattern.WriteString(regexp.QuoteMeta(tmpl[last:loc[0]]))
		switch tok := tmpl[loc[0]:loc[1]]; tok {
		case "{{":
			pattern.WriteString(regexp.QuoteMeta("{"))
		case "}}":
			pattern.WriteString(regexp.QuoteMeta("}"))
		default:
			pattern.WriteString(`(.*?)`)
			order = append(order, tok)
		}
		last = loc[1]
	}
	pattern.WriteString(regexp.QuoteMeta(tmpl[last:]))
	pattern.WriteString(`\z`)

	re, err := regexp.Compile(pattern.String())
	if err != nil {
		return SeedValues{}, err
	}
	m := re.FindStringSubmatch(filled)
	if m == nil {
		return SeedValues{}, errors.New("text does not match template")
	}

	seen := map[string]string{}
	for i, tok := range order {
		val := m[i+1]
		if prev, ok := seen[tok]; ok && prev != val {
			return SeedValues{}, fmt.Errorf("placeholder %s has conflicting values", tok)
		}
		seen[tok] = val
	}
	return SeedValues{
		Title:         seen[PlaceholderTitle],
		DestinationID: seen[PlaceholderDestination],
		Draft:         seen[PlaceholderDraft],
	}, nil
}

// Preview returns at most n runes of s, for logging.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
