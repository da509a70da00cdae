package extract

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
)

var (
	syntheticTopics = []string{
		"Machine Learning", "Distributed Systems", "Cryptography", "Cloud Computing",
		"Databases", "Compilers", "Networking", "Operating Systems",
	}
	syntheticSections = []string{
		"Introduction", "Core Concepts", "Applications", "Challenges",
		"Current Trends", "Best Practices", "Use Cases", "Open Problems",
	}
	syntheticBullets = [][]string{
		{"Automation", "Optimization", "Scalability"},
		{"Security", "Performance", "Reliability"},
		{"Consistency", "Availability", "Partition tolerance"},
		{"Monitoring", "Alerting", "Capacity planning"},
	}
)

// Synthetic stands in for the vision model in test mode. It counts the
// images a real run would transcribe and produces structured placeholder
// notes with numbered sections and bullet lists.
type Synthetic struct {
	Dir     string
	Matcher *Matcher
	Seed    uint64
}

func (s *Synthetic) Extract(_ context.Context) (string, error) {
	m := s.Matcher
	if m == nil {
		var err error
		if m, err = NewMatcher(nil, nil); err != nil {
			return "", err
		}
	}
	count := 0
	if s.Dir != "" {
		paths, err := Images(s.Dir, m)
		if err != nil {
			return "", err
		}
		count = len(paths)
	}
	log.Infof("test mode: %d image(s) in %s, generating placeholder notes", count, s.Dir)
	return SyntheticNotes(rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15)), count), nil
}

// SyntheticNotes builds four numbered sections from r.
func SyntheticNotes(r *rand.Rand, images int) string {
	topic := syntheticTopics[r.IntN(len(syntheticTopics))]
	order := r.Perm(len(syntheticSections))[:4]

	var b strings.Builder
	for i, idx := range order {
		fmt.Fprintf(&b, "%d. %s\n", i+1, syntheticSections[idx])
		switch i {
		case 0:
			fmt.Fprintf(&b, "%s changes how we build and run software.\n", topic)
		default:
			b.WriteString("Key points:\n")
			for _, item := range syntheticBullets[r.IntN(len(syntheticBullets))] {
				fmt.Fprintf(&b, "- %s\n", item)
			}
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Note: generated test content (%d image(s) detected).", images)
	return b.String()
}
