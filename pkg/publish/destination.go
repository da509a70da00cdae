package publish

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/entrhq/notepress/pkg/agent/tools"
	"github.com/entrhq/notepress/pkg/types"
)

// pageIDPattern finds Notion ids, dashed or compact.
var pageIDPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{12}`)

// ensureDestination asks the agent to find or create the uploads page and
// answer with its id.
func (o *Orchestrator) ensureDestination(ctx context.Context, registry *tools.Registry) (string, error) {
	log.Infof("no destination configured, resolving the uploads page")
	res, err := o.loop(registry, "").Run(ctx, types.NewUserMessage(o.bundle.EnsureDestination))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDestination, err)
	}
	if res.Degraded() {
		return "", fmt.Errorf("%w: loop stopped early (%s)", ErrDestination, res.TerminatedBy)
	}
	id, ok := ParsePageID(res.Answer)
	if !ok {
		return "", fmt.Errorf("%w: answer %q holds no page id", ErrDestination, res.Answer)
	}
	log.Infof("resolved destination %s", id)
	return id, nil
}

// ParsePageID extracts the first valid page id from text, in dashed form.
func ParsePageID(text string) (string, bool) {
	for _, candidate := range pageIDPattern.FindAllString(text, -1) {
		id, err := uuid.Parse(strings.ToLower(candidate))
		if err == nil {
			return id.String(), true
		}
	}
	return "", false
}
