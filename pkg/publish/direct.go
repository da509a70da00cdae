package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// ToolCreatePage and ToolAppendBlocks are the Notion tool server's names.
	ToolCreatePage   = "API-post-page"
	ToolAppendBlocks = "API-patch-block-children"

	// MaxBlockRunes is the longest rich text a single block receives.
	MaxBlockRunes = 1500
)

// Block is one Notion block to append.
type Block struct {
	Type string
	Text string
}

// DirectResult summarizes a direct write.
type DirectResult struct {
	PageID string
	Blocks int
	Failed int
}

// DirectWriter publishes without a model: one page creation, then one
// append call per block. It backs test mode.
type DirectWriter struct {
	now func() time.Time
}

func NewDirectWriter() *DirectWriter {
	return &DirectWriter{now: time.Now}
}

// Title is "TEST - <timestamp>".
func (w *DirectWriter) Title() string {
	return "TEST - " + w.now().Format("2006-01-02 15:04:05")
}

// Write creates the page under parentID and appends the draft's blocks.
// Creation failures abort; a failed block is logged and skipped.
func (w *DirectWriter) Write(ctx context.Context, sess Session, parentID, title, draft string) (*DirectResult, error) {
	out, err := sess.CallTool(ctx, ToolCreatePage, map[string]interface{}{
		"parent": map[string]interface{}{"page_id": parentID},
		"properties": map[string]interface{}{
			"title": map[string]interface{}{
				"title": []interface{}{
					map[string]interface{}{"text": map[string]interface{}{"content": title}},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	pageID := ExtractPageID(out)
	if pageID == "" {
		return nil, fmt.Errorf("create page: no page id in result %q", truncate(out, 120))
	}
	log.Infof("test mode: page created with id %s", pageID)

	res := &DirectResult{PageID: pageID}
	for _, b := range Blocks(draft) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Blocks++
		if _, err := sess.CallTool(ctx, ToolAppendBlocks, appendArgs(pageID, b)); err != nil {
			res.Failed++
			log.Warnf("test mode: creating %s block failed: %v", b.Type, err)
			continue
		}
		log.Debugf("test mode: created %s: %s", b.Type, truncate(b.Text, 50))
	}
	return res, nil
}

// Blocks maps each non-empty line of the draft to a block:
// "# " heading_1, "## " heading_2, "1. " to "9. " heading_2 with the
// number kept, "- " bulleted_list_item, anything else a paragraph.
// Text longer than MaxBlockRunes is split over several blocks of the same type.
func Blocks(draft string) []Block {
	var blocks []Block
	for _, line := range strings.Split(draft, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		typ, text := classifyLine(line)
		for _, chunk := range chunkRunes(text, MaxBlockRunes) {
			blocks = append(blocks, Block{Type: typ, Text: chunk})
		}
	}
	return blocks
}

func classifyLine(line string) (string, string) {
	switch {
	case strings.HasPrefix(line, "# "):
		return "heading_1", line[2:]
	case strings.HasPrefix(line, "## "):
		return "heading_2", line[3:]
	case len(line) >= 3 && line[0] >= '1' && line[0] <= '9' && line[1] == '.' && line[2] == ' ':
		return "heading_2", line
	case strings.HasPrefix(line, "- "):
		return "bulleted_list_item", line[2:]
	default:
		return "paragraph", line
	}
}

func chunkRunes(s string, n int) []string {
	r := []rune(s)
	if len(r) <= n {
		return []string{s}
	}
	chunks := make([]string, 0, len(r)/n+1)
	for i := 0; i < len(r); i += n {
		end := i + n
		if end > len(r) {
			end = len(r)
		}
		chunks = append(chunks, string(r[i:end]))
	}
	return chunks
}

func appendArgs(pageID string, b Block) map[string]interface{} {
	return map[string]interface{}{
		"block_id": pageID,
		"children": []interface{}{
			map[string]interface{}{
				"object": "block",
				"type":   b.Type,
				b.Type: map[string]interface{}{
					"rich_text": []interface{}{
						map[string]interface{}{
							"type": "text",
							"text": map[string]interface{}{"content": b.Text},
						},
					},
				},
			},
		},
	}
}

// ExtractPageID reads "id" from a JSON page object, falling back to a
// scan for the first `"id":"` when the result is not valid JSON.
func ExtractPageID(result string) string {
	var page struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(result), &page); err == nil {
		return page.ID
	}
	const key = `"id":"`
	i := strings.Index(result, key)
	if i < 0 {
		return ""
	}
	rest := result[i+len(key):]
	if j := strings.IndexByte(rest, '"'); j >= 0 {
		return rest[:j]
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
