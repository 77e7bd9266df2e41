package query

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/text/unicode/norm"
)

// Fields is the recollq -F field list; Parse expects values in this order.
var Fields = []string{"url", "mtype", "created", "modified", "tags", "relevancyrating"}

// headerLines is the number of lines recollq prints before the results.
const headerLines = 2

// Record is one search hit.
type Record struct {
	URL       string    `json:"url"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Created   time.Time `json:"created,omitzero"`
	Modified  time.Time `json:"modified,omitzero"`
	Tags      []string  `json:"tags"`
	Relevance string    `json:"relevance"`
}

// RelativeTo returns the record path relative to root, or the full path
// when it lies outside root.
func (r Record) RelativeTo(root string) string {
	if root == "" {
		return r.Path
	}
	root = strings.TrimRight(root, "/") + "/"
	if rel, ok := strings.CutPrefix(r.Path, root); ok {
		return rel
	}
	return r.Path
}

// Parse decodes recollq output produced with -F. The first two lines are
// the query echo and the result count. A line with an undecodable field is
// an error.
func Parse(stdout []byte) ([]Record, error) {
	lines := bytes.Split(bytes.TrimSpace(stdout), []byte("\n"))
	if len(lines) <= headerLines {
		return []Record{}, nil
	}
	out := make([]Record, 0, len(lines)-headerLines)
	for i, line := range lines[headerLines:] {
		line = bytes.TrimRight(line, "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		rec, err := parseLine(string(line))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+headerLines+1, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseLine(line string) (Record, error) {
	raw := strings.Split(line, " ")
	vals := make([]string, len(Fields))
	for i := range vals {
		if i >= len(raw) {
			break
		}
		v, err := decodeField(raw[i])
		if err != nil {
			return Record{}, fmt.Errorf("field %s: %w", Fields[i], err)
		}
		vals[i] = v
	}
	url := norm.NFC.String(vals[0])
	p := strings.TrimPrefix(url, "file://")
	return Record{
		URL:       url,
		Path:      p,
		Name:      path.Base(p),
		Type:      vals[1],
		Created:   parseUnix(vals[2]),
		Modified:  parseUnix(vals[3]),
		Tags:      splitTags(vals[4]),
		Relevance: vals[5],
	}, nil
}

func decodeField(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		var rerr error
		if b, rerr = base64.RawStdEncoding.DecodeString(s); rerr != nil {
			return "", err
		}
	}
	return string(b), nil
}

func parseUnix(s string) time.Time {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

func splitTags(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

// CleanTags returns tags for display: trimmed, without a leading '#',
// empty entries dropped and duplicates removed in first-seen order.
func CleanTags(tags []string) []string {
	out := lo.FilterMap(tags, func(t string, _ int) (string, bool) {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		return t, t != ""
	})
	return lo.Uniq(out)
}
