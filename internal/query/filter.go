package query

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FilterType narrows a search by MIME type.
type FilterType string

const (
	FilterMarkdown FilterType = "markdown"
	FilterFiles    FilterType = "files"
	FilterAll      FilterType = "all"
)

// Next cycles markdown → files → all → markdown.
func (f FilterType) Next() FilterType {
	switch f {
	case FilterMarkdown:
		return FilterFiles
	case FilterFiles:
		return FilterAll
	default:
		return FilterMarkdown
	}
}

// ParseFilter accepts a filter name; empty means markdown.
func ParseFilter(s string) (FilterType, error) {
	switch f := FilterType(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterMarkdown, nil
	case FilterMarkdown, FilterFiles, FilterAll:
		return f, nil
	default:
		return "", fmt.Errorf("unknown filter %q (want markdown, files or all)", s)
	}
}

// BuildQuery appends the filter clause to input. It reports false for blank
// input, which must not be sent to recollq.
func BuildQuery(input string, filter FilterType) (string, bool) {
	if strings.TrimSpace(input) == "" {
		return "", false
	}
	switch filter {
	case FilterMarkdown:
		return input + " mime:text/markdown", true
	case FilterFiles:
		return input + " -mime:inode/directory", true
	default:
		return input, true
	}
}

// ScopeDir restricts input to documents below dir with a leading
// dir:"<dir>" clause. An empty dir returns input unchanged. Directories
// containing a double quote or a line break cannot be expressed.
func ScopeDir(dir, input string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return input, nil
	}
	if strings.ContainsAny(dir, "\"\r\n") {
		return "", fmt.Errorf("directory %q cannot be quoted in a query", dir)
	}
	clause := `dir:"` + filepath.ToSlash(filepath.Clean(dir)) + `"`
	if strings.TrimSpace(input) == "" {
		return clause, nil
	}
	return clause + " " + input, nil
}
