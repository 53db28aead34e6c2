package fts

import (
	"regexp"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	fieldPath     = "path"
	fieldText     = "text"
	fieldLanguage = "language"
)

type bleveDoc struct {
	Path     string `json:"path"`
	Text     string `json:"text"`
	Language string `json:"language"`
}

func toBleveDoc(doc Document) bleveDoc {
	return bleveDoc{Path: doc.Path, Text: doc.Text, Language: doc.Language}
}

// buildQuery translates the query string and regex/edit-distance options
// into a bleve query. Case sensitivity is not applied here; findMatches
// applies it to the candidate documents bleve returns.
func buildQuery(q string, opts SearchOptions) query.Query {
	if opts.Regex {
		rq := bleve.NewRegexpQuery(q)
		rq.SetField(fieldText)

		return rq
	}

	mq := bleve.NewMatchQuery(q)
	mq.SetField(fieldText)

	if opts.EditDistance > 0 {
		mq.Fuzziness = opts.EditDistance
	}

	return mq
}

// findMatches scans text for occurrences of query (regex or literal,
// honoring case sensitivity) and returns one Match per matching line, for
// the first occurrence on that line, with 1-based line/column and an
// optional snippet. snippet_lines=0 suppresses
// the snippet while still returning line/column (spec §4.4, grep-style
// output).
func findMatches(path, text, q string, opts SearchOptions) []Match {
	lines := strings.Split(text, "\n")

	var re *regexp.Regexp

	if opts.Regex {
		pattern := q
		if !opts.CaseSensitive {
			pattern = "(?i)" + pattern
		}

		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil
		}

		re = compiled
	}

	var matches []Match

	needle := q
	if !opts.CaseSensitive {
		needle = strings.ToLower(needle)
	}

	for i, line := range lines {
		haystack := line
		if !opts.CaseSensitive {
			haystack = strings.ToLower(haystack)
		}

		var cols []int

		var matchText string

		if re != nil {
			loc := re.FindStringIndex(line)
			if loc != nil {
				cols = append(cols, loc[0])
				matchText = line[loc[0]:loc[1]]
			}
		} else if idx := strings.Index(haystack, needle); idx >= 0 {
			cols = append(cols, idx)
			matchText = line[idx : idx+len(q)]
		}

		for _, col := range cols {
			matches = append(matches, Match{
				Path:      path,
				Line:      i + 1,
				Column:    col + 1,
				MatchText: matchText,
				Snippet:   snippetFor(lines, i, opts.SnippetLines),
			})
		}
	}

	return matches
}

func snippetFor(lines []string, matchLine, snippetLines int) string {
	if snippetLines <= 0 {
		return ""
	}

	from := matchLine - snippetLines
	if from < 0 {
		from = 0
	}

	to := matchLine + snippetLines + 1
	if to > len(lines) {
		to = len(lines)
	}

	return strings.Join(lines[from:to], "\n")
}
