package normalizer

import (
	"path"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Keys that hold the offending markup of a finding, in priority order.
// Backend versions disagree on the name; the first non-empty one wins and
// is stored under "code". "tag" only counts when it actually holds markup,
// otherwise it is an element name. "context" is a last resort and is kept
// on the record since it also describes the surrounding line.
var markupKeys = []string{
	"code",
	"element_html",
	"tag_html",
	"img_html",
	"img_tag",
	"html",
	"tag",
	"full_match",
	"context",
}

// Keys of a detail entry that hold a per-file group of further details
var groupKeys = []string{
	"tags",
	"missing_elements",
	"missing_alt_tags",
	"missing_images",
	"issues",
	"nesting_issues",
}

// Keys a grouped child inherits from its group when it lacks them
var inheritedKeys = []string{"filename", "file_path", "file_type"}

var (
	ariaDetailKeys      = []string{"details", "missing_elements", "missingElements", "missing_aria_elements", "allMissingElements"}
	altTextDetailKeys   = []string{"details", "missing_alt_tags", "all_missing_tags", "allMissingTags", "missing_alt_images", "missing_images"}
	structureDetailKeys = []string{"details", "issues", "allIssues", "nesting_issues"}
)

// collectDetails flattens the detail list of a category block into canonical
// records, preserving backend order.
func collectDetails(block map[string]any, keys []string, structure bool) []Detail {
	details := make([]Detail, 0)
	for _, entry := range firstList(block, keys) {
		details = appendDetail(details, entry, nil, structure)
	}
	return details
}

func appendDetail(details []Detail, entry any, inherited map[string]any, structure bool) []Detail {
	switch e := entry.(type) {
	case map[string]any:
		if children, ok := groupChildren(e); ok {
			group := make(map[string]any, len(inheritedKeys))
			for _, key := range inheritedKeys {
				if v, ok := e[key]; ok {
					group[key] = v
				} else if v, ok := inherited[key]; ok {
					group[key] = v
				}
			}
			for _, child := range children {
				details = appendDetail(details, child, group, structure)
			}
			return details
		}
		return append(details, canonicalDetail(e, inherited, structure))
	case string:
		if s := strings.TrimSpace(e); s != "" {
			return append(details, canonicalDetail(map[string]any{"code": s}, inherited, structure))
		}
	}
	return details
}

// Keys that make an entry a finding in its own right, even when it also
// carries a list under one of the group keys
var findingKeys = []string{"type", "line", "message", "element_type"}

// groupChildren returns the nested details of a per-file group. Entries with
// markup or finding fields of their own are never groups.
func groupChildren(entry map[string]any) ([]any, bool) {
	if code, _ := resolveMarkup(entry); code != "" {
		return nil, false
	}
	for _, key := range findingKeys {
		if v, ok := entry[key]; ok && v != nil {
			return nil, false
		}
	}
	for _, key := range groupKeys {
		if children, ok := asList(entry[key]); ok {
			return children, true
		}
	}
	return nil, false
}

// canonicalDetail copies a backend record, collapsing markup aliases into
// "code" and element-type aliases into "type".
func canonicalDetail(entry, inherited map[string]any, structure bool) Detail {
	d := make(Detail, len(entry)+2)
	for _, key := range inheritedKeys {
		if v, ok := inherited[key]; ok {
			d[key] = v
		}
	}

	code, tagName := resolveMarkup(entry)
	for key, v := range entry {
		switch key {
		case "element_html", "tag_html", "img_html", "img_tag", "html", "tag", "full_match", "element_type":
			continue
		}
		d[key] = v
	}
	if code != "" {
		d["code"] = code
	} else {
		delete(d, "code")
	}

	if asString(d["type"]) == "" {
		typ := firstString(entry, "element_type")
		if typ == "" {
			typ = tagName
		}
		if typ == "" && code != "" {
			typ = elementName(code)
		}
		if typ != "" {
			d["type"] = typ
		} else {
			delete(d, "type")
		}
	}

	if structure {
		if category := structureCategory(d); category != "" {
			d["category"] = category
		}
	}
	return d
}

// resolveMarkup returns the highest priority markup value and, when the
// "tag" key held a bare element name instead of markup, that name.
func resolveMarkup(entry map[string]any) (code, tagName string) {
	for _, key := range markupKeys {
		s := asString(entry[key])
		if s == "" {
			continue
		}
		if key == "tag" && !strings.Contains(s, "<") {
			if tagName == "" {
				tagName = strings.ToLower(s)
			}
			continue
		}
		if code == "" {
			code = s
		}
	}
	return code, tagName
}

// elementName returns the name of the first element in an HTML fragment
func elementName(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err == nil {
		var name string
		doc.Find("head *, body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			name = goquery.NodeName(s)
			return false
		})
		if name != "" {
			return name
		}
	}
	return scanElementName(fragment)
}

// scanElementName handles fragments the HTML parser relocates or drops,
// such as a lone <td> or <tr>.
func scanElementName(fragment string) string {
	i := strings.IndexByte(fragment, '<')
	if i < 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range fragment[i+1:] {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
			continue
		}
		break
	}
	return strings.ToLower(b.String())
}

// structureCategory assigns HTML, CSS or JS to a structure finding from its
// issue type prefix or, failing that, its file extension.
func structureCategory(d Detail) string {
	typ := strings.ToUpper(asString(d["type"]))
	switch {
	case strings.HasPrefix(typ, "HTML_"):
		return "HTML"
	case strings.HasPrefix(typ, "CSS_"):
		return "CSS"
	case strings.HasPrefix(typ, "JS_"):
		return "JS"
	}

	name := firstString(d, "filename", "file_path")
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm":
		return "HTML"
	case ".css":
		return "CSS"
	case ".js", ".mjs", ".cjs", ".jsx", ".ts", ".tsx":
		return "JS"
	}

	switch c := strings.ToUpper(asString(d["category"])); c {
	case "HTML", "CSS", "JS":
		return c
	}
	return ""
}

// countBy tallies details by the string value under key
func countBy(details []Detail, key string) map[string]int {
	counts := make(map[string]int)
	for _, d := range details {
		if v := asString(d[key]); v != "" {
			counts[v]++
		}
	}
	if len(counts) == 0 {
		return nil
	}
	return counts
}

// explicitBreakdown reads a backend-supplied name->count map
func explicitBreakdown(block map[string]any, keys ...string) map[string]int {
	for _, scope := range []map[string]any{block, asMap(block["summary"])} {
		m := firstMap(scope, keys...)
		if m == nil {
			continue
		}
		counts := make(map[string]int, len(m))
		for name, v := range m {
			if n, ok := asCount(v); ok && n > 0 {
				counts[name] = n
			}
		}
		if len(counts) > 0 {
			return counts
		}
	}
	return nil
}

// TopEntry returns the breakdown key with the highest count. Ties go to the
// lexically smallest key so the result does not depend on map order.
func TopEntry(breakdown map[string]int) (string, int) {
	keys := make([]string, 0, len(breakdown))
	for k := range breakdown {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var top string
	var count int
	for _, k := range keys {
		if breakdown[k] > count {
			top, count = k, breakdown[k]
		}
	}
	return top, count
}
