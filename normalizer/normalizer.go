package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

const (
	// PlaceholderFile is reported when no file names can be recovered
	PlaceholderFile = "No files analyzed"
	// WebsiteAnalysisLabel is prepended to files when a URL was analyzed
	WebsiteAnalysisLabel = "Website Analysis"

	placeholderScreenshotURL   = "/images/placeholder-screenshot.png"
	placeholderScreenshotTitle = "Sample Analysis"
)

// Count aliases per category, in priority order
var (
	ariaIssueKeys      = []string{"issuesCount", "issues_count", "issues", "total_without_aria", "total_elements_without_aria", "elements_without_aria"}
	ariaTotalKeys      = []string{"total", "totalElements", "total_elements", "total_interactive_elements"}
	altTextIssueKeys   = []string{"issuesCount", "issues_count", "issues", "images_without_alt", "total_images_without_alt", "without_alt"}
	altTextTotalKeys   = []string{"total", "totalImages", "total_images"}
	structureIssueKeys = []string{"issuesCount", "issues_count", "issues", "total_issues", "total_issues_found", "total_nesting_issues"}
	structureTotalKeys = []string{"total", "totalChecks", "total_checks"}
)

// MalformedInputError reports a raw response that is not a JSON object
type MalformedInputError struct {
	Reason string
	Err    error
}

func (e *MalformedInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed analysis response: %s: %v", e.Reason, e.Err)
	}
	return "malformed analysis response: " + e.Reason
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// Normalize parses a raw backend response and converts it into canonical
// results. Input that is not a JSON object yields a *MalformedInputError.
func Normalize(data []byte) (*AnalysisResults, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, &MalformedInputError{Reason: "empty input"}
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, &MalformedInputError{Reason: "invalid JSON", Err: err}
	}

	raw, ok := decoded.(map[string]any)
	if !ok {
		if decoded == nil {
			return nil, &MalformedInputError{Reason: "null document"}
		}
		return nil, &MalformedInputError{Reason: fmt.Sprintf("expected a JSON object, got %T", decoded)}
	}
	return NormalizeValue(raw), nil
}

// NormalizeOrFallback never fails: malformed input yields previous when set,
// otherwise the sample results. The bool reports whether a fallback was used.
func NormalizeOrFallback(data []byte, previous *AnalysisResults) (*AnalysisResults, bool) {
	results, err := Normalize(data)
	if err == nil {
		return results, false
	}
	if previous != nil {
		return previous, true
	}
	return SampleResults(), true
}

// NormalizeValue converts an already decoded raw response. It performs no
// I/O and returns equal results for equal input.
func NormalizeValue(raw map[string]any) *AnalysisResults {
	src := adapt(raw)

	aria := categoryMetric(src.aria, ariaIssueKeys, ariaTotalKeys, ariaDetailKeys, false)
	aria.Breakdown = explicitBreakdown(src.aria, "missing_by_type", "missing_by_element_type", "missingByType")
	if aria.Breakdown == nil {
		aria.Breakdown = countBy(aria.Details, "type")
	}

	altText := categoryMetric(src.altText, altTextIssueKeys, altTextTotalKeys, altTextDetailKeys, false)

	structure := categoryMetric(src.structure, structureIssueKeys, structureTotalKeys, structureDetailKeys, true)
	structure.Breakdown = countBy(structure.Details, "category")

	return &AnalysisResults{
		OverallScore: OverallScore(aria.Score, altText.Score, structure.Score),
		ARIA:         aria,
		AltText:      altText,
		Structure:    structure,
		Files:        deriveFiles(src),
		Screenshots:  deriveScreenshots(src.screenshots),
		URL:          src.url,
		Timestamp:    src.timestamp,
	}
}

func categoryMetric(block map[string]any, issueKeys, totalKeys, detailKeys []string, structure bool) CategoryMetric {
	details := collectDetails(block, detailKeys, structure)

	issues, ok := firstCount(block, issueKeys)
	if !ok {
		issues = len(details)
	}
	total, ok := firstCount(block, totalKeys)
	if !ok {
		total = 1
	}

	return CategoryMetric{
		Score:   Score(issues, total),
		Issues:  issues,
		Total:   total,
		Details: details,
	}
}

// Score is the share of passing items as a 0-100 integer. A category with
// nothing to check scores 100.
func Score(issues, total int) int {
	if total == 0 {
		return 100
	}
	score := math.Round(100 * (float64(total) - float64(issues)) / float64(total))
	return int(math.Max(0, math.Min(100, score)))
}

// OverallScore is the unweighted mean of the category scores
func OverallScore(aria, altText, structure int) int {
	return int(math.Round(float64(aria+altText+structure) / 3))
}

// deriveFiles prefers the file lists of the structure and ARIA sections,
// then the alt-text section, then the top-level list. A URL analysis is
// listed first under a synthetic label.
func deriveFiles(src source) []string {
	seen := make(map[string]bool)
	var files []string
	if src.urlAnalysis {
		seen[WebsiteAnalysisLabel] = true
		files = append(files, WebsiteAnalysisLabel)
	}
	add := func(list []any) {
		for _, entry := range list {
			name := asString(entry)
			if name == "" {
				name = firstString(asMap(entry), "filename", "file", "name", "file_path")
			}
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			files = append(files, name)
		}
	}

	add(firstList(src.structure, []string{"files"}))
	add(firstList(src.aria, []string{"files"}))
	add(firstList(src.altText, []string{"files", "file_details"}))
	add(src.files)

	if len(files) == 0 {
		return []string{PlaceholderFile}
	}
	return files
}

func deriveScreenshots(list []any) []Screenshot {
	var screenshots []Screenshot
	for i, entry := range list {
		m := asMap(entry)
		url := firstString(m, "url", "src", "image")
		if url == "" {
			continue
		}
		title := firstString(m, "title", "name")
		if title == "" {
			title = "Screenshot " + strconv.Itoa(i+1)
		}

		markers := make([]IssueMarker, 0)
		entries, _ := asList(m["issues"])
		for _, raw := range entries {
			if marker, ok := issueMarker(asMap(raw)); ok {
				markers = append(markers, marker)
			}
		}
		screenshots = append(screenshots, Screenshot{URL: url, Title: title, Issues: markers})
	}

	if len(screenshots) == 0 {
		return []Screenshot{PlaceholderScreenshot()}
	}
	return screenshots
}

func issueMarker(m map[string]any) (IssueMarker, bool) {
	x, okX := asFloat(m["x"])
	y, okY := asFloat(m["y"])
	if !okX || !okY {
		return IssueMarker{}, false
	}

	marker := IssueMarker{X: x, Y: y, Type: firstString(m, "type", "description")}
	if marker.Type == "" {
		marker.Type = "issue"
	}
	marker.Width = optionalFloat(m, "width", "w")
	marker.Height = optionalFloat(m, "height", "h")
	marker.ContrastRatio = optionalFloat(m, "contrastRatio", "contrast_ratio", "ratio")
	return marker, true
}

func optionalFloat(m map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		if f, ok := asFloat(m[key]); ok {
			return &f
		}
	}
	return nil
}

// PlaceholderScreenshot is shown when the backend supplied no screenshots.
// Its markers are illustrative positions, not detected issues.
func PlaceholderScreenshot() Screenshot {
	return Screenshot{
		URL:   placeholderScreenshotURL,
		Title: placeholderScreenshotTitle,
		Issues: []IssueMarker{
			{X: 120, Y: 200, Type: "Missing ARIA label"},
			{X: 300, Y: 450, Type: "No alt text"},
			{X: 800, Y: 150, Type: "Poor contrast"},
		},
	}
}

// SampleResults is the illustrative data shown when no usable analysis exists
func SampleResults() *AnalysisResults {
	aria := CategoryMetric{Score: 72, Issues: 13, Total: 46, Details: []Detail{}}
	altText := CategoryMetric{Score: 85, Issues: 2, Total: 13, Details: []Detail{}}
	structure := CategoryMetric{Score: 90, Issues: 3, Total: 30, Details: []Detail{}}
	return &AnalysisResults{
		OverallScore: OverallScore(aria.Score, altText.Score, structure.Score),
		ARIA:         aria,
		AltText:      altText,
		Structure:    structure,
		Files:        []string{"index.html", "styles.css", "app.js"},
		Screenshots:  []Screenshot{PlaceholderScreenshot()},
	}
}
