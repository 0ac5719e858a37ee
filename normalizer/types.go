package normalizer

// Reference viewport the screenshot markers are positioned in
const (
	ViewportWidth  = 1200
	ViewportHeight = 800
)

// Detail is a single finding as reported by the analysis backend. The record
// is opaque apart from a few canonical keys: "code" (offending markup),
// "type", "filename" and, for structure findings, "category".
type Detail map[string]any

// CategoryMetric is the scored summary of one analysis category
type CategoryMetric struct {
	Score     int            `json:"score"`
	Issues    int            `json:"issues"`
	Total     int            `json:"total"`
	Details   []Detail       `json:"details"`
	Breakdown map[string]int `json:"breakdown,omitempty"`
}

// IssueMarker locates an issue on a screenshot in reference viewport pixels
type IssueMarker struct {
	X             float64  `json:"x"`
	Y             float64  `json:"y"`
	Type          string   `json:"type"`
	Width         *float64 `json:"width,omitempty"`
	Height        *float64 `json:"height,omitempty"`
	ContrastRatio *float64 `json:"contrastRatio,omitempty"`
}

type Screenshot struct {
	URL    string        `json:"url"`
	Title  string        `json:"title"`
	Issues []IssueMarker `json:"issues"`
}

// AnalysisResults is the canonical shape rendered by the dashboard
type AnalysisResults struct {
	OverallScore int            `json:"overallScore"`
	ARIA         CategoryMetric `json:"aria"`
	AltText      CategoryMetric `json:"altText"`
	Structure    CategoryMetric `json:"structure"`
	Files        []string       `json:"files"`
	Screenshots  []Screenshot   `json:"screenshots"`
	URL          string         `json:"url,omitempty"`
	Timestamp    string         `json:"timestamp,omitempty"`
}

// TotalIssues sums the issue counts of all three categories
func (r *AnalysisResults) TotalIssues() int {
	return r.ARIA.Issues + r.AltText.Issues + r.Structure.Issues
}
