package normalizer

// Variant identifies which known backend response shape a raw document has
type Variant int

const (
	// VariantUnknown is any JSON object without a recognized layout
	VariantUnknown Variant = iota
	// VariantFlat has top-level aria/altText/structure blocks
	VariantFlat
	// VariantNested wraps results in data.file_analysis and data.url_analysis
	VariantNested
	// VariantCombinedReport is the combined website report with
	// summary.{accessibility,image_accessibility,code_quality} and issues.*
	VariantCombinedReport
)

func (v Variant) String() string {
	switch v {
	case VariantFlat:
		return "flat"
	case VariantNested:
		return "nested"
	case VariantCombinedReport:
		return "combined-report"
	default:
		return "unknown"
	}
}

// source is the common form every variant adapter reduces a response to
type source struct {
	variant     Variant
	aria        map[string]any
	altText     map[string]any
	structure   map[string]any
	files       []any
	url         string
	urlAnalysis bool
	screenshots []any
	timestamp   string
}

var timestampKeys = []string{"timestamp", "analysis_date", "analysis_timestamp"}

// DetectVariant classifies a raw response. Nested and combined layouts are
// checked first because both may also carry a top-level "files" key.
func DetectVariant(raw map[string]any) Variant {
	if data := asMap(raw["data"]); data != nil {
		if firstMap(data, "file_analysis", "url_analysis") != nil {
			return VariantNested
		}
	}
	if summary := asMap(raw["summary"]); summary != nil {
		if firstMap(summary, "accessibility", "image_accessibility", "code_quality") != nil {
			return VariantCombinedReport
		}
	}
	for _, key := range []string{"aria", "altText", "alt_text", "structure", "files", "screenshots"} {
		if _, ok := raw[key]; ok {
			return VariantFlat
		}
	}
	return VariantUnknown
}

func adapt(raw map[string]any) source {
	switch DetectVariant(raw) {
	case VariantFlat:
		return adaptFlat(raw)
	case VariantNested:
		return adaptNested(raw)
	case VariantCombinedReport:
		return adaptCombinedReport(raw)
	}

	// Some deployments wrap the flat layout in a bare "data" envelope
	if data := asMap(raw["data"]); data != nil && DetectVariant(data) == VariantFlat {
		src := adaptFlat(data)
		if src.timestamp == "" {
			src.timestamp = firstString(raw, timestampKeys...)
		}
		return src
	}
	return source{variant: VariantUnknown, timestamp: firstString(raw, timestampKeys...)}
}

func adaptFlat(raw map[string]any) source {
	files, _ := asList(raw["files"])
	screenshots, _ := asList(raw["screenshots"])
	url := asString(raw["url"])
	return source{
		variant:     VariantFlat,
		aria:        firstMap(raw, "aria"),
		altText:     firstMap(raw, "altText", "alt_text"),
		structure:   firstMap(raw, "structure"),
		files:       files,
		url:         url,
		urlAnalysis: url != "",
		screenshots: screenshots,
		timestamp:   firstString(raw, timestampKeys...),
	}
}

func adaptNested(raw map[string]any) source {
	data := asMap(raw["data"])
	fileAnalysis := asMap(data["file_analysis"])
	urlAnalysis := asMap(data["url_analysis"])

	src := source{
		variant:     VariantNested,
		aria:        firstMap(fileAnalysis, "aria", "aria_analysis", "accessibility"),
		altText:     firstMap(fileAnalysis, "altText", "alt_text", "image_alt_analysis", "image_accessibility"),
		structure:   firstMap(fileAnalysis, "structure", "nesting_analysis", "code_quality"),
		urlAnalysis: urlAnalysis != nil,
		url:         asString(urlAnalysis["url"]),
		screenshots: firstList(urlAnalysis, []string{"screenshots"}),
	}
	if src.screenshots == nil {
		src.screenshots = firstList(fileAnalysis, []string{"screenshots"})
	}
	if src.screenshots == nil {
		src.screenshots, _ = asList(raw["screenshots"])
	}

	src.files = firstList(fileAnalysis, []string{"files"})
	if src.files == nil {
		src.files = firstList(raw, []string{"files"})
	}

	src.timestamp = firstString(raw, timestampKeys...)
	if src.timestamp == "" {
		src.timestamp = firstString(data, timestampKeys...)
	}
	return src
}

func adaptCombinedReport(raw map[string]any) source {
	summary := asMap(raw["summary"])
	issues := asMap(raw["issues"])
	files, _ := asList(raw["files"])

	return source{
		variant: VariantCombinedReport,
		aria: map[string]any{
			"summary": summary["accessibility"],
			"details": issues["aria_issues"],
		},
		altText: map[string]any{
			"summary": summary["image_accessibility"],
			"details": issues["image_alt_issues"],
		},
		structure: map[string]any{
			"summary": summary["code_quality"],
			"details": issues["nesting_issues"],
		},
		files:     files,
		timestamp: firstString(raw, timestampKeys...),
	}
}
