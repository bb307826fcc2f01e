package conversation

import "chatbot/internal/models"

// HasChart reports whether the backend attached any chart payload.
func HasChart(p *models.MessagePair) bool {
	return p != nil && (p.ChartData != nil || p.ChartMetadata != nil)
}

// HasValidChart reports whether the chart can be plotted: both parts are
// present, the type is supported, there is at least one row and every row is
// an object carrying both axis columns.
func HasValidChart(p *models.MessagePair) bool {
	if p == nil || p.ChartData == nil || p.ChartMetadata == nil {
		return false
	}
	meta := p.ChartMetadata
	if !meta.ChartType.Supported() || meta.XAxis == "" || meta.YAxis == "" {
		return false
	}
	if len(p.ChartData.Data) == 0 {
		return false
	}
	for _, row := range p.ChartData.Data {
		if row.Kind() != models.KindObject {
			return false
		}
		if _, ok := row.Get(meta.XAxis); !ok {
			return false
		}
		if _, ok := row.Get(meta.YAxis); !ok {
			return false
		}
	}
	return true
}

// ValidLabel returns the series column used to color the chart. The label is
// only usable when it names a column present in the data other than the axes.
func ValidLabel(p *models.MessagePair) (string, bool) {
	if p == nil || p.ChartMetadata == nil || p.ChartData == nil {
		return "", false
	}
	meta := p.ChartMetadata
	if meta.Label == nil || *meta.Label == "" {
		return "", false
	}
	label := *meta.Label
	if label == meta.XAxis || label == meta.YAxis {
		return "", false
	}
	for _, row := range p.ChartData.Data {
		if _, ok := row.Get(label); ok {
			return label, true
		}
	}
	return "", false
}

// ChartNotice returns the message to show instead of a chart, or "" when the
// chart is valid.
func ChartNotice(p *models.MessagePair) string {
	switch {
	case HasValidChart(p):
		return ""
	case HasChart(p):
		return models.MsgChartCreationFailed
	default:
		return models.MsgNoChart
	}
}
