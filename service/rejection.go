package service

import (
	"fmt"
	"strings"
	"text/template"

	"procurement-assistant/config"
	"procurement-assistant/models"
)

// RejectionGate decides whether a drafted answer may reach the user
type RejectionGate struct {
	tables     config.GateTables
	templates  map[models.RejectionCode]rejectionTemplates
	disclaimer *template.Template
}

type rejectionTemplates struct {
	description    *template.Template
	recommendation *template.Template
	body           *template.Template
}

// rejectionData is what rejection and disclaimer templates can reference
type rejectionData struct {
	Percent         string
	CoveragePercent string
	Confidence      float64
	Coverage        float64
	Description     string
	Recommendation  string
}

// GateResult is the gate's decision plus the text to show the user
type GateResult struct {
	Verdict  models.RejectionVerdict
	Multiple bool
	Text     string
}

func NewRejectionGate(gate config.GateTables, messages config.MessageTables) (*RejectionGate, error) {
	g := &RejectionGate{
		tables:    gate,
		templates: make(map[models.RejectionCode]rejectionTemplates, len(models.RejectionCodes)),
	}

	disclaimer, err := template.New("disclaimer").Parse(messages.Disclaimer)
	if err != nil {
		return nil, fmt.Errorf("%w: disclaimer: %v", config.ErrInvalidTables, err)
	}
	g.disclaimer = disclaimer

	for _, code := range models.RejectionCodes {
		src, ok := messages.Rejections[code]
		if !ok {
			return nil, fmt.Errorf("%w: no template for %s", config.ErrInvalidTables, code)
		}
		var t rejectionTemplates
		for _, part := range []struct {
			dst **template.Template
			src string
		}{
			{&t.description, src.Description},
			{&t.recommendation, src.Recommendation},
			{&t.body, src.Body},
		} {
			parsed, err := template.New(string(code)).Parse(part.src)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", config.ErrInvalidTables, code, err)
			}
			*part.dst = parsed
		}
		g.templates[code] = t
	}
	return g, nil
}

// DetectMultipleInterpretations reports whether the answer presents unresolved
// alternative readings: enough distinct framing markers appear in it
func (g *RejectionGate) DetectMultipleInterpretations(answer string) bool {
	lowered := strings.ToLower(answer)
	return len(matchedWords(lowered, g.tables.InterpretationMarkers)) >= g.tables.InterpretationMinMarkers
}

// Evaluate applies the rules in fixed order; the first match wins.
// A value equal to its threshold passes.
func (g *RejectionGate) Evaluate(confidence float64, hasCritical, multiple bool, coverage float64) models.RejectionVerdict {
	var code models.RejectionCode
	switch {
	case confidence < g.tables.MinConfidence:
		code = models.RejectLowConfidence
	case hasCritical:
		code = models.RejectCriticalHallucinations
	case multiple:
		code = models.RejectMultipleInterpretations
	case coverage < g.tables.CoverageThreshold:
		code = models.RejectInsufficientCoverage
	default:
		return models.RejectionVerdict{Rejected: false}
	}

	data := newRejectionData(confidence, coverage)
	t := g.templates[code]
	return models.RejectionVerdict{
		Rejected: true,
		Reason: &models.RejectionReason{
			Code:           code,
			Description:    render(t.description, data, string(code)),
			Confidence:     confidence,
			Recommendation: render(t.recommendation, data, ""),
		},
	}
}

// Apply runs the whole gate over a drafted answer and its assessment
func (g *RejectionGate) Apply(answer string, a models.ReliabilityAssessment) GateResult {
	multiple := g.DetectMultipleInterpretations(answer)
	verdict := g.Evaluate(a.Confidence, a.HasCritical(), multiple, a.SourceCoverage)

	result := GateResult{Verdict: verdict, Multiple: multiple}
	switch {
	case verdict.Rejected:
		result.Text = g.RejectionMessage(verdict.Reason, a.SourceCoverage)
	case a.Confidence < g.tables.HighConfidence:
		note := render(g.disclaimer, newRejectionData(a.Confidence, a.SourceCoverage), "")
		result.Text = strings.TrimRight(answer, "\n") + "\n\n" + note
	default:
		result.Text = answer
	}
	return result
}

// RejectionMessage renders the fixed user-facing message for a rejection reason
func (g *RejectionGate) RejectionMessage(reason *models.RejectionReason, coverage float64) string {
	if reason == nil {
		return ""
	}
	data := newRejectionData(reason.Confidence, coverage)
	data.Description = reason.Description
	data.Recommendation = reason.Recommendation
	return render(g.templates[reason.Code].body, data, reason.Description)
}

func newRejectionData(confidence, coverage float64) rejectionData {
	return rejectionData{
		Percent:         fmt.Sprintf("%.0f%%", confidence*100),
		CoveragePercent: fmt.Sprintf("%.0f%%", coverage*100),
		Confidence:      confidence,
		Coverage:        coverage,
	}
}

// render executes t, falling back when it is missing or fails
func render(t *template.Template, data rejectionData, fallback string) string {
	if t == nil {
		return fallback
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return fallback
	}
	return sb.String()
}
