package evaluate

import (
	"strings"
	"text/template"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

const systemPrompt = "You are an expert prediction-market analyst. Always answer with a single JSON object and nothing else."

var promptTmpl = template.Must(template.New("evaluate").Parse(`You are an expert prediction-market analyst.
Evaluate whether this is a strong candidate for a prediction market.

Market title: {{.Title}}
Description: {{.Description}}
Resolution date: {{.ResolutionDate}}
Market type: {{.MarketType}}
Reference links: {{.Links}}

Return ONLY valid JSON with this schema:
- recommendation (STRONG_YES | YES | MAYBE | NO | STRONG_NO)
- confidence (0..1)
- estimated_return_pct (percent, if applicable)
- rationale (short narrative)
- main_drivers (list of main price movers)
- suggested_bet_size_usd (optional number)
- archetype (e.g. political, sports, crypto)
- risk_factors (list of key risks or counterarguments)
- time_dynamics (short description of how market confidence evolves over time)
- scenario_analysis (array of { outcome, probability })
- liquidity_estimate ("high", "medium", "low" expected trader activity)
- suggested_market_wording (better phrasing of the market)

JSON schema:
{{.Schema}}
`))

type promptData struct {
	Title          string
	Description    string
	ResolutionDate string
	MarketType     string
	Links          string
	Schema         string
}

// buildPrompt renders the user prompt for p. Missing optional fields get the
// defaults "unknown", "binary" and "none".
func buildPrompt(p domain.Proposal, schema string) (string, error) {
	data := promptData{
		Title:          p.Title,
		Description:    p.Description,
		ResolutionDate: orDefault(p.ResolutionDate, "unknown"),
		MarketType:     orDefault(p.MarketType, "binary"),
		Links:          orDefault(joinLinks(p.ReferenceLinks), "none"),
		Schema:         schema,
	}
	var b strings.Builder
	if err := promptTmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func joinLinks(links []string) string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, ", ")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
