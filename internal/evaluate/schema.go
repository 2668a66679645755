package evaluate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// outputSchema is the declared shape of the model's answer.
var outputSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"recommendation": {
			Type: jsonschema.String,
			Enum: []string{"STRONG_YES", "YES", "MAYBE", "NO", "STRONG_NO"},
		},
		"confidence":             {Type: jsonschema.Number, Description: "0..1"},
		"estimated_return_pct":   {Type: jsonschema.Number},
		"rationale":              {Type: jsonschema.String},
		"main_drivers":           {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}},
		"suggested_bet_size_usd": {Type: jsonschema.Number},
		"archetype":              {Type: jsonschema.String},
		"risk_factors":           {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}},
		"time_dynamics":          {Type: jsonschema.String},
		"scenario_analysis": {
			Type: jsonschema.Array,
			Items: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"outcome":     {Type: jsonschema.String},
					"probability": {Type: jsonschema.Number},
				},
			},
		},
		"liquidity_estimate": {
			Type: jsonschema.String,
			Enum: []string{"high", "medium", "low"},
		},
		"suggested_market_wording": {Type: jsonschema.String},
	},
	Required: []string{"recommendation", "confidence", "rationale"},
}

var errSchema = errors.New("output does not match schema")

// parseOutput decodes raw model text into an EvaluationResult. Any failure
// is a *domain.ModelOutputParseError carrying raw.
func parseOutput(raw string) (domain.EvaluationResult, error) {
	text := strings.TrimSpace(raw)
	fail := func(err error) (domain.EvaluationResult, error) {
		return domain.EvaluationResult{}, &domain.ModelOutputParseError{Raw: raw, Err: err}
	}

	var generic any
	if err := json.Unmarshal([]byte(text), &generic); err != nil {
		return fail(err)
	}
	if !jsonschema.Validate(outputSchema, generic) {
		return fail(errSchema)
	}

	var res domain.EvaluationResult
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return fail(err)
	}
	switch {
	case !res.Recommendation.Valid():
		return fail(fmt.Errorf("%w: recommendation %q", errSchema, res.Recommendation))
	case res.Confidence < 0 || res.Confidence > 1:
		return fail(fmt.Errorf("%w: confidence %v outside [0,1]", errSchema, res.Confidence))
	case res.LiquidityEstimate != "" && !res.LiquidityEstimate.Valid():
		return fail(fmt.Errorf("%w: liquidity_estimate %q", errSchema, res.LiquidityEstimate))
	case strings.TrimSpace(res.Rationale) == "":
		return fail(fmt.Errorf("%w: empty rationale", errSchema))
	}
	return res, nil
}
