package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// Evaluator asks the model for a verdict on a market proposal.
type Evaluator interface {
	Evaluate(ctx context.Context, p domain.Proposal) (domain.EvaluationResult, error)
}

// EvaluateHandler serves the AI evaluation endpoint.
type EvaluateHandler struct {
	evaluator Evaluator
	logger    *slog.Logger
}

// NewEvaluateHandler creates an EvaluateHandler. A nil evaluator answers
// every request with 500.
func NewEvaluateHandler(evaluator Evaluator, logger *slog.Logger) *EvaluateHandler {
	return &EvaluateHandler{evaluator: evaluator, logger: logHandler(logger, "evaluate")}
}

type evaluateResponse struct {
	Evaluation domain.EvaluationResult `json:"evaluation"`
}

type parseErrorResponse struct {
	Error   string `json:"error"`
	Raw     string `json:"raw"`
	Message string `json:"message"`
}

// Evaluate scores a proposed market.
// POST /api/evaluate
func (h *EvaluateHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var p domain.Proposal
	if err := decodeJSON(r, w, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.evaluator == nil {
		writeError(w, http.StatusInternalServerError, "evaluation is not configured")
		return
	}

	result, err := h.evaluator.Evaluate(r.Context(), p)
	if err != nil {
		var parseErr *domain.ModelOutputParseError
		switch {
		case errors.As(err, &parseErr):
			h.logger.WarnContext(r.Context(), "model output rejected",
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusBadGateway, parseErrorResponse{
				Error:   "model_output_parse_error",
				Raw:     parseErr.Raw,
				Message: parseErr.Error(),
			})
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: evaluate failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, evaluateResponse{Evaluation: result})
}
