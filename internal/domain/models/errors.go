package models

import (
	"errors"
	"fmt"
	"net/http"
)

const CodeInsufficientData = "ERR_INSUFFICIENT_DATA"

// ResearchError is the one failure a research run surfaces to its caller.
type ResearchError struct {
	Code          string
	Message       string
	Status        int
	CorrelationID string
	Symbol        string
	Timeframe     string
}

func (e *ResearchError) Error() string {
	return fmt.Sprintf("%s: %s (symbol=%s tf=%s correlation_id=%s)",
		e.Code, e.Message, e.Symbol, e.Timeframe, e.CorrelationID)
}

// NewInsufficientDataError reports that the primary series is too short to score.
func NewInsufficientDataError(correlationID, symbol, tf string, got, need int) *ResearchError {
	return &ResearchError{
		Code:          CodeInsufficientData,
		Message:       fmt.Sprintf("need at least %d candles, got %d", need, got),
		Status:        http.StatusUnprocessableEntity,
		CorrelationID: correlationID,
		Symbol:        symbol,
		Timeframe:     tf,
	}
}

// AsResearchError unwraps err into a *ResearchError if it is one.
func AsResearchError(err error) (*ResearchError, bool) {
	var re *ResearchError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
