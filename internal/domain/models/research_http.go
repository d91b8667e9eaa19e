package models

// ResearchQuery is the HTTP query for a research run. An empty TF means the
// configured primary timeframe.
type ResearchQuery struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,min=3,max=20,alphanum"`
	TF     string `query:"tf" json:"tf" validate:"omitempty,oneof=1m 5m 15m 1h 4h 1d"`
	Force  bool   `query:"force" json:"force"`
}

// ResearchRequestMessage is the payload of a research request consumed from Kafka.
type ResearchRequestMessage struct {
	RequestID string `json:"requestId"`
	Symbol    string `json:"symbol" validate:"required"`
	Timeframe string `json:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	Force     bool   `json:"force"`
	UserID    string `json:"userId,omitempty"`
}

// CandlesQuery is the HTTP query for raw candles.
type CandlesQuery struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,min=3,max=20,alphanum"`
	TF     string `query:"tf" json:"tf" default:"1h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	Limit  int    `query:"limit" json:"limit" default:"200" validate:"gte=1,lte=1500"`
}

// HistoryQuery reads stored results back.
type HistoryQuery struct {
	Symbol string        `query:"symbol" json:"symbol" validate:"required,min=3,max=20,alphanum"`
	Hours  int           `query:"hours" json:"hours" default:"24" validate:"gte=1,lte=720"`
	Limit  int           `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}
