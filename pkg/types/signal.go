package types

import "time"

// Signal is a candidate trade proposed by a strategy collaborator.
// Signals are immutable after creation and referenced at most once by an
// executed trade.
type Signal struct {
	ID              string    `json:"signal_id"`
	Strategy        string    `json:"strategy"`
	MarketID        string    `json:"market_id"`
	Side            Side      `json:"side"`
	Confidence      float64   `json:"confidence"`
	Edge            float64   `json:"edge"`
	RecommendedSize float64   `json:"recommended_size"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// Validate checks structural validity only: the engine does not second-guess
// strategy-internal logic, just that the record is well formed.
func (s *Signal) Validate() error {
	switch {
	case s.ID == "":
		return errMissingField("signal_id")
	case s.MarketID == "":
		return errMissingField("market_id")
	case !s.Side.Valid():
		return errInvalidField("side", string(s.Side))
	case s.Confidence < 0 || s.Confidence > 1:
		return errInvalidField("confidence", "must be in [0,1]")
	}
	return nil
}
