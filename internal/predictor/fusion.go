package predictor

import (
	"time"

	"finsight/pkg/model"
)

// ModelVersion tags every prediction produced by this rule set. Bump it when
// a rule or threshold changes so stored predictions stay comparable.
const ModelVersion = "rule-fusion-v1"

// horizonDays is the prediction horizon: target_date = prediction_date + 7d
const horizonDays = 7

// rule contributes a price-move delta when its condition holds for a snapshot
type rule struct {
	name  string
	apply func(s model.IndicatorSnapshot) (delta float64, fired bool)
}

// fusionRules is the declarative scoring table. Each fired rule adds its delta
// to the predicted move; the set is folded into a sum so a new signal is one
// more table row, not another branch.
var fusionRules = []rule{
	{
		name: "rsi",
		apply: func(s model.IndicatorSnapshot) (float64, bool) {
			switch {
			case s.RSI14 > 70:
				return -0.02, true // overbought
			case s.RSI14 < 30:
				return 0.02, true // oversold
			}
			return 0, false
		},
	},
	{
		name: "macd",
		apply: func(s model.IndicatorSnapshot) (float64, bool) {
			if s.MACD > 0 {
				return 0.01, true
			}
			return -0.01, true
		},
	},
	{
		name: "trend",
		apply: func(s model.IndicatorSnapshot) (float64, bool) {
			switch {
			case s.LastClose > s.SMA50 && s.SMA50 > s.SMA200:
				return 0.01, true // uptrend
			case s.LastClose < s.SMA50 && s.SMA50 < s.SMA200:
				return -0.01, true // downtrend
			}
			return 0, false
		},
	},
	{
		name: "bollinger",
		apply: func(s model.IndicatorSnapshot) (float64, bool) {
			switch {
			case s.LastClose < s.LowerBand:
				return 0.015, true
			case s.LastClose > s.UpperBand:
				return -0.015, true
			}
			return 0, false
		},
	},
}

// Fuse combines an indicator snapshot into a prediction. Deterministic:
// identical snapshots always produce identical output.
func Fuse(symbol string, snap model.IndicatorSnapshot, now time.Time) model.Prediction {
	var move float64
	deltas := make([]float64, 0, len(fusionRules))
	for _, r := range fusionRules {
		if delta, fired := r.apply(snap); fired {
			move += delta
			deltas = append(deltas, delta)
		}
	}

	agreement := 0
	for _, d := range deltas {
		if (move > 0 && d > 0) || (move < 0 && d < 0) {
			agreement++
		}
	}

	confidence := 60 + agreement*8
	if confidence > 95 {
		confidence = 95
	}

	return model.Prediction{
		Symbol:         symbol,
		PredictedPrice: snap.LastClose * (1 + move),
		Confidence:     confidence,
		Risk:           riskLevel(snap),
		Recommendation: recommend(move),
		PredictionDate: now,
		TargetDate:     now.AddDate(0, 0, horizonDays),
		ModelVersion:   ModelVersion,
		Features:       snap,
	}
}

// riskLevel classifies volatility relative to price
func riskLevel(s model.IndicatorSnapshot) model.RiskLevel {
	if s.LastClose == 0 {
		return model.RiskHigh
	}
	volatility := s.ATR14 / s.LastClose
	switch {
	case volatility > 0.03:
		return model.RiskHigh
	case volatility < 0.01:
		return model.RiskLow
	}
	return model.RiskMedium
}

// recommend maps the predicted move onto the discrete recommendation scale
func recommend(move float64) model.Recommendation {
	switch {
	case move > 0.03:
		return model.StrongBuy
	case move > 0.01:
		return model.Buy
	case move < -0.03:
		return model.StrongSell
	case move < -0.01:
		return model.Sell
	}
	return model.Hold
}
