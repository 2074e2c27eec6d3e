// Package indicators provides technical analysis indicators (EMA, MACD, RSI, ATR).
package indicators

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PriceData represents OHLC (open, high, low, close) price data.
type PriceData struct {
	Open  decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal
}

// TechnicalIndicators holds one aligned row of computed indicator values.
type TechnicalIndicators struct {
	EMA20 decimal.Decimal
	EMA50 decimal.Decimal
	MACD  decimal.Decimal
	RSI7  decimal.Decimal
	RSI14 decimal.Decimal
	ATR3  decimal.Decimal
	ATR14 decimal.Decimal
}

// CalculateEMA calculates the Exponential Moving Average for the given period.
func CalculateEMA(closes []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if len(closes) < period {
		return nil, errors.Errorf("not enough data points: need %d, got %d", period, len(closes))
	}

	closesFloat := decimalsToFloat64(closes)

	ema := trend.NewEmaWithPeriod[float64](period)
	outputChan := ema.Compute(helper.SliceToChan(closesFloat))

	return float64ToDecimals(helper.ChanToSlice(outputChan)), nil
}

// CalculateMACD calculates MACD line values.
func CalculateMACD(closes []decimal.Decimal) ([]decimal.Decimal, error) {
	if len(closes) < 26 {
		return nil, errors.Errorf("not enough data points for MACD: need at least 26, got %d", len(closes))
	}

	closesFloat := decimalsToFloat64(closes)

	macd := trend.NewMacd[float64]()
	macdChan, signalChan := macd.Compute(helper.SliceToChan(closesFloat))
	// drain signal channel to prevent blocking
	go func() {
		for range signalChan {
		}
	}()

	return float64ToDecimals(helper.ChanToSlice(macdChan)), nil
}

// CalculateRSI calculates the Relative Strength Index for the given period.
// Flat input produces NaN, which is mapped to the neutral midpoint 50.
func CalculateRSI(closes []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if len(closes) < period+1 {
		return nil, errors.Errorf("not enough data points for RSI: need %d, got %d", period+1, len(closes))
	}

	closesFloat := decimalsToFloat64(closes)

	rsi := momentum.NewRsiWithPeriod[float64](period)
	outputChan := rsi.Compute(helper.SliceToChan(closesFloat))

	rsiFloat := helper.ChanToSlice(outputChan)
	for i, v := range rsiFloat {
		if math.IsNaN(v) {
			rsiFloat[i] = 50
		}
	}

	return float64ToDecimals(rsiFloat), nil
}

// CalculateATR calculates the Average True Range for the given period.
func CalculateATR(priceData []PriceData, period int) ([]decimal.Decimal, error) {
	if len(priceData) < period+1 {
		return nil, errors.Errorf("not enough data points for ATR: need %d, got %d", period+1, len(priceData))
	}

	highs := make([]float64, len(priceData))
	lows := make([]float64, len(priceData))
	closes := make([]float64, len(priceData))

	for i, pd := range priceData {
		highs[i], _ = pd.High.Float64()
		lows[i], _ = pd.Low.Float64()
		closes[i], _ = pd.Close.Float64()
	}

	atr := volatility.NewAtrWithPeriod[float64](period)
	outputChan := atr.Compute(helper.SliceToChan(highs), helper.SliceToChan(lows), helper.SliceToChan(closes))

	return float64ToDecimals(helper.ChanToSlice(outputChan)), nil
}

// CalculateAllIndicators calculates all indicators and returns aligned rows,
// newest last. Indicators warm up at different speeds; rows cover the tail
// where every value is defined.
func CalculateAllIndicators(priceData []PriceData) ([]TechnicalIndicators, error) {
	if len(priceData) < 50 {
		return nil, errors.Errorf("not enough data points: need at least 50, got %d", len(priceData))
	}

	closes := make([]decimal.Decimal, len(priceData))
	for i, pd := range priceData {
		closes[i] = pd.Close
	}

	ema20, err := CalculateEMA(closes, 20)
	if err != nil {
		return nil, errors.Wrap(err, "calculate EMA20")
	}

	ema50, err := CalculateEMA(closes, 50)
	if err != nil {
		return nil, errors.Wrap(err, "calculate EMA50")
	}

	macd, err := CalculateMACD(closes)
	if err != nil {
		return nil, errors.Wrap(err, "calculate MACD")
	}

	rsi7, err := CalculateRSI(closes, 7)
	if err != nil {
		return nil, errors.Wrap(err, "calculate RSI7")
	}

	rsi14, err := CalculateRSI(closes, 14)
	if err != nil {
		return nil, errors.Wrap(err, "calculate RSI14")
	}

	atr3, err := CalculateATR(priceData, 3)
	if err != nil {
		return nil, errors.Wrap(err, "calculate ATR3")
	}

	atr14, err := CalculateATR(priceData, 14)
	if err != nil {
		return nil, errors.Wrap(err, "calculate ATR14")
	}

	minLen := len(ema20)
	for _, series := range [][]decimal.Decimal{ema50, macd, rsi7, rsi14, atr3, atr14} {
		if len(series) < minLen {
			minLen = len(series)
		}
	}

	result := make([]TechnicalIndicators, minLen)
	for i := 0; i < minLen; i++ {
		result[i] = TechnicalIndicators{
			EMA20: ema20[len(ema20)-minLen+i],
			EMA50: ema50[len(ema50)-minLen+i],
			MACD:  macd[len(macd)-minLen+i],
			RSI7:  rsi7[len(rsi7)-minLen+i],
			RSI14: rsi14[len(rsi14)-minLen+i],
			ATR3:  atr3[len(atr3)-minLen+i],
			ATR14: atr14[len(atr14)-minLen+i],
		}
	}

	return result, nil
}

// decimalsToFloat64 converts a slice of decimal.Decimal to []float64.
func decimalsToFloat64(decimals []decimal.Decimal) []float64 {
	result := make([]float64, len(decimals))
	for i, d := range decimals {
		result[i], _ = d.Float64()
	}
	return result
}

// float64ToDecimals converts a slice of float64 to []decimal.Decimal.
func float64ToDecimals(floats []float64) []decimal.Decimal {
	result := make([]decimal.Decimal, len(floats))
	for i, f := range floats {
		result[i] = decimal.NewFromFloat(f)
	}
	return result
}
