// Package decimalutil collects small rounding and formatting helpers used
// wherever a decimal.Decimal needs to be presented or submitted at a fixed
// precision, rather than carried at whatever precision arithmetic left it.
package decimalutil

import "github.com/shopspring/decimal"

// RoundPrice rounds price to the given number of decimal places, e.g. an
// exchange's tick size expressed as a decimal count.
func RoundPrice(price decimal.Decimal, decimals int32) decimal.Decimal {
	return price.Round(decimals)
}

// RoundQuantity rounds qty to the given number of decimal places, e.g. an
// exchange's lot size expressed as a decimal count.
func RoundQuantity(qty decimal.Decimal, decimals int32) decimal.Decimal {
	return qty.Round(decimals)
}

// CalculateNetProfit computes the profit of a round-trip buy/sell pair
// after proportional fees on both legs.
func CalculateNetProfit(buyPrice, sellPrice, buyFeeRate, sellFeeRate decimal.Decimal) decimal.Decimal {
	gross := sellPrice.Sub(buyPrice)
	buyFee := buyPrice.Mul(buyFeeRate)
	sellFee := sellPrice.Mul(sellFeeRate)
	return gross.Sub(buyFee).Sub(sellFee)
}
