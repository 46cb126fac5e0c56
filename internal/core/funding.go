package core

// Funding is the result of a factoring advance calculation.
type Funding struct {
	Advance   float64
	FeeAmount float64
	Reserve   float64
	Net       float64
}

// FundingDisplay holds the two-decimal strings shown to the user.
type FundingDisplay struct {
	Advance   string
	FeeAmount string
	Reserve   string
	Net       string
}

// Calculate computes advance, fee, reserve and net for a principal amount,
// an advance rate and a fee rate given in percent. Inputs are not checked:
// negative or out of range values produce the plain arithmetic result and
// NaN propagates to every field.
func Calculate(amount, ratePercent, feePercent float64) Funding {
	rate := ratePercent / 100
	fee := feePercent / 100
	// conversions force rounding after each product so no multiply-add is fused
	advance := float64(amount * rate)
	feeAmount := float64(amount * fee)
	return Funding{
		Advance:   advance,
		FeeAmount: feeAmount,
		Reserve:   amount - advance,
		Net:       advance - feeAmount,
	}
}

// Display formats every field with exactly two decimals.
func (f Funding) Display() FundingDisplay {
	return FundingDisplay{
		Advance:   FormatFixed2(f.Advance),
		FeeAmount: FormatFixed2(f.FeeAmount),
		Reserve:   FormatFixed2(f.Reserve),
		Net:       FormatFixed2(f.Net),
	}
}

// ParseFundingInput reads a calculator field. Empty or non-numeric input is NaN.
func ParseFundingInput(s string) float64 {
	return ParseAmount(s)
}
