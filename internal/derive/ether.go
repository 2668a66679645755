package derive

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

const etherDecimals = 18

// MinBet is the smallest stake the bet form accepts, 0.0001 ETH.
var MinBet = big.NewInt(100_000_000_000_000)

// FormatEther renders a wei amount as an exact ETH decimal string without
// trailing zeros.
func FormatEther(wei *big.Int) string {
	return decimal.NewFromBigInt(orZero(wei), -etherDecimals).String()
}

// EtherFloat converts wei to a float64 ETH value for charting.
func EtherFloat(wei *big.Int) float64 {
	f, _ := decimal.NewFromBigInt(orZero(wei), -etherDecimals).Float64()
	return f
}

// ParseEther converts an ETH decimal string to wei. Negative amounts and
// precision finer than one wei are rejected.
func ParseEther(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("derive: parse ether %q: %w", s, domain.ErrInvalidInput)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("derive: negative ether amount %q: %w", s, domain.ErrInvalidInput)
	}
	wei := d.Shift(etherDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("derive: ether amount %q finer than 1 wei: %w", s, domain.ErrInvalidInput)
	}
	return wei.BigInt(), nil
}
