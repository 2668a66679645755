package chain

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed abi/prediction_market.json
var predictionMarketABIJSON string

//go:embed abi/crowdfunding.json
var crowdfundingABIJSON string

// PredictionMarketABI and CrowdfundingABI are the parsed interface
// descriptors of the two contracts.
var (
	PredictionMarketABI = mustParseABI("prediction market", predictionMarketABIJSON)
	CrowdfundingABI     = mustParseABI("crowdfunding", crowdfundingABIJSON)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("chain: parse %s abi: %v", name, err))
	}
	return parsed
}
