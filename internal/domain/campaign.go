package domain

import (
	"math/big"
	"time"
)

// CampaignStatus is the presentation label of a crowdfunding campaign.
type CampaignStatus string

const (
	CampaignStatusActive    CampaignStatus = "Active"
	CampaignStatusExpired   CampaignStatus = "Expired"
	CampaignStatusCompleted CampaignStatus = "Completed"
)

// Campaign is a goal-funded crowdfunding entity read from the Crowdfunding
// contract. AmountRaised only grows; Completed flips once.
type Campaign struct {
	ID           uint64    `json:"id"`
	Creator      string    `json:"creator"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Goal         *big.Int  `json:"goal"`
	Deadline     time.Time `json:"deadline"`
	AmountRaised *big.Int  `json:"amountRaised"`
	Completed    bool      `json:"completed"`
}
