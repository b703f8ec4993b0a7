package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/ledgerd/internal/domain"
)

// Payouts is the result of settling a market on one outcome.
type Payouts struct {
	TotalPool   decimal.Decimal
	WinningPool decimal.Decimal
	LosingPool  decimal.Decimal
	Fee         decimal.Decimal
	// Records holds one entry per winning bet in bet order, then the fee.
	Records []domain.DistributionRecord
}

// ComputePayouts splits the losing pool between the platform fee and the
// winners, pro rata to stake. Amounts are truncated to precision decimal
// places and the truncation residue goes to the first winner, so the
// winners' gains plus the fee always equal the losing pool exactly.
//
// With no winners the whole losing pool becomes the fee.
func ComputePayouts(bets []domain.Bet, outcome domain.Direction, feeRate decimal.Decimal, precision int32, platformWallet string) Payouts {
	var p Payouts
	var winners []domain.Bet
	for _, b := range bets {
		p.TotalPool = p.TotalPool.Add(b.Amount)
		if b.Direction == outcome {
			winners = append(winners, b)
			p.WinningPool = p.WinningPool.Add(b.Amount)
		} else {
			p.LosingPool = p.LosingPool.Add(b.Amount)
		}
	}

	if len(winners) == 0 {
		p.Fee = p.LosingPool
		p.Records = []domain.DistributionRecord{feeRecord(platformWallet, p.Fee)}
		return p
	}

	p.Fee = p.LosingPool.Mul(feeRate).Truncate(precision)
	remaining := p.LosingPool.Sub(p.Fee)

	p.Records = make([]domain.DistributionRecord, 0, len(winners)+1)
	distributed := decimal.Zero
	for _, w := range winners {
		share, _ := remaining.Mul(w.Amount).QuoRem(p.WinningPool, precision)
		distributed = distributed.Add(share)
		p.Records = append(p.Records, domain.DistributionRecord{
			BetID:  w.ID,
			Wallet: w.WalletAddress,
			Amount: w.Amount.Add(share),
		})
	}
	if residue := remaining.Sub(distributed); !residue.IsZero() {
		p.Records[0].Amount = p.Records[0].Amount.Add(residue)
	}

	p.Records = append(p.Records, feeRecord(platformWallet, p.Fee))
	return p
}

func feeRecord(wallet string, amount decimal.Decimal) domain.DistributionRecord {
	return domain.DistributionRecord{
		BetID:  domain.PlatformFeeBetID,
		Wallet: wallet,
		Amount: amount,
	}
}
