package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// RoundData is one answer from a round-based price feed.
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       time.Time
	UpdatedAt       time.Time
	AnsweredInRound *big.Int
	Decimals        uint8
}

// PriceFeed reads latestRoundData from aggregator contracts. Feed decimals never
// change, so they are read once per feed and cached.
type PriceFeed struct {
	caller ContractCaller

	mu       sync.RWMutex
	decimals map[common.Address]uint8
}

func NewPriceFeed(caller ContractCaller) *PriceFeed {
	return &PriceFeed{
		caller:   caller,
		decimals: make(map[common.Address]uint8),
	}
}

func (f *PriceFeed) LatestRound(ctx context.Context, feed common.Address) (RoundData, error) {
	decimals, err := f.feedDecimals(ctx, feed)
	if err != nil {
		return RoundData{}, err
	}

	values, err := f.call(ctx, feed, "latestRoundData")
	if err != nil {
		return RoundData{}, err
	}
	if len(values) != 5 {
		return RoundData{}, fmt.Errorf("latestRoundData %s: unexpected %d outputs", feed.Hex(), len(values))
	}

	round := RoundData{Decimals: decimals}
	var ok bool
	if round.RoundID, ok = values[0].(*big.Int); !ok {
		return RoundData{}, fmt.Errorf("latestRoundData %s: bad roundId type %T", feed.Hex(), values[0])
	}
	if round.Answer, ok = values[1].(*big.Int); !ok {
		return RoundData{}, fmt.Errorf("latestRoundData %s: bad answer type %T", feed.Hex(), values[1])
	}
	if startedAt, ok := values[2].(*big.Int); ok {
		round.StartedAt = time.Unix(startedAt.Int64(), 0)
	}
	if updatedAt, ok := values[3].(*big.Int); ok {
		round.UpdatedAt = time.Unix(updatedAt.Int64(), 0)
	}
	round.AnsweredInRound, _ = values[4].(*big.Int)
	return round, nil
}

func (f *PriceFeed) feedDecimals(ctx context.Context, feed common.Address) (uint8, error) {
	f.mu.RLock()
	d, ok := f.decimals[feed]
	f.mu.RUnlock()
	if ok {
		return d, nil
	}

	values, err := f.call(ctx, feed, "decimals")
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("decimals %s: unexpected %d outputs", feed.Hex(), len(values))
	}
	d, ok = values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals %s: bad type %T", feed.Hex(), values[0])
	}

	f.mu.Lock()
	f.decimals[feed] = d
	f.mu.Unlock()
	return d, nil
}

func (f *PriceFeed) call(ctx context.Context, feed common.Address, method string) ([]interface{}, error) {
	data, err := AggregatorV3ABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &feed, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, feed.Hex(), err)
	}
	values, err := AggregatorV3ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s from %s: %w", method, feed.Hex(), err)
	}
	return values, nil
}
