package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Field order below mirrors the Reader ABI tuple components; decoding copies by index.

type PositionAddresses struct {
	Account         common.Address
	Market          common.Address
	CollateralToken common.Address
}

type PositionNumbers struct {
	SizeInUsd                               *big.Int
	SizeInTokens                            *big.Int
	CollateralAmount                        *big.Int
	BorrowingFactor                         *big.Int
	FundingFeeAmountPerSize                 *big.Int
	LongTokenClaimableFundingAmountPerSize  *big.Int
	ShortTokenClaimableFundingAmountPerSize *big.Int
	IncreasedAtBlock                        *big.Int
	DecreasedAtBlock                        *big.Int
}

type PositionFlags struct {
	IsLong bool
}

// RawPosition is one Position.Props tuple as returned by Reader.getAccountPositions.
type RawPosition struct {
	Addresses PositionAddresses
	Numbers   PositionNumbers
	Flags     PositionFlags
}

// PositionReader lists an account's raw positions through the protocol Reader contract.
type PositionReader struct {
	caller    ContractCaller
	reader    common.Address
	dataStore common.Address
}

func NewPositionReader(caller ContractCaller, reader, dataStore common.Address) *PositionReader {
	return &PositionReader{caller: caller, reader: reader, dataStore: dataStore}
}

// AccountPositions returns the raw tuples in [start, end) for account.
func (r *PositionReader) AccountPositions(ctx context.Context, account common.Address, start, end int64) ([]RawPosition, error) {
	data, err := ReaderABI.Pack("getAccountPositions", r.dataStore, account, big.NewInt(start), big.NewInt(end))
	if err != nil {
		return nil, fmt.Errorf("pack getAccountPositions: %w", err)
	}

	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.reader, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call getAccountPositions for %s: %w", account.Hex(), err)
	}

	var positions []RawPosition
	if err := ReaderABI.UnpackIntoInterface(&positions, "getAccountPositions", out); err != nil {
		return nil, fmt.Errorf("unpack getAccountPositions for %s: %w", account.Hex(), err)
	}
	return positions, nil
}
