// Package chain is the boundary to the EVM: contract ABIs, typed reads of raw
// on-chain state and exact call-data encoding for the order router.
package chain

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ContractCaller performs read-only eth_call requests. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

const aggregatorV3JSON = `[
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"latestRoundData","stateMutability":"view","inputs":[],
   "outputs":[
     {"name":"roundId","type":"uint80"},
     {"name":"answer","type":"int256"},
     {"name":"startedAt","type":"uint256"},
     {"name":"updatedAt","type":"uint256"},
     {"name":"answeredInRound","type":"uint80"}]}
]`

const readerJSON = `[
  {"type":"function","name":"getAccountPositions","stateMutability":"view",
   "inputs":[
     {"name":"dataStore","type":"address"},
     {"name":"account","type":"address"},
     {"name":"start","type":"uint256"},
     {"name":"end","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple[]","components":[
     {"name":"addresses","type":"tuple","components":[
       {"name":"account","type":"address"},
       {"name":"market","type":"address"},
       {"name":"collateralToken","type":"address"}]},
     {"name":"numbers","type":"tuple","components":[
       {"name":"sizeInUsd","type":"uint256"},
       {"name":"sizeInTokens","type":"uint256"},
       {"name":"collateralAmount","type":"uint256"},
       {"name":"borrowingFactor","type":"uint256"},
       {"name":"fundingFeeAmountPerSize","type":"uint256"},
       {"name":"longTokenClaimableFundingAmountPerSize","type":"uint256"},
       {"name":"shortTokenClaimableFundingAmountPerSize","type":"uint256"},
       {"name":"increasedAtBlock","type":"uint256"},
       {"name":"decreasedAtBlock","type":"uint256"}]},
     {"name":"flags","type":"tuple","components":[
       {"name":"isLong","type":"bool"}]}]}]}
]`

const exchangeRouterJSON = `[
  {"type":"function","name":"multicall","stateMutability":"payable",
   "inputs":[{"name":"data","type":"bytes[]"}],
   "outputs":[{"name":"results","type":"bytes[]"}]},
  {"type":"function","name":"sendWnt","stateMutability":"payable",
   "inputs":[{"name":"receiver","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"sendTokens","stateMutability":"payable",
   "inputs":[{"name":"token","type":"address"},{"name":"receiver","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"createOrder","stateMutability":"payable",
   "inputs":[{"name":"params","type":"tuple","components":[
     {"name":"addresses","type":"tuple","components":[
       {"name":"receiver","type":"address"},
       {"name":"callbackContract","type":"address"},
       {"name":"uiFeeReceiver","type":"address"},
       {"name":"market","type":"address"},
       {"name":"initialCollateralToken","type":"address"},
       {"name":"swapPath","type":"address[]"}]},
     {"name":"numbers","type":"tuple","components":[
       {"name":"sizeDeltaUsd","type":"uint256"},
       {"name":"initialCollateralDeltaAmount","type":"uint256"},
       {"name":"triggerPrice","type":"uint256"},
       {"name":"acceptablePrice","type":"uint256"},
       {"name":"executionFee","type":"uint256"},
       {"name":"callbackGasLimit","type":"uint256"},
       {"name":"minOutputAmount","type":"uint256"}]},
     {"name":"orderType","type":"uint8"},
     {"name":"decreasePositionSwapType","type":"uint8"},
     {"name":"isLong","type":"bool"},
     {"name":"shouldUnwrapNativeToken","type":"bool"},
     {"name":"referralCode","type":"bytes32"}]}],
   "outputs":[{"name":"","type":"bytes32"}]}
]`

var (
	AggregatorV3ABI   = mustParse(aggregatorV3JSON)
	ReaderABI         = mustParse(readerJSON)
	ExchangeRouterABI = mustParse(exchangeRouterJSON)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
