package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// OrderType mirrors the protocol's Order.OrderType enumeration.
type OrderType uint8

const (
	OrderTypeMarketSwap OrderType = iota
	OrderTypeLimitSwap
	OrderTypeMarketIncrease
	OrderTypeLimitIncrease
	OrderTypeMarketDecrease
	OrderTypeLimitDecrease
	OrderTypeStopLossDecrease
	OrderTypeLiquidation
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarketSwap:
		return "MarketSwap"
	case OrderTypeLimitSwap:
		return "LimitSwap"
	case OrderTypeMarketIncrease:
		return "MarketIncrease"
	case OrderTypeLimitIncrease:
		return "LimitIncrease"
	case OrderTypeMarketDecrease:
		return "MarketDecrease"
	case OrderTypeLimitDecrease:
		return "LimitDecrease"
	case OrderTypeStopLossDecrease:
		return "StopLossDecrease"
	case OrderTypeLiquidation:
		return "Liquidation"
	default:
		return fmt.Sprintf("OrderType(%d)", uint8(t))
	}
}

// DecreasePositionSwapNoSwap keeps withdrawn collateral in the collateral token.
const DecreasePositionSwapNoSwap uint8 = 0

var ErrUnexpectedCall = errors.New("unexpected call data")

// Field order below mirrors the createOrder ABI tuple components.

type CreateOrderAddresses struct {
	Receiver               common.Address
	CallbackContract       common.Address
	UiFeeReceiver          common.Address
	Market                 common.Address
	InitialCollateralToken common.Address
	SwapPath               []common.Address
}

type CreateOrderNumbers struct {
	SizeDeltaUsd                 *big.Int
	InitialCollateralDeltaAmount *big.Int
	TriggerPrice                 *big.Int
	AcceptablePrice              *big.Int
	ExecutionFee                 *big.Int
	CallbackGasLimit             *big.Int
	MinOutputAmount              *big.Int
}

// CreateOrderParams is the argument tuple of ExchangeRouter.createOrder.
type CreateOrderParams struct {
	Addresses                CreateOrderAddresses
	Numbers                  CreateOrderNumbers
	OrderType                uint8
	DecreasePositionSwapType uint8
	IsLong                   bool
	ShouldUnwrapNativeToken  bool
	ReferralCode             [32]byte
}

// EncodeSendWnt encodes a native-asset transfer to receiver.
func EncodeSendWnt(receiver common.Address, amount *big.Int) ([]byte, error) {
	return ExchangeRouterABI.Pack("sendWnt", receiver, amount)
}

// EncodeSendTokens encodes an ERC20 transfer from the caller to receiver.
func EncodeSendTokens(token, receiver common.Address, amount *big.Int) ([]byte, error) {
	return ExchangeRouterABI.Pack("sendTokens", token, receiver, amount)
}

func EncodeCreateOrder(params CreateOrderParams) ([]byte, error) {
	if params.Addresses.SwapPath == nil {
		params.Addresses.SwapPath = []common.Address{}
	}
	return ExchangeRouterABI.Pack("createOrder", params)
}

// EncodeMulticall bundles pre-encoded router calls into one atomic multicall.
func EncodeMulticall(calls [][]byte) ([]byte, error) {
	return ExchangeRouterABI.Pack("multicall", calls)
}

// MethodName resolves the router method a piece of call data targets.
func MethodName(data []byte) (string, error) {
	if len(data) < 4 {
		return "", fmt.Errorf("%w: %d bytes", ErrUnexpectedCall, len(data))
	}
	method, err := ExchangeRouterABI.MethodById(data[:4])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnexpectedCall, err)
	}
	return method.Name, nil
}

// DecodeMulticall splits a multicall payload back into its sub-calls.
func DecodeMulticall(data []byte) ([][]byte, error) {
	values, err := unpackInputs("multicall", data)
	if err != nil {
		return nil, err
	}
	calls, ok := values[0].([][]byte)
	if !ok {
		return nil, fmt.Errorf("%w: multicall argument is %T", ErrUnexpectedCall, values[0])
	}
	return calls, nil
}

func DecodeCreateOrder(data []byte) (CreateOrderParams, error) {
	values, err := unpackInputs("createOrder", data)
	if err != nil {
		return CreateOrderParams{}, err
	}
	// Unpack has already checked the tuple shape against the ABI.
	params := *abi.ConvertType(values[0], new(CreateOrderParams)).(*CreateOrderParams)
	return params, nil
}

// DecodeSendWnt returns the receiver and amount of a sendWnt call.
func DecodeSendWnt(data []byte) (common.Address, *big.Int, error) {
	values, err := unpackInputs("sendWnt", data)
	if err != nil {
		return common.Address{}, nil, err
	}
	receiver, _ := values[0].(common.Address)
	amount, _ := values[1].(*big.Int)
	return receiver, amount, nil
}

// DecodeSendTokens returns the token, receiver and amount of a sendTokens call.
func DecodeSendTokens(data []byte) (common.Address, common.Address, *big.Int, error) {
	values, err := unpackInputs("sendTokens", data)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	token, _ := values[0].(common.Address)
	receiver, _ := values[1].(common.Address)
	amount, _ := values[2].(*big.Int)
	return token, receiver, amount, nil
}

func unpackInputs(name string, data []byte) ([]interface{}, error) {
	got, err := MethodName(data)
	if err != nil {
		return nil, err
	}
	if got != name {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrUnexpectedCall, name, got)
	}
	method := ExchangeRouterABI.Methods[name]
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", name, err)
	}
	return values, nil
}
