package ccip

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const offchainResolverJSON = `[
  {"type":"function","name":"resolve","stateMutability":"view",
   "inputs":[{"name":"name","type":"bytes"},{"name":"data","type":"bytes"}],
   "outputs":[{"name":"result","type":"bytes"},{"name":"expires","type":"uint64"},{"name":"sig","type":"bytes"}]}
]`

// The two addr overloads keep this order: go-ethereum registers the second
// one as "addr0".
const resolverJSON = `[
  {"type":"function","name":"addr","stateMutability":"view",
   "inputs":[{"name":"node","type":"bytes32"}],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"addr","stateMutability":"view",
   "inputs":[{"name":"node","type":"bytes32"},{"name":"coinType","type":"uint256"}],
   "outputs":[{"name":"","type":"bytes"}]},
  {"type":"function","name":"text","stateMutability":"view",
   "inputs":[{"name":"node","type":"bytes32"},{"name":"key","type":"string"}],
   "outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"contenthash","stateMutability":"view",
   "inputs":[{"name":"node","type":"bytes32"}],
   "outputs":[{"name":"","type":"bytes"}]}
]`

const (
	methodAddr         = "addr"
	methodAddrCoinType = "addr0"
	methodText         = "text"
	methodContenthash  = "contenthash"
	methodResolve      = "resolve"
)

var (
	offchainResolverABI = mustParseABI(offchainResolverJSON)
	resolverABI         = mustParseABI(resolverJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
