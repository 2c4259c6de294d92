package wallet

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	accountABI = `[
  {"type":"function","name":"isValidSignature","stateMutability":"view",
   "inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],
   "outputs":[{"name":"","type":"bytes4"}]}
]`
	erc20ABI = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`
	profileABI = `[
  {"type":"function","name":"fromAddressToId","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"tokenURI","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"}],
   "outputs":[{"name":"","type":"string"}]}
]`
)

// erc1271Magic is the value isValidSignature returns for a valid signature.
var erc1271Magic = [4]byte{0x16, 0x26, 0xba, 0x7e}

var (
	accountContract = mustABI(accountABI)
	erc20Contract   = mustABI(erc20ABI)
	profileContract = mustABI(profileABI)
)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
