// Package wallet resolves Citizen Wallet login links: it checks the
// account contract's ERC-1271 signature, reads the community token balance
// and fetches the holder's profile.
package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tidwall/jsonc"
)

// Community is the community config file. Only the fields the door needs
// are decoded.
type Community struct {
	Community struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"community"`
	Node struct {
		URL string `json:"url"`
	} `json:"node"`
	Token struct {
		Address  string `json:"address"`
		Symbol   string `json:"symbol"`
		Decimals int    `json:"decimals"`
	} `json:"token"`
	Profile struct {
		Address string `json:"address"`
	} `json:"profile"`
	IPFS struct {
		URL string `json:"url"`
	} `json:"ipfs"`
}

// LoadCommunity reads a JSON (comments and trailing commas allowed)
// community file.
func LoadCommunity(path string) (Community, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Community{}, fmt.Errorf("read community file: %w", err)
	}
	return ParseCommunity(data)
}

func ParseCommunity(data []byte) (Community, error) {
	var c Community
	if err := json.Unmarshal(jsonc.ToJSON(data), &c); err != nil {
		return Community{}, fmt.Errorf("parse community file: %w", err)
	}
	return c, c.Validate()
}

func (c Community) Validate() error {
	var errs []error
	if c.Node.URL == "" {
		errs = append(errs, errors.New("node.url is required"))
	}
	if !common.IsHexAddress(c.Token.Address) {
		errs = append(errs, fmt.Errorf("token.address %q is not an address", c.Token.Address))
	}
	if c.Token.Decimals < 0 || c.Token.Decimals > 77 {
		errs = append(errs, fmt.Errorf("token.decimals %d out of range", c.Token.Decimals))
	}
	if c.Profile.Address != "" && !common.IsHexAddress(c.Profile.Address) {
		errs = append(errs, fmt.Errorf("profile.address %q is not an address", c.Profile.Address))
	}
	return errors.Join(errs...)
}

// ipfsBase is used when the community file names no gateway.
const ipfsBase = "https://ipfs.internal.citizenwallet.xyz"

func (c Community) ipfsGateway() string {
	if c.IPFS.URL != "" {
		return c.IPFS.URL
	}
	return ipfsBase
}
