package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/commonshub/hubdoor/internal/clock"
	"github.com/commonshub/hubdoor/internal/hubdoor/service"
)

// Login is the signed session a wallet app appends to the door URL.
type Login struct {
	Account   string
	Expiry    string
	Signature string
	Redirect  string
}

func LoginFromQuery(q url.Values) (Login, bool) {
	l := Login{
		Account:   q.Get("sigAuthAccount"),
		Expiry:    q.Get("sigAuthExpiry"),
		Signature: q.Get("sigAuthSignature"),
		Redirect:  q.Get("sigAuthRedirect"),
	}
	return l, l.Account != "" && l.Expiry != "" && l.Signature != "" && l.Redirect != ""
}

// Message is the text the wallet signed.
func (l Login) Message() string {
	return fmt.Sprintf("Signature auth for %s with expiry %s and redirect %s",
		l.Account, l.Expiry, encodeURIComponent(l.Redirect))
}

// Authenticator verifies logins against the community's chain.
type Authenticator struct {
	community Community
	chain     bind.ContractCaller
	http      *http.Client
	clock     clock.Clock
	logger    *zap.Logger
}

// Dial connects to the community's RPC node.
func Dial(ctx context.Context, community Community, logger *zap.Logger) (*Authenticator, error) {
	client, err := ethclient.DialContext(ctx, community.Node.URL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", community.Node.URL, err)
	}
	return NewAuthenticator(community, client, nil, nil, logger), nil
}

func NewAuthenticator(community Community, chain bind.ContractCaller, hc *http.Client, c clock.Clock, logger *zap.Logger) *Authenticator {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if c == nil {
		c = clock.Real()
	}
	return &Authenticator{community: community, chain: chain, http: hc, clock: c, logger: logger.Named("wallet")}
}

// Authenticate returns nil without error when q carries no login, or one
// that is expired or not signed by the account. Chain failures while
// reading the balance are returned as errors; a missing profile is not.
func (a *Authenticator) Authenticate(ctx context.Context, q url.Values) (*service.WalletSession, error) {
	login, ok := LoginFromQuery(q)
	if !ok {
		return nil, nil
	}
	if !common.IsHexAddress(login.Account) {
		a.logger.Info("login with malformed account", zap.String("account", login.Account))
		return nil, nil
	}
	expiry, err := time.Parse(time.RFC3339, login.Expiry)
	if err != nil || a.clock.Now().After(expiry) {
		a.logger.Info("login expired or unparseable", zap.String("expiry", login.Expiry))
		return nil, nil
	}

	account := common.HexToAddress(login.Account)
	valid, err := a.verifySignature(ctx, account, login)
	if err != nil {
		a.logger.Warn("signature check failed", zap.String("account", login.Account), zap.Error(err))
		return nil, nil
	}
	if !valid {
		return nil, nil
	}

	balance, err := a.Balance(ctx, account)
	if err != nil {
		return nil, err
	}

	sess := &service.WalletSession{Address: account.Hex(), Balance: balance}
	if p, err := a.Profile(ctx, account); err != nil {
		a.logger.Warn("profile lookup failed", zap.String("account", sess.Address), zap.Error(err))
	} else if p != nil {
		sess.Username = p.Username
		sess.AvatarURL = p.ImageMedium
	}
	return sess, nil
}

func (a *Authenticator) verifySignature(ctx context.Context, account common.Address, login Login) (bool, error) {
	sig, err := hexutil.Decode(login.Signature)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}
	var hash [32]byte
	copy(hash[:], accounts.TextHash([]byte(login.Message())))

	var out []any
	contract := bind.NewBoundContract(account, accountContract, a.chain, nil, nil)
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "isValidSignature", hash, sig); err != nil {
		return false, err
	}
	magic, ok := out[0].([4]byte)
	return ok && magic == erc1271Magic, nil
}

// Balance returns the account's community token balance in whole tokens.
func (a *Authenticator) Balance(ctx context.Context, account common.Address) (float64, error) {
	var out []any
	token := bind.NewBoundContract(common.HexToAddress(a.community.Token.Address), erc20Contract, a.chain, nil, nil)
	if err := token.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", account); err != nil {
		return 0, fmt.Errorf("balanceOf: %w", err)
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("balanceOf: unexpected %T", out[0])
	}
	return scale(raw, a.community.Token.Decimals), nil
}

func scale(raw *big.Int, decimals int) float64 {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	f, _ := new(big.Rat).SetFrac(raw, unit).Float64()
	return f
}

// ProfileData is the JSON a profile token URI points to.
type ProfileData struct {
	Account     string `json:"account"`
	Username    string `json:"username"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	ImageMedium string `json:"image_medium"`
	ImageSmall  string `json:"image_small"`
}

// Profile returns nil when the community has no profile contract or the
// account never minted a profile.
func (a *Authenticator) Profile(ctx context.Context, account common.Address) (*ProfileData, error) {
	if a.community.Profile.Address == "" {
		return nil, nil
	}
	contract := bind.NewBoundContract(common.HexToAddress(a.community.Profile.Address), profileContract, a.chain, nil, nil)
	opts := &bind.CallOpts{Context: ctx}

	var out []any
	if err := contract.Call(opts, &out, "fromAddressToId", account); err != nil {
		return nil, fmt.Errorf("fromAddressToId: %w", err)
	}
	id, ok := out[0].(*big.Int)
	if !ok || id.Sign() == 0 {
		return nil, nil
	}

	out = nil
	if err := contract.Call(opts, &out, "tokenURI", id); err != nil {
		return nil, fmt.Errorf("tokenURI: %w", err)
	}
	uri, _ := out[0].(string)
	if uri == "" {
		return nil, nil
	}
	return a.fetchProfile(ctx, uri)
}

func (a *Authenticator) fetchProfile(ctx context.Context, uri string) (*ProfileData, error) {
	gw := a.community.ipfsGateway()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ipfsURL(gw, uri), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch profile: status %d", resp.StatusCode)
	}

	var p ProfileData
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	p.Image = ipfsURL(gw, p.Image)
	p.ImageMedium = ipfsURL(gw, p.ImageMedium)
	p.ImageSmall = ipfsURL(gw, p.ImageSmall)
	return &p, nil
}

// ipfsURL resolves ipfs:// and bare CIDs against the gateway and leaves
// http(s) URLs alone.
func ipfsURL(gateway, uri string) string {
	if uri == "" || strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return uri
	}
	return strings.TrimRight(gateway, "/") + "/" + strings.TrimPrefix(uri, "ipfs://")
}

// encodeURIComponent escapes everything except A-Z a-z 0-9 - _ . ! ~ * ' ( ),
// which is what the signing wallet does to the redirect.
func encodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' || strings.IndexByte("-_.!~*'()", c) >= 0 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}
