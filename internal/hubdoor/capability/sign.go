package capability

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer issues links with a secp256k1 key, using the personal-message
// scheme: keccak256("\x19Ethereum Signed Message:\n" + len + message),
// 65-byte recoverable signature with v in {27, 28}.
type Signer struct {
	key *ecdsa.PrivateKey
}

func NewSigner(key *ecdsa.PrivateKey) *Signer { return &Signer{key: key} }

// Address is the checksummed address links signed by s recover to.
func (s *Signer) Address() string { return crypto.PubkeyToAddress(s.key.PublicKey).Hex() }

// Sign signs message and returns the 0x-prefixed hex signature.
func (s *Signer) Sign(message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), s.key)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// SignRequest returns the wire parameters of req with Sig filled in.
func (s *Signer) SignRequest(req Request) (Params, error) {
	if req.Name == "" || req.Host == "" || req.Reason == "" || req.StartTime.IsZero() || req.Duration < time.Minute {
		return Params{}, ErrMissingParams
	}
	p := req.Params()
	sig, err := s.Sign(p.Message())
	if err != nil {
		return Params{}, err
	}
	p.Sig = sig
	return p, nil
}

// SignURL returns a complete /open link under baseURL.
func (s *Signer) SignURL(baseURL string, req Request) (string, error) {
	p, err := s.SignRequest(req)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(baseURL, "/") + "/open?" + p.Query(), nil
}

var errBadSignature = errors.New("malformed signature")

// Recover returns the checksummed address that signed message.
func Recover(message, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("%w: length %d", errBadSignature, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return "", fmt.Errorf("%w: recovery id %d", errBadSignature, sig[crypto.RecoveryIDOffset])
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}
