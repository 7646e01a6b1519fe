package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PubkeyLength is the size of an account identifier.
const PubkeyLength = 32

// Pubkey identifies an account: a wallet, a stake account, a validator vote
// account or a derived program address.
type Pubkey [PubkeyLength]byte

// ZeroPubkey is the unset identifier.
var ZeroPubkey Pubkey

func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

func (p Pubkey) Bytes() []byte {
	out := make([]byte, PubkeyLength)
	copy(out, p[:])
	return out
}

func (p Pubkey) IsZero() bool {
	return p == ZeroPubkey
}

// MarshalText encodes the key in base58.
func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePubkey decodes a base58 account identifier.
func ParsePubkey(value string) (Pubkey, error) {
	decoded := base58.Decode(value)
	if len(decoded) != PubkeyLength {
		return Pubkey{}, fmt.Errorf("invalid pubkey %q: expected %d bytes, got %d", value, PubkeyLength, len(decoded))
	}
	var p Pubkey
	copy(p[:], decoded)
	return p, nil
}

// PubkeyFromBytes copies b into a key. b must be 32 bytes.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	if len(b) != PubkeyLength {
		return Pubkey{}, fmt.Errorf("pubkey must be %d bytes long", PubkeyLength)
	}
	var p Pubkey
	copy(p[:], b)
	return p, nil
}

// Derive returns a deterministic address for the given seeds. The same seeds
// always yield the same address.
func Derive(seeds ...[]byte) Pubkey {
	hash := ethcrypto.Keccak256(seeds...)
	var p Pubkey
	copy(p[:], hash)
	return p
}

// NewPubkey returns a random identifier.
func NewPubkey() (Pubkey, error) {
	var p Pubkey
	if _, err := rand.Read(p[:]); err != nil {
		return Pubkey{}, err
	}
	return p, nil
}
