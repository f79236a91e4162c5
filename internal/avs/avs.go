package avs

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"swapguard/internal/domain"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	ActionSwap           = "swap"
	ActionExecuteBatch   = "execute_batch"
	ActionEmergencyBatch = "emergency_batch"
	ActionRevealBatch    = "reveal_batch"
)

// Validator is the external proof check consulted before admitting swaps and batch runs
type Validator interface {
	Validate(ctx context.Context, encodedContext, proof []byte) (bool, error)
}

// Context is what operators sign off on. Round is the pool's batch count, so a proof
// only authorizes calls until the next batch run completes.
type Context struct {
	Action     string
	Caller     common.Address
	Pool       domain.PoolID
	Round      uint64
	ZeroForOne bool
	Amount     *big.Int
}

var contextArgs = abi.Arguments{
	{Type: domain.MustABIType("string")},
	{Type: domain.MustABIType("address")},
	{Type: domain.MustABIType("bytes32")},
	{Type: domain.MustABIType("uint64")},
	{Type: domain.MustABIType("bool")},
	{Type: domain.MustABIType("int256")},
}

func (c Context) Encode() []byte {
	enc, err := contextArgs.Pack(c.Action, c.Caller, [32]byte(c.Pool), c.Round, c.ZeroForOne, domain.CopyBig(c.Amount))
	if err != nil {
		panic(fmt.Sprintf("pack avs context: %v", err))
	}
	return enc
}

// Digest is the message operators sign
func Digest(encodedContext []byte) common.Hash {
	return crypto.Keccak256Hash(encodedContext)
}

// Sign produces one operator signature over encodedContext
func Sign(encodedContext []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	d := Digest(encodedContext)
	return crypto.Sign(d[:], key)
}

// QuorumValidator accepts a proof made of concatenated 65-byte [R || S || V] signatures
// when at least quorum distinct configured operators signed the context digest.
type QuorumValidator struct {
	operators map[common.Address]struct{}
	quorum    int
}

func NewQuorumValidator(operators []common.Address, quorum int) (*QuorumValidator, error) {
	if len(operators) == 0 {
		return nil, errors.New("operators are required to the quorum validator")
	}
	set := make(map[common.Address]struct{}, len(operators))
	for _, op := range operators {
		if op == (common.Address{}) {
			return nil, errors.New("zero operator address")
		}
		set[op] = struct{}{}
	}
	if quorum <= 0 {
		quorum = len(set)/2 + 1
	}
	if quorum > len(set) {
		return nil, fmt.Errorf("quorum %d exceeds %d operators", quorum, len(set))
	}
	return &QuorumValidator{operators: set, quorum: quorum}, nil
}

func (v *QuorumValidator) Quorum() int { return v.quorum }

func (v *QuorumValidator) Validate(ctx context.Context, encodedContext, proof []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if len(proof) == 0 || len(proof)%crypto.SignatureLength != 0 {
		return false, nil
	}

	d := Digest(encodedContext)
	signed := make(map[common.Address]struct{})
	for off := 0; off < len(proof); off += crypto.SignatureLength {
		pub, err := crypto.SigToPub(d[:], proof[off:off+crypto.SignatureLength])
		if err != nil {
			continue
		}
		addr := crypto.PubkeyToAddress(*pub)
		if _, ok := v.operators[addr]; ok {
			signed[addr] = struct{}{}
		}
	}
	return len(signed) >= v.quorum, nil
}
