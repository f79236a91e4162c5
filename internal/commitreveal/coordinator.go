package commitreveal

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"swapguard/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultCommitDuration = uint64(60)
	DefaultRevealDuration = uint64(120)
	DefaultMinRevealDelay = uint64(10)
)

var (
	ErrPhaseActive         = errors.New("commit or reveal phase already active")
	ErrCommitPhaseInactive = errors.New("commit phase not active")
	ErrCommitPhaseEnded    = errors.New("commit phase ended")
	ErrCommitPhaseNotEnded = errors.New("commit phase not ended")
	ErrRevealPhaseInactive = errors.New("reveal phase not active")
	ErrRevealPhaseEnded    = errors.New("reveal phase ended")
	ErrRevealPhaseNotEnded = errors.New("reveal phase not ended")
	ErrZeroCommitment      = errors.New("commitment hash is zero")
	ErrDuplicateCommitment = errors.New("commitment hash already used by this account")
	ErrCommitmentNotFound  = errors.New("commitment not found")
	ErrAlreadyRevealed     = errors.New("commitment already revealed")
	ErrRevealTooEarly      = errors.New("reveal before minimum delay")
	ErrStaleCommitment     = errors.New("commitment belongs to an earlier round")
)

// Locator points a commit hash back at its owner's commitment slot
type Locator struct {
	Committer common.Address
	Index     int
}

// Round is the commit-reveal state of one pool. Commitments and Revealed keep every
// round's records; Hashes only lists the current round. The same hash may sit under several
// accounts, but only its committer can open it, so Owners is filled on reveal.
type Round struct {
	Commitments map[common.Address][]domain.Commitment
	Owners      map[common.Hash]Locator
	Revealed    map[common.Hash]domain.RevealedSwap
	Hashes      []common.Hash
}

func (r *Round) Commitment(account common.Address, index int) (domain.Commitment, bool) {
	if r == nil || index < 0 || index >= len(r.Commitments[account]) {
		return domain.Commitment{}, false
	}
	return r.Commitments[account][index], true
}

func (r *Round) CommitmentCount(account common.Address) int {
	if r == nil {
		return 0
	}
	return len(r.Commitments[account])
}

func (r *Round) RevealedSwap(hash common.Hash) (domain.RevealedSwap, bool) {
	if r == nil {
		return domain.RevealedSwap{}, false
	}
	s, ok := r.Revealed[hash]
	return s, ok
}

func (r *Round) CommitHashes() []common.Hash {
	if r == nil {
		return nil
	}
	return append([]common.Hash(nil), r.Hashes...)
}

func (r *Round) init() {
	if r.Commitments == nil {
		r.Commitments = make(map[common.Address][]domain.Commitment)
	}
	if r.Owners == nil {
		r.Owners = make(map[common.Hash]Locator)
	}
	if r.Revealed == nil {
		r.Revealed = make(map[common.Hash]domain.RevealedSwap)
	}
}

// Promotion is a revealed swap ready to enter the queue
type Promotion struct {
	Hash    common.Hash
	Locator Locator
	Swap    domain.RevealedSwap
}

// Coordinator drives the per-pool phase machine Idle -> Commit -> Reveal -> Idle.
// Phase flags live in domain.BatchState; each window is checked against the clock independently of its flag.
type Coordinator struct {
	commitDuration uint64
	revealDuration uint64
	minRevealDelay uint64
}

func NewCoordinator(commit, reveal, minDelay time.Duration) *Coordinator {
	c := &Coordinator{
		commitDuration: uint64(commit / time.Second),
		revealDuration: uint64(reveal / time.Second),
		minRevealDelay: uint64(minDelay / time.Second),
	}
	if c.commitDuration == 0 {
		c.commitDuration = DefaultCommitDuration
	}
	if c.revealDuration == 0 {
		c.revealDuration = DefaultRevealDuration
	}
	if minDelay == 0 {
		c.minRevealDelay = DefaultMinRevealDelay
	}
	return c
}

func (c *Coordinator) CommitDuration() uint64 { return c.commitDuration }
func (c *Coordinator) RevealDuration() uint64 { return c.revealDuration }
func (c *Coordinator) MinRevealDelay() uint64 { return c.minRevealDelay }

func (c *Coordinator) StartCommit(batch *domain.BatchState, now uint64) error {
	if batch.CommitPhaseActive || batch.RevealPhaseActive {
		return ErrPhaseActive
	}
	batch.CommitPhaseActive = true
	batch.CommitPhaseStart = now
	return nil
}

// Commit stores hash under the next index of account and returns that index
func (c *Coordinator) Commit(round *Round, batch *domain.BatchState, account common.Address, hash common.Hash, now uint64) (int, error) {
	if !batch.CommitPhaseActive {
		return 0, ErrCommitPhaseInactive
	}
	if now >= batch.CommitPhaseStart+c.commitDuration {
		return 0, ErrCommitPhaseEnded
	}
	if hash == (common.Hash{}) {
		return 0, ErrZeroCommitment
	}
	round.init()
	for _, cm := range round.Commitments[account] {
		if cm.Hash == hash {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateCommitment, hash.Hex())
		}
	}

	idx := len(round.Commitments[account])
	round.Commitments[account] = append(round.Commitments[account], domain.Commitment{
		Hash:      hash,
		Committer: account,
		Timestamp: now,
	})
	if !slices.Contains(round.Hashes, hash) {
		round.Hashes = append(round.Hashes, hash)
	}
	return idx, nil
}

func (c *Coordinator) StartReveal(batch *domain.BatchState, now uint64) error {
	if batch.RevealPhaseActive {
		return ErrPhaseActive
	}
	if !batch.CommitPhaseActive {
		return ErrCommitPhaseInactive
	}
	if now < batch.CommitPhaseStart+c.commitDuration {
		return ErrCommitPhaseNotEnded
	}
	batch.CommitPhaseActive = false
	batch.RevealPhaseActive = true
	batch.RevealPhaseStart = now
	return nil
}

// Reveal checks swap against the stored commitment of account at index.
// A hash mismatch is not an error: it returns false with the commitment left unrevealed.
func (c *Coordinator) Reveal(round *Round, batch *domain.BatchState, account common.Address, index int, swap domain.RevealedSwap, now uint64) (common.Hash, bool, error) {
	if !batch.RevealPhaseActive {
		return common.Hash{}, false, ErrRevealPhaseInactive
	}
	if now >= batch.RevealPhaseStart+c.revealDuration {
		return common.Hash{}, false, ErrRevealPhaseEnded
	}
	cm, ok := round.Commitment(account, index)
	if !ok {
		return common.Hash{}, false, fmt.Errorf("%w: account=%s index=%d", ErrCommitmentNotFound, account.Hex(), index)
	}
	if cm.Revealed {
		return cm.Hash, false, ErrAlreadyRevealed
	}
	if cm.Timestamp < batch.CommitPhaseStart {
		return cm.Hash, false, ErrStaleCommitment
	}
	if now < cm.Timestamp+c.minRevealDelay {
		return cm.Hash, false, ErrRevealTooEarly
	}

	swap.Committer = account
	got, err := Hash(swap)
	if err != nil {
		return cm.Hash, false, err
	}
	if got != cm.Hash {
		return cm.Hash, false, nil
	}

	round.init()
	round.Commitments[account][index].Revealed = true
	round.Owners[cm.Hash] = Locator{Committer: account, Index: index}
	round.Revealed[cm.Hash] = copyReveal(swap)
	return cm.Hash, true, nil
}

// ReadyToExecute gates execution of the revealed set on the end of the reveal window
func (c *Coordinator) ReadyToExecute(batch *domain.BatchState, now uint64) error {
	if !batch.RevealPhaseActive {
		return ErrRevealPhaseInactive
	}
	if now < batch.RevealPhaseStart+c.revealDuration {
		return ErrRevealPhaseNotEnded
	}
	return nil
}

// Promotable lists this round's revealed, not yet promoted swaps in commit order
func (c *Coordinator) Promotable(round *Round) []Promotion {
	if round == nil {
		return nil
	}
	var out []Promotion
	for _, h := range round.Hashes {
		loc, ok := round.Owners[h]
		if !ok {
			continue
		}
		cm := round.Commitments[loc.Committer][loc.Index]
		if !cm.Revealed || cm.Executed {
			continue
		}
		swap, ok := round.Revealed[h]
		if !ok {
			continue
		}
		out = append(out, Promotion{Hash: h, Locator: loc, Swap: swap})
	}
	return out
}

// MarkPromoted flags the commitment behind hash so a later round never promotes it again
func (c *Coordinator) MarkPromoted(round *Round, hash common.Hash) {
	loc, ok := round.Owners[hash]
	if !ok {
		return
	}
	round.Commitments[loc.Committer][loc.Index].Executed = true
}

// FinishRound closes the reveal phase and clears the round's hash list; records are kept
func (c *Coordinator) FinishRound(round *Round, batch *domain.BatchState) {
	batch.RevealPhaseActive = false
	round.Hashes = nil
}

func copyReveal(s domain.RevealedSwap) domain.RevealedSwap {
	return domain.RevealedSwap{
		Committer: s.Committer,
		Params: domain.SwapParams{
			ZeroForOne:        s.Params.ZeroForOne,
			AmountSpecified:   domain.CopyBig(s.Params.AmountSpecified),
			SqrtPriceLimitX96: domain.CopyU256(s.Params.SqrtPriceLimitX96),
		},
		MinAmountOut: domain.CopyBig(s.MinAmountOut),
		MaxPrice:     domain.CopyU256(s.MaxPrice),
		MinPrice:     domain.CopyU256(s.MinPrice),
		AuxData:      append([]byte(nil), s.AuxData...),
		Deadline:     s.Deadline,
		Nonce:        domain.CopyBig(s.Nonce),
		Salt:         s.Salt,
	}
}
