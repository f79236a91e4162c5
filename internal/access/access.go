package access

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotOwner      = errors.New("caller is not the owner")
	ErrUnauthorized  = errors.New("caller is not an authorized executor")
	ErrZeroAddress   = errors.New("zero address")
	ErrReentrantCall = errors.New("reentrant call")
)

// Roles: a single transferable owner with implicit executor rights plus an owner-managed executor set
type Roles struct {
	Owner     common.Address
	Executors map[common.Address]bool
}

func NewRoles(owner common.Address, executors ...common.Address) Roles {
	r := Roles{Owner: owner, Executors: make(map[common.Address]bool, len(executors))}
	for _, e := range executors {
		r.Executors[e] = true
	}
	return r
}

func (r *Roles) IsExecutor(a common.Address) bool {
	if a == (common.Address{}) {
		return false
	}
	return a == r.Owner || r.Executors[a]
}

func (r *Roles) RequireOwner(caller common.Address) error {
	if caller == (common.Address{}) || caller != r.Owner {
		return ErrNotOwner
	}
	return nil
}

func (r *Roles) RequireExecutor(caller common.Address) error {
	if !r.IsExecutor(caller) {
		return ErrUnauthorized
	}
	return nil
}

func (r *Roles) SetExecutor(caller, executor common.Address, allowed bool) error {
	if err := r.RequireOwner(caller); err != nil {
		return err
	}
	if executor == (common.Address{}) {
		return ErrZeroAddress
	}
	if r.Executors == nil {
		r.Executors = make(map[common.Address]bool)
	}
	if allowed {
		r.Executors[executor] = true
	} else {
		delete(r.Executors, executor)
	}
	return nil
}

func (r *Roles) TransferOwnership(caller, newOwner common.Address) error {
	if err := r.RequireOwner(caller); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return ErrZeroAddress
	}
	r.Owner = newOwner
	return nil
}

// Guard is the reentrancy latch. Enter hands back the release func:
//
//	release, err := g.Enter()
//	if err != nil { return err }
//	defer release()
type Guard struct {
	entered bool
}

func (g *Guard) Enter() (func(), error) {
	if g.entered {
		return func() {}, ErrReentrantCall
	}
	g.entered = true
	return func() { g.entered = false }, nil
}

func (g *Guard) Entered() bool { return g.entered }
