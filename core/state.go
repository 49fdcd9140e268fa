package core

import (
	"log"
	"math/big"

	"github.com/dgraph-io/badger/v4"
)

// State manages miner reward balances. Trimmed to balance-only bookkeeping
// — the transaction/nonce/gas machinery the teacher built around this
// (ECDSA-signed transfers, a mempool) belonged to a value-transfer ledger
// this repository doesn't have; what remains is per-address balance
// storage and crediting (see AddBalance).
type State struct {
	db *badger.DB
}

// NewState creates a new state manager over an already-open BadgerDB
// handle.
func NewState(db *badger.DB) *State {
	return &State{db: db}
}

// GetBalance returns the balance for the given miner address.
func (s *State) GetBalance(addr []byte) *big.Int {
	balance := big.NewInt(0)
	err := s.db.View(func(txn *badger.Txn) error {
		key := append([]byte("balance:"), addr...)
		item, err := txn.Get(key)
		if err == nil {
			return item.Value(func(val []byte) error {
				balance.SetBytes(val)
				return nil
			})
		}
		return nil
	})
	if err != nil {
		log.Printf("[STATE] Error getting balance: %v", err)
	}
	return balance
}

// SetBalance sets the balance for the given address.
func (s *State) SetBalance(addr []byte, amount *big.Int) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := append([]byte("balance:"), addr...)
		return txn.Set(key, amount.Bytes())
	})
}

// AddBalance credits amount to addr's balance (read, add, write back).
// Block import does not call it; a miner is credited only when a caller
// does so explicitly.
func (s *State) AddBalance(addr []byte, amount *big.Int) error {
	balance := s.GetBalance(addr)
	balance.Add(balance, amount)
	return s.SetBalance(addr, balance)
}
