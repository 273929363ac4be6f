package mintinghub

import (
	"math/big"
	"strconv"

	"cdpchain/core/state"
	"cdpchain/crypto"
)

var (
	nonceKey          = []byte("hub/nonce")
	challengeCountKey = []byte("hub/challenge/count")
)

func challengeKey(index uint64) []byte {
	return []byte("hub/challenge/" + strconv.FormatUint(index, 10))
}

func pendingKey(asset string, owner crypto.Address) []byte {
	key := []byte("hub/pending/" + state.NormalizeSymbol(asset) + "/")
	return append(key, owner[:]...)
}

// Store persists the challenge registry, the position nonce and the postponed
// collateral returns.
type Store struct {
	manager *state.Manager
}

func NewStore(manager *state.Manager) *Store {
	return &Store{manager: manager}
}

func (s *Store) Atomic(fn func() error) error {
	return s.manager.Atomic(fn)
}

func (s *Store) loadUint(key []byte) (uint64, error) {
	var v uint64
	if _, err := s.manager.KVGet(key, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// Nonce returns the last nonce handed out.
func (s *Store) Nonce() (uint64, error) {
	return s.loadUint(nonceKey)
}

// NextNonce returns a fresh nonce for deriving position addresses.
func (s *Store) NextNonce() (uint64, error) {
	n, err := s.loadUint(nonceKey)
	if err != nil {
		return 0, err
	}
	n++
	if err := s.manager.KVPut(nonceKey, n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) ChallengeCount() (uint64, error) {
	return s.loadUint(challengeCountKey)
}

// AppendChallenge stores c under the next index and returns that index.
func (s *Store) AppendChallenge(c *Challenge) (uint64, error) {
	index, err := s.ChallengeCount()
	if err != nil {
		return 0, err
	}
	if err := s.manager.KVPut(challengeKey(index), c); err != nil {
		return 0, err
	}
	if err := s.manager.KVPut(challengeCountKey, index+1); err != nil {
		return 0, err
	}
	return index, nil
}

func (s *Store) GetChallenge(index uint64) (*Challenge, bool, error) {
	c := new(Challenge)
	ok, err := s.manager.KVGet(challengeKey(index), c)
	if err != nil || !ok {
		return nil, ok, err
	}
	if c.Size == nil {
		c.Size = big.NewInt(0)
	}
	if c.Initial == nil {
		c.Initial = big.NewInt(0)
	}
	return c, true, nil
}

func (s *Store) PutChallenge(index uint64, c *Challenge) error {
	return s.manager.KVPut(challengeKey(index), c)
}

func (s *Store) PendingReturn(asset string, owner crypto.Address) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := s.manager.KVGet(pendingKey(asset, owner), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (s *Store) SetPendingReturn(asset string, owner crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return s.manager.KVDelete(pendingKey(asset, owner))
	}
	return s.manager.KVPut(pendingKey(asset, owner), amount)
}
