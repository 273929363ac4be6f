package position

import (
	"cdpchain/core/state"
	"cdpchain/crypto"
)

var (
	positionPrefix = []byte("position/record/")
	familyPrefix   = []byte("position/family/")
	positionIndex  = []byte("position/index")
)

func positionKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), positionPrefix...), addr[:]...)
}

func familyKey(root crypto.Address) []byte {
	return append(append([]byte(nil), familyPrefix...), root[:]...)
}

// Store persists positions and family pools in the state manager.
type Store struct {
	manager *state.Manager
}

// NewStore returns a Store backed by manager.
func NewStore(manager *state.Manager) *Store {
	return &Store{manager: manager}
}

func (s *Store) Atomic(fn func() error) error {
	return s.manager.Atomic(fn)
}

func (s *Store) GetPosition(addr crypto.Address) (*Position, bool, error) {
	pos := new(Position)
	ok, err := s.manager.KVGet(positionKey(addr), pos)
	if err != nil || !ok {
		return nil, ok, err
	}
	pos.ensureDefaults()
	return pos, true, nil
}

func (s *Store) PutPosition(pos *Position) error {
	ok, err := s.manager.KVGet(positionKey(pos.Address), nil)
	if err != nil {
		return err
	}
	if err := s.manager.KVPut(positionKey(pos.Address), pos); err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.manager.KVAppend(positionIndex, pos.Address.Bytes())
}

func (s *Store) GetFamily(root crypto.Address) (*Family, bool, error) {
	fam := new(Family)
	ok, err := s.manager.KVGet(familyKey(root), fam)
	if err != nil || !ok {
		return nil, ok, err
	}
	fam.ensureDefaults()
	return fam, true, nil
}

func (s *Store) PutFamily(fam *Family) error {
	return s.manager.KVPut(familyKey(fam.Root), fam)
}

// Addresses lists every position in creation order.
func (s *Store) Addresses() ([]crypto.Address, error) {
	var raw [][]byte
	if err := s.manager.KVGetList(positionIndex, &raw); err != nil {
		return nil, err
	}
	out := make([]crypto.Address, 0, len(raw))
	for _, b := range raw {
		out = append(out, crypto.BytesToAddress(b))
	}
	return out, nil
}
