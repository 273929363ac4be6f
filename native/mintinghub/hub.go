package mintinghub

import (
	"math/big"
	"time"

	"cdpchain/core/events"
	"cdpchain/crypto"
	"cdpchain/native/common"
	"cdpchain/native/position"
)

type hubState interface {
	Atomic(fn func() error) error
	Nonce() (uint64, error)
	NextNonce() (uint64, error)
	ChallengeCount() (uint64, error)
	AppendChallenge(c *Challenge) (uint64, error)
	GetChallenge(index uint64) (*Challenge, bool, error)
	PutChallenge(index uint64, c *Challenge) error
	PendingReturn(asset string, owner crypto.Address) (*big.Int, error)
	SetPendingReturn(asset string, owner crypto.Address, amount *big.Int) error
}

// Hub opens and clones positions, runs the challenge auctions and sells the
// collateral of expired positions. It holds challenger bonds and postponed
// returns at its own address.
type Hub struct {
	state      hubState
	positions  Positions
	collateral CollateralLedger
	debt       DebtLedger
	address    crypto.Address
	params     Params
	emitter    events.Emitter
	nowFn      func() uint64
	pauses     common.PauseView
}

func NewHub(address crypto.Address) *Hub {
	return &Hub{
		address: address,
		params:  DefaultParams(),
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

func (h *Hub) SetState(state hubState) { h.state = state }

func (h *Hub) SetPositions(p Positions) { h.positions = p }

func (h *Hub) SetCollateralLedger(l CollateralLedger) { h.collateral = l }

func (h *Hub) SetDebtLedger(l DebtLedger) { h.debt = l }

func (h *Hub) SetParams(p Params) { h.params = p }

func (h *Hub) Params() Params { return h.params }

func (h *Hub) Address() crypto.Address { return h.address }

func (h *Hub) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	h.emitter = emitter
}

func (h *Hub) SetNowFunc(now func() uint64) {
	if now == nil {
		return
	}
	h.nowFn = now
}

func (h *Hub) SetPauses(p common.PauseView) { h.pauses = p }

func (h *Hub) now() uint64 { return h.nowFn() }

func (h *Hub) ready() error {
	if h == nil || h.state == nil {
		return errNilState
	}
	if h.positions == nil || h.collateral == nil || h.debt == nil {
		return errNotWired
	}
	return nil
}

func (h *Hub) mutate(fn func() error) error {
	if err := h.ready(); err != nil {
		return err
	}
	if err := common.Guard(h.pauses, common.ModuleHub); err != nil {
		return err
	}
	return h.state.Atomic(fn)
}

func (h *Hub) nextAddress() (crypto.Address, error) {
	nonce, err := h.state.NextNonce()
	if err != nil {
		return crypto.Address{}, err
	}
	return h.positionAddress(nonce), nil
}

func (h *Hub) positionAddress(nonce uint64) crypto.Address {
	return crypto.DeriveAddress(h.address[:], []byte("position"), crypto.NonceBytes(nonce))
}

func (h *Hub) validateOpen(req *OpenRequest) error {
	if req == nil || req.Price == nil || req.MinimumCollateral == nil || req.InitialCollateral == nil || req.InitialLimit == nil {
		return ErrInvalidAmount
	}
	if req.Price.Sign() <= 0 || req.MinimumCollateral.Sign() <= 0 || req.InitialLimit.Sign() < 0 {
		return ErrInvalidAmount
	}
	if req.ReservePPM > common.PPM || req.RiskPremiumPPM > common.PPM {
		return ErrInvalidRate
	}
	if req.InitPeriod < h.params.MinInitPeriod || req.ChallengePeriod < h.params.MinChallengePeriod {
		return ErrPeriodTooShort
	}
	if req.Duration == 0 {
		return position.ErrInvalidExpiration
	}
	if h.params.MinPositionValue != nil && common.Value(req.MinimumCollateral, req.Price).Cmp(h.params.MinPositionValue) < 0 {
		return ErrPositionTooSmall
	}
	if req.InitialCollateral.Cmp(req.MinimumCollateral) < 0 {
		return &position.InsufficientCollateralError{
			Needed:    common.Copy(req.MinimumCollateral),
			Available: common.Copy(req.InitialCollateral),
		}
	}
	return nil
}

// OpenPosition creates a new root position owned by caller. The opening fee
// is collected into the reserve and the initial collateral moves from caller
// to the new position.
func (h *Hub) OpenPosition(caller crypto.Address, req *OpenRequest) (crypto.Address, error) {
	if err := h.validateOpen(req); err != nil {
		return crypto.Address{}, err
	}
	var addr crypto.Address
	err := h.mutate(func() error {
		if h.params.OpeningFee != nil && h.params.OpeningFee.Sign() > 0 {
			if err := h.debt.CollectProfits(caller, h.params.OpeningFee); err != nil {
				return err
			}
		}
		next, err := h.nextAddress()
		if err != nil {
			return err
		}
		if err := h.collateral.Transfer(req.Collateral, caller, next, req.InitialCollateral); err != nil {
			return err
		}
		start := h.now() + req.InitPeriod
		pos := &position.Position{
			Address:           next,
			Owner:             caller,
			Collateral:        req.Collateral,
			MinimumCollateral: common.Copy(req.MinimumCollateral),
			RiskPremiumPPM:    req.RiskPremiumPPM,
			ReservePPM:        req.ReservePPM,
			ChallengePeriod:   req.ChallengePeriod,
			Price:             common.Copy(req.Price),
			Start:             start,
			Cooldown:          start,
			Expiration:        start + req.Duration,
		}
		if err := h.positions.Open(h.address, pos, req.InitialLimit); err != nil {
			return err
		}
		addr = next
		return nil
	})
	if err != nil {
		return crypto.Address{}, err
	}
	return addr, nil
}

// Clone opens a position sharing the family limit of parent. The clone
// receives initialCollateral from caller and, when initialMint is positive,
// mints it to caller straight away.
func (h *Hub) Clone(caller, parent crypto.Address, initialCollateral, initialMint *big.Int, expiration uint64) (crypto.Address, error) {
	if initialCollateral == nil || initialCollateral.Sign() < 0 {
		return crypto.Address{}, ErrInvalidAmount
	}
	var addr crypto.Address
	err := h.mutate(func() error {
		src, err := h.positions.Get(parent)
		if err != nil {
			if err == position.ErrNotPosition {
				return position.ErrInvalidPos
			}
			return err
		}
		next, err := h.nextAddress()
		if err != nil {
			return err
		}
		if err := h.collateral.Transfer(src.Collateral, caller, next, initialCollateral); err != nil {
			return err
		}
		if err := h.positions.Initialize(h.address, next, caller, parent, expiration); err != nil {
			return err
		}
		if initialMint != nil && initialMint.Sign() > 0 {
			if _, err := h.positions.Mint(h.address, next, caller, initialMint); err != nil {
				return err
			}
		}
		addr = next
		return nil
	})
	if err != nil {
		return crypto.Address{}, err
	}
	return addr, nil
}

// Positions lists every position opened or cloned through the hub in
// creation order.
func (h *Hub) Positions() ([]crypto.Address, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	count, err := h.state.Nonce()
	if err != nil {
		return nil, err
	}
	out := make([]crypto.Address, 0, count)
	for nonce := uint64(1); nonce <= count; nonce++ {
		addr := h.positionAddress(nonce)
		ok, err := h.positions.IsRegistered(addr)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, addr)
		}
	}
	return out, nil
}

// IsRegistered reports whether addr was opened through this hub.
func (h *Hub) IsRegistered(addr crypto.Address) (bool, error) {
	if h == nil || h.positions == nil {
		return false, errNotWired
	}
	return h.positions.IsRegistered(addr)
}
