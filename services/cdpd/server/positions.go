package server

import (
	"math/big"
	"net/http"

	"cdpchain/crypto"
)

func (s *Server) openPosition(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req openPositionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	open, err := req.toOpenRequest()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var addr crypto.Address
	err = s.execute(func() error {
		var err error
		addr, err = s.protocol.Hub().OpenPosition(caller, open)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("position opened", "position", addr.String(), "caller", caller.String())
	s.writeJSON(w, http.StatusCreated, map[string]string{"position": addr.String()})
}

func (s *Server) clonePosition(w http.ResponseWriter, r *http.Request) {
	caller, parent, ok := s.callerAndPosition(w, r)
	if !ok {
		return
	}
	var req cloneRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	collateral, err := parseAmount("initialCollateral", req.InitialCollateral, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	mint, err := parseAmount("initialMint", req.InitialMint, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var clone crypto.Address
	err = s.execute(func() error {
		var err error
		clone, err = s.protocol.Hub().Clone(caller, parent, collateral, mint, req.Expiration)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"position": clone.String()})
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	caller, addr, ok := s.callerAndPosition(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := optionalAddress("to", req.To, caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var usable *big.Int
	err = s.execute(func() error {
		var err error
		usable, err = s.protocol.Positions().Mint(caller, addr, to, amount)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"usable": amountString(usable)})
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	caller, addr, ok := s.callerAndPosition(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var cleared *big.Int
	err = s.execute(func() error {
		var err error
		cleared, err = s.protocol.Positions().Repay(caller, addr, amount)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"cleared": amountString(cleared)})
}

func (s *Server) adjust(w http.ResponseWriter, r *http.Request) {
	caller, addr, ok := s.callerAndPosition(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	minted, err := parseAmount("minted", req.Minted, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	collateral, err := parseAmount("collateral", req.Collateral, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	price, err := parseAmount("price", req.Price, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.execute(func() error {
		return s.protocol.Positions().Adjust(caller, addr, minted, collateral, price)
	})
	s.writeAck(w, r, err)
}

func (s *Server) adjustPrice(w http.ResponseWriter, r *http.Request) {
	caller, addr, ok := s.callerAndPosition(w, r)
	if !ok {
		return
	}
	var req priceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	price, err := parseAmount("price", req.Price, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.execute(func() error {
		return s.protocol.Positions().AdjustPrice(caller, addr, price)
	})
	s.writeAck(w, r, err)
}

func (s *Server) withdrawCollateral(w http.ResponseWriter, r *http.Request) {
	caller, addr, ok := s.callerAndPosition(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := optionalAddress("to", req.To, caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.execute(func() error {
		return s.protocol.Positions().WithdrawCollateral(caller, addr, to, amount)
	})
	s.writeAck(w, r, err)
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	caller, addr, ok := s.callerAndPosition(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Asset == "" {
		s.writeError(w, r, badRequest("asset is required"))
		return
	}
	amount, err := parseAmount("amount", req.Amount, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := optionalAddress("to", req.To, caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.execute(func() error {
		return s.protocol.Positions().Withdraw(caller, addr, req.Asset, to, amount)
	})
	s.writeAck(w, r, err)
}

func (s *Server) deny(w http.ResponseWriter, r *http.Request) {
	caller, addr, ok := s.callerAndPosition(w, r)
	if !ok {
		return
	}
	var req denyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	helpers := make([]crypto.Address, 0, len(req.Helpers))
	for _, raw := range req.Helpers {
		helper, err := parseAddress("helpers", raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		helpers = append(helpers, helper)
	}
	err := s.execute(func() error {
		return s.protocol.Positions().Deny(caller, addr, helpers, req.Reason)
	})
	s.writeAck(w, r, err)
}

func (s *Server) transferOwnership(w http.ResponseWriter, r *http.Request) {
	caller, addr, ok := s.callerAndPosition(w, r)
	if !ok {
		return
	}
	var req ownerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	newOwner, err := parseAddress("newOwner", req.NewOwner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.execute(func() error {
		return s.protocol.Positions().TransferOwnership(caller, addr, newOwner)
	})
	s.writeAck(w, r, err)
}

func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.execute(func() error {
		return s.protocol.Bank().Transfer(req.Asset, caller, to, amount)
	})
	s.writeAck(w, r, err)
}

// callerAndPosition resolves the caller and the {address} path parameter,
// writing the error response itself on failure.
func (s *Server) callerAndPosition(w http.ResponseWriter, r *http.Request) (crypto.Address, crypto.Address, bool) {
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return crypto.Address{}, crypto.Address{}, false
	}
	addr, err := pathAddress(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return crypto.Address{}, crypto.Address{}, false
	}
	return caller, addr, true
}

func (s *Server) writeAck(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
