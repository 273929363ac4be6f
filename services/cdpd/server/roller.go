package server

import (
	"math/big"
	"net/http"

	"cdpchain/crypto"
)

func (s *Server) roll(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req rollRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	source, err := parseAddress("source", req.Source)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	target, err := parseAddress("target", req.Target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var repay, withdraw, mint, deposit *big.Int
	for _, field := range []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"repay", req.Repay, &repay},
		{"collateralWithdraw", req.CollateralWithdraw, &withdraw},
		{"mint", req.Mint, &mint},
		{"collateralDeposit", req.CollateralDeposit, &deposit},
	} {
		if *field.dst, err = parseAmount(field.name, field.raw, false); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	var landed crypto.Address
	err = s.execute(func() error {
		var err error
		landed, err = s.protocol.Roller().Roll(caller, source, repay, withdraw, target, mint, deposit, req.Expiration)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"target": landed.String()})
}

func (s *Server) rollFully(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req rollFullyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	source, err := parseAddress("source", req.Source)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	target, err := parseAddress("target", req.Target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var landed crypto.Address
	err = s.execute(func() error {
		var err error
		if req.Expiration == 0 {
			landed, err = s.protocol.Roller().RollFully(caller, source, target)
		} else {
			landed, err = s.protocol.Roller().RollFullyWithExpiration(caller, source, target, req.Expiration)
		}
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"target": landed.String()})
}
