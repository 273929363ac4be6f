package server

import (
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (s *Server) challenge(w http.ResponseWriter, r *http.Request) {
	caller, addr, ok := s.callerAndPosition(w, r)
	if !ok {
		return
	}
	var req challengeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	size, err := parseAmount("size", req.Size, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	expected, err := parseAmount("expectedPrice", req.ExpectedPrice, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var index uint64
	err = s.execute(func() error {
		var err error
		index, err = s.protocol.Hub().Challenge(caller, addr, size, expected)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("challenge started", "challenge", index, "position", addr.String(), "caller", caller.String())
	s.writeJSON(w, http.StatusCreated, map[string]uint64{"index": index})
}

func (s *Server) bid(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	index, err := pathIndex(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req bidRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	size, err := parseAmount("size", req.Size, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.execute(func() error {
		return s.protocol.Hub().Bid(caller, index, size, req.Postpone)
	})
	s.writeAck(w, r, err)
}

func (s *Server) buyExpired(w http.ResponseWriter, r *http.Request) {
	caller, addr, ok := s.callerAndPosition(w, r)
	if !ok {
		return
	}
	var req buyExpiredRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	upTo, err := parseAmount("upTo", req.UpTo, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var bought *big.Int
	err = s.execute(func() error {
		var err error
		bought, err = s.protocol.Hub().BuyExpiredCollateral(caller, addr, upTo)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"bought": amountString(bought)})
}

func (s *Server) claimReturn(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asset := strings.TrimSpace(chi.URLParam(r, "asset"))
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	target, err := optionalAddress("target", req.Target, caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var claimed *big.Int
	err = s.execute(func() error {
		var err error
		claimed, err = s.protocol.Hub().ReturnPostponedCollateral(caller, asset, target)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"claimed": amountString(claimed)})
}
