package server

import (
	"errors"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"cdpchain/crypto"
	"cdpchain/native/mintinghub"
	"cdpchain/services/cdpd/indexer"
)

var errIndexUnavailable = errors.New("event index not configured")

func (s *Server) getPosition(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var resp positionResponse
	err = s.protocol.View(func() error {
		engine := s.protocol.Positions()
		pos, err := engine.Get(addr)
		if err != nil {
			return err
		}
		fam, err := engine.Family(addr)
		if err != nil {
			return err
		}
		resp = newPositionResponse(pos, fam)
		balance, err := engine.CollateralBalance(addr)
		if err != nil {
			return err
		}
		available, err := engine.AvailableForMinting(addr)
		if err != nil {
			return err
		}
		if resp.CurrentFeePPM, err = engine.CalculateCurrentFee(addr); err != nil {
			return err
		}
		repayment, err := engine.RepaymentAmount(addr)
		if err != nil {
			return err
		}
		if resp.Closed, err = engine.IsClosed(addr); err != nil {
			return err
		}
		resp.CollateralBalance = amountString(balance)
		resp.AvailableForMinting = amountString(available)
		resp.RepaymentAmount = amountString(repayment)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) positionHistory(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "unavailable", Message: errIndexUnavailable.Error()})
		return
	}
	addr, err := pathAddress(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	records, err := s.index.ByPosition(r.Context(), addr, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": records})
}

func (s *Server) expiredPrice(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var price *big.Int
	err = s.protocol.View(func() error {
		var err error
		price, err = s.protocol.Hub().ExpiredPurchasePrice(addr)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"price": amountString(price)})
}

func (s *Server) repayment(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var owed *big.Int
	err = s.protocol.View(func() error {
		var err error
		owed, err = s.protocol.Roller().FindRepaymentAmount(addr)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"repayment": amountString(owed)})
}

func (s *Server) listPositions(w http.ResponseWriter, r *http.Request) {
	var out []string
	err := s.protocol.View(func() error {
		list, err := s.protocol.Hub().Positions()
		if err != nil {
			return err
		}
		out = make([]string, 0, len(list))
		for _, addr := range list {
			out = append(out, addr.String())
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"positions": out})
}

func (s *Server) listChallenges(w http.ResponseWriter, r *http.Request) {
	var filter crypto.Address
	if raw := strings.TrimSpace(r.URL.Query().Get("position")); raw != "" {
		addr, err := parseAddress("position", raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		filter = addr
	}
	var out []challengeResponse
	err := s.protocol.View(func() error {
		open, err := s.protocol.Hub().Challenges(filter)
		if err != nil {
			return err
		}
		out = make([]challengeResponse, 0, len(open))
		for index, c := range open {
			resp, err := s.challengeView(index, c)
			if err != nil {
				return err
			}
			out = append(out, resp)
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	s.writeJSON(w, http.StatusOK, map[string]any{"challenges": out})
}

func (s *Server) getChallenge(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var resp challengeResponse
	err = s.protocol.View(func() error {
		c, err := s.protocol.Hub().ChallengeAt(index)
		if err != nil {
			return err
		}
		resp, err = s.challengeView(index, c)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// challengeView must run inside View. Retired challenges carry no price.
func (s *Server) challengeView(index uint64, c *mintinghub.Challenge) (challengeResponse, error) {
	resp := newChallengeResponse(index, c)
	if c.Retired() {
		return resp, nil
	}
	price, err := s.protocol.Hub().Price(index)
	if err != nil {
		return resp, err
	}
	resp.Price = amountString(price)
	return resp, nil
}

func (s *Server) pendingReturns(w http.ResponseWriter, r *http.Request) {
	owner, err := pathAddress(r, "owner")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asset := strings.TrimSpace(chi.URLParam(r, "asset"))
	var pending *big.Int
	err = s.protocol.View(func() error {
		var err error
		pending, err = s.protocol.Hub().PendingReturns(asset, owner)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"asset": strings.ToUpper(asset), "owner": owner.String(), "amount": amountString(pending)})
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	owner, err := pathAddress(r, "owner")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asset := strings.TrimSpace(chi.URLParam(r, "asset"))
	var amount *big.Int
	err = s.protocol.View(func() error {
		var err error
		amount, err = s.protocol.Bank().BalanceOf(asset, owner)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"asset": strings.ToUpper(asset), "owner": owner.String(), "amount": amountString(amount)})
}

func (s *Server) reserve(w http.ResponseWriter, r *http.Request) {
	var supply, minterReserve, equity *big.Int
	err := s.protocol.View(func() error {
		debt := s.protocol.Stable()
		var err error
		if supply, err = debt.TotalSupply(); err != nil {
			return err
		}
		if minterReserve, err = debt.MinterReserve(); err != nil {
			return err
		}
		equity, err = debt.Equity()
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"asset":         s.protocol.DebtAsset(),
		"totalSupply":   amountString(supply),
		"minterReserve": amountString(minterReserve),
		"equity":        amountString(equity),
	})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "unavailable", Message: errIndexUnavailable.Error()})
		return
	}
	query := r.URL.Query()
	filter := indexer.Filter{Type: strings.TrimSpace(query.Get("type"))}
	var err error
	if raw := strings.TrimSpace(query.Get("position")); raw != "" {
		if filter.Position, err = parseAddress("position", raw); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if raw := strings.TrimSpace(query.Get("account")); raw != "" {
		if filter.Account, err = parseAddress("account", raw); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if raw := strings.TrimSpace(query.Get("after")); raw != "" {
		if filter.AfterSeq, err = strconv.ParseUint(raw, 10, 64); err != nil {
			s.writeError(w, r, badRequest("after must be an unsigned integer"))
			return
		}
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		s.writeError(w, r, err)
		return
	}
	records, err := s.index.Query(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": records, "lastSeq": s.index.LastSeq()})
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, badRequest("%s must be a non-negative integer", name)
	}
	return value, nil
}
