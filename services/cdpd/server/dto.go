package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"cdpchain/crypto"
	"cdpchain/native/mintinghub"
	"cdpchain/native/position"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed input. It maps to 400.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return badRequest("invalid payload: %v", err)
	}
	return nil
}

// parseAmount reads a non-negative decimal string. Empty is zero unless
// required.
func parseAmount(field, value string, required bool) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		if required {
			return nil, badRequest("%s is required", field)
		}
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, badRequest("%s must be a non-negative integer", field)
	}
	return amount, nil
}

func parseAddress(field, value string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return crypto.Address{}, badRequest("%s: %v", field, err)
	}
	return addr, nil
}

// optionalAddress returns fallback when value is empty.
func optionalAddress(field, value string, fallback crypto.Address) (crypto.Address, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return parseAddress(field, value)
}

func pathAddress(r *http.Request, name string) (crypto.Address, error) {
	return parseAddress(name, chi.URLParam(r, name))
}

func pathIndex(r *http.Request) (uint64, error) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		return 0, badRequest("index must be an unsigned integer")
	}
	return index, nil
}

type openPositionRequest struct {
	Collateral        string `json:"collateral"`
	MinimumCollateral string `json:"minimumCollateral"`
	InitialCollateral string `json:"initialCollateral"`
	InitialLimit      string `json:"initialLimit"`
	Price             string `json:"price"`
	InitPeriod        uint64 `json:"initPeriod"`
	Duration          uint64 `json:"duration"`
	ChallengePeriod   uint64 `json:"challengePeriod"`
	RiskPremiumPPM    uint32 `json:"riskPremiumPPM"`
	ReservePPM        uint32 `json:"reservePPM"`
}

func (req openPositionRequest) toOpenRequest() (*mintinghub.OpenRequest, error) {
	if strings.TrimSpace(req.Collateral) == "" {
		return nil, badRequest("collateral is required")
	}
	out := &mintinghub.OpenRequest{
		Collateral:      strings.TrimSpace(req.Collateral),
		InitPeriod:      req.InitPeriod,
		Duration:        req.Duration,
		ChallengePeriod: req.ChallengePeriod,
		RiskPremiumPPM:  req.RiskPremiumPPM,
		ReservePPM:      req.ReservePPM,
	}
	var err error
	if out.MinimumCollateral, err = parseAmount("minimumCollateral", req.MinimumCollateral, true); err != nil {
		return nil, err
	}
	if out.InitialCollateral, err = parseAmount("initialCollateral", req.InitialCollateral, true); err != nil {
		return nil, err
	}
	if out.InitialLimit, err = parseAmount("initialLimit", req.InitialLimit, true); err != nil {
		return nil, err
	}
	if out.Price, err = parseAmount("price", req.Price, true); err != nil {
		return nil, err
	}
	return out, nil
}

type cloneRequest struct {
	InitialCollateral string `json:"initialCollateral"`
	InitialMint       string `json:"initialMint"`
	Expiration        uint64 `json:"expiration"`
}

type amountRequest struct {
	Amount string `json:"amount"`
	To     string `json:"to,omitempty"`
}

type withdrawRequest struct {
	Asset  string `json:"asset"`
	To     string `json:"to,omitempty"`
	Amount string `json:"amount"`
}

type adjustRequest struct {
	Minted     string `json:"minted"`
	Collateral string `json:"collateral"`
	Price      string `json:"price"`
}

type priceRequest struct {
	Price string `json:"price"`
}

type denyRequest struct {
	Helpers []string `json:"helpers,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

type ownerRequest struct {
	NewOwner string `json:"newOwner"`
}

type challengeRequest struct {
	Size          string `json:"size"`
	ExpectedPrice string `json:"expectedPrice"`
}

type bidRequest struct {
	Size     string `json:"size"`
	Postpone bool   `json:"postpone"`
}

type buyExpiredRequest struct {
	UpTo string `json:"upTo"`
}

type claimRequest struct {
	Target string `json:"target,omitempty"`
}

type rollRequest struct {
	Source             string `json:"source"`
	Repay              string `json:"repay"`
	CollateralWithdraw string `json:"collateralWithdraw"`
	Target             string `json:"target"`
	Mint               string `json:"mint"`
	CollateralDeposit  string `json:"collateralDeposit"`
	Expiration         uint64 `json:"expiration"`
}

type rollFullyRequest struct {
	Source     string `json:"source"`
	Target     string `json:"target"`
	Expiration uint64 `json:"expiration,omitempty"`
}

type transferRequest struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type positionResponse struct {
	Address           string `json:"address"`
	Owner             string `json:"owner"`
	Original          string `json:"original"`
	Collateral        string `json:"collateral"`
	MinimumCollateral string `json:"minimumCollateral"`
	RiskPremiumPPM    uint32 `json:"riskPremiumPPM"`
	ReservePPM        uint32 `json:"reservePPM"`
	ChallengePeriod   uint64 `json:"challengePeriod"`
	Price             string `json:"price"`
	Minted            string `json:"minted"`
	ChallengedAmount  string `json:"challengedAmount"`
	Start             uint64 `json:"start"`
	Cooldown          uint64 `json:"cooldown"`
	Expiration        uint64 `json:"expiration"`
	Denied            bool   `json:"denied"`

	CollateralBalance   string `json:"collateralBalance"`
	AvailableForMinting string `json:"availableForMinting"`
	CurrentFeePPM       uint32 `json:"currentFeePPM"`
	RepaymentAmount     string `json:"repaymentAmount"`
	Closed              bool   `json:"closed"`
	Family              family `json:"family"`
}

type family struct {
	Root        string `json:"root"`
	Limit       string `json:"limit"`
	TotalMinted string `json:"totalMinted"`
	Members     uint64 `json:"members"`
}

func newPositionResponse(pos *position.Position, fam *position.Family) positionResponse {
	return positionResponse{
		Address:           pos.Address.String(),
		Owner:             pos.Owner.String(),
		Original:          pos.Original.String(),
		Collateral:        pos.Collateral,
		MinimumCollateral: amountString(pos.MinimumCollateral),
		RiskPremiumPPM:    pos.RiskPremiumPPM,
		ReservePPM:        pos.ReservePPM,
		ChallengePeriod:   pos.ChallengePeriod,
		Price:             amountString(pos.Price),
		Minted:            amountString(pos.Minted),
		ChallengedAmount:  amountString(pos.ChallengedAmount),
		Start:             pos.Start,
		Cooldown:          pos.Cooldown,
		Expiration:        pos.Expiration,
		Denied:            pos.Denied,
		Family: family{
			Root:        fam.Root.String(),
			Limit:       amountString(fam.Limit),
			TotalMinted: amountString(fam.TotalMinted),
			Members:     fam.Members,
		},
	}
}

type challengeResponse struct {
	Index      uint64 `json:"index"`
	Challenger string `json:"challenger"`
	Position   string `json:"position"`
	Start      uint64 `json:"start"`
	Size       string `json:"size"`
	Initial    string `json:"initial"`
	Price      string `json:"price,omitempty"`
}

func newChallengeResponse(index uint64, c *mintinghub.Challenge) challengeResponse {
	return challengeResponse{
		Index:      index,
		Challenger: c.Challenger.String(),
		Position:   c.Position.String(),
		Start:      c.Start,
		Size:       amountString(c.Size),
		Initial:    amountString(c.Initial),
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
