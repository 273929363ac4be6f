// core/genesis/spec.go
package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"cdpchain/crypto"
)

// GenesisSpec describes the assets and balances a fresh protocol starts with.
// It is read either from its own JSON file or from the [genesis] table of the
// protocol config.
type GenesisSpec struct {
	GenesisTime string                       `json:"genesisTime" toml:"GenesisTime"`
	Assets      []AssetSpec                  `json:"assets" toml:"Assets"`
	Alloc       map[string]map[string]string `json:"alloc" toml:"Alloc"` // addr -> asset -> amount

	genesisTimestamp time.Time
}

type AssetSpec struct {
	Symbol   string `json:"symbol" toml:"Symbol"`
	Name     string `json:"name" toml:"Name"`
	Decimals uint8  `json:"decimals" toml:"Decimals"`
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec GenesisSpec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

// GenesisTimestamp is only populated after Validate.
func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// Validate checks the spec and caches the parsed genesis time. An empty
// genesis time is allowed and leaves the timestamp zero.
func (s *GenesisSpec) Validate() error {
	if strings.TrimSpace(s.GenesisTime) != "" {
		parsed, err := parseGenesisTime(s.GenesisTime)
		if err != nil {
			return err
		}
		s.genesisTimestamp = parsed
	}

	symbols := make(map[string]struct{}, len(s.Assets))
	for i := range s.Assets {
		if err := s.Assets[i].validate(); err != nil {
			return fmt.Errorf("asset[%d]: %w", i, err)
		}
		key := normalizeSymbol(s.Assets[i].Symbol)
		if _, exists := symbols[key]; exists {
			return fmt.Errorf("asset[%d]: duplicate symbol %q", i, s.Assets[i].Symbol)
		}
		symbols[key] = struct{}{}
	}

	for _, account := range sortedKeys(s.Alloc) {
		if _, err := crypto.DecodeAddress(account); err != nil {
			return fmt.Errorf("alloc[%q]: %w", account, err)
		}
		seen := make(map[string]struct{}, len(s.Alloc[account]))
		for _, symbol := range sortedKeys(s.Alloc[account]) {
			if _, err := parseAmountString(s.Alloc[account][symbol]); err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", account, symbol, err)
			}
			key := normalizeSymbol(symbol)
			if _, exists := symbols[key]; !exists {
				return fmt.Errorf("alloc[%q][%q]: undefined asset", account, symbol)
			}
			if _, dup := seen[key]; dup {
				return fmt.Errorf("alloc[%q]: duplicate asset %q", account, symbol)
			}
			seen[key] = struct{}{}
		}
	}
	return nil
}

// HasAsset reports whether symbol is declared in the spec.
func (s *GenesisSpec) HasAsset(symbol string) bool {
	key := normalizeSymbol(symbol)
	for _, asset := range s.Assets {
		if normalizeSymbol(asset.Symbol) == key {
			return true
		}
	}
	return false
}

func (a *AssetSpec) validate() error {
	if strings.TrimSpace(a.Symbol) == "" {
		return fmt.Errorf("symbol must be provided")
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("name must be provided")
	}
	if a.Decimals > 18 {
		return fmt.Errorf("decimals must be 18 or fewer")
	}
	return nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount must be provided")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
