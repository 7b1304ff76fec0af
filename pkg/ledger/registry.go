package ledger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// AccountKind classifies the financial semantics of an account.
type AccountKind string

const (
	AccountKindAsset     AccountKind = "asset"
	AccountKindLiability AccountKind = "liability"
	AccountKindRevenue   AccountKind = "revenue"
	AccountKindExpense   AccountKind = "expense"
)

// ParseAccountKind validates an account kind string.
func ParseAccountKind(raw string) (AccountKind, error) {
	switch AccountKind(raw) {
	case AccountKindAsset, AccountKindLiability, AccountKindRevenue, AccountKindExpense:
		return AccountKind(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown account kind %q", ErrInvalidChart, raw)
	}
}

// Account is an immutable chart-of-accounts definition.
type Account struct {
	Code       AccountCode
	Name       string
	NormalSide Direction
	Kind       AccountKind
}

// Registry resolves account codes against the chart of accounts. The chart is
// fixed at process start; there is no mutation API.
type Registry struct {
	accounts map[string]Account
}

// NewRegistry builds a registry from a chart, rejecting duplicate codes.
func NewRegistry(chart []Account) (*Registry, error) {
	if len(chart) == 0 {
		return nil, fmt.Errorf("%w: empty chart", ErrInvalidChart)
	}
	accounts := make(map[string]Account, len(chart))
	for _, account := range chart {
		code := account.Code.String()
		if code == "" {
			return nil, fmt.Errorf("%w: account without code", ErrInvalidChart)
		}
		if account.Name == "" {
			return nil, fmt.Errorf("%w: account %s without name", ErrInvalidChart, code)
		}
		if _, err := ParseDirection(account.NormalSide.String()); err != nil {
			return nil, fmt.Errorf("%w: account %s normal side", ErrInvalidChart, code)
		}
		if _, err := ParseAccountKind(string(account.Kind)); err != nil {
			return nil, err
		}
		if _, exists := accounts[code]; exists {
			return nil, fmt.Errorf("%w: duplicate code %s", ErrInvalidChart, code)
		}
		accounts[code] = account
	}
	return &Registry{accounts: accounts}, nil
}

// Resolve looks up an account by code.
func (registry *Registry) Resolve(code AccountCode) (Account, error) {
	account, exists := registry.accounts[code.String()]
	if !exists {
		return Account{}, fmt.Errorf("%w: %s", ErrUnknownAccount, code.String())
	}
	return account, nil
}

// Accounts returns the chart sorted by code, for seeding storage.
func (registry *Registry) Accounts() []Account {
	accounts := make([]Account, 0, len(registry.accounts))
	for _, account := range registry.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(left, right int) bool {
		return accounts[left].Code.String() < accounts[right].Code.String()
	})
	return accounts
}

// Well-known account codes used by the refund engine and reconciler defaults.
const (
	DefaultCashAccountCode        = "1000"
	DefaultSiteRevenueAccountCode = "4000"
)

// DefaultChart is the chart seeded when no chart file is configured.
func DefaultChart() []Account {
	return []Account{
		{Code: AccountCode{value: DefaultCashAccountCode}, Name: "Cash", NormalSide: DirectionDebit, Kind: AccountKindAsset},
		{Code: AccountCode{value: "1200"}, Name: "Processor Receivable", NormalSide: DirectionDebit, Kind: AccountKindAsset},
		{Code: AccountCode{value: "2100"}, Name: "Fees Payable", NormalSide: DirectionCredit, Kind: AccountKindLiability},
		{Code: AccountCode{value: "2200"}, Name: "Guest Deposits Held", NormalSide: DirectionCredit, Kind: AccountKindLiability},
		{Code: AccountCode{value: DefaultSiteRevenueAccountCode}, Name: "Site Revenue", NormalSide: DirectionCredit, Kind: AccountKindRevenue},
		{Code: AccountCode{value: "4100"}, Name: "Ancillary Revenue", NormalSide: DirectionCredit, Kind: AccountKindRevenue},
		{Code: AccountCode{value: "5100"}, Name: "Processor Fees", NormalSide: DirectionDebit, Kind: AccountKindExpense},
	}
}

type chartFileAccount struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	NormalSide string `json:"normalSide"`
	Kind       string `json:"kind"`
}

// LoadChart decodes a JSON chart file into validated accounts.
func LoadChart(reader io.Reader) ([]Account, error) {
	var fileAccounts []chartFileAccount
	if err := json.NewDecoder(reader).Decode(&fileAccounts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChart, err)
	}
	accounts := make([]Account, 0, len(fileAccounts))
	for _, fileAccount := range fileAccounts {
		code, err := NewAccountCode(fileAccount.Code)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidChart, err)
		}
		normalSide, err := ParseDirection(fileAccount.NormalSide)
		if err != nil {
			return nil, fmt.Errorf("%w: account %s normal side", ErrInvalidChart, fileAccount.Code)
		}
		kind, err := ParseAccountKind(fileAccount.Kind)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, Account{
			Code:       code,
			Name:       fileAccount.Name,
			NormalSide: normalSide,
			Kind:       kind,
		})
	}
	return accounts, nil
}
