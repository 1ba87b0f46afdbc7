// Package credit implements the credit gate consulted before expensive
// operations. Balances are per user or per organization; debits are
// atomic read-modify-write operations recorded as audit transactions.
package credit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/loupe-ai/loupe/internal/logging"
)

// ErrInsufficient is returned when a check or debit exceeds the
// available balance.
var ErrInsufficient = errors.New("insufficient credits")

// Context identifies whose balance an operation applies to. When
// OrganizationID is set the organization pays and UserID records the
// acting user for the audit trail.
type Context struct {
	UserID         string
	OrganizationID *string
}

func (c Context) key() string {
	if c.OrganizationID != nil {
		return "org:" + *c.OrganizationID
	}
	return "user:" + c.UserID
}

// Transaction is the audit record of one successful debit.
type Transaction struct {
	ID              int64     `json:"id"`
	AccountKey      string    `json:"account_key"`
	ActingUserID    string    `json:"acting_user_id"`
	PreviousBalance int64     `json:"previous_balance"`
	NewBalance      int64     `json:"new_balance"`
	CreditsDeducted int64     `json:"credits_deducted"`
	ActionSource    string    `json:"action_source"`
	ActionType      string    `json:"action_type"`
	EntityID        *string   `json:"entity_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Gate tracks balances and answers check/debit requests.
type Gate struct {
	mu           sync.Mutex
	balances     map[string]int64
	unlimited    map[string]bool
	transactions []Transaction
	nextTxID     int64

	initialBalance int64
}

// NewGate creates a gate. Accounts not seeded with SetBalance start at
// initialBalance. Users listed in unlimited bypass balance checks.
func NewGate(initialBalance int64, unlimited []string) *Gate {
	g := &Gate{
		balances:       make(map[string]int64),
		unlimited:      make(map[string]bool),
		initialBalance: initialBalance,
	}
	for _, u := range unlimited {
		g.unlimited[u] = true
	}
	return g
}

// SetBalance seeds or overwrites an account balance.
func (g *Gate) SetBalance(cc Context, balance int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[cc.key()] = balance
}

// Balance returns the current balance for the account.
func (g *Gate) Balance(cc Context) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balanceLocked(cc.key())
}

func (g *Gate) balanceLocked(key string) int64 {
	if b, ok := g.balances[key]; ok {
		return b
	}
	g.balances[key] = g.initialBalance
	return g.initialBalance
}

// Check reports whether the account can afford amount. It does not
// reserve anything: a later debit may still fail under concurrent
// consumption, and the debit is the authoritative signal.
func (g *Gate) Check(cc Context, amount int64) error {
	if g.unlimited[cc.UserID] {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.balanceLocked(cc.key()) < amount {
		return fmt.Errorf("%w: need %d", ErrInsufficient, amount)
	}
	return nil
}

// Debit atomically deducts amount and records an audit transaction.
// Unlimited users succeed without a balance change or transaction.
func (g *Gate) Debit(cc Context, amount int64, actionSource, actionType string, entityID *string) (*Transaction, error) {
	if g.unlimited[cc.UserID] {
		logging.Debug().
			Str("user", cc.UserID).
			Str("action_type", actionType).
			Msg("unlimited access, skipping debit")
		return nil, nil
	}

	g.mu.Lock()
	key := cc.key()
	previous := g.balanceLocked(key)
	if previous < amount {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: need %d, have %d", ErrInsufficient, amount, previous)
	}
	newBalance := previous - amount
	g.balances[key] = newBalance
	g.nextTxID++
	tx := Transaction{
		ID:              g.nextTxID,
		AccountKey:      key,
		ActingUserID:    cc.UserID,
		PreviousBalance: previous,
		NewBalance:      newBalance,
		CreditsDeducted: amount,
		ActionSource:    actionSource,
		ActionType:      actionType,
		EntityID:        entityID,
		CreatedAt:       time.Now().UTC(),
	}
	g.transactions = append(g.transactions, tx)
	g.mu.Unlock()

	logging.Info().
		Str("account", key).
		Str("acting_user", cc.UserID).
		Int64("previous_balance", previous).
		Int64("new_balance", newBalance).
		Int64("credits_deducted", amount).
		Str("action_source", actionSource).
		Str("action_type", actionType).
		Msg("credits debited")

	return &tx, nil
}

// Transactions returns a copy of the audit log.
func (g *Gate) Transactions() []Transaction {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Transaction, len(g.transactions))
	copy(out, g.transactions)
	return out
}
