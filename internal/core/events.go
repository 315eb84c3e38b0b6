package core

import "time"

// ChangeKind names the write behind a DataChange.
type ChangeKind string

const (
	ChangeTransactionCreated ChangeKind = "transaction.created"
	ChangeTransactionDeleted ChangeKind = "transaction.deleted"
	ChangeLedgerCreated      ChangeKind = "ledger.created"
	ChangeLedgerRenamed      ChangeKind = "ledger.renamed"
	ChangeLedgerDeleted      ChangeKind = "ledger.deleted"
	ChangeCategoryCreated    ChangeKind = "category.created"
	ChangeCategoryDeleted    ChangeKind = "category.deleted"
	ChangeMembership         ChangeKind = "membership.changed"
	ChangeSavings            ChangeKind = "savings.updated"
)

// DataChange tells listeners that a user's derived views are stale.
type DataChange struct {
	UserID   string     `json:"user_id"`
	Kind     ChangeKind `json:"kind"`
	EntityID string     `json:"entity_id,omitempty"`
	LedgerID string     `json:"ledger_id,omitempty"`
	At       time.Time  `json:"at"`
}
