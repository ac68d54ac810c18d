package database

import "github.com/Nystya/txgroup/domain"

// GroupRegistry is the in-memory record of transaction groups, their units
// and their outcome. Every operation is atomic on its own.
type GroupRegistry interface {
	CreateGroup(groupID string) error
	JoinGroup(groupID string, unit domain.TransUnit) error
	SetTransactionState(groupID string, state domain.State) error
	UnitsOfGroup(groupID string) []domain.TransUnit
	TransactionState(groupID string) domain.State
	RemoveGroup(groupID string)

	GroupIDs() []string
}
