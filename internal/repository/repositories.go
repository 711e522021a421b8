package repository

import (
	"gorm.io/gorm"
)

// Repositories holds all repository instances
type Repositories struct {
	Debt DebtRepository
}

// NewRepositories creates all repository instances backed by the database
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Debt: NewDebtRepository(db),
	}
}

// NewMemoryRepositories creates all repository instances kept in process memory
func NewMemoryRepositories() *Repositories {
	return &Repositories{
		Debt: NewMemoryDebtRepository(),
	}
}
