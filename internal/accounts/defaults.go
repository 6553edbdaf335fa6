package accounts

import "github.com/cleared-dev/ledger/internal/model"

// DefaultChart returns the starter chart of accounts for an entity type.
func DefaultChart(entityType string) []model.Account {
	switch entityType {
	case "sole_proprietor", "llc_single_member":
		return soleProprietorChart()
	default:
		return soleProprietorChart()
	}
}

func soleProprietorChart() []model.Account {
	return []model.Account{
		{Code: 1010, Name: "Cash", Type: model.AccountTypeAsset, Subtype: "current", NormalBalance: model.Debit},
		{Code: 1020, Name: "Business Checking", Type: model.AccountTypeAsset, Subtype: "current", NormalBalance: model.Debit},
		{Code: 1030, Name: "Accounts Receivable", Type: model.AccountTypeAsset, Subtype: "current", NormalBalance: model.Debit},
		{Code: 1510, Name: "Equipment", Type: model.AccountTypeAsset, Subtype: "fixed", NormalBalance: model.Debit},
		{Code: 1520, Name: "Accumulated Depreciation", Type: model.AccountTypeAsset, Subtype: "contra", NormalBalance: model.Credit},
		{Code: 2010, Name: "Accounts Payable", Type: model.AccountTypeLiability, Subtype: "current", NormalBalance: model.Credit},
		{Code: 2020, Name: "Credit Card", Type: model.AccountTypeLiability, Subtype: "current", NormalBalance: model.Credit},
		{Code: 3010, Name: "Owner's Capital", Type: model.AccountTypeCapital, NormalBalance: model.Credit},
		{Code: 3020, Name: "Drawings", Type: model.AccountTypeCapital, Subtype: "contra", NormalBalance: model.Debit},
		{Code: 4010, Name: "Service Revenue", Type: model.AccountTypeRevenue, NormalBalance: model.Credit},
		{Code: 4020, Name: "Product Revenue", Type: model.AccountTypeRevenue, NormalBalance: model.Credit},
		{Code: 5010, Name: "Advertising & Marketing", Type: model.AccountTypeExpense, NormalBalance: model.Debit},
		{Code: 5020, Name: "Software & SaaS", Type: model.AccountTypeExpense, NormalBalance: model.Debit},
		{Code: 5030, Name: "Office Supplies", Type: model.AccountTypeExpense, NormalBalance: model.Debit},
		{Code: 5040, Name: "Professional Services", Type: model.AccountTypeExpense, NormalBalance: model.Debit},
		{Code: 5050, Name: "Rent", Type: model.AccountTypeExpense, NormalBalance: model.Debit},
		{Code: 5990, Name: "Uncategorized", Type: model.AccountTypeExpense, Subtype: "suspense", NormalBalance: model.Debit},
	}
}
