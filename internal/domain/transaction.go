package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Direction is the flow of money relative to the business account.
type Direction string

const (
	Credit Direction = "CREDIT"
	Debit  Direction = "DEBIT"
)

// ParseQuality is the confidence attached to a classification.
type ParseQuality string

const (
	QualityHigh       ParseQuality = "high"
	QualityMedium     ParseQuality = "medium"
	QualityLow        ParseQuality = "low"
	QualityUnassigned ParseQuality = "unassigned"
)

// DateLayout is the calendar-day layout used on the wire and for duplicate keys.
const DateLayout = "2006-01-02"

// Transaction is one bank-statement row as produced by the upstream parser.
// Amount is always a positive magnitude; Direction carries the sign.
type Transaction struct {
	Date              time.Time    `json:"date"`
	Description       string       `json:"description"`
	Amount            float64      `json:"amount"`
	Direction         Direction    `json:"direction"`
	RunningBalance    *float64     `json:"runningBalance,omitempty"`
	SourceCategory    string       `json:"sourceCategory,omitempty"`
	SourceSubcategory string       `json:"sourceSubcategory,omitempty"`
	ParseQuality      ParseQuality `json:"parseQuality,omitempty"`
}

// Day returns the transaction's calendar day at midnight UTC.
func (t *Transaction) Day() time.Time {
	y, m, d := t.Date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsCredit reports whether money came into the account.
func (t *Transaction) IsCredit() bool {
	return t.Direction == Credit
}

// Domain splits the taxonomy into money in and money out.
type Domain string

const (
	DomainRevenue Domain = "revenue"
	DomainExpense Domain = "expense"
)

// Classification is the classifier's verdict for a single transaction.
type Classification struct {
	Domain     Domain       `json:"domain"`
	Category   Category     `json:"category"`
	LenderName string       `json:"lenderName,omitempty"`
	Quality    ParseQuality `json:"quality"`
}

// ClassifiedTransaction pairs a prepared transaction with its classification.
type ClassifiedTransaction struct {
	Transaction
	Classification Classification `json:"classification"`
}

// TransactionRequest is the wire format for a statement row.
// Dates are calendar days (YYYY-MM-DD); a full RFC 3339 timestamp is also accepted.
type TransactionRequest struct {
	Date              string   `json:"date"`
	Description       string   `json:"description"`
	Amount            float64  `json:"amount"`
	Direction         string   `json:"direction"`
	RunningBalance    *float64 `json:"runningBalance,omitempty"`
	SourceCategory    string   `json:"sourceCategory,omitempty"`
	SourceSubcategory string   `json:"sourceSubcategory,omitempty"`
	ParseQuality      string   `json:"parseQuality,omitempty"`
}

// StatementRequest is the API payload carrying a full statement.
type StatementRequest struct {
	Transactions []TransactionRequest `json:"transactions"`
}

// ToTransaction converts a request row into a Transaction.
func (r *TransactionRequest) ToTransaction() (Transaction, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return Transaction{}, err
	}

	dir := Direction(strings.ToUpper(strings.TrimSpace(r.Direction)))
	if dir != Credit && dir != Debit {
		return Transaction{}, fmt.Errorf("invalid direction %q", r.Direction)
	}

	return Transaction{
		Date:              date,
		Description:       r.Description,
		Amount:            math.Abs(r.Amount),
		Direction:         dir,
		RunningBalance:    r.RunningBalance,
		SourceCategory:    r.SourceCategory,
		SourceSubcategory: r.SourceSubcategory,
		ParseQuality:      ParseQuality(strings.ToLower(r.ParseQuality)),
	}, nil
}

// ToTransactions converts every row of a statement, reporting the first bad row.
func (s *StatementRequest) ToTransactions() ([]Transaction, error) {
	txs := make([]Transaction, 0, len(s.Transactions))
	for i := range s.Transactions {
		tx, err := s.Transactions[i].ToTransaction()
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse(DateLayout, s); err == nil {
		return d, nil
	}
	if d, err := time.Parse(time.RFC3339, s); err == nil {
		return d, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
