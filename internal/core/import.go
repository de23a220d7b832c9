package core

import "time"

// ImportRecord captures one completed file import for provenance. Re-importing
// the same source file first removes the rows recorded under it.
type ImportRecord struct {
	ID               int64     `json:"id"`
	Workspace        string    `json:"workspace"`
	SourceFile       string    `json:"source_file"`
	TransactionCount int       `json:"transaction_count"`
	ImportedAt       time.Time `json:"imported_at"`
}
