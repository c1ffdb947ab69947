package protocol

import "context"

// RecordStore is the narrow query interface over the product's row and
// field data. The automation core never touches the storage engine
// directly; rows and fields are opaque beyond this contract.
type RecordStore interface {
	// Record returns the field values of one row, keyed by field id.
	Record(ctx context.Context, tableID, recordID string) (map[string]any, error)

	// UpdateRecord writes field values on one row.
	UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]any) error
}
