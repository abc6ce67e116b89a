package ledger

import (
	"context"
	"fmt"
)

// ImportRecord is one row of the imports table.
type ImportRecord struct {
	Txn          string
	ModuleDigest string
	ModuleName   string
	Instance     string
	Plane        string
	Mode         string
	Added        int
	Rejected     int
	RecordedAt   string
}

// CertificateRecord is one row of the certificates table.
type CertificateRecord struct {
	CertDigest   string
	Kind         string
	ModuleDigest string
	Body         []byte
	RecordedAt   string
}

// SnapshotRecord is one row of the snapshots table.
type SnapshotRecord struct {
	ExportDigest string
	ModuleDigest string
	Body         string
	RecordedAt   string
}

// Imports returns import transactions, newest last. moduleDigest filters
// when non-empty. Ordering is deterministic: recorded_at, then txn with
// binary collation.
func (l *Ledger) Imports(ctx context.Context, moduleDigest string) ([]ImportRecord, error) {
	query := `
		SELECT txn, module_digest, module_name, instance, plane, mode, added, rejected, recorded_at
		FROM imports
	`
	var args []any
	if moduleDigest != "" {
		query += " WHERE module_digest = ?"
		args = append(args, moduleDigest)
	}
	query += " ORDER BY recorded_at ASC, txn COLLATE BINARY ASC"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query imports: %w", err)
	}
	defer rows.Close()

	records := []ImportRecord{}
	for rows.Next() {
		var r ImportRecord
		if err := rows.Scan(&r.Txn, &r.ModuleDigest, &r.ModuleName, &r.Instance, &r.Plane, &r.Mode, &r.Added, &r.Rejected, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate imports: %w", err)
	}
	return records, nil
}

// Certificates returns recorded certificates, optionally filtered by
// module digest.
func (l *Ledger) Certificates(ctx context.Context, moduleDigest string) ([]CertificateRecord, error) {
	query := `
		SELECT cert_digest, kind, module_digest, body, recorded_at
		FROM certificates
	`
	var args []any
	if moduleDigest != "" {
		query += " WHERE module_digest = ?"
		args = append(args, moduleDigest)
	}
	query += " ORDER BY recorded_at ASC, cert_digest COLLATE BINARY ASC"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query certificates: %w", err)
	}
	defer rows.Close()

	records := []CertificateRecord{}
	for rows.Next() {
		var r CertificateRecord
		if err := rows.Scan(&r.CertDigest, &r.Kind, &r.ModuleDigest, &r.Body, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate certificates: %w", err)
	}
	return records, nil
}

// Certificate returns one recorded certificate by digest, or nil.
func (l *Ledger) Certificate(ctx context.Context, certDigest string) (*CertificateRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT cert_digest, kind, module_digest, body, recorded_at
		FROM certificates WHERE cert_digest = ?
	`, certDigest)
	if err != nil {
		return nil, fmt.Errorf("query certificate: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var r CertificateRecord
	if err := rows.Scan(&r.CertDigest, &r.Kind, &r.ModuleDigest, &r.Body, &r.RecordedAt); err != nil {
		return nil, fmt.Errorf("scan certificate: %w", err)
	}
	return &r, nil
}

// Snapshots returns recorded snapshot exports, optionally filtered by
// source module digest.
func (l *Ledger) Snapshots(ctx context.Context, moduleDigest string) ([]SnapshotRecord, error) {
	query := `
		SELECT export_digest, module_digest, body, recorded_at
		FROM snapshots
	`
	var args []any
	if moduleDigest != "" {
		query += " WHERE module_digest = ?"
		args = append(args, moduleDigest)
	}
	query += " ORDER BY recorded_at ASC, export_digest COLLATE BINARY ASC"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	records := []SnapshotRecord{}
	for rows.Next() {
		var r SnapshotRecord
		if err := rows.Scan(&r.ExportDigest, &r.ModuleDigest, &r.Body, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return records, nil
}
