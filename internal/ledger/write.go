package ledger

import (
	"context"
	"fmt"

	"github.com/josephjohncox/axiograph-sub003/internal/cert"
	"github.com/josephjohncox/axiograph-sub003/internal/digest"
	"github.com/josephjohncox/axiograph-sub003/internal/pathdb"
)

// RecordImport appends one import transaction. Duplicate transaction
// tokens are silently ignored, so replaying a command log is idempotent.
func (l *Ledger) RecordImport(ctx context.Context, moduleDigest, moduleName, instance string, mode pathdb.Mode, res *pathdb.ImportResult) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO imports (txn, module_digest, module_name, instance, plane, mode, added, rejected)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(txn) DO NOTHING
	`,
		res.Txn,
		moduleDigest,
		moduleName,
		instance,
		res.Plane,
		string(mode),
		len(res.Added),
		len(res.Rejected),
	)
	if err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	return nil
}

// RecordCertificate appends one emitted certificate, keyed by the digest
// of its canonical bytes. Re-recording the same certificate is a no-op.
// Returns the certificate digest.
func (l *Ledger) RecordCertificate(ctx context.Context, c *cert.Certificate) (string, error) {
	body, err := c.Marshal()
	if err != nil {
		return "", fmt.Errorf("record certificate: %w", err)
	}
	certDigest := digest.Module(string(body))
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO certificates (cert_digest, kind, module_digest, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cert_digest) DO NOTHING
	`,
		certDigest,
		c.Kind,
		c.Anchor.ModuleDigest,
		body,
	)
	if err != nil {
		return "", fmt.Errorf("record certificate: %w", err)
	}
	return certDigest, nil
}

// RecordSnapshot appends one snapshot export, keyed by the module digest
// of the exported text. Returns the export digest.
func (l *Ledger) RecordSnapshot(ctx context.Context, moduleDigest, exportText string) (string, error) {
	exportDigest := digest.Module(exportText)
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO snapshots (export_digest, module_digest, body)
		VALUES (?, ?, ?)
		ON CONFLICT(export_digest) DO NOTHING
	`,
		exportDigest,
		moduleDigest,
		exportText,
	)
	if err != nil {
		return "", fmt.Errorf("record snapshot: %w", err)
	}
	return exportDigest, nil
}
