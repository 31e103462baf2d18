package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/recaudo-api/internal/application/reconciliation"
	"github.com/jhoicas/recaudo-api/internal/domain/repository"
)

// Ensure TxRunner implements reconciliation.TxRunner.
var _ reconciliation.TxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
// Es la frontera transaccional de verify/match/reject: la mutación del libro
// mayor y el registro de match comitean juntos o no comitean.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunReconciliation inicia una transacción, ejecuta fn con repos atados a la
// tx y hace Commit o Rollback.
func (r *TxRunner) RunReconciliation(ctx context.Context, fn func(
	evidenceRepo repository.EvidenceRepository,
	invoiceRepo repository.InvoiceRepository,
	matchRepo repository.MatchRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	evidenceRepo := NewEvidenceRepository(tx)
	invoiceRepo := NewInvoiceRepository(tx)
	matchRepo := NewMatchRepository(tx)

	if err := fn(evidenceRepo, invoiceRepo, matchRepo); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
