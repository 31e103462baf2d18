package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/recaudo-api/internal/domain/entity"
	"github.com/jhoicas/recaudo-api/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

const invoiceColumns = `id, number, project_id, customer_id, total, collected, outstanding,
	       currency, status, issued_at, due_at, created_at, updated_at`

// InvoiceRepo implementación de InvoiceRepository (usable con pool o tx).
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

// GetByID obtiene una factura por ID.
func (r *InvoiceRepo) GetByID(id string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	return r.scanOne(r.q.QueryRow(context.Background(), query, id))
}

// GetByNumber resuelve por número único de factura.
func (r *InvoiceRepo) GetByNumber(number string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE number = $1`
	return r.scanOne(r.q.QueryRow(context.Background(), query, number))
}

// GetByIDForUpdate bloquea la fila de la factura. Solo dentro de transacción.
func (r *InvoiceRepo) GetByIDForUpdate(id string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1 FOR UPDATE`
	return r.scanOne(r.q.QueryRow(context.Background(), query, id))
}

// ListOpen devuelve las facturas en estado no terminal, las más antiguas primero.
func (r *InvoiceRepo) ListOpen() ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE status IN ($1, $2, $3)
		ORDER BY issued_at`
	rows, err := r.q.Query(context.Background(), query,
		entity.InvoiceStatusDraft, entity.InvoiceStatusSent, entity.InvoiceStatusPartiallyPaid)
	if err != nil {
		return nil, fmt.Errorf("list open invoices: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// ListByStatus lista facturas por estado con paginación.
func (r *InvoiceRepo) ListByStatus(status string, limit, offset int) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices WHERE status = $1
		ORDER BY issued_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.q.Query(context.Background(), query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// UpdateLedger persiste únicamente los campos del libro mayor.
func (r *InvoiceRepo) UpdateLedger(invoice *entity.Invoice) error {
	query := `
		UPDATE invoices
		SET collected   = $2,
		    outstanding = $3,
		    status      = $4,
		    updated_at  = $5
		WHERE id = $1`
	tag, err := r.q.Exec(context.Background(), query,
		invoice.ID, invoice.Collected, invoice.Outstanding, invoice.Status, invoice.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update invoice ledger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update invoice ledger: factura %s no existe", invoice.ID)
	}
	return nil
}

func (r *InvoiceRepo) scanOne(row pgx.Row) (*entity.Invoice, error) {
	var inv entity.Invoice
	var projectID, customerID *string
	err := row.Scan(
		&inv.ID, &inv.Number, &projectID, &customerID,
		&inv.Total, &inv.Collected, &inv.Outstanding,
		&inv.Currency, &inv.Status, &inv.IssuedAt, &inv.DueAt,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	inv.ProjectID = derefStr(projectID)
	inv.CustomerID = derefStr(customerID)
	return &inv, nil
}

func (r *InvoiceRepo) scanAll(rows pgx.Rows) ([]*entity.Invoice, error) {
	var list []*entity.Invoice
	for rows.Next() {
		var inv entity.Invoice
		var projectID, customerID *string
		if err := rows.Scan(
			&inv.ID, &inv.Number, &projectID, &customerID,
			&inv.Total, &inv.Collected, &inv.Outstanding,
			&inv.Currency, &inv.Status, &inv.IssuedAt, &inv.DueAt,
			&inv.CreatedAt, &inv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		inv.ProjectID = derefStr(projectID)
		inv.CustomerID = derefStr(customerID)
		list = append(list, &inv)
	}
	return list, rows.Err()
}
