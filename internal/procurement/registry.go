package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReferencePort resolves the read-only registries a document refers to.
type ReferencePort interface {
	Supplier(ctx context.Context, companyID, id int64) (Supplier, error)
	Product(ctx context.Context, companyID, id int64) (Product, error)
	Department(ctx context.Context, companyID, id int64) error
	Warehouse(ctx context.Context, companyID, id int64) error
}

// Registry implements ReferencePort on the master data tables.
type Registry struct {
	pool *pgxpool.Pool
}

// NewRegistry constructs a Registry.
func NewRegistry(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool}
}

// Supplier loads a supplier with its contact details.
func (r *Registry) Supplier(ctx context.Context, companyID, id int64) (Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, contact_person, email, payment_terms
FROM suppliers WHERE company_id = $1 AND id = $2 AND is_active`, companyID, id).
		Scan(&s.ID, &s.Code, &s.Name, &s.ContactPerson, &s.Email, &s.PaymentTerms)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, fmt.Errorf("%w: %d", ErrSupplierNotFound, id)
	}
	if err != nil {
		return Supplier{}, fmt.Errorf("procurement: load supplier %d: %w", id, err)
	}
	return s, nil
}

// Product loads a product.
func (r *Registry) Product(ctx context.Context, companyID, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, code, name FROM products WHERE company_id = $1 AND id = $2 AND is_active`,
		companyID, id).Scan(&p.ID, &p.Code, &p.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: %d", ErrProductNotFound, id)
	}
	if err != nil {
		return Product{}, fmt.Errorf("procurement: load product %d: %w", id, err)
	}
	return p, nil
}

// Department checks that a department exists.
func (r *Registry) Department(ctx context.Context, companyID, id int64) error {
	return r.exists(ctx, "departments", companyID, id, ErrDepartmentNotFound)
}

// Warehouse checks that a warehouse exists.
func (r *Registry) Warehouse(ctx context.Context, companyID, id int64) error {
	return r.exists(ctx, "warehouses", companyID, id, ErrWarehouseNotFound)
}

func (r *Registry) exists(ctx context.Context, table string, companyID, id int64, missing error) error {
	var ok bool
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE company_id = $1 AND id = $2)`, table),
		companyID, id).Scan(&ok)
	if err != nil {
		return fmt.Errorf("procurement: lookup %s %d: %w", table, id, err)
	}
	if !ok {
		return fmt.Errorf("%w: %d", missing, id)
	}
	return nil
}
