package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrProductNotFound indicates no active product carries the requested name.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrProfileNotFound indicates the user has no profiles row.
	ErrProfileNotFound = errors.New("catalog: profile not found")
)

// ProductFilter narrows ListActiveProducts. Zero values mean no restriction.
type ProductFilter struct {
	CategoryID *int64
	Query      string
	Limit      int
}

// Repository is the read-side contract over the hosted catalog database.
type Repository interface {
	ListCategories(ctx context.Context) ([]Category, error)
	ListActiveProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	GetActiveProductByName(ctx context.Context, name string) (Product, error)
	ListActiveProductSlugs(ctx context.Context) ([]sql.NullString, error)
	ListAllProducts(ctx context.Context) ([]Product, error)
	GetProfile(ctx context.Context, userID string) (Profile, error)
	Ping(ctx context.Context) error
}

// SQLRepository implements Repository over database/sql, opened with the pgx stdlib driver.
type SQLRepository struct {
	db *sql.DB
}

// NewSQLRepository wraps db. It returns an error when db is nil.
func NewSQLRepository(db *sql.DB) (*SQLRepository, error) {
	if db == nil {
		return nil, errors.New("catalog: database handle is required")
	}
	return &SQLRepository{db: db}, nil
}

const productColumns = `id, name, description, category_id, media, price, colon_price, discount_percentage, is_active, is_featured, created_at`

func (r *SQLRepository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, name_es, name_en FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list categories: %w", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var (
			c            Category
			name, es, en sql.NullString
		)
		if err := rows.Scan(&c.ID, &name, &es, &en); err != nil {
			return nil, fmt.Errorf("catalog: scan category: %w", err)
		}
		c.Name, c.NameES, c.NameEN = name.String, es.String, en.String
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list categories: %w", err)
	}
	return out, nil
}

func (r *SQLRepository) ListActiveProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	args := []any{}
	where := []string{"is_active = true"}
	next := 1
	if filter.CategoryID != nil {
		where = append(where, fmt.Sprintf("category_id = $%d", next))
		args = append(args, *filter.CategoryID)
		next++
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		where = append(where, fmt.Sprintf("name ILIKE $%d", next))
		args = append(args, "%"+escapeLike(q)+"%")
		next++
	}
	q := fmt.Sprintf(`SELECT %s FROM products WHERE %s ORDER BY created_at DESC`, productColumns, strings.Join(where, " AND "))
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d", next)
		args = append(args, filter.Limit)
	}
	return r.queryProducts(ctx, "list active products", q, args...)
}

func (r *SQLRepository) GetActiveProductByName(ctx context.Context, name string) (Product, error) {
	q := fmt.Sprintf(`SELECT %s FROM products WHERE is_active = true AND name = $1 LIMIT 1`, productColumns)
	p, err := scanProduct(r.db.QueryRowContext(ctx, q, name))
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("catalog: get product: %w", err)
	}
	return p, nil
}

func (r *SQLRepository) ListActiveProductSlugs(ctx context.Context) ([]sql.NullString, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM products WHERE is_active = true ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list slugs: %w", err)
	}
	defer rows.Close()

	var out []sql.NullString
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("catalog: scan slug: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list slugs: %w", err)
	}
	return out, nil
}

func (r *SQLRepository) ListAllProducts(ctx context.Context) ([]Product, error) {
	q := fmt.Sprintf(`SELECT %s FROM products ORDER BY created_at DESC`, productColumns)
	return r.queryProducts(ctx, "list products", q)
}

func (r *SQLRepository) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var (
		p    Profile
		role sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, role FROM profiles WHERE id = $1`, userID).Scan(&p.ID, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("catalog: get profile: %w", err)
	}
	p.Role = role.String
	return p, nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) queryProducts(ctx context.Context, op, q string, args ...any) ([]Product, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", op, err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", op, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var (
		p          Product
		name, desc sql.NullString
		categoryID sql.NullInt64
		media      []byte
		price      decimal.NullDecimal
		colonPrice decimal.NullDecimal
		discount   decimal.NullDecimal
		active     sql.NullBool
		featured   sql.NullBool
		createdAt  sql.NullTime
	)
	if err := row.Scan(&p.ID, &name, &desc, &categoryID, &media, &price, &colonPrice, &discount, &active, &featured, &createdAt); err != nil {
		return Product{}, err
	}
	p.Name = name.String
	p.Description = desc.String
	if categoryID.Valid {
		id := categoryID.Int64
		p.CategoryID = &id
	}
	p.Media = decodeMedia(media)
	p.Price, p.ColonPrice, p.DiscountPercentage = price, colonPrice, discount
	p.IsActive = active.Bool
	p.IsFeatured = featured.Bool
	p.CreatedAt = createdAt.Time
	return p, nil
}

// decodeMedia accepts the JSONB gallery as either objects or bare URL strings. Malformed
// payloads decode to an empty gallery.
func decodeMedia(raw []byte) []Media {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]Media, 0, len(items))
	for _, item := range items {
		var m Media
		if err := json.Unmarshal(item, &m); err == nil {
			out = append(out, m)
			continue
		}
		var u string
		if err := json.Unmarshal(item, &u); err == nil {
			out = append(out, Media{URL: u})
		}
	}
	return out
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
