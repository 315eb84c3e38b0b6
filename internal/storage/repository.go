package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"

	"flowmoney/internal/core"
)

const sqliteConstraint = 19

// SQLRepository implements Store over database/sql for SQLite and Postgres.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	retry   RetryPolicy
}

// NewSQLiteRepository opens (creating if needed) the database file at dbPath
// and brings its schema up to date.
func NewSQLiteRepository(dbPath string, retry RetryPolicy) (*SQLRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	repo, err := open(SQLite, sqliteDSN(dbPath), retry)
	if err != nil {
		return nil, err
	}
	// One writer at a time; busy_timeout covers readers.
	repo.db.SetMaxOpenConns(1)
	return repo, nil
}

// NewPostgresRepository connects to databaseURL and brings its schema up to date.
func NewPostgresRepository(databaseURL string, retry RetryPolicy) (*SQLRepository, error) {
	repo, err := open(Postgres, databaseURL, retry)
	if err != nil {
		return nil, err
	}
	repo.db.SetMaxOpenConns(25)
	repo.db.SetMaxIdleConns(5)
	repo.db.SetConnMaxLifetime(5 * time.Minute)
	return repo, nil
}

func open(dialect Dialect, dsn string, retry RetryPolicy) (*SQLRepository, error) {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	retry = retry.normalized()
	ctx, cancel := context.WithTimeout(context.Background(), retry.Timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLRepository{db: db, dialect: dialect, retry: retry}, nil
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return withRetryExec(ctx, r.retry, "ping", func(ctx context.Context) error {
		return r.db.PingContext(ctx)
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	query = r.dialect.rebind(query)
	return withRetry(ctx, r.retry, op, func(ctx context.Context) (int64, error) {
		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, mapConstraint(err)
		}
		return res.RowsAffected()
	})
}

func queryOne[T any](ctx context.Context, r *SQLRepository, op, query string, scan func(rowScanner) (T, error), args ...any) (T, error) {
	query = r.dialect.rebind(query)
	return withRetry(ctx, r.retry, op, func(ctx context.Context) (T, error) {
		v, err := scan(r.db.QueryRowContext(ctx, query, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return v, core.ErrNotFound
		}
		return v, err
	})
}

func queryAll[T any](ctx context.Context, r *SQLRepository, op, query string, scan func(rowScanner) (T, error), args ...any) ([]T, error) {
	query = r.dialect.rebind(query)
	return withRetry(ctx, r.retry, op, func(ctx context.Context) ([]T, error) {
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		out := []T{}
		for rows.Next() {
			v, err := scan(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, rows.Err()
	})
}

func (r *SQLRepository) count(ctx context.Context, op, query string, args ...any) (int, error) {
	return queryOne(ctx, r, op, query, func(row rowScanner) (int, error) {
		var n int
		err := row.Scan(&n)
		return n, err
	}, args...)
}

// Users

const profileColumns = `user_id, display_name, membership_tier, is_pro, pro_expires_at,
	trial_started_at, trial_ends_at, monthly_savings_goal, monthly_savings_enabled,
	created_at, updated_at`

func scanProfile(row rowScanner) (core.Profile, error) {
	var p core.Profile
	var tier string
	err := row.Scan(&p.UserID, &p.DisplayName, &tier, &p.IsPro,
		scanNullTime(&p.ProExpiresAt), scanNullTime(&p.TrialStartedAt), scanNullTime(&p.TrialEndsAt),
		&p.MonthlySavingsGoal, &p.MonthlySavingsEnabled,
		scanTime(&p.CreatedAt), scanTime(&p.UpdatedAt))
	p.MembershipTier = core.MembershipTier(tier)
	return p, err
}

func (r *SQLRepository) GetProfile(ctx context.Context, userID string) (core.Profile, error) {
	p, err := queryOne(ctx, r, "get profile",
		`SELECT `+profileColumns+` FROM users WHERE user_id = ?`, scanProfile, userID)
	if err != nil {
		return core.Profile{}, fmt.Errorf("get profile %s: %w", userID, err)
	}
	return p, nil
}

func (r *SQLRepository) CreateProfile(ctx context.Context, p core.Profile) (core.Profile, error) {
	n, err := r.exec(ctx, "create profile",
		`INSERT INTO users (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`,
		p.UserID, p.DisplayName, string(p.MembershipTier), p.IsPro,
		nullTimestamp(p.ProExpiresAt), nullTimestamp(p.TrialStartedAt), nullTimestamp(p.TrialEndsAt),
		p.MonthlySavingsGoal, p.MonthlySavingsEnabled,
		Timestamp(p.CreatedAt), Timestamp(p.UpdatedAt))
	if err != nil {
		return core.Profile{}, fmt.Errorf("create profile %s: %w", p.UserID, err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Profile created", "user_id", p.UserID, "tier", p.MembershipTier)
	}
	return r.GetProfile(ctx, p.UserID)
}

func (r *SQLRepository) UpdateMembership(ctx context.Context, userID string, c core.MembershipChange, now time.Time) error {
	var (
		n   int64
		err error
	)
	if c.KeepTrial {
		n, err = r.exec(ctx, "update membership",
			`UPDATE users SET is_pro = ?, membership_tier = ?, pro_expires_at = ?, updated_at = ?
			WHERE user_id = ?`,
			c.IsPro, string(c.MembershipTier), nullTimestamp(c.ProExpiresAt), Timestamp(now), userID)
	} else {
		n, err = r.exec(ctx, "update membership",
			`UPDATE users SET is_pro = ?, membership_tier = ?, pro_expires_at = ?,
				trial_started_at = ?, trial_ends_at = ?, updated_at = ?
			WHERE user_id = ?`,
			c.IsPro, string(c.MembershipTier), nullTimestamp(c.ProExpiresAt),
			nullTimestamp(c.TrialStartedAt), nullTimestamp(c.TrialEndsAt), Timestamp(now), userID)
	}
	if err != nil {
		return fmt.Errorf("update membership %s: %w", userID, err)
	}
	if n == 0 {
		return fmt.Errorf("update membership %s: %w", userID, core.ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) ExpireMemberships(ctx context.Context, now time.Time) (int, error) {
	n, err := r.exec(ctx, "expire memberships",
		`UPDATE users SET is_pro = ?, membership_tier = ?, pro_expires_at = NULL,
			trial_started_at = NULL, trial_ends_at = NULL, updated_at = ?
		WHERE pro_expires_at IS NOT NULL AND pro_expires_at <= ?
			AND (is_pro = ? OR membership_tier <> ?)`,
		false, string(core.TierFree), Timestamp(now), Timestamp(now), true, string(core.TierFree))
	if err != nil {
		return 0, fmt.Errorf("expire memberships: %w", err)
	}
	return int(n), nil
}

func (r *SQLRepository) UpdateSavings(ctx context.Context, userID string, enabled bool, goal decimal.Decimal, now time.Time) error {
	n, err := r.exec(ctx, "update savings",
		`UPDATE users SET monthly_savings_enabled = ?, monthly_savings_goal = ?, updated_at = ?
		WHERE user_id = ?`,
		enabled, goal, Timestamp(now), userID)
	if err != nil {
		return fmt.Errorf("update savings %s: %w", userID, err)
	}
	if n == 0 {
		return fmt.Errorf("update savings %s: %w", userID, core.ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) ListProfiles(ctx context.Context, search string, limit, offset int) (ProfilePage, error) {
	where := ""
	var args []any
	if s := strings.TrimSpace(search); s != "" {
		where = ` WHERE ` + r.dialect.lower("display_name") + ` LIKE ? ESCAPE '\' OR user_id = ?`
		args = append(args, likePattern(s), s)
	}
	total, err := r.count(ctx, "count profiles", `SELECT COUNT(*) FROM users`+where, args...)
	if err != nil {
		return ProfilePage{}, fmt.Errorf("count profiles: %w", err)
	}
	profiles, err := queryAll(ctx, r, "list profiles",
		`SELECT `+profileColumns+` FROM users`+where+` ORDER BY created_at DESC, user_id LIMIT ? OFFSET ?`,
		scanProfile, append(args, limit, offset)...)
	if err != nil {
		return ProfilePage{}, fmt.Errorf("list profiles: %w", err)
	}
	return ProfilePage{Profiles: profiles, Total: total}, nil
}

// Ledgers

const ledgerColumns = `id, user_id, name, is_default, created_at, updated_at`

func scanLedger(row rowScanner) (core.Ledger, error) {
	var l core.Ledger
	err := row.Scan(&l.ID, &l.UserID, &l.Name, &l.IsDefault, scanTime(&l.CreatedAt), scanTime(&l.UpdatedAt))
	return l, err
}

func (r *SQLRepository) ListLedgers(ctx context.Context, userID string) ([]core.Ledger, error) {
	ls, err := queryAll(ctx, r, "list ledgers",
		`SELECT `+ledgerColumns+` FROM ledgers WHERE user_id = ?
		ORDER BY is_default DESC, created_at ASC, id`, scanLedger, userID)
	if err != nil {
		return nil, fmt.Errorf("list ledgers: %w", err)
	}
	return ls, nil
}

func (r *SQLRepository) GetLedger(ctx context.Context, userID, ledgerID string) (core.Ledger, error) {
	l, err := queryOne(ctx, r, "get ledger",
		`SELECT `+ledgerColumns+` FROM ledgers WHERE user_id = ? AND id = ?`, scanLedger, userID, ledgerID)
	if err != nil {
		return core.Ledger{}, fmt.Errorf("get ledger %s: %w", ledgerID, err)
	}
	return l, nil
}

func (r *SQLRepository) DefaultLedger(ctx context.Context, userID string) (core.Ledger, error) {
	l, err := queryOne(ctx, r, "default ledger",
		`SELECT `+ledgerColumns+` FROM ledgers WHERE user_id = ? AND is_default = ?`, scanLedger, userID, true)
	if err != nil {
		return core.Ledger{}, fmt.Errorf("default ledger: %w", err)
	}
	return l, nil
}

func (r *SQLRepository) CreateLedger(ctx context.Context, l core.Ledger) (core.Ledger, error) {
	n, err := r.exec(ctx, "create ledger",
		`INSERT INTO ledgers (`+ledgerColumns+`) VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		l.ID, l.UserID, l.Name, l.IsDefault, Timestamp(l.CreatedAt), Timestamp(l.UpdatedAt))
	if err != nil {
		return core.Ledger{}, fmt.Errorf("create ledger: %w", err)
	}
	if n == 0 {
		if l.IsDefault {
			return r.DefaultLedger(ctx, l.UserID)
		}
		return core.Ledger{}, fmt.Errorf("create ledger %s: %w", l.ID, core.NewIntegrityError("ledger id already exists"))
	}
	slog.InfoContext(ctx, "Ledger created", "user_id", l.UserID, "ledger_id", l.ID, "default", l.IsDefault)
	return r.GetLedger(ctx, l.UserID, l.ID)
}

func (r *SQLRepository) RenameLedger(ctx context.Context, userID, ledgerID, name string, now time.Time) error {
	n, err := r.exec(ctx, "rename ledger",
		`UPDATE ledgers SET name = ?, updated_at = ? WHERE user_id = ? AND id = ?`,
		name, Timestamp(now), userID, ledgerID)
	if err != nil {
		return fmt.Errorf("rename ledger %s: %w", ledgerID, err)
	}
	if n == 0 {
		return fmt.Errorf("rename ledger %s: %w", ledgerID, core.ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) DeleteLedger(ctx context.Context, userID, ledgerID string) error {
	n, err := r.exec(ctx, "delete ledger",
		`DELETE FROM ledgers WHERE user_id = ? AND id = ? AND is_default = ?`, userID, ledgerID, false)
	if err != nil {
		return fmt.Errorf("delete ledger %s: %w", ledgerID, err)
	}
	if n == 0 {
		return fmt.Errorf("delete ledger %s: %w", ledgerID, core.ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) CountLedgerTransactions(ctx context.Context, userID, ledgerID string) (int, error) {
	n, err := r.count(ctx, "count ledger transactions",
		`SELECT COUNT(*) FROM transactions WHERE user_id = ? AND ledger_id = ?`, userID, ledgerID)
	if err != nil {
		return 0, fmt.Errorf("count ledger transactions: %w", err)
	}
	return n, nil
}

// Categories

const categoryColumns = `id, user_id, name, icon, type, color, created_at`

func scanCategory(row rowScanner) (core.Category, error) {
	var c core.Category
	var t string
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Icon, &t, &c.Color, scanTime(&c.CreatedAt))
	c.Type = core.EntryType(t)
	return c, err
}

func (r *SQLRepository) ListCategories(ctx context.Context, userID string, t core.EntryType) ([]core.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE (user_id = '' OR user_id = ?)`
	args := []any{userID}
	if t != "" {
		query += ` AND type = ?`
		args = append(args, string(t))
	}
	query += ` ORDER BY CASE WHEN user_id = '' THEN 0 ELSE 1 END, created_at ASC, id`
	cs, err := queryAll(ctx, r, "list categories", query, scanCategory, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cs, nil
}

func (r *SQLRepository) GetCategory(ctx context.Context, userID, categoryID string) (core.Category, error) {
	c, err := queryOne(ctx, r, "get category",
		`SELECT `+categoryColumns+` FROM categories WHERE id = ? AND (user_id = '' OR user_id = ?)`,
		scanCategory, categoryID, userID)
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %s: %w", categoryID, err)
	}
	return c, nil
}

func (r *SQLRepository) FindCategory(ctx context.Context, userID string, t core.EntryType, identifier string) (core.Category, error) {
	c, err := queryOne(ctx, r, "find category",
		`SELECT `+categoryColumns+` FROM categories
		WHERE type = ? AND (user_id = '' OR user_id = ?) AND (icon = ? OR name = ?)
		ORDER BY CASE WHEN user_id = '' THEN 0 ELSE 1 END, CASE WHEN icon = ? THEN 0 ELSE 1 END, created_at
		LIMIT 1`,
		scanCategory, string(t), userID, identifier, identifier, identifier)
	if err != nil {
		return core.Category{}, fmt.Errorf("find category %q: %w", identifier, err)
	}
	return c, nil
}

func (r *SQLRepository) InsertCategory(ctx context.Context, c core.Category) (core.Category, bool, error) {
	n, err := r.exec(ctx, "insert category",
		`INSERT INTO categories (`+categoryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, type, icon) DO NOTHING`,
		c.ID, c.UserID, c.Name, c.Icon, string(c.Type), c.Color, Timestamp(c.CreatedAt))
	if err != nil {
		return core.Category{}, false, fmt.Errorf("insert category: %w", err)
	}
	stored, err := queryOne(ctx, r, "fetch category",
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = ? AND type = ? AND icon = ?`,
		scanCategory, c.UserID, string(c.Type), c.Icon)
	if err != nil {
		return core.Category{}, false, fmt.Errorf("fetch category: %w", err)
	}
	return stored, n > 0, nil
}

func (r *SQLRepository) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	n, err := r.exec(ctx, "delete category",
		`DELETE FROM categories WHERE id = ? AND user_id = ? AND user_id <> ''`, categoryID, userID)
	if err != nil {
		return fmt.Errorf("delete category %s: %w", categoryID, err)
	}
	if n == 0 {
		return fmt.Errorf("delete category %s: %w", categoryID, core.ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) CountCategoryTransactions(ctx context.Context, userID, categoryID string) (int, error) {
	n, err := r.count(ctx, "count category transactions",
		`SELECT COUNT(*) FROM transactions WHERE user_id = ? AND category_id = ?`, userID, categoryID)
	if err != nil {
		return 0, fmt.Errorf("count category transactions: %w", err)
	}
	return n, nil
}

// Transactions

const transactionColumns = `t.id, t.user_id, t.ledger_id, COALESCE(t.category_id, ''), t.amount, t.date,
	COALESCE(t.note, ''), COALESCE(t.mood, ''), t.created_at`

func scanTransaction(row rowScanner, extra ...any) (core.Transaction, error) {
	var t core.Transaction
	var mood string
	dest := append([]any{&t.ID, &t.UserID, &t.LedgerID, &t.CategoryID, &t.Amount,
		scanTime(&t.Date), &t.Note, &mood, scanTime(&t.CreatedAt)}, extra...)
	err := row.Scan(dest...)
	t.Mood = core.Mood(mood)
	return t, err
}

func scanTransactionView(row rowScanner) (core.TransactionView, error) {
	var v core.TransactionView
	var ctype string
	t, err := scanTransaction(row, &v.CategoryName, &v.CategoryIcon, &ctype, &v.LedgerName)
	v.Transaction = t
	v.CategoryType = core.EntryType(ctype)
	return v, err
}

func (r *SQLRepository) InsertTransaction(ctx context.Context, t core.Transaction) error {
	_, err := r.exec(ctx, "insert transaction",
		`INSERT INTO transactions (id, user_id, ledger_id, category_id, amount, date, note, mood, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.LedgerID, nullString(t.CategoryID), t.Amount, Timestamp(t.Date),
		nullString(t.Note), nullString(string(t.Mood)), Timestamp(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction saved",
		"id", t.ID,
		"ledger_id", t.LedgerID,
		"amount", t.Amount.String())
	return nil
}

func (r *SQLRepository) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	t, err := queryOne(ctx, r, "get transaction",
		`SELECT `+transactionColumns+` FROM transactions t WHERE t.user_id = ? AND t.id = ?`,
		func(row rowScanner) (core.Transaction, error) { return scanTransaction(row) }, userID, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return t, nil
}

func (r *SQLRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	n, err := r.exec(ctx, "delete transaction",
		`DELETE FROM transactions WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete transaction %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.TransactionView, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + transactionColumns + `,
		COALESCE(c.name, ''), COALESCE(c.icon, ''), COALESCE(c.type, ''), COALESCE(l.name, '')
	FROM transactions t
	LEFT JOIN categories c ON c.id = t.category_id
	LEFT JOIN ledgers l ON l.id = t.ledger_id
	WHERE t.user_id = ?`)
	args := []any{f.UserID}
	if f.LedgerID != "" {
		b.WriteString(` AND t.ledger_id = ?`)
		args = append(args, f.LedgerID)
	}
	if !f.From.IsZero() {
		b.WriteString(` AND t.date >= ?`)
		args = append(args, Timestamp(f.From))
	}
	if !f.To.IsZero() {
		b.WriteString(` AND t.date <= ?`)
		args = append(args, Timestamp(f.To))
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		b.WriteString(` AND ` + r.dialect.lower("COALESCE(t.note, '')") + ` LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(kw))
	}
	b.WriteString(` ORDER BY t.date DESC, t.created_at DESC`)

	vs, err := queryAll(ctx, r, "list transactions", b.String(), scanTransactionView, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return vs, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// likePattern builds a lower-cased substring pattern with LIKE wildcards escaped.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}

// mapConstraint turns unique and foreign key violations into integrity errors.
func mapConstraint(err error) error {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && liteErr.Code()&0xff == sqliteConstraint {
		return fmt.Errorf("%w: %v", core.NewIntegrityError("constraint violated"), err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		return fmt.Errorf("%w: %v", core.NewIntegrityError(pqErr.Constraint+" violated"), err)
	}
	return err
}
