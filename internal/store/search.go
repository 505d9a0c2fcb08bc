package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/models"
)

const (
	DefaultLimit = 20
	MaxLimit     = 200
)

// substringColumns are matched case-insensitively against the whole query text.
var substringColumns = []string{
	"c.first_name",
	"c.last_name",
	"c.file_number",
	"c.email",
	"c.phone_number",
	"c.address",
	"c.company",
}

// normalizeQuery validates q and fills in paging defaults.
func normalizeQuery(q models.ContactQuery) (models.ContactQuery, error) {
	q.Text = strings.TrimSpace(q.Text)
	switch q.FileStatus {
	case "", models.FileOpen, models.FileClosed:
	default:
		return q, fmt.Errorf("file_status %q: %w", q.FileStatus, apperr.ErrInvalidArgument)
	}
	switch q.ClientStatus {
	case "", models.ClientAlive, models.ClientDeceased:
	default:
		return q, fmt.Errorf("client_status %q: %w", q.ClientStatus, apperr.ErrInvalidArgument)
	}
	switch q.Order {
	case models.OrderRelevance, models.OrderName, models.OrderRecent:
	default:
		return q, fmt.Errorf("order %q: %w", q.Order, apperr.ErrInvalidArgument)
	}
	if q.Limit < 0 || q.Offset < 0 {
		return q, fmt.Errorf("negative limit or offset: %w", apperr.ErrInvalidArgument)
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return q, nil
}

// contactSelect is the rendered form of a ContactQuery: an optional CTE, the
// filtered FROM/WHERE tail, and the ORDER BY clause.
type contactSelect struct {
	with     string
	withArgs []any
	from     string
	args     []any
	rank     string
	order    string
}

// buildSelect turns a normalized query into SQL. Vector matches and substring
// matches are unioned through a LEFT JOIN so each contact appears once.
func buildSelect(q models.ContactQuery) contactSelect {
	var (
		s     contactSelect
		conds []string
	)
	s.rank = "0.0"
	s.from = "FROM contacts c"

	if q.Text != "" {
		cte, cteArgs := vectorMatches(q.Text)
		s.with = "WITH v AS (" + cte + ") "
		s.withArgs = cteArgs
		s.from += " LEFT JOIN v ON v.id = c.id"
		s.rank = "COALESCE(v.score, 0.0)"

		needle := strings.ToLower(q.Text)
		alts := []string{"v.id IS NOT NULL"}
		for _, col := range substringColumns {
			alts = append(alts, "instr(fold(COALESCE("+col+", '')), ?) > 0")
			s.args = append(s.args, needle)
		}
		conds = append(conds, "("+strings.Join(alts, " OR ")+")")
	}
	if q.FileStatus != "" {
		conds = append(conds, "c.file_status = ?")
		s.args = append(s.args, q.FileStatus)
	}
	if q.ClientStatus != "" {
		conds = append(conds, "c.client_status = ?")
		s.args = append(s.args, q.ClientStatus)
	}
	if len(conds) > 0 {
		s.from += " WHERE " + strings.Join(conds, " AND ")
	}

	switch {
	case q.Order == models.OrderRecent:
		s.order = "c.updated_at DESC, c.id DESC"
	case q.Order == models.OrderRelevance && q.Text != "":
		s.order = "hit_rank DESC, " + nameOrder
	default:
		s.order = nameOrder
	}
	return s
}

// Search runs q and returns one page of ranked contacts plus the total match count.
func (db *DB) Search(ctx context.Context, q models.ContactQuery) (*models.SearchPage, error) {
	q, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}
	s := buildSelect(q)

	var total int
	countArgs := append(append([]any{}, s.withArgs...), s.args...)
	if err := db.conn.QueryRowContext(ctx, s.with+"SELECT COUNT(*) "+s.from, countArgs...).Scan(&total); err != nil {
		return nil, classify("search count", err)
	}

	pageArgs := append(countArgs, q.Limit, q.Offset)
	rows, err := db.conn.QueryContext(ctx,
		s.with+"SELECT "+contactColumns+", "+s.rank+" AS hit_rank "+s.from+
			" ORDER BY "+s.order+" LIMIT ? OFFSET ?", pageArgs...)
	if err != nil {
		return nil, classify("search", err)
	}
	defer rows.Close()

	hits := []models.SearchHit{}
	for rows.Next() {
		var rank float64
		c, err := scanContact(rows, &rank)
		if err != nil {
			return nil, classify("search scan", err)
		}
		hits = append(hits, models.SearchHit{Contact: c, Rank: rank})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("search", err)
	}
	rows.Close()

	ptrs := make([]*models.Contact, len(hits))
	for i := range hits {
		ptrs[i] = &hits[i].Contact
	}
	if err := attachLinks(ctx, db.conn, ptrs); err != nil {
		return nil, classify("search links", err)
	}

	return &models.SearchPage{Hits: hits, Total: total, Limit: q.Limit, Offset: q.Offset}, nil
}
