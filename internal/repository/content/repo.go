// Package content reads content items from the Postgres content store.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kailas-cloud/searchbridge/internal/domain"
	domcontent "github.com/kailas-cloud/searchbridge/internal/domain/content"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
)

// querier is the subset of pgxpool.Pool the repository needs (ISP).
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const itemColumns = `i.id, i.site_id, i.category, i.subtype, i.enabled, i.visible,
		i.post_date, i.expiry_date, i.fields,
		ARRAY(SELECT r.target_id FROM content_relations r WHERE r.source_id = i.id ORDER BY r.target_id) AS related_ids`

// Repo implements the content source on content_items and content_relations.
type Repo struct {
	db  querier
	now func() time.Time
}

// New creates a content repository.
func New(db querier) *Repo {
	return &Repo{db: db, now: time.Now}
}

// where accumulates SQL conditions and positional args.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) scope(s index.Scope) {
	if len(s.SiteIDs) > 0 {
		w.add("i.site_id = ANY($%d)", s.SiteIDs)
	}
	if len(s.Categories) > 0 {
		w.add("i.category = ANY($%d)", s.Categories)
	}
	if len(s.Subtypes) > 0 {
		w.add("i.subtype = ANY($%d)", s.Subtypes)
	}
}

// live mirrors content.Item.IsLive.
func (w *where) live(now time.Time) {
	w.conds = append(w.conds, "i.enabled", "i.visible")
	w.args = append(w.args, now)
	n := len(w.args)
	w.conds = append(w.conds,
		fmt.Sprintf("(i.post_date IS NULL OR i.post_date <= $%d)", n),
		fmt.Sprintf("(i.expiry_date IS NULL OR i.expiry_date > $%d)", n),
	)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// bulk builds the filter shared by bulk reads: scope plus liveness.
func (r *Repo) bulk(scope index.Scope) *where {
	w := &where{}
	w.scope(scope)
	w.live(r.now().UTC())
	return w
}

// Count returns the number of live items in scope.
func (r *Repo) Count(ctx context.Context, scope index.Scope) (int, error) {
	w := r.bulk(scope)
	var n int
	if err := r.db.QueryRow(ctx, "SELECT count(*) FROM content_items i"+w.String(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count content: %w", err)
	}
	return n, nil
}

// List returns a page of live items in scope ordered by id.
func (r *Repo) List(ctx context.Context, scope index.Scope, offset, limit int) ([]domcontent.Item, error) {
	w := r.bulk(scope)
	w.args = append(w.args, limit, offset)
	query := fmt.Sprintf("SELECT %s FROM content_items i%s ORDER BY i.id LIMIT $%d OFFSET $%d",
		itemColumns, w.String(), len(w.args)-1, len(w.args))

	rows, err := r.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	return collectItems(rows)
}

// IDs returns the ids of every live item in scope.
func (r *Repo) IDs(ctx context.Context, scope index.Scope) ([]string, error) {
	w := r.bulk(scope)
	rows, err := r.db.Query(ctx, "SELECT i.id FROM content_items i"+w.String()+" ORDER BY i.id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("list content ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan content ids: %w", err)
	}
	return ids, nil
}

// Get returns one item in scope regardless of liveness. site narrows the
// lookup when set. Missing items yield domain.ErrNotFound.
func (r *Repo) Get(ctx context.Context, scope index.Scope, id, site string) (domcontent.Item, error) {
	w := &where{}
	w.add("i.id = $%d", id)
	if site != "" {
		w.add("i.site_id = $%d", site)
	}
	w.scope(scope)

	row := r.db.QueryRow(ctx, "SELECT "+itemColumns+" FROM content_items i"+w.String(), w.args...)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domcontent.Item{}, fmt.Errorf("content %s: %w", id, domain.ErrNotFound)
		}
		return domcontent.Item{}, fmt.Errorf("get content %s: %w", id, err)
	}
	return item, nil
}

// RelatedTo returns the items that reference id.
func (r *Repo) RelatedTo(ctx context.Context, id string) ([]domcontent.Item, error) {
	query := "SELECT " + itemColumns + ` FROM content_items i
		JOIN content_relations rel ON rel.source_id = i.id
		WHERE rel.target_id = $1 AND i.id <> $1
		ORDER BY i.id`
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("related content %s: %w", id, err)
	}
	return collectItems(rows)
}

func collectItems(rows pgx.Rows) ([]domcontent.Item, error) {
	defer rows.Close()
	var items []domcontent.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content: %w", err)
	}
	return items, nil
}

func scanItem(row pgx.Row) (domcontent.Item, error) {
	var (
		item       domcontent.Item
		fieldsJSON []byte
	)
	err := row.Scan(
		&item.ID,
		&item.SiteID,
		&item.Category,
		&item.Subtype,
		&item.Enabled,
		&item.Visible,
		&item.PostDate,
		&item.ExpiryDate,
		&fieldsJSON,
		&item.RelatedIDs,
	)
	if err != nil {
		return domcontent.Item{}, fmt.Errorf("scan content: %w", err)
	}
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &item.Fields); err != nil {
			return domcontent.Item{}, fmt.Errorf("unmarshal fields of %s: %w", item.ID, err)
		}
	}
	if item.Fields == nil {
		item.Fields = map[string]domcontent.FieldValue{}
	}
	return item, nil
}
