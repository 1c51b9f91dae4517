package content

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/kailas-cloud/searchbridge/internal/domain"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupRepo(t *testing.T) (*Repo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mock.Close)
	repo := New(mock)
	repo.now = func() time.Time { return now }
	return repo, mock
}

func itemColumnNames() []string {
	return []string{
		"id", "site_id", "category", "subtype", "enabled", "visible",
		"post_date", "expiry_date", "fields", "related_ids",
	}
}

func itemRow(rows *pgxmock.Rows, id string) *pgxmock.Rows {
	posted := now.Add(-time.Hour)
	return rows.AddRow(
		id, "1", "blog", "article", true, true,
		&posted, (*time.Time)(nil),
		[]byte(`{"title":{"kind":"plaintext","value":"Hello"},"price":{"kind":"money","value":9.5}}`),
		[]string{"7"},
	)
}

func verify(t *testing.T, mock pgxmock.PgxPoolIface) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCount_ScopeAndLiveness(t *testing.T) {
	repo, mock := setupRepo(t)
	scope := index.Scope{SiteIDs: []string{"1"}, Categories: []string{"blog"}}

	mock.ExpectQuery(`SELECT count\(\*\) FROM content_items i WHERE i.site_id = ANY\(\$1\) AND i.category = ANY\(\$2\) AND i.enabled AND i.visible`).
		WithArgs([]string{"1"}, []string{"blog"}, now).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(12))

	n, err := repo.Count(context.Background(), scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 12 {
		t.Errorf("expected 12, got %d", n)
	}
	verify(t, mock)
}

func TestCount_Error(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectQuery("SELECT count").WithArgs(now).WillReturnError(errors.New("connection reset"))

	if _, err := repo.Count(context.Background(), index.Scope{}); err == nil {
		t.Fatal("expected error")
	}
	verify(t, mock)
}

func TestList_PagesOrderedByID(t *testing.T) {
	repo, mock := setupRepo(t)

	rows := pgxmock.NewRows(itemColumnNames())
	itemRow(rows, "10")
	itemRow(rows, "11")
	mock.ExpectQuery(`SELECT .+ FROM content_items i WHERE i.subtype = ANY\(\$1\) .+ ORDER BY i.id LIMIT \$3 OFFSET \$4`).
		WithArgs([]string{"article"}, now, 2, 20).
		WillReturnRows(rows)

	items, err := repo.List(context.Background(), index.Scope{Subtypes: []string{"article"}}, 20, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[0].ID != "10" || items[1].ID != "11" {
		t.Fatalf("unexpected items: %+v", items)
	}
	item := items[0]
	if fv, ok := item.Field("title"); !ok || fv.Kind != "plaintext" || fv.Value != "Hello" {
		t.Errorf("title field = %+v", fv)
	}
	if fv, _ := item.Field("price"); fv.Value != 9.5 {
		t.Errorf("price field = %+v", fv)
	}
	if len(item.RelatedIDs) != 1 || item.RelatedIDs[0] != "7" {
		t.Errorf("related ids = %v", item.RelatedIDs)
	}
	if !item.IsLive(now) {
		t.Error("expected live item")
	}
	verify(t, mock)
}

func TestIDs(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectQuery(`SELECT i.id FROM content_items i WHERE .+ ORDER BY i.id`).
		WithArgs(now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("1").AddRow("2"))

	ids, err := repo.IDs(context.Background(), index.Scope{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[1] != "2" {
		t.Fatalf("unexpected ids: %v", ids)
	}
	verify(t, mock)
}

func TestGet_WithSite(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM content_items i WHERE i.id = \$1 AND i.site_id = \$2 AND i.category = ANY\(\$3\)`).
		WithArgs("42", "1", []string{"blog"}).
		WillReturnRows(itemRow(pgxmock.NewRows(itemColumnNames()), "42"))

	item, err := repo.Get(context.Background(), index.Scope{Categories: []string{"blog"}}, "42", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.ID != "42" || item.SiteID != "1" || item.Category != "blog" {
		t.Fatalf("unexpected item: %+v", item)
	}
	verify(t, mock)
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM content_items i WHERE i.id = \$1`).
		WithArgs("404").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), index.Scope{}, "404", "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	verify(t, mock)
}

func TestGet_BadFieldsJSON(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM content_items i WHERE i.id = \$1`).
		WithArgs("1").
		WillReturnRows(pgxmock.NewRows(itemColumnNames()).AddRow(
			"1", "1", "blog", "article", true, true,
			(*time.Time)(nil), (*time.Time)(nil), []byte(`{broken`), []string{},
		))

	if _, err := repo.Get(context.Background(), index.Scope{}, "1", ""); err == nil {
		t.Fatal("expected unmarshal error")
	}
	verify(t, mock)
}

func TestRelatedTo(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectQuery(`JOIN content_relations rel ON rel.source_id = i.id\s+WHERE rel.target_id = \$1`).
		WithArgs("7").
		WillReturnRows(itemRow(pgxmock.NewRows(itemColumnNames()), "10"))

	items, err := repo.RelatedTo(context.Background(), "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].ID != "10" {
		t.Fatalf("unexpected items: %+v", items)
	}
	verify(t, mock)
}

func TestRelatedTo_QueryError(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectQuery("JOIN content_relations").WithArgs("7").WillReturnError(errors.New("timeout"))

	if _, err := repo.RelatedTo(context.Background(), "7"); err == nil {
		t.Fatal("expected error")
	}
	verify(t, mock)
}
