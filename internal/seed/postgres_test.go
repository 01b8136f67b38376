package seed

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// topicRow is one matrix_topics row as the driver would hand it back.
type topicRow struct {
	topic   string
	columns []byte
	rows    []byte
	summary string
	updated time.Time
}

// tableDB keeps matrix_topics in memory. It understands the statements
// PostgresStore issues: the schema, the upsert, the lookup by id and the
// listing.
type tableDB struct {
	table   map[string]topicRow
	execs   []string
	failAll error
	clock   time.Time
}

func newTableDB() *tableDB {
	return &tableDB{table: map[string]topicRow{}, clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (db *tableDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execs = append(db.execs, sql)
	if db.failAll != nil {
		return pgconn.CommandTag{}, db.failAll
	}
	if strings.Contains(sql, "INSERT INTO matrix_topics") {
		db.clock = db.clock.Add(time.Minute)
		db.table[args[0].(string)] = topicRow{
			topic:   args[1].(string),
			columns: args[2].([]byte),
			rows:    args[3].([]byte),
			summary: args[4].(string),
			updated: db.clock,
		}
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

// scanFunc adapts a closure to pgx.Row.
type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

func (db *tableDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	return scanFunc(func(dest ...any) error {
		if db.failAll != nil {
			return db.failAll
		}
		r, ok := db.table[args[0].(string)]
		if !ok {
			return pgx.ErrNoRows
		}
		*dest[0].(*string) = r.topic
		*dest[1].(*[]byte) = r.columns
		*dest[2].(*[]byte) = r.rows
		*dest[3].(*string) = r.summary
		return nil
	})
}

func (db *tableDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	if db.failAll != nil {
		return nil, db.failAll
	}
	var list []TopicSummary
	for id, r := range db.table {
		list = append(list, TopicSummary{ID: id, Topic: r.topic, UpdatedAt: r.updated})
	}
	slices.SortFunc(list, func(a, b TopicSummary) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	return &summaryRows{list: list, pos: -1}, nil
}

// summaryRows serves a listing. Methods List never calls fall through to the
// nil embedded interface.
type summaryRows struct {
	pgx.Rows
	list   []TopicSummary
	pos    int
	closed bool
}

func (r *summaryRows) Next() bool { r.pos++; return r.pos < len(r.list) }
func (r *summaryRows) Err() error { return nil }
func (r *summaryRows) Close()     { r.closed = true }

func (r *summaryRows) Scan(dest ...any) error {
	t := r.list[r.pos]
	*dest[0].(*string) = t.ID
	*dest[1].(*string) = t.Topic
	*dest[2].(*time.Time) = t.UpdatedAt
	return nil
}

func TestPostgresStoreMigrate(t *testing.T) {
	db := newTableDB()
	if err := NewPostgresStore(db, "").Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(db.execs) != 1 || db.execs[0] != Schema {
		t.Errorf("executed %q, want the schema", db.execs)
	}

	db.failAll = errors.New("permission denied for schema public")
	err := NewPostgresStore(db, "").Migrate(context.Background())
	if err == nil || !strings.Contains(err.Error(), "seed: migrate") || !errors.Is(err, db.failAll) {
		t.Errorf("Migrate error = %v", err)
	}
}

func TestPostgresStorePutThenLoad(t *testing.T) {
	db := newTableDB()
	store := NewPostgresStore(db, "genetics")

	m := Matrix{
		Topic:   "Genetics",
		Columns: []string{"Term", "Definition"},
		Rows:    []Row{{ID: "a", Cells: []string{"Allele", "<b>Variant</b> of a gene"}}},
		Summary: "<p>Inheritance basics.</p>",
	}
	if err := store.Put(context.Background(), "genetics", m); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(context.Background(), "genetics")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Topic != m.Topic || !slices.Equal(got.Columns, m.Columns) || len(got.Rows) != 1 {
		t.Errorf("Get = %+v", got)
	}

	s, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Topic != "Genetics" {
		t.Errorf("Topic = %q", s.Topic)
	}
	if len(s.KeyPoints) != 1 || s.KeyPoints[0] != "Allele / Variant of a gene" {
		t.Errorf("KeyPoints = %q", s.KeyPoints)
	}
}

func TestPostgresStorePutStoresEmptyArrays(t *testing.T) {
	db := newTableDB()
	if err := NewPostgresStore(db, "").Put(context.Background(), "optics", Matrix{Topic: "Optics"}); err != nil {
		t.Fatal(err)
	}
	r := db.table["optics"]
	if string(r.columns) != "[]" || string(r.rows) != "[]" {
		t.Errorf("stored columns=%s rows=%s, want empty arrays", r.columns, r.rows)
	}
	if !strings.Contains(db.execs[0], "ON CONFLICT (id) DO UPDATE") {
		t.Error("Put is not an upsert")
	}
}

func TestPostgresStorePutRejects(t *testing.T) {
	store := NewPostgresStore(newTableDB(), "")
	for name, tc := range map[string]struct {
		id string
		m  Matrix
	}{
		"empty id":    {"", Matrix{Topic: "x"}},
		"empty topic": {"id", Matrix{}},
	} {
		if err := store.Put(context.Background(), tc.id, tc.m); err == nil {
			t.Errorf("%s: Put accepted", name)
		}
	}
}

func TestPostgresStoreGetErrors(t *testing.T) {
	db := newTableDB()
	store := NewPostgresStore(db, "missing")

	if _, err := store.Load(context.Background()); !errors.Is(err, ErrTopicNotFound) {
		t.Errorf("Load error = %v, want ErrTopicNotFound", err)
	}

	db.table["broken"] = topicRow{topic: "T", columns: []byte(`[]`), rows: []byte(`{not json`)}
	if _, err := store.Get(context.Background(), "broken"); err == nil || errors.Is(err, ErrTopicNotFound) {
		t.Errorf("Get(broken) error = %v, want a decode error", err)
	}

	db.failAll = errors.New("connection refused")
	if _, err := store.Get(context.Background(), "broken"); !errors.Is(err, db.failAll) || errors.Is(err, ErrTopicNotFound) {
		t.Errorf("Get with dead db error = %v", err)
	}
}

func TestPostgresStoreList(t *testing.T) {
	db := newTableDB()
	store := NewPostgresStore(db, "")
	for _, id := range []string{"older", "newer"} {
		if err := store.Put(context.Background(), id, Matrix{Topic: strings.ToUpper(id)}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ID != "newer" || got[1].Topic != "OLDER" {
		t.Errorf("List = %+v", got)
	}

	db.failAll = errors.New("timeout")
	if _, err := store.List(context.Background()); err == nil {
		t.Error("List succeeded against a failing db")
	}
}
