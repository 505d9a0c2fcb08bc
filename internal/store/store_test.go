package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "dossier-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newContact(file, first, last string, links ...int64) *models.Contact {
	slug := strings.ToLower(file)
	return &models.Contact{
		FileNumber:    file,
		FirstName:     first,
		LastName:      last,
		Email:         slug + "@example.com",
		PhoneNumber:   "+1555" + slug,
		Address:       "1 Main Street",
		FileStatus:    models.FileOpen,
		ClientStatus:  models.ClientAlive,
		LinkedClients: links,
	}
}

func mustCreate(t *testing.T, db *DB, c *models.Contact) *models.Contact {
	t.Helper()
	require.NoError(t, db.CreateContact(context.Background(), c))
	return c
}

// refreshAll drains the vector outbox synchronously.
func refreshAll(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	for {
		tasks, err := db.ClaimVectorTasks(ctx, "test", 50, time.Minute)
		require.NoError(t, err)
		if len(tasks) == 0 {
			return
		}
		for _, task := range tasks {
			require.NoError(t, db.RefreshVector(ctx, task))
		}
	}
}

func fieldError(t *testing.T, err error, field string) string {
	t.Helper()
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	msgs := ve.FieldMessages()
	require.Contains(t, msgs, field)
	return msgs[field]
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"contacts", "contact_links", "vector_tasks", "inbox_files"} {
		var n int
		err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&n)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	db, err := Open(path)
	require.NoError(t, err)
	mustCreate(t, db, newContact("F100", "Ann", "Able"))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.ContactByFileNumber(context.Background(), "F100")
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.FirstName)
}

func TestCreateAndGet(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	company := "Able & Co"
	b := mustCreate(t, db, newContact("F200", "Ben", "Baker"))
	a := newContact("F100", "Ann", "Able", b.ID, b.ID)
	a.Company = &company
	mustCreate(t, db, a)

	assert.NotZero(t, a.ID)
	assert.False(t, a.CreatedAt.IsZero())
	assert.Equal(t, []int64{b.ID}, a.LinkedClients, "duplicate links collapse")

	got, err := db.GetContact(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.FileNumber, got.FileNumber)
	assert.Equal(t, "Able & Co", *got.Company)
	assert.Nil(t, got.MiddleName)
	assert.Equal(t, []int64{b.ID}, got.LinkedClients)
	assert.True(t, got.CreatedAt.Equal(a.CreatedAt))

	_, err = db.GetContact(ctx, 9999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreate_Duplicates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustCreate(t, db, newContact("F100", "Ann", "Able"))

	dup := newContact("F200", "Ben", "Baker")
	dup.Email = "f100@example.com"
	err := db.CreateContact(ctx, dup)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "already exists", fieldError(t, err, "email"))

	dup = newContact("F100", "Cat", "Cole")
	err = db.CreateContact(ctx, dup)
	assert.Equal(t, "already exists", fieldError(t, err, "file_number"))
}

func TestCreate_UniqueConstraintPath(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustCreate(t, db, newContact("F100", "Ann", "Able"))

	// Bypass the pre-check to exercise constraint classification.
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO contacts (file_number, first_name, last_name, email, phone_number, address, created_at, updated_at)
		VALUES ('F999', 'X', 'Y', 'f100@example.com', '+1999', 'addr', ?, ?)
	`, db.now(), db.now())
	require.Error(t, err)
	classified := classify("insert", err)
	assert.Equal(t, "already exists", fieldError(t, classified, "email"))
}

func TestCreate_ConcurrentSameEmail(t *testing.T) {
	db := testDB(t)
	const n = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newContact("F"+string(rune('A'+i)), "Ann", "Able")
			c.Email = "shared@example.com"
			err := db.CreateContact(context.Background(), c)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperr.ErrValidation):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, dupes)
}

func TestCreate_UnknownLink(t *testing.T) {
	db := testDB(t)
	err := db.CreateContact(context.Background(), newContact("F100", "Ann", "Able", 42))
	assert.Contains(t, fieldError(t, err, "linked_clients"), "does not exist")

	var n int
	require.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM contacts`).Scan(&n))
	assert.Zero(t, n, "failed create must not persist")
}

func TestUpdate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mustCreate(t, db, newContact("F100", "Ann", "Able"))
	b := mustCreate(t, db, newContact("F200", "Ben", "Baker"))
	c := mustCreate(t, db, newContact("F300", "Cat", "Cole"))

	got, err := db.UpdateContact(ctx, a.ID, func(x *models.Contact) error {
		x.FirstName = "Anna"
		x.LinkedClients = []int64{c.ID, b.ID}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Anna", got.FirstName)
	assert.Equal(t, []int64{b.ID, c.ID}, got.LinkedClients)
	assert.False(t, got.UpdatedAt.Before(a.UpdatedAt))

	got, err = db.UpdateContact(ctx, a.ID, func(x *models.Contact) error {
		x.LinkedClients = []int64{c.ID}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{c.ID}, got.LinkedClients, "links are replaced, not merged")

	_, err = db.UpdateContact(ctx, 9999, func(*models.Contact) error { return nil })
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdate_SelfLink(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mustCreate(t, db, newContact("F100", "Ann", "Able"))

	_, err := db.UpdateContact(ctx, a.ID, func(x *models.Contact) error {
		x.LinkedClients = []int64{a.ID}
		return nil
	})
	assert.Equal(t, "cannot link to self", fieldError(t, err, "linked_clients"))

	got, err := db.GetContact(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, got.LinkedClients)
}

func TestUpdate_MutateError(t *testing.T) {
	db := testDB(t)
	a := mustCreate(t, db, newContact("F100", "Ann", "Able"))
	_, err := db.UpdateContact(context.Background(), a.ID, func(*models.Contact) error {
		return apperr.NewValidation("first_name", "cannot be blank")
	})
	assert.Equal(t, "cannot be blank", fieldError(t, err, "first_name"))
}

func TestDelete_CascadesLinks(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	b := mustCreate(t, db, newContact("F200", "Ben", "Baker"))
	c := mustCreate(t, db, newContact("F300", "Cat", "Cole"))
	a := mustCreate(t, db, newContact("F100", "Ann", "Able", b.ID, c.ID))

	require.NoError(t, db.DeleteContact(ctx, b.ID))

	got, err := db.GetContact(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{c.ID}, got.LinkedClients)

	_, err = db.Incoming(ctx, b.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.ErrorIs(t, db.DeleteContact(ctx, b.ID), apperr.ErrNotFound)
}

func TestGraph_Directional(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	b := mustCreate(t, db, newContact("F200", "Ben", "Baker"))
	c := mustCreate(t, db, newContact("F300", "Cat", "Cole"))
	a := mustCreate(t, db, newContact("F100", "Ann", "Able", b.ID, c.ID))
	d := mustCreate(t, db, newContact("F400", "Dan", "Dunn", c.ID))

	out, err := db.Outgoing(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"F200", "F300"}, fileNumbers(out))

	in, err := db.Incoming(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"F100", "F400"}, fileNumbers(in))

	out, err = db.Outgoing(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, out, "links are not symmetric")

	in, err = db.Incoming(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, in)

	_, err = db.Outgoing(ctx, 9999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func fileNumbers(cs []models.Contact) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.FileNumber
	}
	return out
}

func hitFileNumbers(p *models.SearchPage) []string {
	out := make([]string, len(p.Hits))
	for i, h := range p.Hits {
		out[i] = h.FileNumber
	}
	return out
}

func seedSearch(t *testing.T, db *DB) {
	t.Helper()
	company := "Smith & Sons"
	jane := newContact("F100", "Jane", "Smith")
	jane.Company = &company
	mustCreate(t, db, jane)
	mustCreate(t, db, newContact("F200", "John", "Smith"))
	alice := newContact("F300", "Alice", "Jones")
	alice.FileStatus = models.FileClosed
	mustCreate(t, db, alice)
}

func TestSearch_EmptyTextListsAllByName(t *testing.T) {
	db := testDB(t)
	seedSearch(t, db)

	page, err := db.Search(context.Background(), models.ContactQuery{Text: "   "})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, DefaultLimit, page.Limit)
	assert.Equal(t, []string{"F300", "F100", "F200"}, hitFileNumbers(page))
}

func TestSearch_SubstringBeforeVectorRefresh(t *testing.T) {
	db := testDB(t)
	seedSearch(t, db)

	page, err := db.Search(context.Background(), models.ContactQuery{Text: "f100"})
	require.NoError(t, err)
	assert.Equal(t, []string{"F100"}, hitFileNumbers(page))
	assert.Zero(t, page.Hits[0].Rank)
}

func TestSearch_RankedUnion(t *testing.T) {
	db := testDB(t)
	seedSearch(t, db)
	refreshAll(t, db)
	ctx := context.Background()

	// Both lexemes are in the vector but no single field contains the phrase.
	page, err := db.Search(ctx, models.ContactQuery{Text: "smith jane"})
	require.NoError(t, err)
	require.Equal(t, []string{"F100"}, hitFileNumbers(page))
	assert.Greater(t, page.Hits[0].Rank, 0.0)

	page, err = db.Search(ctx, models.ContactQuery{Text: "SMITH"})
	require.NoError(t, err)
	require.Len(t, page.Hits, 2)
	for i := 1; i < len(page.Hits); i++ {
		assert.GreaterOrEqual(t, page.Hits[i-1].Rank, page.Hits[i].Rank)
	}

	// Partial word: substring only, rank 0, name order.
	page, err = db.Search(ctx, models.ContactQuery{Text: "mith"})
	require.NoError(t, err)
	assert.Equal(t, []string{"F100", "F200"}, hitFileNumbers(page))
	for _, h := range page.Hits {
		assert.Zero(t, h.Rank)
	}

	page, err = db.Search(ctx, models.ContactQuery{Text: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, page.Hits)
	assert.Zero(t, page.Total)
}

func TestSearch_FiltersAndPaging(t *testing.T) {
	db := testDB(t)
	seedSearch(t, db)
	ctx := context.Background()

	page, err := db.Search(ctx, models.ContactQuery{FileStatus: models.FileClosed})
	require.NoError(t, err)
	assert.Equal(t, []string{"F300"}, hitFileNumbers(page))

	page, err = db.Search(ctx, models.ContactQuery{Text: "main street", FileStatus: models.FileOpen, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, []string{"F200"}, hitFileNumbers(page))

	page, err = db.Search(ctx, models.ContactQuery{Limit: 10_000})
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, page.Limit)

	page, err = db.Search(ctx, models.ContactQuery{Order: models.OrderRecent})
	require.NoError(t, err)
	assert.Equal(t, []string{"F300", "F200", "F100"}, hitFileNumbers(page))
}

func TestSearch_InvalidArguments(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for _, q := range []models.ContactQuery{
		{Limit: -1},
		{Offset: -5},
		{FileStatus: "PENDING"},
		{ClientStatus: "UNKNOWN"},
		{Order: "random"},
	} {
		_, err := db.Search(ctx, q)
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument, "%+v", q)
	}
}

func TestReport(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	b := mustCreate(t, db, newContact("F200", "Ben", "Baker"))
	c := mustCreate(t, db, newContact("F300", "Cat", "Cole"))
	mustCreate(t, db, newContact("F100", "Ann", "Able", b.ID, c.ID))
	mustCreate(t, db, newContact("F400", "Dan", "Dunn", c.ID))

	r, err := db.Report(ctx, 0)
	require.NoError(t, err)

	require.Len(t, r.TopFiles, 2)
	assert.Equal(t, "F100", r.TopFiles[0].Contact.FileNumber)
	assert.Equal(t, 2, r.TopFiles[0].Degree)
	assert.Equal(t, "F400", r.TopFiles[1].Contact.FileNumber)
	assert.Equal(t, 1, r.TopFiles[1].Degree)

	require.Len(t, r.TopClients, 2)
	assert.Equal(t, "F300", r.TopClients[0].Contact.FileNumber)
	assert.Equal(t, 2, r.TopClients[0].Degree)
	assert.Equal(t, "F200", r.TopClients[1].Contact.FileNumber)

	assert.Equal(t, models.LinkStats{Total: 4, Linked: 2, Unlinked: 2}, r.Stats)
	assert.Equal(t, []int64{b.ID, c.ID}, r.TopFiles[0].Contact.LinkedClients)
}

func TestReport_Empty(t *testing.T) {
	db := testDB(t)
	r, err := db.Report(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, r.TopFiles)
	assert.Empty(t, r.TopClients)
	assert.Equal(t, models.LinkStats{}, r.Stats)
}

func TestReport_TopNAndTies(t *testing.T) {
	db := testDB(t)
	target := mustCreate(t, db, newContact("F900", "Zed", "Zulu"))
	mustCreate(t, db, newContact("F300", "Cat", "Cole", target.ID))
	mustCreate(t, db, newContact("F100", "Ann", "Able", target.ID))
	mustCreate(t, db, newContact("F200", "Ben", "Baker", target.ID))

	r, err := db.Report(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, r.TopFiles, 2)
	assert.Equal(t, "F100", r.TopFiles[0].Contact.FileNumber)
	assert.Equal(t, "F200", r.TopFiles[1].Contact.FileNumber)
	assert.Equal(t, r.Stats.Total, r.Stats.Linked+r.Stats.Unlinked)
}

func TestReport_ConsistentUnderConcurrentWrites(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	b := mustCreate(t, db, newContact("F200", "Ben", "Baker"))
	a := mustCreate(t, db, newContact("F100", "Ann", "Able"))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for linked := true; ; linked = !linked {
			select {
			case <-stop:
				return
			default:
			}
			_, err := db.UpdateContact(ctx, a.ID, func(c *models.Contact) error {
				c.LinkedClients = nil
				if linked {
					c.LinkedClients = []int64{b.ID}
				}
				return nil
			})
			if err != nil {
				t.Errorf("toggle links: %v", err)
				return
			}
		}
	}()
	defer func() {
		close(stop)
		wg.Wait()
	}()

	for i := 0; i < 500; i++ {
		r, err := db.Report(ctx, 5)
		require.NoError(t, err)
		require.Equal(t, r.Stats.Linked, len(r.TopFiles), "report %d: %+v", i, r)
		require.Equal(t, len(r.TopFiles), len(r.TopClients), "report %d: %+v", i, r)
		if len(r.TopFiles) == 1 {
			require.Equal(t, []int64{b.ID}, r.TopFiles[0].Contact.LinkedClients, "report %d", i)
		}
	}
}

func TestContactsByIDs_LargeSet(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := mustCreate(t, db, newContact("F100", "Ann", "Able"))
	b := mustCreate(t, db, newContact("F200", "Ben", "Baker"))

	// Far more ids than the engine accepts as bound variables.
	ids := make([]int64, 0, 40000)
	for id := int64(1); id <= 40000; id++ {
		ids = append(ids, id)
	}
	got, err := db.ContactsByIDs(ctx, ids)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, b.ID, got[1].ID)
}

func TestImportChecksum(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	sum, err := db.ImportChecksum(ctx, "cards.yaml")
	require.NoError(t, err)
	assert.Empty(t, sum)

	require.NoError(t, db.RecordImport(ctx, "cards.yaml", "abc"))
	require.NoError(t, db.RecordImport(ctx, "cards.yaml", "def"))
	sum, err = db.ImportChecksum(ctx, "cards.yaml")
	require.NoError(t, err)
	assert.Equal(t, "def", sum)

	require.NoError(t, db.ForgetImport(ctx, "cards.yaml"))
	sum, err = db.ImportChecksum(ctx, "cards.yaml")
	require.NoError(t, err)
	assert.Empty(t, sum)
}
