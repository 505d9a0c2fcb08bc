package contactservice

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/models"
	"github.com/starford/dossier/internal/testutil"
)

func fields(t *testing.T, err error) map[string]string {
	t.Helper()
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	return ve.FieldMessages()
}

func strPtr(s string) *string { return &s }

func TestCreate_NormalizesAndRoundTrips(t *testing.T) {
	svc := NewService(testutil.TestDB(t))
	ctx := context.Background()

	in := testutil.Input("F100", "Ann", "Able")
	in.Email = "  Ann.Able@Example.COM "
	in.PhoneNumber = "+1 (555) 010-0000"
	in.Company = strPtr("   ")

	c, err := svc.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "ann.able@example.com", c.Email)
	assert.Equal(t, "+15550100000", c.PhoneNumber)
	assert.Nil(t, c.Company)
	assert.Equal(t, models.FileOpen, c.FileStatus)
	assert.Equal(t, models.ClientAlive, c.ClientStatus)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Email, got.Email)
	assert.Equal(t, c.PhoneNumber, got.PhoneNumber)
	assert.Equal(t, c.LinkedClients, got.LinkedClients)
	assert.True(t, c.UpdatedAt.Equal(got.UpdatedAt))
}

func TestCreate_Validation(t *testing.T) {
	svc := NewService(testutil.TestDB(t))
	ctx := context.Background()

	in := testutil.Input("", "A", "Able")
	in.Email = "not-an-email"
	in.PhoneNumber = "call me"
	in.FileStatus = "PENDING"

	_, err := svc.Create(ctx, in)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	f := fields(t, err)
	assert.Contains(t, f, "file_number")
	assert.Contains(t, f, "first_name")
	assert.Contains(t, f, "email")
	assert.Contains(t, f, "phone_number")
	assert.Contains(t, f, "file_status")
	assert.NotContains(t, f, "last_name")
}

func TestCreate_DuplicateAfterNormalization(t *testing.T) {
	svc := NewService(testutil.TestDB(t))
	ctx := context.Background()

	_, err := svc.Create(ctx, testutil.Input("F100", "Ann", "Able"))
	require.NoError(t, err)

	in := testutil.Input("F200", "Ben", "Baker")
	in.PhoneNumber = "+1 555-100"
	_, err = svc.Create(ctx, in)
	assert.Equal(t, "already exists", fields(t, err)["phone_number"])

	in = testutil.Input("F300", "Cat", "Cole")
	in.Email = "F100@EXAMPLE.com"
	_, err = svc.Create(ctx, in)
	assert.Equal(t, "already exists", fields(t, err)["email"])
}

func TestCreate_ConcurrentSameEmail(t *testing.T) {
	svc := NewService(testutil.TestDB(t))
	const n = 10

	var (
		wg      sync.WaitGroup
		created atomic.Int32
		invalid atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := testutil.Input("F"+string(rune('0'+i))+"00", "Ann", "Able")
			in.Email = "same@example.com"
			_, err := svc.Create(context.Background(), in)
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, apperr.ErrValidation):
				invalid.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, created.Load())
	assert.EqualValues(t, n-1, invalid.Load())
}

func TestUpdate_SelfLinkAlwaysFails(t *testing.T) {
	svc := NewService(testutil.TestDB(t))
	ctx := context.Background()

	var ids []int64
	for _, fn := range []string{"F100", "F200", "F300"} {
		c, err := svc.Create(ctx, testutil.Input(fn, "Ann", "Able"))
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	for _, id := range ids {
		_, err := svc.Patch(ctx, id, models.ContactPatch{LinkedClients: &[]int64{id}})
		assert.Equal(t, "cannot link to self", fields(t, err)["linked_clients"], "id %d", id)
	}
}

func TestUpdate_FullVersusPatch(t *testing.T) {
	svc := NewService(testutil.TestDB(t))
	ctx := context.Background()

	in := testutil.Input("F100", "Ann", "Able")
	in.Company = strPtr("Able & Co")
	in.MiddleName = strPtr("Marie")
	c, err := svc.Create(ctx, in)
	require.NoError(t, err)

	p, err := svc.Patch(ctx, c.ID, models.ContactPatch{FirstName: strPtr("Anna")})
	require.NoError(t, err)
	assert.Equal(t, "Anna", p.FirstName)
	require.NotNil(t, p.Company)
	assert.Equal(t, "Able & Co", *p.Company)

	full := testutil.Input("F100", "Anne", "Able")
	u, err := svc.Update(ctx, c.ID, full)
	require.NoError(t, err)
	assert.Equal(t, "Anne", u.FirstName)
	assert.Nil(t, u.Company, "full update clears omitted optional fields")
	assert.Nil(t, u.MiddleName)

	_, err = svc.Update(ctx, c.ID, models.ContactInput{FirstName: "Anne"})
	assert.Contains(t, fields(t, err), "last_name")

	_, err = svc.Patch(ctx, 9999, models.ContactPatch{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDelete_RemovesFromEveryLinkSet(t *testing.T) {
	svc := NewService(testutil.TestDB(t))
	ctx := context.Background()

	b, err := svc.Create(ctx, testutil.Input("F200", "Ben", "Baker"))
	require.NoError(t, err)
	a, err := svc.Create(ctx, testutil.Input("F100", "Ann", "Able", b.ID))
	require.NoError(t, err)
	d, err := svc.Create(ctx, testutil.Input("F400", "Dan", "Dunn", b.ID))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, b.ID))

	_, err = svc.Incoming(ctx, b.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.Outgoing(ctx, b.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	for _, id := range []int64{a.ID, d.ID} {
		c, err := svc.Get(ctx, id)
		require.NoError(t, err)
		assert.NotContains(t, c.LinkedClients, b.ID)
	}
	assert.ErrorIs(t, svc.Delete(ctx, b.ID), apperr.ErrNotFound)
}

func TestScenario_GraphAndReport(t *testing.T) {
	svc := NewService(testutil.TestDB(t))
	ctx := context.Background()

	b, err := svc.Create(ctx, testutil.Input("F200", "Ben", "Baker"))
	require.NoError(t, err)
	c, err := svc.Create(ctx, testutil.Input("F300", "Cat", "Cole"))
	require.NoError(t, err)
	a, err := svc.Create(ctx, testutil.Input("F100", "Ann", "Able", b.ID, c.ID))
	require.NoError(t, err)
	d, err := svc.Create(ctx, testutil.Input("F400", "Dan", "Dunn", c.ID))
	require.NoError(t, err)

	out, err := svc.Outgoing(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID, c.ID}, ids(out))

	in, err := svc.Incoming(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, d.ID}, ids(in))

	in, err = svc.Incoming(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, ids(in))

	r, err := svc.Report(ctx)
	require.NoError(t, err)
	require.Len(t, r.TopClients, 2)
	assert.Equal(t, c.ID, r.TopClients[0].Contact.ID)
	assert.Equal(t, 2, r.TopClients[0].Degree)
	assert.Equal(t, b.ID, r.TopClients[1].Contact.ID)
	assert.Equal(t, 1, r.TopClients[1].Degree)
	assert.Equal(t, r.Stats.Total, r.Stats.Linked+r.Stats.Unlinked)
	for i, e := range r.TopFiles {
		assert.Greater(t, e.Degree, 0)
		if i > 0 {
			assert.LessOrEqual(t, e.Degree, r.TopFiles[i-1].Degree)
		}
	}
}

func ids(cs []models.Contact) []int64 {
	out := make([]int64, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestSearch_FileNumberAndName(t *testing.T) {
	svc := NewService(testutil.TestDB(t))
	ctx := context.Background()

	a, err := svc.Create(ctx, testutil.Input("F100", "Ann", "Smith"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, testutil.Input("F200", "Ben", "Jones"))
	require.NoError(t, err)

	page, err := svc.Search(ctx, models.ContactQuery{Text: "F100"})
	require.NoError(t, err)
	require.Len(t, page.Hits, 1)
	assert.Equal(t, a.ID, page.Hits[0].ID)

	page, err = svc.Search(ctx, models.ContactQuery{Text: "smith"})
	require.NoError(t, err)
	require.NotEmpty(t, page.Hits)
	assert.Equal(t, a.ID, page.Hits[0].ID)

	page, err = svc.Search(ctx, models.ContactQuery{})
	require.NoError(t, err)
	require.Len(t, page.Hits, 2)
	assert.Equal(t, "Jones", page.Hits[0].LastName)
	assert.Equal(t, "Smith", page.Hits[1].LastName)

	_, err = svc.Search(ctx, models.ContactQuery{Limit: -1})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestHooksAndWakeup(t *testing.T) {
	var (
		wakes   int
		changes []Change
	)
	svc := NewService(testutil.TestDB(t),
		WithIndexWakeup(func() { wakes++ }),
		WithChangeHook(func(c Change) { changes = append(changes, c) }),
	)
	ctx := context.Background()

	c, err := svc.Create(ctx, testutil.Input("F100", "Ann", "Able"))
	require.NoError(t, err)
	_, err = svc.Patch(ctx, c.ID, models.ContactPatch{FirstName: strPtr("Anna")})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, c.ID))

	_, err = svc.Create(ctx, testutil.Input("F200", "X", "Yy"))
	require.Error(t, err)

	assert.Equal(t, 2, wakes)
	assert.Equal(t, []Change{
		{Kind: ContactCreated, ID: c.ID},
		{Kind: ContactUpdated, ID: c.ID},
		{Kind: ContactDeleted, ID: c.ID},
	}, changes)
}

func TestSummaries(t *testing.T) {
	svc := NewService(testutil.TestDB(t))
	ctx := context.Background()

	b, err := svc.Create(ctx, testutil.Input("F200", "Ben", "Baker"))
	require.NoError(t, err)
	a, err := svc.Create(ctx, testutil.Input("F100", "Ann", "Able"))
	require.NoError(t, err)

	sums, err := svc.Summaries(ctx, []int64{b.ID, a.ID, 9999})
	require.NoError(t, err)
	assert.Equal(t, []models.ContactSummary{
		{ID: a.ID, Name: "Ann Able", FileNumber: "F100"},
		{ID: b.ID, Name: "Ben Baker", FileNumber: "F200"},
	}, sums)

	got, err := svc.FindByFileNumber(ctx, " F200 ")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+15551234", NormalizePhone(" +1 (555) 12-34 "))
	assert.Equal(t, "5551234", NormalizePhone("555.1234"))
	assert.Equal(t, "15551234", NormalizePhone("1+555 1234"))
}
