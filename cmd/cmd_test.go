package cmd

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanpmqe180124/pickleboom-sub000/internal/backend"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/catalog"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/config"
	"github.com/tanpmqe180124/pickleboom-sub000/internal/logger"
)

func fakeBackend(t *testing.T) *catalog.Catalog {
	t.Helper()
	srv, _ := fakeBackendServer(t)
	return catalog.New(backend.New(srv.URL, "", time.Second))
}

// fakeBackendServer serves the catalog and counts payment requests.
func fakeBackendServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var payments atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/payments", func(w http.ResponseWriter, r *http.Request) {
		payments.Add(1)
		_, _ = w.Write([]byte(`{"success":true,"data":{"orderCode":"PB123","checkoutUrl":"https://pay.example/PB123","amount":240000}}`))
	})
	mux.HandleFunc("/api/partners", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":[{"id":1,"name":"Pickle Hub","address":"1 Court St"}]}`))
	})
	mux.HandleFunc("/api/courts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":[{"id":"C1","name":"Court 1","pricePerHour":120000}]}`))
	})
	mux.HandleFunc("/api/timeslots/available", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":[
			{"id":"S2","startTime":"10:00:00","endTime":"11:00:00"},
			{"id":"S1","startTime":"09:00:00","endTime":"10:00:00"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &payments
}

func TestBuildDraftResolvesFlags(t *testing.T) {
	d, err := buildDraft(context.Background(), fakeBackend(t), bookFlags{
		partnerID: "1",
		courtID:   "C1",
		date:      "2024-06-01",
		slots:     []string{"10:00 - 11:00", "S1"},
		name:      "A",
		phone:     "0900000000",
		email:     "a@x.com",
	})
	require.NoError(t, err)

	s := d.Snapshot()
	assert.Equal(t, "Pickle Hub", s.Partner.Name)
	assert.Equal(t, "C1", s.Court.ID)
	assert.Equal(t, "2024-06-01", s.Date.Format(dateLayout))
	assert.Equal(t, []string{"S2", "S1"}, s.SlotIDs())
	assert.Equal(t, []string{"S1", "S2"}, s.Finalized().SlotIDs())
}

func TestBuildDraftRejectsUnknownSelections(t *testing.T) {
	cat := fakeBackend(t)
	base := bookFlags{partnerID: "1", courtID: "C1", date: "2024-06-01", slots: []string{"09:00"}}

	f := base
	f.partnerID = "9"
	_, err := buildDraft(context.Background(), cat, f)
	assert.ErrorContains(t, err, "unknown partner")

	f = base
	f.courtID = "C9"
	_, err = buildDraft(context.Background(), cat, f)
	assert.ErrorContains(t, err, "not offered")

	f = base
	f.slots = []string{"18:00 - 19:00"}
	_, err = buildDraft(context.Background(), cat, f)
	assert.ErrorContains(t, err, "not available")

	f = base
	f.date = "01/06/2024"
	_, err = buildDraft(context.Background(), cat, f)
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestRootHasSubcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"version", "keys", "partners", "courts", "slots", "book", "status", "orders", "server"} {
		c, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
}

func TestVersionAndKeys(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "pickleboom dev")

	out.Reset()
	root = NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"keys"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "export COOKIE_HASH_KEY=")
	assert.Contains(t, out.String(), "export JOURNAL_KEY=")
}

func testApp(t *testing.T, backendURL string) *app {
	t.Helper()
	hashKey, blockKey, err := config.DeriveCookieKeys([]byte("test secret"))
	require.NoError(t, err)
	return &app{
		cfg: config.Config{
			BaseURL:        "http://localhost:8090",
			HandoffMode:    "embed",
			StatusSource:   "backend",
			PollBudget:     time.Second,
			PollInterval:   10 * time.Millisecond,
			CountdownStep:  10 * time.Millisecond,
			CookieHashKey:  hashKey,
			CookieBlockKey: blockKey,
		},
		log: logger.Discard(),
		api: backend.New(backendURL, "", time.Second),
	}
}

func TestCheckoutRefusesTakenPortBeforeOrdering(t *testing.T) {
	srv, payments := fakeBackendServer(t)
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	a := testApp(t, srv.URL)
	a.cfg.ListenAddr = taken.Addr().String()
	d, err := buildDraft(context.Background(), catalog.New(a.api), bookFlags{
		partnerID: "1", courtID: "C1", date: "2024-06-01", slots: []string{"S1", "S2"},
		name: "A", phone: "0900000000", email: "a@x.com",
	})
	require.NoError(t, err)

	var out bytes.Buffer
	err = runCheckout(context.Background(), &out, a, d, "")
	assert.ErrorContains(t, err, "checkout page server")
	assert.Zero(t, payments.Load())
	assert.NotContains(t, out.String(), "Open this page")
}
