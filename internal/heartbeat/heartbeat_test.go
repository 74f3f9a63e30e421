package heartbeat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/relaynet"
)

type staticPlayers []relaynet.Player

func (p staticPlayers) Players() []relaynet.Player {
	return p
}

type directory struct {
	server *httptest.Server

	mu            sync.Mutex
	announcements []Announcement
	auth          []string
	status        atomic.Int32
}

func newDirectory(t *testing.T) *directory {
	t.Helper()

	d := &directory{}
	d.status.Store(http.StatusOK)

	mux := http.NewServeMux()
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"query":"203.0.113.7","country":"Germany","countryCode":"DE","lat":52.5,"lon":13.4}`))
	})
	mux.HandleFunc("/api/server", func(w http.ResponseWriter, r *http.Request) {
		var a Announcement
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		d.mu.Lock()
		d.announcements = append(d.announcements, a)
		d.auth = append(d.auth, r.Header.Get("Authorization"))
		d.mu.Unlock()
		w.WriteHeader(int(d.status.Load()))
	})
	d.server = httptest.NewServer(mux)
	t.Cleanup(d.server.Close)
	return d
}

func (d *directory) config() Config {
	return Config{
		Name:        "Castle",
		Domain:      "castle.example",
		Description: "A friendly server",
		Port:        3678,
		APIKey:      "secret",
		Interval:    10 * time.Millisecond,
		ListURL:     d.server.URL + "/list",
		APIURL:      d.server.URL + "/api/server",
		IPURL:       d.server.URL + "/json",
	}
}

func (d *directory) received() ([]Announcement, []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Announcement{}, d.announcements...), append([]string{}, d.auth...)
}

// TestLocate tests the public address lookup
func TestLocate(t *testing.T) {
	t.Parallel()

	d := newDirectory(t)
	r := New(d.config(), staticPlayers{}, zerolog.Nop())

	require.NoError(t, r.Locate(context.Background()))
	assert.Equal(t, Location{
		IP:          "203.0.113.7",
		Country:     "Germany",
		CountryCode: "DE",
		Lat:         52.5,
		Lon:         13.4,
	}, r.Location())
}

// TestAnnounce tests the posted body and API key header
func TestAnnounce(t *testing.T) {
	t.Parallel()

	d := newDirectory(t)
	players := staticPlayers{{ID: 1, Username: "Mario", CharacterID: 3}}
	r := New(d.config(), players, zerolog.Nop())
	require.NoError(t, r.Locate(context.Background()))

	require.NoError(t, r.Announce(context.Background()))

	got, auth := d.received()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"APIKEY secret"}, auth)
	assert.Equal(t, "Castle", got[0].Name)
	assert.Equal(t, 3678, got[0].Port)
	assert.Equal(t, "DE", got[0].CountryCode)
	assert.Equal(t, []relaynet.Player(players), got[0].Players)
}

// TestAnnounceStatus tests the classification of directory responses
func TestAnnounceStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		wantErr error
		anyErr  bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "unauthorized", status: http.StatusUnauthorized, wantErr: ErrUnauthorized},
		{name: "server error", status: http.StatusBadGateway, anyErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := newDirectory(t)
			d.status.Store(int32(tt.status))
			r := New(d.config(), staticPlayers{}, zerolog.Nop())

			err := r.Announce(context.Background())
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrUnauthorized)
			default:
				require.NoError(t, err)
			}
		})
	}
}

// TestAnnouncementWithoutPlayers tests that the player list is never null
func TestAnnouncementWithoutPlayers(t *testing.T) {
	t.Parallel()

	r := New(Config{}, staticPlayers(nil), zerolog.Nop())
	body, err := json.Marshal(r.Announcement())
	require.NoError(t, err)
	assert.Contains(t, string(body), `"players":[]`)
}

// TestRunAnnouncesPeriodically tests the announce loop
func TestRunAnnouncesPeriodically(t *testing.T) {
	t.Parallel()

	d := newDirectory(t)
	r := New(d.config(), staticPlayers{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		got, _ := d.received()
		return len(got) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// TestRunStopsOnUnauthorized tests that a rejected key disables the reporter
func TestRunStopsOnUnauthorized(t *testing.T) {
	t.Parallel()

	d := newDirectory(t)
	d.status.Store(http.StatusUnauthorized)
	r := New(d.config(), staticPlayers{}, zerolog.Nop())

	require.NoError(t, r.Run(context.Background()))

	got, _ := d.received()
	assert.Len(t, got, 1)
}

// TestRunWithoutLookup tests that a failed lookup disables the reporter
func TestRunWithoutLookup(t *testing.T) {
	t.Parallel()

	d := newDirectory(t)
	cfg := d.config()
	cfg.IPURL = d.server.URL + "/missing"
	r := New(cfg, staticPlayers{}, zerolog.Nop())

	require.NoError(t, r.Run(context.Background()))

	got, _ := d.received()
	assert.Empty(t, got)
}
