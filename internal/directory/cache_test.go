package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"
)

func TestCache_Refresh(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`["Elektrine.com", "mail.example.org", "  ", ""]`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Minute)
	if !c.Enabled() {
		t.Fatal("Enabled(): got false, want true")
	}

	if err := c.refresh(context.Background()); err != nil {
		t.Fatalf("refresh: unexpected error: %v", err)
	}

	domains := c.Domains()
	sort.Strings(domains)
	want := []string{"elektrine.com", "mail.example.org"}
	if len(domains) != len(want) {
		t.Fatalf("Domains(): got %v, want %v", domains, want)
	}
	for i := range want {
		if domains[i] != want[i] {
			t.Errorf("Domains()[%d]: got %q, want %q", i, domains[i], want[i])
		}
	}

	if !c.IsLocal("elektrine.com") {
		t.Error("IsLocal(elektrine.com): got false, want true")
	}
	if !c.IsLocal("ELEKTRINE.COM") {
		t.Error("IsLocal(ELEKTRINE.COM): got false, want true (lookups are case-insensitive)")
	}
	if c.IsLocal("other.com") {
		t.Error("IsLocal(other.com): got true, want false")
	}
}

func TestCache_Disabled(t *testing.T) {
	t.Parallel()

	c := New("", time.Minute)
	if c.Enabled() {
		t.Error("Enabled(): got true, want false")
	}
	if !c.IsLocal("anything.example") {
		t.Error("IsLocal with cache disabled: got false, want true")
	}
}

func TestCache_EmptyListTreatsAllLocal(t *testing.T) {
	t.Parallel()

	// Enabled but never refreshed: delivery must not be blocked on
	// directory availability.
	c := New("http://directory.invalid/domains", time.Minute)
	if !c.IsLocal("anything.example") {
		t.Error("IsLocal with unpopulated cache: got false, want true")
	}
}

func TestCache_RefreshFailureKeepsPreviousList(t *testing.T) {
	t.Parallel()

	fail := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`["elektrine.com"]`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Minute)
	if err := c.refresh(context.Background()); err != nil {
		t.Fatalf("refresh: unexpected error: %v", err)
	}

	fail = true
	if err := c.refresh(context.Background()); err == nil {
		t.Fatal("refresh: expected error for HTTP 500, got nil")
	}

	if !c.IsLocal("elektrine.com") {
		t.Error("IsLocal(elektrine.com) after failed refresh: got false, want true")
	}
	if c.IsLocal("other.com") {
		t.Error("IsLocal(other.com) after failed refresh: got true, want false")
	}
}

func TestCache_RefreshRejectsBadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not": "a list"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Minute)
	if err := c.refresh(context.Background()); err == nil {
		t.Fatal("refresh: expected error for non-array body, got nil")
	}
}

func TestCache_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["elektrine.com"]`))
	}))
	defer srv.Close()

	c := New(srv.URL, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	// Wait for the initial fetch to land.
	deadline := time.After(time.Second)
	for !c.IsLocal("elektrine.com") || len(c.Domains()) == 0 {
		select {
		case <-deadline:
			t.Fatal("initial fetch never populated the cache")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
