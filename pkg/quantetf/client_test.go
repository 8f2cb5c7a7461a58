package quantetf

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8090/")
	if c.baseURL != "http://localhost:8090" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
}

func TestListRuns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/runs" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "512480.SH" {
			t.Errorf("symbol = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit = %q", got)
		}
		w.Write([]byte(`[{"id":3,"symbol":"512480.SH","mode":"dynamic","total_return":0.042}]`))
	}))
	defer srv.Close()

	runs, err := NewClient(srv.URL).ListRuns(context.Background(), RunQuery{Symbol: "512480.SH", Limit: 5})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != 3 || runs[0].TotalReturn != 0.042 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestListTrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"seq":0,"action":"BUY","price":1.05,"shares":9000},{"seq":1,"action":"SELL_STOP","price":0.98,"shares":9000,"pnl":-630,"hold_days":3}]`))
	}))
	defer srv.Close()

	trades, err := NewClient(srv.URL).ListTrades(context.Background(), 3)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(trades))
	}
	if trades[0].PnL != nil {
		t.Error("buy should carry no pnl")
	}
	if trades[1].PnL == nil || *trades[1].PnL != -630 || *trades[1].HoldDays != 3 {
		t.Errorf("sell = %+v", trades[1])
	}
}

func TestGetRunNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"run not found"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetRun(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"listing runs failed"}`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).ListRuns(context.Background(), RunQuery{}); err == nil {
		t.Error("expected error on 500")
	}
}
