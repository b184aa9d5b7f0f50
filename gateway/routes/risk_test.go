package routes

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"lendcore/gateway/middleware"
	"lendcore/native/risk"
)

const testAdminKey = "ops"
const testAdminSecret = "gateway-test-secret"

func newTestServer(t *testing.T) (*httptest.Server, *risk.StaticFeed) {
	t.Helper()
	state := risk.NewMemoryState()
	params := risk.NewParamStore()
	now := time.Unix(1_700_000_000, 0).UTC()

	register := func(p risk.AssetParams) {
		if err := params.RegisterAsset(p); err != nil {
			t.Fatalf("register %s: %v", p.Symbol, err)
		}
	}
	register(risk.AssetParams{
		Symbol:                  "XTK",
		Decimals:                18,
		IsCollateral:            true,
		CollateralFactorBps:     8000,
		LiquidationThresholdBps: 8500,
		LiquidationIncentiveBps: 1000,
		Curve:                   risk.InterestCurve{Kink: 0.8},
	})
	register(risk.AssetParams{Symbol: "YTK", Decimals: 18, Curve: risk.InterestCurve{Kink: 0.8}})

	feed := risk.NewStaticFeed()
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	feed.SetPrice("XTK", one, now)
	feed.SetPrice("YTK", one, now)

	engine := risk.NewEngine(state, params, feed, risk.Config{})
	engine.SetClock(func() time.Time { return now })

	server := httptest.NewServer(New(Config{
		Engine:    engine,
		Feed:      feed,
		AdminAuth: middleware.NewAdminAuth(map[string]string{testAdminKey: testAdminSecret}, 0),
		CORS:      middleware.CORSConfig{},
	}))
	t.Cleanup(server.Close)
	return server, feed
}

var adminNonce atomic.Uint64

// adminPost signs the request the way an operator client would.
func adminPost(t *testing.T, server *httptest.Server, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := fmt.Sprintf("n-%d", adminNonce.Add(1))
	sig := middleware.AdminSignature(testAdminSecret, timestamp, nonce, http.MethodPost, path, []byte(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderAPIKey, testAdminKey)
	req.Header.Set(middleware.HeaderTimestamp, timestamp)
	req.Header.Set(middleware.HeaderNonce, nonce)
	req.Header.Set(middleware.HeaderSignature, hex.EncodeToString(sig))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		decoded = nil
	}
	return resp, decoded
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestDepositAndPositionRoundTrip(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := postJSON(t, server.URL+"/v1/deposit", `{"account":"alice","asset":"XTK","amount":"100000000000000000000"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deposit status %d: %v", resp.StatusCode, body)
	}

	resp, body = getJSON(t, server.URL+"/v1/positions/alice/XTK")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("position status %d", resp.StatusCode)
	}
	if body["collateral"] != "100000000000000000000" {
		t.Fatalf("collateral %v", body["collateral"])
	}
	if body["debt"] != "0" {
		t.Fatalf("debt %v", body["debt"])
	}
}

func TestBadAmountRejected(t *testing.T) {
	server, _ := newTestServer(t)
	resp, body := postJSON(t, server.URL+"/v1/deposit", `{"account":"alice","asset":"XTK","amount":"12.5"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %v", resp.StatusCode, body)
	}
}

func TestUnknownAssetIs404(t *testing.T) {
	server, _ := newTestServer(t)
	resp, _ := postJSON(t, server.URL+"/v1/deposit", `{"account":"alice","asset":"ZZZ","amount":"1"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestUndercollateralizedBorrowIs409(t *testing.T) {
	server, _ := newTestServer(t)
	postJSON(t, server.URL+"/v1/deposit", `{"account":"lp","asset":"YTK","amount":"1000000000000000000000"}`)
	resp, body := postJSON(t, server.URL+"/v1/borrow", `{"account":"alice","asset":"YTK","amount":"1000000000000000000"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %v", resp.StatusCode, body)
	}
}

func TestPauseBlocksBorrow(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := adminPost(t, server, "/v1/admin/pause", `{"level":"risk-increasing"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status %d", resp.StatusCode)
	}
	resp, _ = postJSON(t, server.URL+"/v1/borrow", `{"account":"alice","asset":"YTK","amount":"1"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	// Deposits keep flowing under the partial pause.
	resp, _ = postJSON(t, server.URL+"/v1/deposit", `{"account":"alice","asset":"XTK","amount":"1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deposit under partial pause: %d", resp.StatusCode)
	}
}

func TestUnknownPauseLevelRejected(t *testing.T) {
	server, _ := newTestServer(t)
	resp, _ := adminPost(t, server, "/v1/admin/pause", `{"level":"sideways"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	postJSON(t, server.URL+"/v1/deposit", `{"account":"lp","asset":"YTK","amount":"1000000000000000000000"}`)
	postJSON(t, server.URL+"/v1/deposit", `{"account":"alice","asset":"XTK","amount":"100000000000000000000"}`)
	postJSON(t, server.URL+"/v1/borrow", `{"account":"alice","asset":"YTK","amount":"70000000000000000000"}`)

	resp, body := getJSON(t, server.URL+"/v1/health/alice")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}
	if body["healthFactor"] != "1142857142857142857" {
		t.Fatalf("health factor %v", body["healthFactor"])
	}
	if body["liquidatable"] != false {
		t.Fatalf("liquidatable %v", body["liquidatable"])
	}
}

func TestRatesEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	resp, body := getJSON(t, server.URL+"/v1/rates/YTK")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rates status %d", resp.StatusCode)
	}
	for _, key := range []string{"borrowRate", "supplyRate", "utilization"} {
		if _, ok := body[key]; !ok {
			t.Fatalf("missing %s in %v", key, body)
		}
	}
}

func TestLiquidationsWithoutAuditStore(t *testing.T) {
	server, _ := newTestServer(t)
	resp, _ := getJSON(t, server.URL+"/v1/liquidations")
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}

func TestPriceAdminUpdatesQuotes(t *testing.T) {
	server, _ := newTestServer(t)
	postJSON(t, server.URL+"/v1/deposit", `{"account":"lp","asset":"YTK","amount":"1000000000000000000000"}`)
	postJSON(t, server.URL+"/v1/deposit", `{"account":"alice","asset":"XTK","amount":"100000000000000000000"}`)
	postJSON(t, server.URL+"/v1/borrow", `{"account":"alice","asset":"YTK","amount":"70000000000000000000"}`)

	resp, _ := adminPost(t, server, "/v1/admin/prices", `{"asset":"XTK","price":"800000000000000000"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set price status %d", resp.StatusCode)
	}
	resp, body := getJSON(t, server.URL+"/v1/health/alice")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}
	if body["liquidatable"] != true {
		t.Fatalf("expected liquidatable after price drop: %v", body)
	}

	resp, _ = adminPost(t, server, "/v1/admin/prices", `{"asset":"XTK","price":"0"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero price, got %d", resp.StatusCode)
	}
}

func TestAdminRoutesRejectUnsignedRequests(t *testing.T) {
	server, _ := newTestServer(t)

	// An anonymous caller must not be able to halt the protocol.
	resp, err := http.Post(server.URL+"/v1/admin/pause", "application/json", strings.NewReader(`{"level":"all"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unsigned pause, got %d", resp.StatusCode)
	}
	resp, _ = postJSON(t, server.URL+"/v1/deposit", `{"account":"alice","asset":"XTK","amount":"1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deposit affected by rejected pause: %d", resp.StatusCode)
	}
}

func TestAdminRejectsBadSignatureAndReplay(t *testing.T) {
	server, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/v1/admin/pause", strings.NewReader(`{"level":"all"}`))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set(middleware.HeaderAPIKey, testAdminKey)
	req.Header.Set(middleware.HeaderTimestamp, timestamp)
	req.Header.Set(middleware.HeaderNonce, "replayed")
	req.Header.Set(middleware.HeaderSignature, "deadbeef")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged signature, got %d", resp.StatusCode)
	}

	// A correctly signed request replayed with the same nonce is rejected.
	body := `{"level":"none"}`
	nonce := "replayed"
	sig := hex.EncodeToString(middleware.AdminSignature(testAdminSecret, timestamp, nonce, http.MethodPost, "/v1/admin/pause", []byte(body)))
	send := func() int {
		req, err := http.NewRequest(http.MethodPost, server.URL+"/v1/admin/pause", strings.NewReader(body))
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		req.Header.Set(middleware.HeaderAPIKey, testAdminKey)
		req.Header.Set(middleware.HeaderTimestamp, timestamp)
		req.Header.Set(middleware.HeaderNonce, nonce)
		req.Header.Set(middleware.HeaderSignature, sig)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if status := send(); status != http.StatusOK {
		t.Fatalf("signed pause failed: %d", status)
	}
	if status := send(); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 on nonce replay, got %d", status)
	}
}

func TestAdminDisabledWithoutCredentials(t *testing.T) {
	state := risk.NewMemoryState()
	params := risk.NewParamStore()
	engine := risk.NewEngine(state, params, risk.NewStaticFeed(), risk.Config{})
	server := httptest.NewServer(New(Config{Engine: engine}))
	defer server.Close()

	resp, err := http.Post(server.URL+"/v1/admin/pause", "application/json", strings.NewReader(`{"level":"all"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 when admin is unconfigured, got %d", resp.StatusCode)
	}
}

func TestHealthzAlive(t *testing.T) {
	server, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}
}
