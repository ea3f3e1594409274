package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/DATA-DOG/go-sqlmock"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/elys-network/basket-engine/internal/cache"
	"github.com/elys-network/basket-engine/internal/engine"
	"github.com/elys-network/basket-engine/internal/integrator"
	"github.com/elys-network/basket-engine/internal/ledger"
	"github.com/elys-network/basket-engine/internal/metrics"
	"github.com/elys-network/basket-engine/internal/state"
	"github.com/elys-network/basket-engine/internal/token"
	"github.com/elys-network/basket-engine/internal/types"
	"github.com/elys-network/basket-engine/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ibcUSDC = "ibc/498A0751C798A0D9A389AA3691123DADA57DAA4FE165D5C75894505B876BA6E4"

func units(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, 18)
}

func newTestServer(t *testing.T) *WebServer {
	t.Helper()
	ctx := context.Background()

	bank, err := token.NewBank("umusd")
	require.NoError(t, err)
	ratio18, err := utils.RatioForDecimals(18)
	require.NoError(t, err)
	ratio6, err := utils.RatioForDecimals(6)
	require.NoError(t, err)

	basket := &types.Basket{
		Bassets: []types.Basset{
			{Address: "udai", Status: types.StatusNormal, Decimals: 18, Ratio: ratio18, VaultBalance: units(100)},
			{Address: "uusdt", Status: types.StatusNormal, Decimals: 18, Ratio: ratio18, VaultBalance: units(100)},
			{Address: ibcUSDC, Status: types.StatusNormal, Decimals: 6, Ratio: ratio6, VaultBalance: sdkmath.NewInt(100_000_000)},
		},
		TotalSupply: units(300),
		Surplus:     sdkmath.ZeroInt(),
		Limits: types.WeightLimits{
			Min:     sdkmath.LegacyNewDecWithPrec(5, 2),
			Max:     sdkmath.LegacyNewDecWithPrec(55, 2),
			SoftMin: sdkmath.LegacyNewDecWithPrec(5, 2),
			SoftMax: sdkmath.LegacyNewDecWithPrec(55, 2),
		},
		MaxPenalty:    sdkmath.LegacyZeroDec(),
		CacheSize:     sdkmath.LegacyNewDecWithPrec(1, 1),
		SwapFee:       sdkmath.LegacyZeroDec(),
		RedemptionFee: sdkmath.LegacyZeroDec(),
	}
	for _, b := range basket.Bassets {
		require.NoError(t, bank.Fund("basket", sdk.NewCoin(b.Address, b.VaultBalance)))
	}
	require.NoError(t, bank.MintPoolToken(ctx, "alice", basket.TotalSupply))

	l, err := ledger.New(basket, nil)
	require.NoError(t, err)
	collector := metrics.NewCollector("")
	eng, err := engine.New(engine.Config{
		Ledger:  l,
		Cache:   cache.NewManager(bank, "basket", integrator.NewRegistry()),
		Tokens:  bank,
		Metrics: collector,
	})
	require.NoError(t, err)
	return NewWebServer("0", eng, collector, "")
}

func get(t *testing.T, ws *WebServer, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func withMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	state.DB = db
	t.Cleanup(func() {
		state.DB = nil
		db.Close()
	})
	return mock
}

func TestHealthWithoutDatabase(t *testing.T) {
	ws := newTestServer(t)

	rec, body := get(t, ws, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body["status"])
	status := body["basket_status"].(map[string]interface{})
	assert.Equal(t, "disabled", status["database"])
	assert.Equal(t, true, status["conserved"])
	assert.Equal(t, float64(3), status["bassets"])
}

func TestGetBassets(t *testing.T) {
	ws := newTestServer(t)

	rec, body := get(t, ws, "/api/bassets")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["count"])

	rec, body = get(t, ws, "/api/bassets/"+ibcUSDC)
	assert.Equal(t, http.StatusOK, rec.Code)
	personal := body["personal"].(map[string]interface{})
	assert.Equal(t, ibcUSDC, personal["address"])

	rec, body = get(t, ws, "/api/bassets/ufoo")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Invalid asset", body["message"])
}

func TestQuoteSwap(t *testing.T) {
	ws := newTestServer(t)

	rec, body := get(t, ws, "/api/quote/swap?input=uusdt&output=udai&qty=10000000000000000000")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "10000000000000000000", body["output"])

	// 10 USDC is worth 10 normalized units
	rec, body = get(t, ws, "/api/quote/mint?asset="+ibcUSDC+"&qty=10000000")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10000000000000000000", body["output"])

	rec, body = get(t, ws, "/api/quote/swap?input=udai&output=udai&qty=1")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, engine.ReasonInvalidPair, body["message"])

	rec, _ = get(t, ws, "/api/quote/swap?input=ufoo&output=udai&qty=1")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = get(t, ws, "/api/quote/redeem?asset=udai&qty=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuoteOversizedQuantity(t *testing.T) {
	ws := newTestServer(t)
	// 2^255 - 1 parses but overflows once scaled
	huge := "57896044618658097711785492504343953926634992332820282019728792003956564819967"

	for _, path := range []string{
		"/api/quote/mint?asset=uusdt&qty=" + huge,
		"/api/quote/swap?input=uusdt&output=udai&qty=" + huge,
		"/api/quote/redeem?asset=udai&qty=" + huge,
	} {
		rec, body := get(t, ws, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "amount is out of range", body["message"], path)
	}

	rec, body := get(t, ws, "/api/quote/redeem-proportional?qty="+huge)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["valid"])
}

func TestQuoteRedeemExactAndProportional(t *testing.T) {
	ws := newTestServer(t)

	rec, body := get(t, ws, "/api/quote/redeem-exact?assets=udai,uusdt&qtys=1000000000000000000,2000000000000000000")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3000000000000000000", body["input"])

	rec, body = get(t, ws, "/api/quote/redeem-proportional?qty=30000000000000000000")
	assert.Equal(t, http.StatusOK, rec.Code)
	outputs := body["outputs"].([]interface{})
	require.Len(t, outputs, 3)
	assert.Equal(t, "10000000000000000000", outputs[0])
	assert.Equal(t, "10000000", outputs[2])
}

func TestCacheStates(t *testing.T) {
	ws := newTestServer(t)

	rec, body := get(t, ws, "/api/cache")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["complete"])
	assert.Len(t, body["caches"].([]interface{}), 3)
}

func TestReceiptsRequireDatabase(t *testing.T) {
	ws := newTestServer(t)

	rec, _ := get(t, ws, "/api/receipts")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec, _ = get(t, ws, "/api/summary")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetReceipts(t *testing.T) {
	ws := newTestServer(t)
	mock := withMockDB(t)

	columns := []string{
		"receipt_id", "operation_id", "sequence", "kind", "sender", "recipient",
		"inputs", "outputs", "masset_delta", "fee", "cache_moves", "duration_ms", "created_at",
	}
	mock.ExpectQuery("FROM operation_receipts").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(1), "op-1", int64(1), "MINT", "alice", "alice",
				[]byte(`[{"denom":"udai","amount":"5"}]`), []byte(`[{"denom":"umusd","amount":"5"}]`),
				"5", "0", nil, int64(10), time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))

	rec, body := get(t, ws, "/api/receipts?limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
	receipts := body["receipts"].([]interface{})
	assert.Equal(t, "op-1", receipts[0].(map[string]interface{})["operation_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReceiptNotFound(t *testing.T) {
	ws := newTestServer(t)
	mock := withMockDB(t)

	mock.ExpectQuery("FROM operation_receipts").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"receipt_id"}))

	rec, body := get(t, ws, "/api/receipts/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Receipt not found", body["message"])
}

func TestMetricsEndpoint(t *testing.T) {
	ws := newTestServer(t)
	get(t, ws, "/api/bassets")

	rec, _ := get(t, ws, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "basket_basket_total_supply")
	assert.Contains(t, rec.Body.String(), `basket_http_requests_total{method="GET",path="/api/bassets",status="200"} 1`)
}
