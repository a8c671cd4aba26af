package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"deposit-reconciler/internal/handler"
	"deposit-reconciler/internal/model"
	"deposit-reconciler/internal/service/reconciler"
	"deposit-reconciler/internal/store"
	"deposit-reconciler/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T, db *gorm.DB, last *reconciler.CycleReport) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	deposits := store.NewDepositStore(db)
	return NewHTTPRouter(Handlers{
		Health:   handler.NewHealthHandler(db, func() *reconciler.CycleReport { return last }),
		Deposits: handler.NewDepositHandler(deposits, store.NewCheckpointStore(db)),
	}, zap.NewNop())
}

func get(t *testing.T, r http.Handler, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestHealth(t *testing.T) {
	db := testutil.NewDB(t)

	w, env := get(t, newTestRouter(t, db, nil), "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.Code)
	assert.Contains(t, string(env.Data), `"status":"UP"`)

	degraded := &reconciler.CycleReport{
		CycleID:  "c1",
		Networks: []reconciler.NetworkReport{{Network: model.NetworkTRC20, Status: reconciler.StatusFailed, Unmatched: 2}},
	}
	w, env = get(t, newTestRouter(t, db, degraded), "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"status":"DEGRADED"`)
	assert.Contains(t, string(env.Data), `"unmatched":2`)
}

func TestListUnmatched(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	deposits := store.NewDepositStore(db)

	for i, n := range []model.Network{model.NetworkBEP20, model.NetworkBEP20, model.NetworkTRC20} {
		_, err := deposits.InsertIfAbsent(ctx, &model.DepositTransaction{
			TxHash:      string(rune('a' + i)),
			ToAddress:   "w",
			Amount:      decimal.NewFromInt(int64(i + 1)),
			Network:     n,
			BlockNumber: int64(i),
			Status:      model.TxPending,
		})
		require.NoError(t, err)
	}
	r := newTestRouter(t, db, nil)

	w, env := get(t, r, "/api/v1/deposits/unmatched?network=BEP20")
	require.Equal(t, http.StatusOK, w.Code)
	var page handler.UnmatchedList
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(2), page.Total)
	assert.Len(t, page.Items, 2)

	w, env = get(t, r, "/api/v1/deposits/unmatched?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Items, 1)

	w, _ = get(t, r, "/api/v1/deposits/unmatched?network=ERC20")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCheckpoints(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, store.NewCheckpointStore(db).SetCheckpoint(context.Background(), model.NetworkBEP20, 1234))

	w, env := get(t, newTestRouter(t, db, nil), "/api/v1/checkpoints")
	require.Equal(t, http.StatusOK, w.Code)
	var cps []model.BlockCheckpoint
	require.NoError(t, json.Unmarshal(env.Data, &cps))
	require.Len(t, cps, 1)
	assert.Equal(t, int64(1234), cps[0].LastProcessedBlock)
}

func TestSwaggerDoc(t *testing.T) {
	db := testutil.NewDB(t)

	w, _ := get(t, newTestRouter(t, db, nil), "/swagger/doc.json")
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		Info  map[string]interface{}     `json:"info"`
		Paths map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "Deposit Reconciler Ops API", doc.Info["title"])
	for _, p := range []string{"/health", "/api/v1/deposits/unmatched", "/api/v1/checkpoints"} {
		assert.Contains(t, doc.Paths, p)
	}
}
