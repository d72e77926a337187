package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/pulseledger/xrpwatch/internal/account/domain"
	accountrepo "github.com/pulseledger/xrpwatch/internal/account/repository"
	assetdomain "github.com/pulseledger/xrpwatch/internal/asset/domain"
	assetrepo "github.com/pulseledger/xrpwatch/internal/asset/repository"
	"github.com/pulseledger/xrpwatch/internal/config"
	paymentdomain "github.com/pulseledger/xrpwatch/internal/payment/domain"
	paymentrepo "github.com/pulseledger/xrpwatch/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&accountdomain.Account{},
		&assetdomain.Asset{},
		&paymentdomain.Payment{},
	))

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	srv := NewServer(ServerParams{
		Gin:      engine,
		Cfg:      config.Config{},
		DB:       db,
		Accounts: accountrepo.Provide(),
		Assets:   assetrepo.Provide(node),
		Payments: paymentrepo.ProvideQueries(),
	})
	return srv, db
}

func seedPayments(t *testing.T, db *gorm.DB, count int) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, accountrepo.Provide().BulkCreate(ctx, db, []string{"rAlice", "rBob"}))
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	asset, err := assetrepo.Provide(node).GetOrCreate(ctx, db, "SYSTEM", "XRP drops")
	require.NoError(t, err)

	rows := make([]paymentdomain.Payment, 0, count)
	for i := 0; i < count; i++ {
		rows = append(rows, paymentdomain.Payment{
			Hash:               fmt.Sprintf("H%03d", i),
			AccountAddress:     "rAlice",
			DestinationAddress: "rBob",
			AssetID:            asset.ID,
			LedgerIndex:        uint64(100 + i),
			Amount:             "1000",
			Fee:                "12",
		})
	}
	_, err = paymentrepo.Provide().BulkInsert(ctx, db, rows)
	require.NoError(t, err)
}

func doRequest(srv *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	srv.engine.ServeHTTP(rec, req)
	return rec
}

type listPaymentsResponse struct {
	Data     []paymentView `json:"data"`
	PageInfo struct {
		NextPageToken string `json:"next_page_token"`
		HasMore       bool   `json:"has_more"`
	} `json:"page_info"`
}

func TestListPayments_Paginates(t *testing.T) {
	srv, db := newTestServer(t)
	seedPayments(t, db, 5)

	rec := doRequest(srv, http.MethodGet, "/api/payments?page_size=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var page listPaymentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 2)
	assert.True(t, page.PageInfo.HasMore)
	assert.Equal(t, "H004", page.Data[0].Hash)
	assert.Equal(t, "H003", page.Data[1].Hash)

	rec = doRequest(srv, http.MethodGet, "/api/payments?page_size=2&page_token="+page.PageInfo.NextPageToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var next listPaymentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	require.Len(t, next.Data, 2)
	assert.Equal(t, "H002", next.Data[0].Hash)
	assert.Equal(t, "H001", next.Data[1].Hash)
}

func TestListPayments_InvalidParams(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/payments?ledger_index=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/payments?order=sideways")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/payments?page_token=%25%25not-base64")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPayment(t *testing.T) {
	srv, db := newTestServer(t)
	seedPayments(t, db, 1)

	rec := doRequest(srv, http.MethodGet, "/api/payments/H000")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data paymentView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "H000", resp.Data.Hash)
	assert.Equal(t, "rAlice", resp.Data.Account)
	require.NotNil(t, resp.Data.Asset)
	assert.Equal(t, "XRP drops", resp.Data.Asset.Currency)

	rec = doRequest(srv, http.MethodGet, "/api/payments/UNKNOWN")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAccountsAndAssets(t *testing.T) {
	srv, db := newTestServer(t)
	seedPayments(t, db, 1)

	rec := doRequest(srv, http.MethodGet, "/api/accounts?address_contains=Alice")
	require.Equal(t, http.StatusOK, rec.Code)
	var accounts struct {
		Data []accountView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accounts))
	require.Len(t, accounts.Data, 1)
	assert.Equal(t, "rAlice", accounts.Data[0].Address)

	rec = doRequest(srv, http.MethodGet, "/api/assets?issuer=SYSTEM")
	require.Equal(t, http.StatusOK, rec.Code)
	var assets struct {
		Data []assetView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assets))
	require.Len(t, assets.Data, 1)
	assert.Equal(t, "XRP drops", assets.Data[0].Currency)
}
