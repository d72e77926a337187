package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	assetdomain "github.com/pulseledger/xrpwatch/internal/asset/domain"
)

type listAssetsQuery struct {
	Issuer           string `form:"issuer"`
	Currency         string `form:"currency"`
	CurrencyContains string `form:"currency_contains"`
	Limit            int    `form:"limit"`
}

func (s *Server) listAssets(c *gin.Context) {
	var query listAssetsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	stmt := s.db.WithContext(c.Request.Context()).
		Model(&assetdomain.Asset{}).
		Order("issuer_address ASC, currency ASC").
		Limit(limit)
	if issuer := strings.TrimSpace(query.Issuer); issuer != "" {
		stmt = stmt.Where("issuer_address = ?", issuer)
	}
	if currency := strings.TrimSpace(query.Currency); currency != "" {
		stmt = stmt.Where("currency = ?", currency)
	}
	if fragment := strings.TrimSpace(query.CurrencyContains); fragment != "" {
		stmt = stmt.Where("currency LIKE ?", "%"+fragment+"%")
	}

	var rows []assetdomain.Asset
	if err := stmt.Find(&rows).Error; err != nil {
		AbortWithError(c, err)
		return
	}

	data := make([]assetView, 0, len(rows))
	for _, row := range rows {
		data = append(data, newAssetView(row))
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

type assetView struct {
	ID        string `json:"id"`
	Issuer    string `json:"issuer"`
	Currency  string `json:"currency"`
	CreatedAt string `json:"created_at"`
}

func newAssetView(a assetdomain.Asset) assetView {
	return assetView{
		ID:        a.ID.String(),
		Issuer:    a.IssuerAddress,
		Currency:  a.Currency,
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
	}
}
