package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/pulseledger/xrpwatch/internal/account/domain"
)

type listAccountsQuery struct {
	Address         string `form:"address"`
	AddressContains string `form:"address_contains"`
	Limit           int    `form:"limit"`
}

func (s *Server) listAccounts(c *gin.Context) {
	var query listAccountsQuery
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
		Model(&accountdomain.Account{}).
		Order("address ASC").
		Limit(limit)
	if address := strings.TrimSpace(query.Address); address != "" {
		stmt = stmt.Where("address = ?", address)
	}
	if fragment := strings.TrimSpace(query.AddressContains); fragment != "" {
		stmt = stmt.Where("address LIKE ?", "%"+fragment+"%")
	}

	var rows []accountdomain.Account
	if err := stmt.Find(&rows).Error; err != nil {
		AbortWithError(c, err)
		return
	}

	data := make([]accountView, 0, len(rows))
	for _, row := range rows {
		data = append(data, accountView{
			Address:   row.Address,
			CreatedAt: row.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

type accountView struct {
	Address   string `json:"address"`
	CreatedAt string `json:"created_at"`
}
