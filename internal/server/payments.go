package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/pulseledger/xrpwatch/internal/payment/domain"
	"github.com/pulseledger/xrpwatch/pkg/db/pagination"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

type listPaymentsQuery struct {
	PageToken        string `form:"page_token"`
	PageSize         int    `form:"page_size"`
	Account          string `form:"account"`
	AccountContains  string `form:"account_contains"`
	Destination      string `form:"destination"`
	Issuer           string `form:"issuer"`
	Currency         string `form:"currency"`
	CurrencyContains string `form:"currency_contains"`
	Hash             string `form:"hash"`
	LedgerIndex      string `form:"ledger_index"`
	DestinationTag   string `form:"destination_tag"`
	HasDestTag       string `form:"has_destination_tag"`
	Order            string `form:"order"`
}

func (s *Server) listPayments(c *gin.Context) {
	var query listPaymentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	limit := query.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	ledgerIndex, err := parseOptionalUint64(query.LedgerIndex)
	if err != nil {
		AbortWithError(c, newValidationError("ledger_index", "invalid_ledger_index", "invalid ledger_index"))
		return
	}
	destinationTag, err := parseOptionalUint64(query.DestinationTag)
	if err != nil {
		AbortWithError(c, newValidationError("destination_tag", "invalid_destination_tag", "invalid destination_tag"))
		return
	}
	hasDestTag, err := parseOptionalBool(query.HasDestTag)
	if err != nil {
		AbortWithError(c, newValidationError("has_destination_tag", "invalid_has_destination_tag", "invalid has_destination_tag"))
		return
	}

	orderNewest := true
	switch strings.TrimSpace(query.Order) {
	case "", "newest":
	case "oldest":
		orderNewest = false
	default:
		AbortWithError(c, newValidationError("order", "invalid_order", "order must be newest or oldest"))
		return
	}

	filter := paymentdomain.ListFilter{
		Account:          strings.TrimSpace(query.Account),
		AccountContains:  strings.TrimSpace(query.AccountContains),
		Destination:      strings.TrimSpace(query.Destination),
		Issuer:           strings.TrimSpace(query.Issuer),
		Currency:         strings.TrimSpace(query.Currency),
		CurrencyContains: strings.TrimSpace(query.CurrencyContains),
		Hash:             strings.TrimSpace(query.Hash),
		LedgerIndex:      ledgerIndex,
		DestinationTag:   destinationTag,
		HasDestTag:       hasDestTag,
		Limit:            limit + 1,
		OrderNewest:      orderNewest,
	}

	if token := strings.TrimSpace(query.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			AbortWithError(c, newValidationError("page_token", "invalid_page_token", "invalid page_token"))
			return
		}
		filter.CursorHash = cursor.Hash
	}

	rows, err := s.payments.List(c.Request.Context(), s.db, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rows, pageInfo, err := pagination.BuildPageInfo(rows, limit, func(p paymentdomain.Payment) pagination.Cursor {
		return pagination.Cursor{Hash: p.Hash, LedgerIndex: p.LedgerIndex}
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := make([]paymentView, 0, len(rows))
	for _, row := range rows {
		data = append(data, newPaymentView(row))
	}

	c.JSON(http.StatusOK, gin.H{"data": data, "page_info": pageInfo})
}

func (s *Server) getPayment(c *gin.Context) {
	hash := strings.TrimSpace(c.Param("hash"))
	if hash == "" {
		AbortWithError(c, newValidationError("hash", "invalid_hash", "invalid hash"))
		return
	}

	row, err := s.payments.GetByHash(c.Request.Context(), s.db, hash)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if row == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newPaymentView(*row)})
}

type paymentView struct {
	Hash           string     `json:"hash"`
	Account        string     `json:"account"`
	Destination    string     `json:"destination"`
	Asset          *assetView `json:"asset,omitempty"`
	LedgerIndex    uint64     `json:"ledger_index"`
	DestinationTag *uint64    `json:"destination_tag,omitempty"`
	Amount         string     `json:"amount"`
	Fee            string     `json:"fee"`
	CreatedAt      string     `json:"created_at"`
}

func newPaymentView(p paymentdomain.Payment) paymentView {
	view := paymentView{
		Hash:           p.Hash,
		Account:        p.AccountAddress,
		Destination:    p.DestinationAddress,
		LedgerIndex:    p.LedgerIndex,
		DestinationTag: p.DestinationTag,
		Amount:         p.Amount,
		Fee:            p.Fee,
		CreatedAt:      p.CreatedAt.UTC().Format(time.RFC3339),
	}
	if p.Asset != nil {
		v := newAssetView(*p.Asset)
		view.Asset = &v
	}
	return view
}

func parseOptionalUint64(value string) (*uint64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
