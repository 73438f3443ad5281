package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"noteflow/access"
	"noteflow/store"
)

type purchaseInput struct {
	NoteID        string `json:"note_id" binding:"required,uuid"`
	PaymentMethod string `json:"payment_method" binding:"max=50"`
}

func (in *purchaseInput) normalize() {
	in.PaymentMethod = strings.TrimSpace(in.PaymentMethod)
}

func (s *Server) purchase(c *gin.Context) {
	var in purchaseInput
	if !bind(c, &in) {
		return
	}
	buyer := s.user(c)

	res, err := s.store.Payments.Purchase(c.Request.Context(), buyer.ID, in.NoteID, in.PaymentMethod)
	switch {
	case errors.Is(err, access.ErrNotFound):
		fail(c, http.StatusNotFound, "Note not found")
		return
	case errors.Is(err, access.ErrOwnNote):
		fail(c, http.StatusForbidden, "You cannot purchase your own note")
		return
	case errors.Is(err, access.ErrFreeNote):
		fail(c, http.StatusBadRequest, "This note is free and does not require purchase")
		return
	case errors.Is(err, store.ErrAlreadyPurchased):
		fail(c, http.StatusBadRequest, "You have already purchased this note")
		return
	case err != nil:
		s.serverError(c, "Server error while processing purchase", err)
		return
	}

	d := access.Decide(&res.Note, access.Requester{UserID: buyer.ID}, true)
	p := res.Payment
	respond(c, http.StatusCreated, "Note purchased successfully", gin.H{
		"payment": gin.H{
			"id":       p.ID,
			"note_id":  p.NoteID,
			"amount":   p.Amount,
			"currency": p.Currency,
			"status":   p.Status,
			"date":     p.Date,
		},
		"note": gin.H{
			"id":             res.Note.ID,
			"title":          res.Note.Title,
			"subject":        res.Note.Subject,
			"creator_name":   res.CreatorName,
			"content_access": d.Content,
		},
	})
}

func (s *Server) myPurchases(c *gin.Context) {
	page, ok := pageQuery(c, store.DefaultLimit)
	if !ok {
		return
	}
	purchases, total, err := s.store.Payments.ListByUser(c.Request.Context(), s.user(c).ID, page)
	if err != nil {
		s.serverError(c, "Server error while fetching purchases", err)
		return
	}
	respond(c, http.StatusOK, "Purchases retrieved successfully", gin.H{
		"purchases":  purchases,
		"pagination": paginate(total, page),
	})
}

func (s *Server) creatorEarnings(c *gin.Context) {
	user := s.user(c)
	if !user.IsCreator() {
		fail(c, http.StatusForbidden, "Access denied. Only creators can view earnings")
		return
	}
	page, ok := pageQuery(c, store.DefaultLimit)
	if !ok {
		return
	}
	period := c.Query("period")
	if period != "" && !store.ValidPeriod(period) {
		invalid(c, fieldError{Field: "period", Message: "Period must be one of: day, week, month, year"})
		return
	}

	ctx := c.Request.Context()
	earnings, err := s.store.Payments.CreatorEarnings(ctx, user.ID, page)
	if err != nil {
		s.serverError(c, "Server error while fetching earnings", err)
		return
	}
	data := gin.H{
		"summary":      earnings.Summary,
		"transactions": earnings.Transactions,
		"pagination":   paginate(earnings.Summary.TotalSales, page),
	}
	if period != "" {
		analytics, err := s.store.Payments.EarningsByPeriod(ctx, user.ID, period)
		if err != nil {
			s.serverError(c, "Server error while fetching earnings", err)
			return
		}
		data["analytics"] = analytics
	}
	respond(c, http.StatusOK, "Earnings retrieved successfully", data)
}

func (s *Server) getPayment(c *gin.Context) {
	id, ok := idParam(c, "id", "payment ID")
	if !ok {
		return
	}
	p, err := s.store.Payments.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, "Payment not found")
			return
		}
		s.serverError(c, "Server error while fetching payment", err)
		return
	}

	uid := s.user(c).ID
	if p.UserID != uid && p.CreatorID != uid {
		fail(c, http.StatusForbidden, "Access denied. You can only view your own payments")
		return
	}
	respond(c, http.StatusOK, "Payment retrieved successfully", gin.H{"payment": p})
}
