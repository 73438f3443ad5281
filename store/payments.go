package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"noteflow/access"
	"noteflow/models"
)

const (
	DefaultCurrency      = "USD"
	DefaultPaymentMethod = "internal"
	periodsReturned      = 12
)

type PaymentRepo struct {
	db *gorm.DB
}

type PurchaseResult struct {
	Payment     models.Payment
	Note        models.Note
	CreatorName string
}

// Purchase records a completed payment of userID for noteID. The note checks,
// the duplicate check and the insert share one transaction; a concurrent
// duplicate that slips past the check is caught by the unique index.
func (r *PaymentRepo) Purchase(ctx context.Context, userID, noteID, method string) (*PurchaseResult, error) {
	if strings.TrimSpace(method) == "" {
		method = DefaultPaymentMethod
	}

	var out PurchaseResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var note models.Note
		if err := tx.Where("id = ?", noteID).Take(&note).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return access.ErrNotFound
			}
			return err
		}
		if err := access.CheckPurchase(&note, userID); err != nil {
			return err
		}

		// 唯一索引不分状态，这里也不分
		var existing int64
		if err := tx.Model(&models.Payment{}).
			Where("user_id = ? AND note_id = ?", userID, noteID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyPurchased
		}

		var creator models.User
		if err := tx.Select("name").Where("id = ?", note.CreatorID).Take(&creator).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := tx.NowFunc()
		p := models.Payment{
			UserID:        userID,
			NoteID:        noteID,
			CreatorID:     note.CreatorID,
			Amount:        note.Price,
			Currency:      DefaultCurrency,
			Status:        models.PaymentCompleted,
			PaymentMethod: method,
			TransactionID: "TXN-" + uuid.NewString(),
			Metadata: datatypes.JSONMap{
				"note_title":    note.Title,
				"creator_name":  creator.Name,
				"purchase_date": now.UTC().Format(time.RFC3339),
			},
			Date: now,
		}
		if err := insertPayment(tx, &p); err != nil {
			return err
		}

		out = PurchaseResult{Payment: p, Note: note, CreatorName: creator.Name}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// insertPayment writes p unless a payment for the same buyer and note already
// exists, in which case it returns ErrAlreadyPurchased.
func insertPayment(tx *gorm.DB, p *models.Payment) error {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(p)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrAlreadyPurchased
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyPurchased
	}
	return nil
}

func (r *PaymentRepo) HasPurchased(ctx context.Context, userID, noteID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("user_id = ? AND note_id = ? AND status = ?", userID, noteID, models.PaymentCompleted).
		Count(&n).Error
	return n > 0, err
}

// Purchase is one row of a buyer's purchase history.
type Purchase struct {
	ID              string       `json:"id"`
	NoteID          string       `json:"note_id"`
	NoteTitle       string       `json:"note_title"`
	NoteSubject     string       `json:"note_subject"`
	NoteThumbnail   string       `json:"note_thumbnail"`
	NoteContentType string       `json:"note_content_type"`
	CreatorName     string       `json:"creator_name"`
	Amount          models.Money `gorm:"column:amount_cents" json:"amount"`
	Currency        string       `json:"currency"`
	Status          string       `json:"status"`
	Date            time.Time    `json:"date"`
}

func (r *PaymentRepo) ListByUser(ctx context.Context, userID string, page Page) ([]Purchase, int64, error) {
	page = page.Clamp(DefaultLimit)
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Table("payments AS p").
			Joins("INNER JOIN notes n ON n.id = p.note_id").
			Where("p.user_id = ? AND p.status = ?", userID, models.PaymentCompleted)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count purchases: %w", err)
	}

	rows := []Purchase{}
	err := page.apply(base().
		Select("p.id, p.note_id, n.title AS note_title, n.subject AS note_subject, " +
			"COALESCE(n.thumbnail_url, '') AS note_thumbnail, n.content_type AS note_content_type, " +
			"COALESCE(u.name, '') AS creator_name, p.amount_cents, p.currency, p.status, p.date").
		Joins("LEFT JOIN users u ON u.id = n.creator_id").
		Order("p.date DESC, p.id DESC")).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list purchases: %w", err)
	}
	return rows, total, nil
}

type EarningsSummary struct {
	TotalSales    int64        `json:"totalSales"`
	TotalEarnings models.Money `json:"totalEarnings"`
	Currency      string       `json:"currency"`
}

type Sale struct {
	ID         string       `json:"id"`
	Amount     models.Money `gorm:"column:amount_cents" json:"amount"`
	Currency   string       `json:"currency"`
	Date       time.Time    `json:"date"`
	Status     string       `json:"status"`
	NoteID     string       `json:"note_id"`
	NoteTitle  string       `json:"note_title"`
	BuyerName  string       `json:"buyer_name"`
	BuyerEmail string       `json:"buyer_email"`
}

type Earnings struct {
	Summary      EarningsSummary `json:"summary"`
	Transactions []Sale          `json:"transactions"`
}

// CreatorEarnings sums the creator's completed sales and returns one page of
// them, newest first. Sales of deleted notes still count.
func (r *PaymentRepo) CreatorEarnings(ctx context.Context, creatorID string, page Page) (*Earnings, error) {
	page = page.Clamp(DefaultLimit)
	out := &Earnings{
		Summary:      EarningsSummary{Currency: DefaultCurrency},
		Transactions: []Sale{},
	}

	var sum struct {
		Sales int64
		Total int64
	}
	err := r.db.WithContext(ctx).Model(&models.Payment{}).
		Select("COUNT(*) AS sales, COALESCE(SUM(amount_cents), 0) AS total").
		Where("creator_id = ? AND status = ?", creatorID, models.PaymentCompleted).
		Scan(&sum).Error
	if err != nil {
		return nil, fmt.Errorf("sum earnings: %w", err)
	}
	out.Summary.TotalSales = sum.Sales
	out.Summary.TotalEarnings = models.Money(sum.Total)

	err = page.apply(r.db.WithContext(ctx).Table("payments AS p").
		Select("p.id, p.amount_cents, p.currency, p.date, p.status, p.note_id, "+
			"COALESCE(n.title, '') AS note_title, COALESCE(u.name, '') AS buyer_name, COALESCE(u.email, '') AS buyer_email").
		Joins("LEFT JOIN notes n ON n.id = p.note_id").
		Joins("LEFT JOIN users u ON u.id = p.user_id").
		Where("p.creator_id = ? AND p.status = ?", creatorID, models.PaymentCompleted).
		Order("p.date DESC, p.id DESC")).
		Scan(&out.Transactions).Error
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return out, nil
}

type PeriodEarnings struct {
	Period      string       `json:"period"`
	SalesCount  int64        `json:"sales_count"`
	TotalAmount models.Money `json:"total_amount"`
}

var periodFormats = map[string]func(time.Time) string{
	"day":   func(t time.Time) string { return t.Format("2006-01-02") },
	"week":  func(t time.Time) string { y, w := t.ISOWeek(); return fmt.Sprintf("%04d-%02d", y, w) },
	"month": func(t time.Time) string { return t.Format("2006-01") },
	"year":  func(t time.Time) string { return t.Format("2006") },
}

func ValidPeriod(period string) bool {
	_, ok := periodFormats[period]
	return ok
}

// EarningsByPeriod groups completed sales by UTC day, ISO week, month or year
// and returns the latest twelve buckets, newest first.
func (r *PaymentRepo) EarningsByPeriod(ctx context.Context, creatorID, period string) ([]PeriodEarnings, error) {
	format, ok := periodFormats[period]
	if !ok {
		format = periodFormats["month"]
	}

	var rows []struct {
		AmountCents int64
		Date        time.Time
	}
	err := r.db.WithContext(ctx).Model(&models.Payment{}).
		Select("amount_cents, date").
		Where("creator_id = ? AND status = ?", creatorID, models.PaymentCompleted).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load sales: %w", err)
	}

	buckets := map[string]*PeriodEarnings{}
	for _, row := range rows {
		key := format(row.Date.UTC())
		b, ok := buckets[key]
		if !ok {
			b = &PeriodEarnings{Period: key}
			buckets[key] = b
		}
		b.SalesCount++
		b.TotalAmount += models.Money(row.AmountCents)
	}

	out := make([]PeriodEarnings, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period > out[j].Period })
	if len(out) > periodsReturned {
		out = out[:periodsReturned]
	}
	return out, nil
}

// PaymentView is a payment with the title of the purchased note.
type PaymentView struct {
	models.Payment
	NoteTitle string `gorm:"column:note_title" json:"note_title"`
}

func (r *PaymentRepo) Get(ctx context.Context, id string) (*PaymentView, error) {
	var v PaymentView
	err := r.db.WithContext(ctx).Table("payments AS p").
		Select("p.*, COALESCE(n.title, '') AS note_title").
		Joins("LEFT JOIN notes n ON n.id = p.note_id").
		Where("p.id = ?", id).
		Take(&v).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}
