package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Transaction is a completed sale between a farmer and a buyer.
type Transaction struct {
	ID       string  `json:"id"`
	FarmerID string  `json:"farmer_id,omitempty"`
	BuyerID  string  `json:"buyer_id,omitempty"`
	Crop     string  `json:"crop_type"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Date     string  `json:"transaction_date" format:"date-time"`
}

func (r Repo) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	t.Crop = strings.ToLower(strings.TrimSpace(t.Crop))
	if t.Crop == "" {
		return Transaction{}, errors.New("crop_type required")
	}
	if t.Quantity <= 0 || t.Price <= 0 {
		return Transaction{}, errors.New("quantity and price must be positive")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Date == "" {
		t.Date = r.now()
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO transactions(id,farmer_id,buyer_id,crop_type,quantity,price,transaction_date) VALUES (?,?,?,?,?,?,?)`,
		t.ID, nullable(t.FarmerID), nullable(t.BuyerID), t.Crop, t.Quantity, t.Price, t.Date)
	if err != nil {
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

func (r Repo) ListTransactions(ctx context.Context, crop string, limit int) ([]Transaction, error) {
	query := `SELECT id,COALESCE(farmer_id,''),COALESCE(buyer_id,''),crop_type,quantity,price,transaction_date FROM transactions`
	var args []any
	if crop != "" {
		query += ` WHERE crop_type=?`
		args = append(args, strings.ToLower(crop))
	}
	query += ` ORDER BY transaction_date DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.FarmerID, &t.BuyerID, &t.Crop, &t.Quantity, &t.Price, &t.Date); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// AveragePrice returns the quantity-weighted mean sale price of crop since the
// given time and the number of sales it covers.
func (r Repo) AveragePrice(ctx context.Context, crop string, since time.Time) (float64, int, error) {
	var (
		avg sql.NullFloat64
		n   int
	)
	err := r.DB.QueryRowContext(ctx, `SELECT SUM(price*quantity)/SUM(quantity), COUNT(*) FROM transactions WHERE crop_type=? AND transaction_date>=?`,
		strings.ToLower(crop), since.UTC().Format(time.RFC3339)).Scan(&avg, &n)
	if err != nil {
		return 0, 0, err
	}
	if !avg.Valid {
		return 0, 0, nil
	}
	return avg.Float64, n, nil
}
