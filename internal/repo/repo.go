package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"harvestlink/internal/domain"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() string {
	if r.Now != nil {
		return r.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// UpsertFarmer registers a farmer by phone number or refreshes the location and
// crops of an existing one. Empty fields never overwrite stored values.
func (r Repo) UpsertFarmer(ctx context.Context, f domain.Farmer) (domain.Farmer, error) {
	if strings.TrimSpace(f.Phone) == "" {
		return domain.Farmer{}, errors.New("phone required")
	}
	now := r.now()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO farmers(id,phone,name,location,crops,created_at,updated_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(phone) DO UPDATE SET
  name=COALESCE(excluded.name, farmers.name),
  location=COALESCE(excluded.location, farmers.location),
  crops=COALESCE(excluded.crops, farmers.crops),
  updated_at=excluded.updated_at`,
		f.ID, f.Phone, nullable(f.Name), nullable(f.Location), nullable(f.Crops), now, now)
	if err != nil {
		return domain.Farmer{}, fmt.Errorf("upsert farmer: %w", err)
	}
	return r.GetFarmerByPhone(ctx, f.Phone)
}

func (r Repo) GetFarmerByPhone(ctx context.Context, phone string) (domain.Farmer, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,phone,COALESCE(name,''),COALESCE(location,''),COALESCE(crops,''),created_at,updated_at FROM farmers WHERE phone=?`, phone)
	var f domain.Farmer
	err := row.Scan(&f.ID, &f.Phone, &f.Name, &f.Location, &f.Crops, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	return f, err
}

func (r Repo) ListFarmers(ctx context.Context) ([]domain.Farmer, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,phone,COALESCE(name,''),COALESCE(location,''),COALESCE(crops,''),created_at,updated_at FROM farmers ORDER BY created_at DESC, phone`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Farmer
	for rows.Next() {
		var f domain.Farmer
		if err := rows.Scan(&f.ID, &f.Phone, &f.Name, &f.Location, &f.Crops, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func (r Repo) InsertBuyer(ctx context.Context, b domain.Buyer) (domain.Buyer, error) {
	if strings.TrimSpace(b.Name) == "" {
		return domain.Buyer{}, errors.New("name required")
	}
	if strings.TrimSpace(b.CropsInterested) == "" {
		return domain.Buyer{}, errors.New("crops_interested required")
	}
	if strings.TrimSpace(b.Location) == "" {
		return domain.Buyer{}, errors.New("location required")
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.PriceRange == "" {
		b.PriceRange = "Market rate"
	}
	b.CropsInterested = normalizeCrops(b.CropsInterested)
	b.CreatedAt = r.now()
	_, err := r.DB.ExecContext(ctx, `INSERT INTO buyers(id,name,phone,crops_interested,location,price_range,created_at) VALUES (?,?,?,?,?,?,?)`,
		b.ID, b.Name, nullable(b.Phone), b.CropsInterested, b.Location, b.PriceRange, b.CreatedAt)
	if err != nil {
		return domain.Buyer{}, fmt.Errorf("insert buyer: %w", err)
	}
	return b, nil
}

func (r Repo) ListBuyers(ctx context.Context) ([]domain.Buyer, error) {
	return r.queryBuyers(ctx, `SELECT id,name,COALESCE(phone,''),crops_interested,location,price_range,created_at FROM buyers ORDER BY name`)
}

// BuyersForCrop returns buyers interested in crop, including those buying all
// crops. The crop "all" returns every buyer.
func (r Repo) BuyersForCrop(ctx context.Context, crop string) ([]domain.Buyer, error) {
	crop = strings.ToLower(strings.TrimSpace(crop))
	if crop == "" || crop == "all" {
		return r.ListBuyers(ctx)
	}
	all, err := r.ListBuyers(ctx)
	if err != nil {
		return nil, err
	}
	var res []domain.Buyer
	for _, b := range all {
		for _, c := range strings.Split(b.CropsInterested, ",") {
			if c == crop || c == "all" {
				res = append(res, b)
				break
			}
		}
	}
	return res, nil
}

func (r Repo) queryBuyers(ctx context.Context, query string, args ...any) ([]domain.Buyer, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Buyer
	for rows.Next() {
		var b domain.Buyer
		if err := rows.Scan(&b.ID, &b.Name, &b.Phone, &b.CropsInterested, &b.Location, &b.PriceRange, &b.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// DefaultBuyers is the reference buyer directory loaded by SeedBuyers.
var DefaultBuyers = []domain.Buyer{
	{Name: "AgriCorp Kenya", Phone: "+254700123456", CropsInterested: "maize,wheat,beans", Location: "Nairobi", PriceRange: "200-250 KES/kg"},
	{Name: "Fresh Produce Ltd", Phone: "+254700234567", CropsInterested: "tomatoes,beans", Location: "Mombasa", PriceRange: "150-200 KES/kg"},
	{Name: "Grain Traders Co", Phone: "+254700345678", CropsInterested: "maize,rice,wheat", Location: "Kisumu", PriceRange: "180-220 KES/kg"},
	{Name: "Farm Fresh Kenya", Phone: "+254700456789", CropsInterested: "all", Location: "Nakuru", PriceRange: "Market rate"},
	{Name: "Export Quality Foods", Phone: "+254700567890", CropsInterested: "maize,wheat", Location: "Eldoret", PriceRange: "220-280 KES/kg"},
	{Name: "Local Market Hub", Phone: "+254700678901", CropsInterested: "all", Location: "Thika", PriceRange: "Competitive rates"},
	{Name: "Organic Farmers Coop", Phone: "+254700789012", CropsInterested: "beans,tomatoes", Location: "Meru", PriceRange: "Premium rates"},
	{Name: "Bulk Buyers Kenya", Phone: "+254700890123", CropsInterested: "maize,rice", Location: "Kakamega", PriceRange: "Wholesale rates"},
}

// SeedBuyers inserts DefaultBuyers, skipping names that already exist. It
// returns the number of rows added.
func (r Repo) SeedBuyers(ctx context.Context) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	now := r.now()
	added := 0
	for _, b := range DefaultBuyers {
		res, err := tx.ExecContext(ctx, `INSERT INTO buyers(id,name,phone,crops_interested,location,price_range,created_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(name) DO NOTHING`, uuid.NewString(), b.Name, nullable(b.Phone), b.CropsInterested, b.Location, b.PriceRange, now)
		if err != nil {
			return 0, fmt.Errorf("seed buyer %s: %w", b.Name, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	return added, tx.Commit()
}

func (r Repo) InsertPrediction(ctx context.Context, p domain.Prediction) (domain.Prediction, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = r.now()
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO loss_predictions(id,farmer_phone,channel,crop_type,quantity,location,storage_method,weather_condition,risk_tier,confidence,price_estimate,mitigation_advice,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.FarmerPhone, p.Channel, p.Crop, p.Quantity, p.Location, p.Storage, p.Weather, p.RiskTier, p.Confidence, p.PriceEstimate, nullable(p.MitigationNote), p.CreatedAt)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("insert prediction: %w", err)
	}
	return p, nil
}

// ListPredictions returns the newest predictions first, optionally for one phone.
func (r Repo) ListPredictions(ctx context.Context, phone string, limit int) ([]domain.Prediction, error) {
	query := `SELECT id,farmer_phone,channel,crop_type,quantity,location,storage_method,weather_condition,risk_tier,confidence,price_estimate,COALESCE(mitigation_advice,''),created_at FROM loss_predictions`
	var args []any
	if phone != "" {
		query += ` WHERE farmer_phone=?`
		args = append(args, phone)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Prediction
	for rows.Next() {
		var p domain.Prediction
		if err := rows.Scan(&p.ID, &p.FarmerPhone, &p.Channel, &p.Crop, &p.Quantity, &p.Location, &p.Storage, &p.Weather, &p.RiskTier, &p.Confidence, &p.PriceEstimate, &p.MitigationNote, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// LatestEvents returns up to n events, newest first, filtered by type and session when set.
func (r Repo) LatestEvents(ctx context.Context, n int, evtType, sessionID string) ([]domain.Event, error) {
	clauses := []string{}
	args := []any{}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if sessionID != "" {
		clauses = append(clauses, "session_id=?")
		args = append(args, sessionID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	if n <= 0 {
		n = 20
	}
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(session_id,''),COALESCE(phone,''),payload_json FROM events `+where+` ORDER BY id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.SessionID, &e.Phone, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func normalizeCrops(crops string) string {
	var out []string
	for _, c := range strings.Split(crops, ",") {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			out = append(out, c)
		}
	}
	return strings.Join(out, ",")
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
