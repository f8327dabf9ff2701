package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pizzaplan/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies every .sql file in dir in lexical order. Files are
// expected to be idempotent (CREATE TABLE IF NOT EXISTS style).
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(data)); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}
	return nil
}

func (p *Postgres) CreateRestaurant(ctx context.Context, in model.Restaurant) (model.Restaurant, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO restaurants (id, name, metadata) VALUES ($1,$2,$3)`,
		in.ID, in.Name, toJSON(in.Metadata))
	if err != nil {
		return model.Restaurant{}, err
	}
	return in, nil
}

func (p *Postgres) GetRestaurant(ctx context.Context, id string) (model.Restaurant, error) {
	var r model.Restaurant
	var meta []byte
	err := p.db.QueryRowContext(ctx, `SELECT id::text, name, metadata FROM restaurants WHERE id=$1`, id).
		Scan(&r.ID, &r.Name, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Restaurant{}, ErrNotFound
	}
	if err != nil {
		return model.Restaurant{}, err
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &r.Metadata)
	}
	return r, nil
}

func (p *Postgres) ListRestaurants(ctx context.Context, cursor string, limit int) ([]model.Restaurant, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, name, metadata FROM restaurants WHERE id::text > $1 ORDER BY id LIMIT $2`,
		cursor, limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Restaurant{}
	for rows.Next() {
		var r model.Restaurant
		var meta []byte
		if err := rows.Scan(&r.ID, &r.Name, &meta); err != nil {
			return nil, "", err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &r.Metadata)
		}
		out = append(out, r)
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) CreateTopping(ctx context.Context, in model.Topping) (model.Topping, error) {
	if _, err := p.GetRestaurant(ctx, in.RestaurantID); err != nil {
		return model.Topping{}, err
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO toppings (id, restaurant_id, name) VALUES ($1,$2,$3)`,
		in.ID, in.RestaurantID, in.Name)
	if err != nil {
		return model.Topping{}, err
	}
	return in, nil
}

func (p *Postgres) ListToppings(ctx context.Context, restaurantID string) ([]model.Topping, error) {
	if _, err := p.GetRestaurant(ctx, restaurantID); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, restaurant_id::text, name FROM toppings WHERE restaurant_id=$1 ORDER BY created_at, id`, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Topping{}
	for rows.Next() {
		var t model.Topping
		if err := rows.Scan(&t.ID, &t.RestaurantID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) CreatePerson(ctx context.Context, in model.Person) (model.Person, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO people (id, name, email, unrated_is_dislike) VALUES ($1,$2,$3,$4)`,
		in.ID, in.Name, nullIfEmpty(in.Email), in.UnratedIsDislike)
	if err != nil {
		return model.Person{}, err
	}
	return in, nil
}

func (p *Postgres) GetPerson(ctx context.Context, id string) (model.Person, error) {
	var out model.Person
	var email sql.NullString
	err := p.db.QueryRowContext(ctx,
		`SELECT id::text, name, email, unrated_is_dislike FROM people WHERE id=$1`, id).
		Scan(&out.ID, &out.Name, &email, &out.UnratedIsDislike)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Person{}, ErrNotFound
	}
	if err != nil {
		return model.Person{}, err
	}
	out.Email = email.String
	return out, nil
}

func (p *Postgres) ListPeople(ctx context.Context, cursor string, limit int) ([]model.Person, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, name, email, unrated_is_dislike FROM people WHERE id::text > $1 ORDER BY id LIMIT $2`,
		cursor, limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Person{}
	for rows.Next() {
		var pe model.Person
		var email sql.NullString
		if err := rows.Scan(&pe.ID, &pe.Name, &email, &pe.UnratedIsDislike); err != nil {
			return nil, "", err
		}
		pe.Email = email.String
		out = append(out, pe)
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) PutPreference(ctx context.Context, rec model.PreferenceRecord) error {
	res, err := p.db.ExecContext(ctx, `INSERT INTO preferences (person_id, topping_id, pref)
		SELECT $1, $2, $3 WHERE EXISTS (SELECT 1 FROM people WHERE id=$1) AND EXISTS (SELECT 1 FROM toppings WHERE id=$2)
		ON CONFLICT (person_id, topping_id) DO UPDATE SET pref=EXCLUDED.pref`,
		rec.PersonID, rec.ToppingID, int(rec.Pref))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListPreferences(ctx context.Context, restaurantID string, personIDs []string) ([]model.PreferenceRecord, error) {
	ids, err := json.Marshal(personIDs)
	if err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `SELECT pr.person_id::text, pr.topping_id::text, pr.pref
		FROM preferences pr
		JOIN toppings t ON t.id = pr.topping_id
		WHERE t.restaurant_id = $1 AND pr.person_id::text IN (SELECT jsonb_array_elements_text($2::jsonb))
		ORDER BY pr.person_id, pr.topping_id`, restaurantID, string(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.PreferenceRecord{}
	for rows.Next() {
		var r model.PreferenceRecord
		var pref int
		if err := rows.Scan(&r.PersonID, &r.ToppingID, &pref); err != nil {
			return nil, err
		}
		r.Pref = model.Preference(pref)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateOrder(ctx context.Context, in model.OrderIn) (model.Order, error) {
	o := model.Order{ID: uuid.NewString(), OrderIn: in, Status: "draft"}
	participants, err := json.Marshal(in.ParticipantIDs)
	if err != nil {
		return model.Order{}, err
	}
	var balance any
	if in.BalanceLoad != nil {
		balance = *in.BalanceLoad
	}
	var created time.Time
	err = p.db.QueryRowContext(ctx, `INSERT INTO orders
		(id, restaurant_id, pizza_count, toppings_per_pizza, participant_ids, objective, shareability_weight, balance_load, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'draft') RETURNING created_at`,
		o.ID, in.RestaurantID, in.PizzaCount, in.ToppingsPerPizza, string(participants),
		nullIfEmpty(string(in.Objective)), in.ShareabilityWeight, balance).Scan(&created)
	if err != nil {
		return model.Order{}, err
	}
	o.CreatedAt = created.UTC().Format(time.RFC3339)
	return o, nil
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (model.Order, error) {
	return p.scanOrder(p.db.QueryRowContext(ctx, `SELECT id::text, restaurant_id::text, pizza_count,
		toppings_per_pizza, participant_ids, COALESCE(objective,''), shareability_weight, balance_load, status, created_at
		FROM orders WHERE id=$1`, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (p *Postgres) scanOrder(row rowScanner) (model.Order, error) {
	var o model.Order
	var participants []byte
	var objective string
	var balance sql.NullBool
	var created time.Time
	err := row.Scan(&o.ID, &o.RestaurantID, &o.PizzaCount, &o.ToppingsPerPizza,
		&participants, &objective, &o.ShareabilityWeight, &balance, &o.Status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	if len(participants) > 0 {
		_ = json.Unmarshal(participants, &o.ParticipantIDs)
	}
	o.Objective = model.ObjectiveMode(objective)
	if balance.Valid {
		b := balance.Bool
		o.BalanceLoad = &b
	}
	o.CreatedAt = created.UTC().Format(time.RFC3339)
	return o, nil
}

func (p *Postgres) ListOrders(ctx context.Context, status, cursor string, limit int) ([]model.Order, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, restaurant_id::text, pizza_count, toppings_per_pizza, participant_ids,
		COALESCE(objective,''), shareability_weight, balance_load, status, created_at
		FROM orders WHERE id::text > $1`
	args := []any{cursor}
	if status != "" {
		q += ` AND status = $3`
		args = append(args, limit+1, status)
	} else {
		args = append(args, limit+1)
	}
	q += ` ORDER BY id LIMIT $2`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Order{}
	for rows.Next() {
		o, err := p.scanOrder(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, o)
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) SetOrderStatus(ctx context.Context, id, status string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SaveResult(ctx context.Context, res model.SolveResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}
	out, err := p.db.ExecContext(ctx, `INSERT INTO solve_results (id, order_id, status, reason, objective, payload, elapsed_ms)
		SELECT $1, $2, $3, $4, $5, $6, $7 WHERE EXISTS (SELECT 1 FROM orders WHERE id=$2)`,
		res.ID, res.OrderID, string(res.Status), nullIfEmpty(res.Reason), res.Objective, payload, res.ElapsedMs)
	if err != nil {
		return err
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) LatestResult(ctx context.Context, orderID string) (model.SolveResult, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT payload FROM solve_results WHERE order_id=$1 ORDER BY created_at DESC LIMIT 1`, orderID).
		Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SolveResult{}, ErrNotFound
	}
	if err != nil {
		return model.SolveResult{}, err
	}
	var res model.SolveResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return model.SolveResult{}, err
	}
	return res, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, in model.Subscription) (model.Subscription, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	events, err := json.Marshal(in.EventTypes)
	if err != nil {
		return model.Subscription{}, err
	}
	var created time.Time
	err = p.db.QueryRowContext(ctx, `INSERT INTO subscriptions (id, url, secret, event_types)
		VALUES ($1,$2,$3,$4) RETURNING created_at`,
		in.ID, in.URL, nullIfEmpty(in.Secret), string(events)).Scan(&created)
	if err != nil {
		return model.Subscription{}, err
	}
	in.CreatedAt = created.UTC().Format(time.RFC3339)
	return in, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), event_types, created_at
		FROM subscriptions WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, s)
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, rows.Err()
}

func scanSubscription(row rowScanner) (model.Subscription, error) {
	var s model.Subscription
	var events []byte
	var created time.Time
	if err := row.Scan(&s.ID, &s.URL, &s.Secret, &events, &created); err != nil {
		return model.Subscription{}, err
	}
	if len(events) > 0 {
		_ = json.Unmarshal(events, &s.EventTypes)
	}
	s.CreatedAt = created.UTC().Format(time.RFC3339)
	return s, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), event_types, created_at
		FROM subscriptions WHERE event_types = '[]'::jsonb OR event_types @> to_jsonb($1::text) OR event_types @> '"*"'::jsonb
		ORDER BY id`, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.NewString()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries
		(id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now())`,
		id, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
		FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now()
		ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered',
			delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`,
			id, responseCode, latencyMs)
		return err
	}
	if nextAttemptAt == nil {
		t := time.Now().Add(time.Minute)
		nextAttemptAt = &t
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry',
		last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
		id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2,
		updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func toJSON(m map[string]any) any {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}
