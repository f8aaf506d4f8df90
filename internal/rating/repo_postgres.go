package rating

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo loads rating data from the billing schema.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const listDestinationsSQL = `
SELECT id, prefix, name, COALESCE(country_iso2, ''), status
FROM destinations`

func (r *PostgresRepo) ListDestinations(ctx context.Context) ([]Destination, error) {
	rows, err := r.db.QueryContext(ctx, listDestinationsSQL)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	defer rows.Close()

	var out []Destination
	for rows.Next() {
		var d Destination
		if err := rows.Scan(&d.ID, &d.Prefix, &d.Name, &d.CountryISO2, &d.Status); err != nil {
			return nil, fmt.Errorf("list destinations: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const listRatesSQL = `
SELECT id, rate_card_id, destination_id, cost_per_minute_minor, sell_per_minute_minor,
	minimum_seconds, increment_seconds, effective_from, effective_to
FROM rates
WHERE rate_card_id = $1 AND destination_id = $2`

func (r *PostgresRepo) ListRates(ctx context.Context, rateCardID, destinationID string) ([]Rate, error) {
	rows, err := r.db.QueryContext(ctx, listRatesSQL, rateCardID, destinationID)
	if err != nil {
		return nil, fmt.Errorf("list rates: %w", err)
	}
	defer rows.Close()

	var out []Rate
	for rows.Next() {
		var rt Rate
		if err := rows.Scan(&rt.ID, &rt.RateCardID, &rt.DestinationID,
			&rt.CostPerMinuteMinor, &rt.SellPerMinuteMinor,
			&rt.MinimumSeconds, &rt.IncrementSeconds,
			&rt.EffectiveFrom, &rt.EffectiveTo); err != nil {
			return nil, fmt.Errorf("list rates: %w", err)
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}
