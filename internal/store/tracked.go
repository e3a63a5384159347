package store

import (
	"context"
	"fmt"
)

// TrackedRoute is one (product, trade-route) pair a client monitors.
type TrackedRoute struct {
	ClientID  string `json:"client_id"`
	ProductID string `json:"product_id"`
	RouteID   string `json:"route_id"`
}

// ListRoutes returns a client's tracked portfolio in stable order.
func (s *Store) ListRoutes(ctx context.Context, clientID string) ([]TrackedRoute, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT client_id, product_id, route_id
		FROM tracked_routes
		WHERE client_id = $1
		ORDER BY product_id, route_id`,
		clientID)
	if err != nil {
		return nil, fmt.Errorf("listing tracked routes: %w", err)
	}
	defer rows.Close()

	var routes []TrackedRoute
	for rows.Next() {
		var r TrackedRoute
		if err := rows.Scan(&r.ClientID, &r.ProductID, &r.RouteID); err != nil {
			return nil, fmt.Errorf("scanning tracked route: %w", err)
		}
		routes = append(routes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading tracked routes: %w", err)
	}
	return routes, nil
}

// AddRoute starts tracking a pair. Adding an existing pair is a no-op.
func (s *Store) AddRoute(ctx context.Context, r TrackedRoute) error {
	if r.ClientID == "" || r.ProductID == "" || r.RouteID == "" {
		return fmt.Errorf("client_id, product_id and route_id are required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tracked_routes (client_id, product_id, route_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`,
		r.ClientID, r.ProductID, r.RouteID)
	if err != nil {
		return fmt.Errorf("adding tracked route: %w", err)
	}
	return nil
}

// RemoveRoute stops tracking a pair. Removing a missing pair is a no-op.
func (s *Store) RemoveRoute(ctx context.Context, r TrackedRoute) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM tracked_routes
		WHERE client_id = $1 AND product_id = $2 AND route_id = $3`,
		r.ClientID, r.ProductID, r.RouteID)
	if err != nil {
		return fmt.Errorf("removing tracked route: %w", err)
	}
	return nil
}
