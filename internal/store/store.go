// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package store implements the entity store: the in-memory book of open
// orders and in-flight trades, and the two monotonic id counters that
// name them. All operations are synchronous and atomic with respect to
// each other; callers needing a wider critical section (e.g. pairing a
// mutation with a durable-log append) must hold their own lock around
// both - Store's own mutex only protects its own maps.
package store

import "sync"

// Store is the entity store: the open-order book, the in-flight trade
// table, and their id counters. The zero value is not usable; construct
// with New.
type Store struct {
	mu sync.Mutex

	nextOrderID int64
	nextTradeID int64

	orders map[int64]*Order
	trades map[int64]*Trade
}

// New returns an empty Store with both id counters starting at 0; the
// first allocated id of each kind is 1.
func New() *Store {
	return &Store{
		orders: make(map[int64]*Order),
		trades: make(map[int64]*Trade),
	}
}

// CreateOrder allocates the next order id and stores order under it.
// order.ID is overwritten with the allocated id.
func (s *Store) CreateOrder(order *Order) *Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOrderID++
	order.ID = s.nextOrderID
	s.orders[order.ID] = order
	return order
}

// DeleteOrder removes the order with the given id if present, reporting
// whether it was found.
func (s *Store) DeleteOrder(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return false
	}
	delete(s.orders, id)
	return true
}

// CreateTrade atomically consumes the order with the given id - removing
// it from the order table - and creates a trade that takes over that same
// order record, accepted by initiatorAddr. Reports ok=false, leaving the store
// unchanged, if the order is absent.
func (s *Store) CreateTrade(orderID int64, initiatorAddr string) (trade *Trade, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, found := s.orders[orderID]
	if !found {
		return nil, false
	}
	delete(s.orders, orderID)
	s.nextTradeID++
	trade = &Trade{
		ID:               s.nextTradeID,
		Order:            order,
		InitiatorAddress: initiatorAddr,
	}
	s.trades[trade.ID] = trade
	return trade, true
}

// UpdateTrade looks up the trade named by id and, if found, calls apply
// with it under the store's lock so the caller can mutate it atomically.
// Reports ok=false, without calling apply, if no such trade exists.
func (s *Store) UpdateTrade(id int64, apply func(t *Trade)) (trade *Trade, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trade, found := s.trades[id]
	if !found {
		return nil, false
	}
	apply(trade)
	return trade, true
}

// Snapshot returns independent copies of every order and trade currently
// held, safe for a caller to read or marshal without further locking.
func (s *Store) Snapshot() (orders []*Order, trades []*Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders = make([]*Order, 0, len(s.orders))
	for _, o := range s.orders {
		cp := *o
		orders = append(orders, &cp)
	}
	trades = make([]*Trade, 0, len(s.trades))
	for _, t := range s.trades {
		trades = append(trades, t.clone())
	}
	return orders, trades
}

// MaxIDs returns the current order and trade id counters, for tests that
// need to assert monotonicity across a recovery cycle.
func (s *Store) MaxIDs() (orderID, tradeID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextOrderID, s.nextTradeID
}
