// Package pipelinetest provides in-memory stand-ins for the stores, the
// publisher and the idempotency store used by the pipeline stages.
package pipelinetest

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"checkout-pipeline/models"
	"checkout-pipeline/repository"

	"github.com/samber/lo"
)

// Message is one message accepted by Publisher.
type Message struct {
	Queue string
	Type  string
	Body  []byte
}

// Publisher records published messages. Err, when set, fails every publish.
type Publisher struct {
	mu       sync.Mutex
	messages []Message

	Err error
}

func (p *Publisher) Publish(_ context.Context, queue, msgType string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return p.Err
	}
	p.messages = append(p.messages, Message{Queue: queue, Type: msgType, Body: slices.Clone(body)})
	return nil
}

func (p *Publisher) Messages(queue string) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	return lo.Filter(p.messages, func(m Message, _ int) bool { return m.Queue == queue })
}

// Decode unmarshals the body of the i-th message published to queue.
func (p *Publisher) Decode(queue string, i int, v any) error {
	msgs := p.Messages(queue)
	if i >= len(msgs) {
		return fmt.Errorf("queue %s has %d messages", queue, len(msgs))
	}
	return json.Unmarshal(msgs[i].Body, v)
}

// OrderLines is an OrderLineRepository kept in memory. It follows the
// MySQL semantics the pipeline relies on: a repeated upsert leaves the
// stored line untouched, a line of another customer or product is a
// conflict, MarkOrderCompleted reports matched rows.
type OrderLines struct {
	mu    sync.Mutex
	lines map[string]models.OrderLine

	// UpsertErr, when set, fails every UpsertLine.
	UpsertErr error
}

func NewOrderLines() *OrderLines {
	return &OrderLines{lines: make(map[string]models.OrderLine)}
}

func (s *OrderLines) UpsertLine(_ context.Context, line models.OrderLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UpsertErr != nil {
		return s.UpsertErr
	}

	if existing, ok := s.lines[line.LineID]; ok {
		if existing.Customer != line.Customer || existing.ProductID != line.ProductID {
			return fmt.Errorf("upsertLine[%s]: %w", line.LineID, repository.ErrLineConflict)
		}
		return nil
	}
	s.lines[line.LineID] = line
	return nil
}

func (s *OrderLines) GetLine(_ context.Context, lineID string) (models.OrderLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, ok := s.lines[lineID]
	if !ok {
		return models.OrderLine{}, fmt.Errorf("getLine: %w", repository.ErrNotFound)
	}
	return line, nil
}

func (s *OrderLines) ListByOrder(_ context.Context, orderID string) ([]models.OrderLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := lo.Filter(lo.Values(s.lines), func(l models.OrderLine, _ int) bool { return l.OrderID == orderID })
	slices.SortFunc(lines, func(a, b models.OrderLine) int {
		if c := strings.Compare(a.ProductName, b.ProductName); c != 0 {
			return c
		}
		return strings.Compare(a.LineID, b.LineID)
	})
	return lines, nil
}

func (s *OrderLines) ListLines(_ context.Context, filter models.OrderLineFilter) ([]models.OrderLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := lo.Filter(lo.Values(s.lines), func(l models.OrderLine, _ int) bool {
		if filter.Status != nil && l.Status != *filter.Status {
			return false
		}
		return filter.Customer == "" || l.Customer == filter.Customer
	})
	slices.SortFunc(lines, func(a, b models.OrderLine) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if c := strings.Compare(a.OrderID, b.OrderID); c != 0 {
			return c
		}
		return strings.Compare(a.LineID, b.LineID)
	})
	if filter.Limit <= 0 {
		return lines, nil
	}

	// the limit counts orders, newest first by their earliest line
	firstSeen := make(map[string]time.Time)
	for _, l := range lines {
		if at, ok := firstSeen[l.OrderID]; !ok || l.CreatedAt.Before(at) {
			firstSeen[l.OrderID] = l.CreatedAt
		}
	}
	orders := lo.Keys(firstSeen)
	slices.SortFunc(orders, func(a, b string) int {
		if c := firstSeen[b].Compare(firstSeen[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	if len(orders) > filter.Limit {
		orders = orders[:filter.Limit]
	}

	return lo.Filter(lines, func(l models.OrderLine, _ int) bool {
		return lo.Contains(orders, l.OrderID)
	}), nil
}

func (s *OrderLines) UpdateStatus(_ context.Context, lineID string, status models.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, ok := s.lines[lineID]
	if !ok {
		return fmt.Errorf("updateStatus: %w", repository.ErrNotFound)
	}
	line.Status = status
	s.lines[lineID] = line
	return nil
}

func (s *OrderLines) UpdateOrderStatus(_ context.Context, orderID string, status models.OrderStatus) (int64, error) {
	return s.updateOrder(orderID, func(l *models.OrderLine) { l.Status = status }), nil
}

func (s *OrderLines) MarkOrderCompleted(_ context.Context, orderID string, at time.Time) (int64, error) {
	return s.updateOrder(orderID, func(l *models.OrderLine) {
		l.Status = models.StatusCompleted
		l.ProcessedAt = &at
	}), nil
}

func (s *OrderLines) AttachPaymentProof(_ context.Context, lineID string, proof models.PaymentProof) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, ok := s.lines[lineID]
	if !ok {
		return fmt.Errorf("attachPaymentProof: %w", repository.ErrNotFound)
	}
	line.ContractFileName = lo.ToPtr(proof.FileName)
	line.ContractOriginalFileName = lo.EmptyableToPtr(proof.OriginalFileName)
	line.ContractContentType = lo.EmptyableToPtr(proof.ContentType)
	s.lines[lineID] = line
	return nil
}

// All returns every stored line.
func (s *OrderLines) All() []models.OrderLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	return lo.Values(s.lines)
}

func (s *OrderLines) updateOrder(orderID string, fn func(*models.OrderLine)) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, line := range s.lines {
		if line.OrderID != orderID {
			continue
		}
		fn(&line)
		s.lines[id] = line
		n++
	}
	return n
}

// Inventory is an InventoryRepository kept in memory with the same ledger
// semantics: one deduction per line id.
type Inventory struct {
	mu      sync.Mutex
	stock   map[string]models.InventoryRecord
	applied map[string]struct{}

	// AdjustErr, when set, fails every AdjustStock.
	AdjustErr error
}

func NewInventory() *Inventory {
	return &Inventory{
		stock:   make(map[string]models.InventoryRecord),
		applied: make(map[string]struct{}),
	}
}

// Seed sets the stock of a product directly.
func (s *Inventory) Seed(productID string, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stock[productID] = models.InventoryRecord{ProductID: productID, Stock: stock, Version: 1}
}

func (s *Inventory) GetStock(_ context.Context, productID string) (models.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.stock[productID]
	if !ok {
		return models.InventoryRecord{}, fmt.Errorf("getStock: %w", repository.ErrNotFound)
	}
	return rec, nil
}

func (s *Inventory) SetStock(_ context.Context, productID string, patch models.StockPatch) (models.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.stock[productID]
	if patch.Stock == nil {
		if !ok {
			return models.InventoryRecord{}, fmt.Errorf("getStock: %w", repository.ErrNotFound)
		}
		return rec, nil
	}
	if *patch.Stock < 0 {
		return models.InventoryRecord{}, fmt.Errorf("stock must not be negative")
	}

	rec.ProductID = productID
	rec.Stock = *patch.Stock
	rec.Version++
	s.stock[productID] = rec
	return rec, nil
}

func (s *Inventory) AdjustStock(_ context.Context, d models.StockDeduction) (models.StockAdjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.AdjustErr != nil {
		return models.StockAdjustment{}, s.AdjustErr
	}

	rec, ok := s.stock[d.ProductID]
	if !ok {
		return models.StockAdjustment{}, fmt.Errorf("adjustStock[%s]: %w", d.ProductID, repository.ErrNotFound)
	}
	if _, done := s.applied[d.LineID]; done {
		return models.StockAdjustment{Applied: false, Remaining: rec.Stock}, nil
	}

	rec.Stock = models.ClampedStock(rec.Stock, d.Quantity)
	rec.Version++
	s.stock[d.ProductID] = rec
	s.applied[d.LineID] = struct{}{}

	return models.StockAdjustment{Applied: true, Remaining: rec.Stock}, nil
}

// Idempotency is an in-memory IdempotencyStore. Err, when set, fails Claim.
type Idempotency struct {
	mu   sync.Mutex
	keys map[string]string

	Err error
}

func NewIdempotency() *Idempotency {
	return &Idempotency{keys: make(map[string]string)}
}

func (s *Idempotency) Claim(_ context.Context, key, orderID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return "", false, s.Err
	}
	if existing, ok := s.keys[key]; ok {
		return existing, false, nil
	}
	s.keys[key] = orderID
	return orderID, true, nil
}

func (s *Idempotency) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.keys, key)
	return nil
}

// Claimed reports whether key is currently held.
func (s *Idempotency) Claimed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.keys[key]
	return ok
}
