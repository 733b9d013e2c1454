// Package activities implements the business collaborators the orchestrator
// invokes: order intake, validation, manual review, payment, package
// preparation and carrier dispatch. The bodies are demo implementations
// with a configurable fault injector standing in for flaky downstream
// systems; the payment path is backed by an idempotent ledger so a retried
// charge with the same payment id never settles twice.
package activities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SebampitakoDuncan/order-lifecycle-system/activity"
	"github.com/SebampitakoDuncan/order-lifecycle-system/execution"
	"github.com/SebampitakoDuncan/order-lifecycle-system/orchestrator"
)

const defaultReviewDelay = 2 * time.Second

// LineItem is one ordered item.
type LineItem struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

// Set bundles the collaborator implementations and their shared state.
type Set struct {
	logger      *slog.Logger
	faults      *faultInjector
	ledger      *PaymentLedger
	reviewDelay time.Duration
}

// Option configures a Set.
type Option func(*Set)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Set) {
		s.logger = logger.With("component", "activities")
	}
}

// WithFaults enables fault injection with the given policy and seed.
func WithFaults(policy FaultPolicy, seed int64) Option {
	return func(s *Set) {
		s.faults = newFaultInjector(policy, seed)
	}
}

// WithReviewDelay overrides the simulated manual review latency.
func WithReviewDelay(d time.Duration) Option {
	return func(s *Set) {
		s.reviewDelay = d
	}
}

// WithLedger shares an existing payment ledger, e.g. across restarts in
// tests.
func WithLedger(ledger *PaymentLedger) Option {
	return func(s *Set) {
		s.ledger = ledger
	}
}

// NewSet creates the collaborator set. Without WithFaults every call
// succeeds deterministically.
func NewSet(opts ...Option) *Set {
	s := &Set{
		logger:      slog.Default().With("component", "activities"),
		faults:      newFaultInjector(FaultPolicy{}, 0),
		ledger:      NewPaymentLedger(),
		reviewDelay: defaultReviewDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ledger returns the payment ledger.
func (s *Set) Ledger() *PaymentLedger { return s.ledger }

// Register adds every collaborator to the registry under its activity name.
func (s *Set) Register(reg *activity.Registry) error {
	for name, fn := range map[string]activity.Func{
		orchestrator.ActivityReceiveOrder:    s.ReceiveOrder,
		orchestrator.ActivityValidateOrder:   s.ValidateOrder,
		orchestrator.ActivityManualReview:    s.ManualReview,
		orchestrator.ActivityChargePayment:   s.ChargePayment,
		orchestrator.ActivityPreparePackage:  s.PreparePackage,
		orchestrator.ActivityDispatchCarrier: s.DispatchCarrier,
	} {
		if err := reg.Register(name, fn); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
	}
	return nil
}

type orderRequest struct {
	OrderID string            `json:"order_id"`
	Address execution.Address `json:"address,omitempty"`
}

type chargeRequest struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
}

type shipRequest struct {
	OrderID   string            `json:"order_id"`
	AttemptID string            `json:"attempt_id"`
	Address   execution.Address `json:"address,omitempty"`
}

// ReceiveOrder records a new order and returns its line items.
func (s *Set) ReceiveOrder(ctx context.Context, payload []byte) ([]byte, error) {
	var req orderRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("failed to decode receive_order payload: %w", err)
	}
	if err := s.faults.disrupt(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("order received", "order_id", req.OrderID)
	return json.Marshal(struct {
		OrderID string     `json:"order_id"`
		Items   []LineItem `json:"items"`
	}{req.OrderID, demoItems()})
}

// ValidateOrder checks the order has items to fulfill.
func (s *Set) ValidateOrder(ctx context.Context, payload []byte) ([]byte, error) {
	var req orderRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("failed to decode validate_order payload: %w", err)
	}
	if err := s.faults.disrupt(ctx); err != nil {
		return nil, err
	}

	items := demoItems()
	if len(items) == 0 {
		return nil, errors.New("no items to validate")
	}

	s.logger.Info("order validated", "order_id", req.OrderID)
	return json.Marshal(struct {
		Valid bool `json:"valid"`
	}{true})
}

// ManualReview simulates a human approval with fixed latency. The demo
// always approves.
func (s *Set) ManualReview(ctx context.Context, payload []byte) ([]byte, error) {
	var req orderRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("failed to decode manual_review payload: %w", err)
	}

	if s.reviewDelay > 0 {
		timer := time.NewTimer(s.reviewDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.logger.Info("manual review approved", "order_id", req.OrderID)
	return json.Marshal(struct {
		Approved bool `json:"approved"`
	}{true})
}

// ChargePayment settles the charge through the idempotent ledger, keyed by
// the caller-supplied payment id.
func (s *Set) ChargePayment(ctx context.Context, payload []byte) ([]byte, error) {
	var req chargeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("failed to decode charge_payment payload: %w", err)
	}
	if req.PaymentID == "" {
		return nil, errors.New("charge_payment requires a payment id")
	}
	if err := s.faults.disrupt(ctx); err != nil {
		return nil, err
	}

	amount := 0
	for _, item := range demoItems() {
		amount += item.Qty
	}

	record, created := s.ledger.Charge(req.PaymentID, req.OrderID, amount)
	s.logger.Info("payment settled",
		"order_id", req.OrderID, "payment_id", req.PaymentID, "new_charge", created)
	return json.Marshal(record)
}

// PreparePackage readies the order for shipment.
func (s *Set) PreparePackage(ctx context.Context, payload []byte) ([]byte, error) {
	var req shipRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("failed to decode prepare_package payload: %w", err)
	}
	if err := s.faults.disrupt(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("package prepared", "order_id", req.OrderID, "attempt_id", req.AttemptID)
	return json.Marshal(struct {
		Ready bool `json:"package_ready"`
	}{true})
}

// DispatchCarrier hands the package to the carrier at the current address.
func (s *Set) DispatchCarrier(ctx context.Context, payload []byte) ([]byte, error) {
	var req shipRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("failed to decode dispatch_carrier payload: %w", err)
	}
	if err := s.faults.disrupt(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("carrier dispatched",
		"order_id", req.OrderID, "attempt_id", req.AttemptID, "address", req.Address)
	return json.Marshal(struct {
		Dispatched bool `json:"dispatched"`
	}{true})
}

// demoItems is the fixed line-item set the demo collaborators operate on.
func demoItems() []LineItem {
	return []LineItem{{SKU: "ABC", Qty: 1}}
}
