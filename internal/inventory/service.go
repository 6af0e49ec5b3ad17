package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/danielortiz-dev/vendique-backend/pkg/config"
	dbpkg "github.com/danielortiz-dev/vendique-backend/pkg/db"
	"github.com/danielortiz-dev/vendique-backend/pkg/db/models"
	"github.com/danielortiz-dev/vendique-backend/pkg/enums"
	pkgerrors "github.com/danielortiz-dev/vendique-backend/pkg/errors"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
	"github.com/danielortiz-dev/vendique-backend/pkg/metrics"
	"github.com/danielortiz-dev/vendique-backend/pkg/outbox"
	"github.com/danielortiz-dev/vendique-backend/pkg/outbox/payloads"
	"github.com/danielortiz-dev/vendique-backend/pkg/validate"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// errRejected aborts a transaction that must not commit because the request
// was declined on business grounds. The captured result carries the reasons;
// the error never leaves this package.
var errRejected = errors.New("inventory: request rejected")

// Operation labels shared by retry logging and metrics.
const (
	opUpdateStock        = "update_stock"
	opBulkUpdateStock    = "bulk_update_stock"
	opReserveStock       = "reserve_stock"
	opConfirmReservation = "confirm_reservation"
	opReleaseReservation = "release_reservation"
	opCleanupExpired     = "cleanup_expired"
)

const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// sweepBatchSize caps how many expired groups one cleanup pass settles.
const sweepBatchSize = 100

// Service exposes the stock reservation subsystem: direct stock mutations,
// reservation lifecycle, and ledger reads.
type Service interface {
	UpdateStock(ctx context.Context, input UpdateStockInput) (*StockUpdateResult, error)
	BulkUpdateStock(ctx context.Context, input BulkUpdateInput) (*BulkUpdateResult, error)
	ReserveStock(ctx context.Context, input ReserveStockInput) (*ReservationResult, error)
	ConfirmReservation(ctx context.Context, input ConfirmInput) (*ConfirmResult, error)
	ReleaseReservation(ctx context.Context, input ReleaseInput) (*ReleaseResult, error)
	CleanupExpiredReservations(ctx context.Context) (*SweepResult, error)
	GetStock(ctx context.Context, productID uuid.UUID) (*StockLevel, error)
	ListStockMovements(ctx context.Context, input ListMovementsInput) (*MovementPage, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	retry   *RetryCoordinator
	monitor *LowStockMonitor
	metrics *metrics.InventoryMetrics
	logg    *logger.Logger
	cfg     config.InventoryConfig
	now     func() time.Time
}

// ServiceParams carries the service dependencies. Monitor and Metrics are
// optional; everything else is required.
type ServiceParams struct {
	Repository Repository
	TxRunner   txRunner
	Outbox     outboxPublisher
	Retry      *RetryCoordinator
	Monitor    *LowStockMonitor
	Metrics    *metrics.InventoryMetrics
	Logger     *logger.Logger
	Config     config.InventoryConfig
}

// NewService builds the inventory service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Retry == nil {
		return nil, fmt.Errorf("retry coordinator required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    params.Repository,
		tx:      params.TxRunner,
		outbox:  params.Outbox,
		retry:   params.Retry,
		monitor: params.Monitor,
		metrics: params.Metrics,
		logg:    params.Logger,
		cfg:     params.Config,
		now:     time.Now,
	}, nil
}

// UpdateStock applies one movement to a product and appends a ledger row.
// Directional types add or subtract, absolute types set the quantity; see
// enums.StockUpdateType. Business rejections come back in the result, not as
// errors.
func (s *service) UpdateStock(ctx context.Context, input UpdateStockInput) (*StockUpdateResult, error) {
	started := time.Now()
	if err := validate.Struct(input); err != nil {
		s.metrics.ObserveOperation(opUpdateStock, outcomeError, time.Since(started))
		return nil, err
	}
	if !input.Type.IsValid() {
		s.metrics.ObserveOperation(opUpdateStock, outcomeError, time.Since(started))
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown stock update type %q", input.Type))
	}
	if s.cfg.MaxStockQuantity > 0 && input.Quantity > s.cfg.MaxStockQuantity {
		s.metrics.ObserveOperation(opUpdateStock, outcomeError, time.Since(started))
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity exceeds maximum of %d", s.cfg.MaxStockQuantity))
	}

	var (
		result *StockUpdateResult
		change *StockChange
	)
	err := s.retry.Do(ctx, opUpdateStock, func(ctx context.Context) error {
		result = nil
		change = nil
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)

			product, err := repo.FindProduct(ctx, input.ProductID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					result = &StockUpdateResult{ProductID: input.ProductID, Failure: newFailure(enums.StockFailureNotFound, "product not found")}
					return errRejected
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
			}
			if product.IsDeleted {
				result = &StockUpdateResult{ProductID: product.ID, Failure: newFailure(enums.StockFailureDeleted, "product is deleted")}
				return errRejected
			}

			previous := product.StockQuantity
			next, reason := applyMovement(previous, input.Quantity, input.Type, s.cfg.MaxStockQuantity)
			if reason != "" {
				result = &StockUpdateResult{
					ProductID: product.ID,
					Previous:  previous,
					Failure:   newFailure(reason, fmt.Sprintf("resulting quantity exceeds maximum of %d", s.cfg.MaxStockQuantity)),
				}
				return errRejected
			}

			if err := repo.UpdateProductStock(ctx, product.ID, product.Version, next); err != nil {
				if dbpkg.IsStaleVersion(err) {
					return err
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write stock quantity")
			}

			unitCost := movementUnitCost(input.UnitCost, product.UnitCost)
			movement := &models.StockMovement{
				ID:          uuid.New(),
				ProductID:   product.ID,
				StoreID:     product.StoreID,
				Type:        input.Type,
				Quantity:    input.Quantity,
				PreviousQty: previous,
				NewQty:      next,
				UnitCost:    unitCost,
				TotalValue:  movementValue(unitCost, previous, next),
				Reason:      &input.Reason,
				Actor:       input.Actor,
				Reference:   input.Reference,
			}
			if err := repo.InsertMovement(ctx, movement); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append stock movement")
			}

			event := outbox.DomainEvent{
				EventType:     enums.EventStockAdjusted,
				AggregateType: enums.AggregateProduct,
				AggregateID:   product.ID,
				Version:       1,
				Actor:         staffActor(product.StoreID),
				Data: payloads.StockAdjustedEvent{
					ProductID:    product.ID,
					StoreID:      product.StoreID,
					MovementType: input.Type,
					Quantity:     input.Quantity,
					PreviousQty:  previous,
					NewQty:       next,
					Reason:       input.Reason,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
			if crossedBelow(previous, next, product.LowStockThreshold) {
				if err := s.emitStockLow(ctx, tx, *product, next, staffActor(product.StoreID)); err != nil {
					return err
				}
			}

			result = &StockUpdateResult{ProductID: product.ID, Previous: previous, New: next, MovementID: movement.ID}
			change = &StockChange{
				ProductID: product.ID,
				StoreID:   product.StoreID,
				Previous:  previous,
				New:       next,
				Threshold: product.LowStockThreshold,
			}
			return nil
		})
	})
	if errors.Is(err, errRejected) {
		s.metrics.ObserveOperation(opUpdateStock, outcomeRejected, time.Since(started))
		return result, nil
	}
	if err != nil {
		s.metrics.ObserveOperation(opUpdateStock, outcomeError, time.Since(started))
		return nil, err
	}

	if change != nil {
		s.notifyLowStock(ctx, []StockChange{*change})
	}
	s.metrics.ObserveOperation(opUpdateStock, outcomeOK, time.Since(started))
	return result, nil
}

// BulkUpdateStock sets absolute quantities across many products in one
// transaction. Item problems are reported per item; the batch commits as long
// as at least one item applied. Every applied item appends a correction row
// to the ledger.
func (s *service) BulkUpdateStock(ctx context.Context, input BulkUpdateInput) (*BulkUpdateResult, error) {
	started := time.Now()
	if err := validate.Struct(input); err != nil {
		s.metrics.ObserveOperation(opBulkUpdateStock, outcomeError, time.Since(started))
		return nil, err
	}
	if s.cfg.MaxBulkItems > 0 && len(input.Items) > s.cfg.MaxBulkItems {
		s.metrics.ObserveOperation(opBulkUpdateStock, outcomeError, time.Since(started))
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("bulk update exceeds %d items", s.cfg.MaxBulkItems))
	}
	seen := make(map[uuid.UUID]struct{}, len(input.Items))
	for _, item := range input.Items {
		if _, dup := seen[item.ProductID]; dup {
			s.metrics.ObserveOperation(opBulkUpdateStock, outcomeError, time.Since(started))
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("duplicate product %s in batch", item.ProductID))
		}
		seen[item.ProductID] = struct{}{}
	}

	var (
		result  *BulkUpdateResult
		changes []StockChange
	)
	err := s.retry.Do(ctx, opBulkUpdateStock, func(ctx context.Context) error {
		result = nil
		changes = nil
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)

			ids := make([]uuid.UUID, 0, len(input.Items))
			for _, item := range input.Items {
				ids = append(ids, item.ProductID)
			}
			products, err := repo.FindProductsByIDs(ctx, ids)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
			}
			byID := make(map[uuid.UUID]models.Product, len(products))
			for _, product := range products {
				byID[product.ID] = product
			}

			batchID := uuid.New()
			reference := "bulk:" + batchID.String()
			items := make([]BulkItemResult, len(input.Items))
			applied := 0
			for i, item := range input.Items {
				if err := ctx.Err(); err != nil {
					return err
				}
				entry := BulkItemResult{ProductID: item.ProductID, New: item.NewQuantity}
				product, ok := byID[item.ProductID]
				switch {
				case !ok:
					entry.Reason = enums.StockFailureNotFound
				case product.IsDeleted:
					entry.Previous = product.StockQuantity
					entry.Reason = enums.StockFailureDeleted
				case item.NewQuantity < 0:
					entry.Previous = product.StockQuantity
					entry.Reason = enums.StockFailureInvalidQuantity
				case s.cfg.MaxStockQuantity > 0 && item.NewQuantity > s.cfg.MaxStockQuantity:
					entry.Previous = product.StockQuantity
					entry.Reason = enums.StockFailureOutOfRange
				default:
					entry.Previous = product.StockQuantity
					if err := repo.UpdateProductStock(ctx, product.ID, product.Version, item.NewQuantity); err != nil {
						if dbpkg.IsStaleVersion(err) {
							return err
						}
						return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write stock quantity")
					}
					movement := &models.StockMovement{
						ID:          uuid.New(),
						ProductID:   product.ID,
						StoreID:     product.StoreID,
						Type:        enums.StockUpdateCorrection,
						Quantity:    item.NewQuantity,
						PreviousQty: product.StockQuantity,
						NewQty:      item.NewQuantity,
						UnitCost:    product.UnitCost,
						TotalValue:  movementValue(product.UnitCost, product.StockQuantity, item.NewQuantity),
						Reason:      input.Reason,
						Actor:       input.Actor,
						Reference:   &reference,
					}
					if err := repo.InsertMovement(ctx, movement); err != nil {
						return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append stock movement")
					}
					if crossedBelow(product.StockQuantity, item.NewQuantity, product.LowStockThreshold) {
						if err := s.emitStockLow(ctx, tx, product, item.NewQuantity, staffActor(product.StoreID)); err != nil {
							return err
						}
						changes = append(changes, StockChange{
							ProductID: product.ID,
							StoreID:   product.StoreID,
							Previous:  product.StockQuantity,
							New:       item.NewQuantity,
							Threshold: product.LowStockThreshold,
						})
					}
					entry.Updated = true
					applied++
				}
				items[i] = entry
			}

			result = &BulkUpdateResult{
				BatchID: batchID,
				Updated: applied,
				Failed:  len(items) - applied,
				Items:   items,
			}
			if applied == 0 {
				return errRejected
			}

			event := outbox.DomainEvent{
				EventType:     enums.EventStockBulkAdjusted,
				AggregateType: enums.AggregateStockBatch,
				AggregateID:   batchID,
				Version:       1,
				Actor:         staffActor(uuid.Nil),
				Data: payloads.StockBulkAdjustedEvent{
					BatchID:      batchID,
					AppliedCount: applied,
					FailedCount:  len(items) - applied,
				},
			}
			return s.outbox.Emit(ctx, tx, event)
		})
	})
	if errors.Is(err, errRejected) {
		s.metrics.ObserveOperation(opBulkUpdateStock, outcomeRejected, time.Since(started))
		return result, nil
	}
	if err != nil {
		s.metrics.ObserveOperation(opBulkUpdateStock, outcomeError, time.Since(started))
		return nil, err
	}

	s.notifyLowStock(ctx, changes)
	s.metrics.ObserveOperation(opBulkUpdateStock, outcomeOK, time.Since(started))
	return result, nil
}

// ReserveStock atomically holds stock for every requested item or none of
// them. Each reserved line becomes a pending row sharing one group id; the
// group expires together. The per-item report always covers the full request
// so callers can see which products blocked it.
func (s *service) ReserveStock(ctx context.Context, input ReserveStockInput) (*ReservationResult, error) {
	started := time.Now()
	if err := validate.Struct(input); err != nil {
		s.metrics.ObserveOperation(opReserveStock, outcomeError, time.Since(started))
		return nil, err
	}
	if s.cfg.MaxReservationItems > 0 && len(input.Items) > s.cfg.MaxReservationItems {
		s.metrics.ObserveOperation(opReserveStock, outcomeError, time.Since(started))
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reservation exceeds %d items", s.cfg.MaxReservationItems))
	}
	seen := make(map[uuid.UUID]struct{}, len(input.Items))
	for _, item := range input.Items {
		if _, dup := seen[item.ProductID]; dup {
			s.metrics.ObserveOperation(opReserveStock, outcomeError, time.Since(started))
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("duplicate product %s in request", item.ProductID))
		}
		seen[item.ProductID] = struct{}{}
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.cfg.ReservationTTL
	}

	var (
		result  *ReservationResult
		changes []StockChange
	)
	err := s.retry.Do(ctx, opReserveStock, func(ctx context.Context) error {
		result = nil
		changes = nil
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)

			ids := make([]uuid.UUID, 0, len(input.Items))
			for _, item := range input.Items {
				ids = append(ids, item.ProductID)
			}
			products, err := repo.FindProductsByIDs(ctx, ids)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
			}
			byID := make(map[uuid.UUID]models.Product, len(products))
			for _, product := range products {
				byID[product.ID] = product
			}

			items := make([]ReservationItemResult, len(input.Items))
			blocked := false
			for i, item := range input.Items {
				entry := ReservationItemResult{ProductID: item.ProductID, Requested: item.Quantity}
				product, ok := byID[item.ProductID]
				switch {
				case !ok:
					entry.Reason = enums.StockFailureNotFound
					blocked = true
				case product.IsDeleted:
					entry.Reason = enums.StockFailureDeleted
					blocked = true
				default:
					entry.Available = product.StockQuantity
					if product.StockQuantity < item.Quantity {
						entry.Reason = enums.StockFailureInsufficientStock
						blocked = true
					}
				}
				items[i] = entry
			}
			if blocked {
				result = &ReservationResult{Reserved: false, Items: items}
				return errRejected
			}

			groupID := uuid.New()
			expiresAt := s.now().Add(ttl)
			rows := make([]models.StockReservation, 0, len(input.Items))
			reserved := make([]payloads.ReservedItem, 0, len(input.Items))
			for i, item := range input.Items {
				if err := ctx.Err(); err != nil {
					return err
				}
				product := byID[item.ProductID]
				next := product.StockQuantity - item.Quantity
				if next < 0 {
					next = 0
				}
				if err := repo.UpdateProductStock(ctx, product.ID, product.Version, next); err != nil {
					if dbpkg.IsStaleVersion(err) {
						return err
					}
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "hold stock")
				}
				if crossedBelow(product.StockQuantity, next, product.LowStockThreshold) {
					if err := s.emitStockLow(ctx, tx, product, next, customerActor(input.CustomerID)); err != nil {
						return err
					}
					changes = append(changes, StockChange{
						ProductID: product.ID,
						StoreID:   product.StoreID,
						Previous:  product.StockQuantity,
						New:       next,
						Threshold: product.LowStockThreshold,
					})
				}
				rows = append(rows, models.StockReservation{
					ID:          uuid.New(),
					GroupID:     groupID,
					ProductID:   product.ID,
					CustomerID:  input.CustomerID,
					Quantity:    item.Quantity,
					Status:      enums.ReservationStatusPending,
					ExternalRef: input.ExternalRef,
					ExpiresAt:   expiresAt,
				})
				reserved = append(reserved, payloads.ReservedItem{ProductID: product.ID, Quantity: item.Quantity})
				items[i].Reserved = true
			}
			if err := repo.InsertReservations(ctx, rows); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert reservations")
			}

			event := outbox.DomainEvent{
				EventType:     enums.EventReservationCreated,
				AggregateType: enums.AggregateReservationGroup,
				AggregateID:   groupID,
				Version:       1,
				Actor:         customerActor(input.CustomerID),
				Data: payloads.ReservationCreatedEvent{
					GroupID:    groupID,
					CustomerID: input.CustomerID,
					Items:      reserved,
					ExpiresAt:  expiresAt,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}

			result = &ReservationResult{GroupID: groupID, ExpiresAt: expiresAt, Reserved: true, Items: items}
			return nil
		})
	})
	if errors.Is(err, errRejected) {
		s.metrics.ObserveOperation(opReserveStock, outcomeRejected, time.Since(started))
		return result, nil
	}
	if err != nil {
		s.metrics.ObserveOperation(opReserveStock, outcomeError, time.Since(started))
		return nil, err
	}

	s.metrics.IncReservationEvent("created")
	s.notifyLowStock(ctx, changes)
	s.metrics.ObserveOperation(opReserveStock, outcomeOK, time.Since(started))
	return result, nil
}

// ConfirmReservation converts a pending group into an order hold. Stock is
// not touched; it was decremented at reserve time. A group past its deadline
// can never be confirmed, and a second confirm finds nothing pending and
// reports that without touching the rows.
func (s *service) ConfirmReservation(ctx context.Context, input ConfirmInput) (*ConfirmResult, error) {
	started := time.Now()
	if err := validate.Struct(input); err != nil {
		s.metrics.ObserveOperation(opConfirmReservation, outcomeError, time.Since(started))
		return nil, err
	}

	var result *ConfirmResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		rows, err := repo.FindPendingByGroup(ctx, input.GroupID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation group")
		}
		if len(rows) == 0 {
			all, err := repo.FindByGroup(ctx, input.GroupID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation group")
			}
			res, err := resolveSettledConfirm(all, input)
			result = res
			return err
		}

		now := s.now()
		if groupExpired(rows, now) {
			result = &ConfirmResult{GroupID: input.GroupID, OrderID: input.OrderID, Failure: newFailure(enums.StockFailureExpired, "reservation group expired")}
			return errRejected
		}

		n, err := repo.MarkGroupConfirmed(ctx, input.GroupID, input.OrderID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm reservation group")
		}
		if n == 0 {
			all, err := repo.FindByGroup(ctx, input.GroupID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation group")
			}
			res, err := resolveSettledConfirm(all, input)
			result = res
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventReservationConfirmed,
			AggregateType: enums.AggregateReservationGroup,
			AggregateID:   input.GroupID,
			Version:       1,
			Actor:         customerActor(rows[0].CustomerID),
			Data: payloads.ReservationConfirmedEvent{
				GroupID:     input.GroupID,
				CustomerID:  rows[0].CustomerID,
				OrderID:     input.OrderID,
				ItemCount:   len(rows),
				ConfirmedAt: now,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		result = &ConfirmResult{GroupID: input.GroupID, OrderID: input.OrderID, Confirmed: true, RowsConfirmed: int(n)}
		return nil
	})
	if errors.Is(err, errRejected) {
		s.metrics.ObserveOperation(opConfirmReservation, outcomeRejected, time.Since(started))
		return result, nil
	}
	if err != nil {
		s.metrics.ObserveOperation(opConfirmReservation, outcomeError, time.Since(started))
		return nil, err
	}

	if result.RowsConfirmed > 0 {
		s.metrics.IncReservationEvent("confirmed")
	}
	s.metrics.ObserveOperation(opConfirmReservation, outcomeOK, time.Since(started))
	return result, nil
}

// ReleaseReservation returns a pending group's held quantities to their
// products and marks the rows released. A second release finds nothing
// pending and reports that; nothing is restored twice.
func (s *service) ReleaseReservation(ctx context.Context, input ReleaseInput) (*ReleaseResult, error) {
	started := time.Now()
	if err := validate.Struct(input); err != nil {
		s.metrics.ObserveOperation(opReleaseReservation, outcomeError, time.Since(started))
		return nil, err
	}

	var result *ReleaseResult
	err := s.retry.Do(ctx, opReleaseReservation, func(ctx context.Context) error {
		result = nil
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)

			rows, err := repo.FindPendingByGroup(ctx, input.GroupID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation group")
			}
			if len(rows) == 0 {
				all, err := repo.FindByGroup(ctx, input.GroupID)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation group")
				}
				if len(all) == 0 {
					result = &ReleaseResult{GroupID: input.GroupID, Failure: newFailure(enums.StockFailureNotFound, "reservation group not found")}
					return errRejected
				}
				result = &ReleaseResult{GroupID: input.GroupID, Failure: newFailure(enums.StockFailureNotFound, "no pending rows to release")}
				return errRejected
			}

			restored, err := s.restoreHeldStock(ctx, repo, rows)
			if err != nil {
				return err
			}

			now := s.now()
			n, err := repo.MarkGroupReleased(ctx, input.GroupID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release reservation group")
			}
			if n == 0 {
				result = &ReleaseResult{GroupID: input.GroupID, Failure: newFailure(enums.StockFailureNotFound, "no pending rows to release")}
				return errRejected
			}

			event := outbox.DomainEvent{
				EventType:     enums.EventReservationReleased,
				AggregateType: enums.AggregateReservationGroup,
				AggregateID:   input.GroupID,
				Version:       1,
				Actor:         customerActor(rows[0].CustomerID),
				Data: payloads.ReservationReleasedEvent{
					GroupID:       input.GroupID,
					CustomerID:    rows[0].CustomerID,
					RestoredItems: restored.items,
					ReleasedAt:    now,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}

			result = &ReleaseResult{
				GroupID:       input.GroupID,
				Released:      true,
				RowsReleased:  int(n),
				UnitsRestored: restored.units,
			}
			return nil
		})
	})
	if errors.Is(err, errRejected) {
		s.metrics.ObserveOperation(opReleaseReservation, outcomeRejected, time.Since(started))
		return result, nil
	}
	if err != nil {
		s.metrics.ObserveOperation(opReleaseReservation, outcomeError, time.Since(started))
		return nil, err
	}

	if result.Released {
		s.metrics.IncReservationEvent("released")
	}
	s.metrics.ObserveOperation(opReleaseReservation, outcomeOK, time.Since(started))
	return result, nil
}

// CleanupExpiredReservations settles groups whose expiry passed: held stock
// goes back to the products and the rows flip to expired. Each group commits
// in its own transaction so one bad group cannot block the rest; failures are
// collected and returned alongside the partial result.
func (s *service) CleanupExpiredReservations(ctx context.Context) (*SweepResult, error) {
	started := time.Now()
	cutoff := s.now().Add(-s.cfg.SweepGrace)
	groupIDs, err := s.repo.FindExpiredGroupIDs(ctx, cutoff, sweepBatchSize)
	if err != nil {
		s.metrics.ObserveOperation(opCleanupExpired, outcomeError, time.Since(started))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find expired groups")
	}

	result := &SweepResult{}
	var sweepErr error
	for _, groupID := range groupIDs {
		if err := ctx.Err(); err != nil {
			sweepErr = multierr.Append(sweepErr, err)
			break
		}
		rows, units, err := s.expireGroup(ctx, groupID)
		if err != nil {
			sweepErr = multierr.Append(sweepErr, fmt.Errorf("expire group %s: %w", groupID, err))
			continue
		}
		if rows == 0 {
			continue
		}
		result.GroupsExpired++
		result.RowsExpired += rows
		result.UnitsRestored += units
		s.metrics.IncReservationEvent("expired")
		logCtx := s.logg.WithReservationGroup(ctx, groupID.String())
		s.logg.Info(logCtx, "expired reservation group settled")
	}

	outcome := outcomeOK
	if sweepErr != nil {
		outcome = outcomeError
	}
	s.metrics.ObserveOperation(opCleanupExpired, outcome, time.Since(started))
	return result, sweepErr
}

// expireGroup settles one group. A zero row count with nil error means the
// group was settled by someone else between the scan and the transaction.
func (s *service) expireGroup(ctx context.Context, groupID uuid.UUID) (int, int, error) {
	var (
		rowsExpired   int
		unitsRestored int
	)
	err := s.retry.Do(ctx, opCleanupExpired, func(ctx context.Context) error {
		rowsExpired = 0
		unitsRestored = 0
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)

			rows, err := repo.FindPendingByGroup(ctx, groupID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation group")
			}
			if len(rows) == 0 {
				return nil
			}

			restored, err := s.restoreHeldStock(ctx, repo, rows)
			if err != nil {
				return err
			}

			now := s.now()
			n, err := repo.MarkGroupExpired(ctx, groupID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire reservation group")
			}
			if n == 0 {
				return errRejected
			}

			event := outbox.DomainEvent{
				EventType:     enums.EventReservationExpired,
				AggregateType: enums.AggregateReservationGroup,
				AggregateID:   groupID,
				Version:       1,
				Actor:         systemActor(),
				Data: payloads.ReservationExpiredEvent{
					GroupID:       groupID,
					RestoredItems: restored.items,
					ExpiredAt:     now,
				},
			}
			if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
				return err
			}

			rowsExpired = int(n)
			unitsRestored = restored.units
			return nil
		})
	})
	if errors.Is(err, errRejected) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return rowsExpired, unitsRestored, nil
}

// GetStock returns a read-only snapshot of one product's stock state.
func (s *service) GetStock(ctx context.Context, productID uuid.UUID) (*StockLevel, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	product, err := s.repo.FindProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &StockLevel{ProductID: productID, Failure: newFailure(enums.StockFailureNotFound, "product not found")}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return &StockLevel{
		ProductID:         product.ID,
		StoreID:           product.StoreID,
		Quantity:          product.StockQuantity,
		Version:           product.Version,
		LowStockThreshold: product.LowStockThreshold,
		Deleted:           product.IsDeleted,
		UpdatedAt:         product.UpdatedAt,
	}, nil
}

// ListStockMovements pages one product's ledger newest first.
func (s *service) ListStockMovements(ctx context.Context, input ListMovementsInput) (*MovementPage, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if _, err := input.Pagination.Position(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, next, err := s.repo.ListMovements(ctx, input.ProductID, input.Pagination)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock movements")
	}

	entries := make([]MovementEntry, len(rows))
	for i, row := range rows {
		entries[i] = MovementEntry{
			ID:          row.ID,
			Type:        row.Type,
			Quantity:    row.Quantity,
			PreviousQty: row.PreviousQty,
			NewQty:      row.NewQty,
			UnitCost:    row.UnitCost,
			TotalValue:  row.TotalValue,
			Reason:      row.Reason,
			Actor:       row.Actor,
			Reference:   row.Reference,
			CreatedAt:   row.CreatedAt,
		}
	}
	return &MovementPage{ProductID: input.ProductID, Movements: entries, NextCursor: next}, nil
}

type restoredStock struct {
	items []payloads.ReservedItem
	units int
}

// restoreHeldStock returns reserved quantities to their products. Missing or
// deleted products are skipped with a warning; restores that would push a
// product past the configured maximum are clamped.
func (s *service) restoreHeldStock(ctx context.Context, repo Repository, rows []models.StockReservation) (restoredStock, error) {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProductID)
	}
	products, err := repo.FindProductsByIDs(ctx, ids)
	if err != nil {
		return restoredStock{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products for restore")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}

	var restored restoredStock
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return restoredStock{}, err
		}
		product, ok := byID[row.ProductID]
		if !ok || product.IsDeleted {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"product_id": row.ProductID.String(),
				"group_id":   row.GroupID.String(),
			})
			s.logg.Warn(logCtx, "skipping stock restore for unavailable product")
			continue
		}
		units := row.Quantity
		next := product.StockQuantity + units
		if s.cfg.MaxStockQuantity > 0 && next > s.cfg.MaxStockQuantity {
			units = s.cfg.MaxStockQuantity - product.StockQuantity
			if units < 0 {
				units = 0
			}
			next = s.cfg.MaxStockQuantity
			logCtx := s.logg.WithProductID(ctx, product.ID.String())
			s.logg.Warn(logCtx, "stock restore clamped at configured maximum")
		}
		if units == 0 {
			continue
		}
		if err := repo.UpdateProductStock(ctx, product.ID, product.Version, next); err != nil {
			if dbpkg.IsStaleVersion(err) {
				return restoredStock{}, err
			}
			return restoredStock{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
		}
		restored.items = append(restored.items, payloads.ReservedItem{ProductID: product.ID, Quantity: units})
		restored.units += units
	}
	return restored, nil
}

// emitStockLow queues the threshold-crossing event inside the transaction so
// it commits or rolls back with the stock write.
func (s *service) emitStockLow(ctx context.Context, tx *gorm.DB, product models.Product, newQty int, actor *outbox.ActorRef) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventStockLow,
		AggregateType: enums.AggregateProduct,
		AggregateID:   product.ID,
		Version:       1,
		Actor:         actor,
		Data: payloads.StockLowEvent{
			ProductID: product.ID,
			StoreID:   product.StoreID,
			NewQty:    newQty,
			Threshold: product.LowStockThreshold,
		},
	}
	return s.outbox.Emit(ctx, tx, event)
}

// notifyLowStock runs the alert monitor after commit. Alert delivery is best
// effort; failures are logged and never fail the operation.
func (s *service) notifyLowStock(ctx context.Context, changes []StockChange) {
	if s.monitor == nil {
		return
	}
	for _, change := range changes {
		if err := s.monitor.Evaluate(ctx, change); err != nil {
			logCtx := s.logg.WithProductID(ctx, change.ProductID.String())
			s.logg.Error(logCtx, "low stock alert evaluation failed", err)
		}
	}
}

// resolveSettledConfirm decides the outcome of confirming a group that has no
// pending rows left. A second confirm on the same group lands here and
// reports that nothing was pending, without touching the rows again.
func resolveSettledConfirm(all []models.StockReservation, input ConfirmInput) (*ConfirmResult, error) {
	base := &ConfirmResult{GroupID: input.GroupID, OrderID: input.OrderID}
	switch {
	case len(all) == 0:
		base.Failure = newFailure(enums.StockFailureNotFound, "reservation group not found")
	case groupHasStatus(all, enums.ReservationStatusExpired):
		base.Failure = newFailure(enums.StockFailureExpired, "reservation group expired")
	default:
		base.Failure = newFailure(enums.StockFailureNotFound, "no pending rows to confirm")
	}
	return base, errRejected
}

func groupHasStatus(rows []models.StockReservation, status enums.ReservationStatus) bool {
	for _, row := range rows {
		if row.Status == status {
			return true
		}
	}
	return false
}

// groupExpired reports whether any row's deadline has passed. Expired groups
// are settled by the sweep; they can never convert into an order.
func groupExpired(rows []models.StockReservation, now time.Time) bool {
	for _, row := range rows {
		if row.ExpiresAt.Before(now) {
			return true
		}
	}
	return false
}

// applyMovement computes the next quantity for a movement, or a failure
// reason when the result would leave the allowed range. Subtractions floor at
// zero rather than failing; reservations are the path that rejects on
// insufficient stock.
func applyMovement(previous, quantity int, movementType enums.StockUpdateType, maxStock int) (int, enums.StockFailureReason) {
	switch movementType.Direction() {
	case enums.StockDirectionAdd:
		next := previous + quantity
		if maxStock > 0 && next > maxStock {
			return 0, enums.StockFailureOutOfRange
		}
		return next, ""
	case enums.StockDirectionSubtract:
		next := previous - quantity
		if next < 0 {
			next = 0
		}
		return next, ""
	default:
		if maxStock > 0 && quantity > maxStock {
			return 0, enums.StockFailureOutOfRange
		}
		return quantity, ""
	}
}

func newFailure(reason enums.StockFailureReason, message string) *Failure {
	return &Failure{Reason: reason, Message: message}
}

func movementUnitCost(override *decimal.Decimal, productCost decimal.Decimal) decimal.Decimal {
	if override != nil {
		return *override
	}
	return productCost
}

func movementValue(unitCost decimal.Decimal, previous, next int) decimal.Decimal {
	return unitCost.Mul(decimal.NewFromInt(int64(absInt(next - previous))))
}

func staffActor(storeID uuid.UUID) *outbox.ActorRef {
	actor := &outbox.ActorRef{Kind: outbox.ActorKindStaff}
	if storeID != uuid.Nil {
		actor.StoreID = &storeID
	}
	return actor
}

func customerActor(customerID uuid.UUID) *outbox.ActorRef {
	id := customerID
	return &outbox.ActorRef{Kind: outbox.ActorKindCustomer, CustomerID: &id}
}

func systemActor() *outbox.ActorRef {
	return &outbox.ActorRef{Kind: outbox.ActorKindSystem}
}

func absInt(value int) int {
	if value < 0 {
		return -value
	}
	return value
}
