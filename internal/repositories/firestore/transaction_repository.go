package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/shirthaus/api/internal/domain"
	pfirestore "github.com/shirthaus/api/internal/platform/firestore"
)

const transactionsCollection = "transactions"

type transactionDocument struct {
	OrderID         string    `firestore:"orderId"`
	Amount          int64     `firestore:"amount"`
	Currency        string    `firestore:"currency"`
	PaymentMethod   string    `firestore:"paymentMethod"`
	Status          string    `firestore:"status"`
	PaymentIntentID string    `firestore:"paymentIntentId"`
	RefundID        *string   `firestore:"refundId,omitempty"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func newTransactionDocument(tx domain.Transaction) transactionDocument {
	return transactionDocument{
		OrderID:         tx.OrderID,
		Amount:          tx.Amount,
		Currency:        tx.Currency,
		PaymentMethod:   tx.PaymentMethod,
		Status:          string(tx.Status),
		PaymentIntentID: tx.PaymentIntentID,
		RefundID:        tx.RefundID,
		CreatedAt:       tx.CreatedAt.UTC(),
		UpdatedAt:       tx.UpdatedAt.UTC(),
	}
}

func (d transactionDocument) toDomain(id string) domain.Transaction {
	return domain.Transaction{
		ID:              id,
		OrderID:         d.OrderID,
		Amount:          d.Amount,
		Currency:        d.Currency,
		PaymentMethod:   d.PaymentMethod,
		Status:          domain.TransactionStatus(d.Status),
		PaymentIntentID: d.PaymentIntentID,
		RefundID:        d.RefundID,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// TransactionRepository stores the money-movement record per order.
type TransactionRepository struct {
	provider     *pfirestore.Provider
	transactions *pfirestore.BaseRepository[transactionDocument]
}

// NewTransactionRepository constructs a Firestore-backed transaction store.
func NewTransactionRepository(provider *pfirestore.Provider) (*TransactionRepository, error) {
	if provider == nil {
		return nil, errors.New("transaction repository requires firestore provider")
	}
	return &TransactionRepository{
		provider:     provider,
		transactions: pfirestore.NewBaseRepository[transactionDocument](provider, transactionsCollection, nil, nil),
	}, nil
}

// Insert creates the transaction record, failing with a conflict when the id exists.
func (r *TransactionRepository) Insert(ctx context.Context, tx domain.Transaction) error {
	if r == nil || r.provider == nil {
		return errors.New("transaction repository not initialised")
	}
	if strings.TrimSpace(tx.ID) == "" {
		return errors.New("transaction insert: id is required")
	}
	ref, err := r.transactions.DocumentRef(ctx, tx.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newTransactionDocument(tx)); err != nil {
		return pfirestore.WrapError("transactions.insert", err)
	}
	return nil
}

// FindByOrder returns the transaction recorded for the order.
func (r *TransactionRepository) FindByOrder(ctx context.Context, orderID string) (domain.Transaction, error) {
	if r == nil || r.provider == nil {
		return domain.Transaction{}, errors.New("transaction repository not initialised")
	}
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return domain.Transaction{}, pfirestore.WrapError("transactions.findByOrder", status.Error(codes.NotFound, "empty order id"))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Transaction{}, pfirestore.WrapError("transactions.findByOrder", err)
	}

	iter := client.Collection(transactionsCollection).
		Where("orderId", "==", trimmed).
		OrderBy("createdAt", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Transaction{}, pfirestore.WrapError("transactions.findByOrder", status.Error(codes.NotFound, fmt.Sprintf("no transaction for order %s", trimmed)))
	}
	if err != nil {
		return domain.Transaction{}, pfirestore.WrapError("transactions.findByOrder", err)
	}
	var doc transactionDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Transaction{}, pfirestore.WrapError("transactions.findByOrder", err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// MarkRefunded flips the transaction to refunded, failing with a conflict if
// it already is. The check runs inside the transaction so double refunds lose.
func (r *TransactionRepository) MarkRefunded(ctx context.Context, transactionID string, refundID string, now time.Time) (domain.Transaction, error) {
	if r == nil || r.provider == nil {
		return domain.Transaction{}, errors.New("transaction repository not initialised")
	}

	var out domain.Transaction
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.transactions.DocumentRef(ctx, transactionID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc transactionDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode transaction %s: %w", transactionID, err)
		}
		if doc.Status == string(domain.TransactionRefunded) {
			return status.Error(codes.FailedPrecondition, fmt.Sprintf("transaction %s already refunded", transactionID))
		}
		doc.Status = string(domain.TransactionRefunded)
		doc.RefundID = &refundID
		doc.UpdatedAt = now.UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		out = doc.toDomain(snap.Ref.ID)
		return nil
	})
	if err != nil {
		return domain.Transaction{}, pfirestore.WrapError("transactions.markRefunded", err)
	}
	return out, nil
}
