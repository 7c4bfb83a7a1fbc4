package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/marketstall/api/internal/domain"
	pfirestore "github.com/marketstall/api/internal/platform/firestore"
	"github.com/marketstall/api/internal/platform/pagination"
	"github.com/marketstall/api/internal/repositories"
)

const ordersCollection = "orders"

type orderItemDocument struct {
	ID            string     `firestore:"id"`
	ProductID     string     `firestore:"productId"`
	SellerID      string     `firestore:"sellerId"`
	ProductName   string     `firestore:"productName"`
	ImageURL      string     `firestore:"imageUrl"`
	UnitPrice     int64      `firestore:"unitPrice"`
	Quantity      int        `firestore:"quantity"`
	Status        string     `firestore:"status"`
	StockReleased bool       `firestore:"stockReleased"`
	RefundID      *string    `firestore:"refundId"`
	CreatedAt     time.Time  `firestore:"createdAt"`
	UpdatedAt     time.Time  `firestore:"updatedAt"`
	ShippedAt     *time.Time `firestore:"shippedAt"`
	DeliveredAt   *time.Time `firestore:"deliveredAt"`
	CanceledAt    *time.Time `firestore:"canceledAt"`
}

// orderDocument embeds the items and denormalises itemIds/sellerIds so the
// parent order is reachable with a single array-contains query.
type orderDocument struct {
	CustomerID        string              `firestore:"customerId"`
	Currency          string              `firestore:"currency"`
	TotalPrice        int64               `firestore:"totalPrice"`
	ShippingAddressID string              `firestore:"shippingAddressId"`
	BillingAddressID  string              `firestore:"billingAddressId"`
	PaymentIntentID   string              `firestore:"paymentIntentId"`
	Items             []orderItemDocument `firestore:"items"`
	ItemIDs           []string            `firestore:"itemIds"`
	SellerIDs         []string            `firestore:"sellerIds"`
	CreatedAt         time.Time           `firestore:"createdAt"`
}

func newOrderItemDocument(item domain.OrderItem) orderItemDocument {
	return orderItemDocument{
		ID:            item.ID,
		ProductID:     item.Product.ProductID,
		SellerID:      item.Product.SellerID,
		ProductName:   item.Product.Name,
		ImageURL:      item.Product.ImageURL,
		UnitPrice:     item.Product.UnitPrice,
		Quantity:      item.Quantity,
		Status:        string(item.Status),
		StockReleased: item.StockReleased,
		RefundID:      item.RefundID,
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
		ShippedAt:     item.ShippedAt,
		DeliveredAt:   item.DeliveredAt,
		CanceledAt:    item.CanceledAt,
	}
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		CustomerID:        order.CustomerID,
		Currency:          order.Currency,
		TotalPrice:        order.TotalPrice,
		ShippingAddressID: order.ShippingAddressID,
		BillingAddressID:  order.BillingAddressID,
		PaymentIntentID:   order.PaymentIntentID,
		Items:             make([]orderItemDocument, 0, len(order.Items)),
		ItemIDs:           make([]string, 0, len(order.Items)),
		CreatedAt:         order.CreatedAt,
	}
	sellers := make(map[string]struct{}, len(order.Items))
	for _, item := range order.Items {
		doc.Items = append(doc.Items, newOrderItemDocument(item))
		doc.ItemIDs = append(doc.ItemIDs, item.ID)
		if _, seen := sellers[item.Product.SellerID]; !seen {
			sellers[item.Product.SellerID] = struct{}{}
			doc.SellerIDs = append(doc.SellerIDs, item.Product.SellerID)
		}
	}
	return doc
}

func (d orderItemDocument) toDomain(orderID string) domain.OrderItem {
	return domain.OrderItem{
		ID:      d.ID,
		OrderID: orderID,
		Product: domain.ProductSnapshot{
			ProductID: d.ProductID,
			SellerID:  d.SellerID,
			Name:      d.ProductName,
			ImageURL:  d.ImageURL,
			UnitPrice: d.UnitPrice,
		},
		Quantity:      d.Quantity,
		Status:        domain.ItemStatus(d.Status),
		StockReleased: d.StockReleased,
		RefundID:      d.RefundID,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		ShippedAt:     d.ShippedAt,
		DeliveredAt:   d.DeliveredAt,
		CanceledAt:    d.CanceledAt,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:                id,
		CustomerID:        d.CustomerID,
		Currency:          d.Currency,
		TotalPrice:        d.TotalPrice,
		ShippingAddressID: d.ShippingAddressID,
		BillingAddressID:  d.BillingAddressID,
		PaymentIntentID:   d.PaymentIntentID,
		Items:             make([]domain.OrderItem, 0, len(d.Items)),
		CreatedAt:         d.CreatedAt,
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, item.toDomain(id))
	}
	return order
}

// OrderRepository persists orders in the orders collection.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs the Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{provider: provider, base: base}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order insert: order id is required")
	}

	doc := newOrderDocument(order)
	return runWrite(ctx, r.provider, func(ctx context.Context, state *txState) error {
		ref, err := r.base.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		state.enqueue(func(tx *firestore.Transaction) error {
			return pfirestore.WrapError("orders.create", tx.Create(ref, doc))
		})
		return nil
	})
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) FindByItemID(ctx context.Context, itemID string) (domain.Order, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.Order{}, errors.New("order lookup: item id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("itemIds", "array-contains", itemID).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, repositories.NewError(repositories.ErrorKindNotFound, fmt.Sprintf("order item %s not found", itemID), nil)
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// UpdateItem rewrites a single embedded item after verifying the stored status
// still matches what the caller read. A mismatch surfaces as a conflict.
func (r *OrderRepository) UpdateItem(ctx context.Context, item domain.OrderItem, expected domain.ItemStatus) error {
	if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.OrderID) == "" {
		return errors.New("order item update: item and order ids are required")
	}

	return runWrite(ctx, r.provider, func(ctx context.Context, state *txState) error {
		ref, err := r.base.DocumentRef(ctx, item.OrderID)
		if err != nil {
			return err
		}
		snap, err := state.tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("orders.get", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", item.OrderID, err)
		}

		idx := -1
		for i := range doc.Items {
			if doc.Items[i].ID == item.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return repositories.NewError(repositories.ErrorKindNotFound, fmt.Sprintf("order item %s not found in order %s", item.ID, item.OrderID), nil)
		}
		if doc.Items[idx].Status != string(expected) {
			return repositories.NewError(repositories.ErrorKindConflict,
				fmt.Sprintf("order item %s: status is %s, expected %s", item.ID, doc.Items[idx].Status, expected), nil)
		}

		doc.Items[idx] = newOrderItemDocument(item)
		state.enqueue(func(tx *firestore.Transaction) error {
			return pfirestore.WrapError("orders.set", tx.Set(ref, doc))
		})
		return nil
	})
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, errors.New("order list: customer id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("customerId", "==", customerID).OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	return toDomainOrders(docs), nil
}

func (r *OrderRepository) ListBySeller(ctx context.Context, sellerID string) ([]domain.Order, error) {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return nil, errors.New("order list: seller id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("sellerIds", "array-contains", sellerID).OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	return toDomainOrders(docs), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	if pageSize > pagination.DefaultMaxPageSize {
		pageSize = pagination.DefaultMaxPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	startAfter, err := decodeOrderCursor(cursor)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.CreatedAfter != nil {
			q = q.Where("createdAt", ">=", filter.CreatedAfter.UTC())
		}
		if filter.CreatedBefore != nil {
			q = q.Where("createdAt", "<", filter.CreatedBefore.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if startAfter != nil {
			q = q.StartAfter(startAfter.createdAt, startAfter.id)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	more := len(docs) > pageSize
	if more {
		docs = docs[:pageSize]
	}
	page.Items = toDomainOrders(docs)
	if more {
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.Data.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

type orderCursor struct {
	createdAt time.Time
	id        string
}

func decodeOrderCursor(cursor pagination.Cursor) (*orderCursor, error) {
	if len(cursor.StartAfter) == 0 {
		return nil, nil
	}
	if len(cursor.StartAfter) != 2 {
		return nil, pagination.ErrInvalidPageToken
	}
	raw, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, pagination.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok {
		return nil, pagination.ErrInvalidPageToken
	}
	return &orderCursor{createdAt: createdAt, id: id}, nil
}

func toDomainOrders(docs []pfirestore.Document[orderDocument]) []domain.Order {
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders
}
