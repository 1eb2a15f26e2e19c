package order_test

import (
	"context"
	"testing"
	"time"

	"ms-ordering/internal/clock"
	"ms-ordering/internal/config"
	"ms-ordering/internal/database/dbtest"
	"ms-ordering/internal/events"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/models"
	"ms-ordering/internal/order"
	orderredis "ms-ordering/internal/order/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

// published counts messages sent to topic.
func (m *MockPublisher) published(topic string) int {
	n := 0
	for _, call := range m.Calls {
		if call.Method == "Publish" && call.Arguments.String(1) == topic {
			n++
		}
	}
	return n
}

type fixture struct {
	ctx    context.Context
	db     *bun.DB
	clock  *clock.FakeClock
	build  *dbtest.Builder
	cfg    *config.Config
	pub    *MockPublisher
	svc    *order.Service
	org    *models.Organization
	event  *models.Event
	userID string
}

func setup(t *testing.T, orgOpts dbtest.OrgOptions) *fixture {
	t.Helper()

	db := dbtest.New(t)
	clk := clock.Fake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	b := dbtest.NewBuilder(t, db, clk.Now())

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	cfg := &config.Config{
		Redis: config.RedisConfig{CartLockTTL: 30 * time.Second, CartLockWait: time.Second},
		Kafka: config.KafkaConfig{Topics: config.TopicConfig{
			OrderCreated:   "order.created",
			OrderUpdated:   "order.updated",
			OrderCompleted: "order.completed",
			OrderRefunded:  "order.refunded",
			PaymentCreated: "payment.created",
		}},
		Orders: config.OrderConfig{CartExpiry: 15 * time.Minute, ReservationWindow: 15 * time.Minute},
		Fees:   config.FeeConfig{MinimumPriceForFeesInCents: 1},
	}

	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	log := logger.Discard()
	dispatcher := events.NewDispatcher(db, pub, cfg.Kafka.Topics, clk, log)
	lock := orderredis.NewCartLock(client, cfg.Redis, log)

	org := b.Organization(orgOpts)
	return &fixture{
		ctx:    context.Background(),
		db:     db,
		clock:  clk,
		build:  b,
		cfg:    cfg,
		pub:    pub,
		svc:    order.NewService(db, lock, dispatcher, cfg, clk, log),
		org:    org,
		event:  b.Event(org, dbtest.EventOptions{Name: "Summer Festival"}),
		userID: "user-1",
	}
}

func (f *fixture) cart(t *testing.T) *models.Order {
	t.Helper()
	cart, err := f.svc.FindOrCreateCart(f.ctx, f.userID)
	require.NoError(t, err)
	return cart
}

func (f *fixture) set(t *testing.T, orderID string, lines ...order.LineRequest) []models.OrderItem {
	t.Helper()
	items, err := f.svc.UpdateQuantities(f.ctx, orderID, f.userID, lines, false, false)
	require.NoError(t, err)
	return items
}

func (f *fixture) linked(t *testing.T, itemID string) []models.TicketInstance {
	t.Helper()
	instances, err := f.svc.Ledger().Linked(f.ctx, f.db, []string{itemID})
	require.NoError(t, err)
	return instances
}

func itemsOfType(items []models.OrderItem, typ models.OrderItemType) []models.OrderItem {
	var out []models.OrderItem
	for _, item := range items {
		if item.ItemType == typ {
			out = append(out, item)
		}
	}
	return out
}

func ticketItem(t *testing.T, items []models.OrderItem, ticketTypeID string) models.OrderItem {
	t.Helper()
	for _, item := range items {
		if item.ItemType == models.OrderItemTypeTickets && item.TicketTypeID == ticketTypeID {
			return item
		}
	}
	t.Fatalf("no ticket item for %s", ticketTypeID)
	return models.OrderItem{}
}

func sum(items []models.OrderItem) int64 {
	var total int64
	for i := range items {
		total += items[i].Total()
	}
	return total
}
