// Package restokit is a Go client SDK for the Restomate back-office
// platform. It owns the two hard problems of the data-access layer:
// coordinated bearer-token refresh under concurrent outbound requests, and
// synchronization of push-delivered order events into the pull-based order
// cache.
package restokit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/restomate/restokit/apperrors"
	"github.com/restomate/restokit/auth"
	"github.com/restomate/restokit/config"
	"github.com/restomate/restokit/domain"
	"github.com/restomate/restokit/notify"
	"github.com/restomate/restokit/ordercache"
	"github.com/restomate/restokit/realtime"
	"github.com/restomate/restokit/rest"
	"github.com/restomate/restokit/session"
)

// errorToastTTL is how long a surfaced error stays on screen.
const errorToastTTL = 8 * time.Second

// App wires the SDK components together: one credential store feeding the
// refresh coordinator, the request pipeline and the realtime channel.
// Construct exactly one per process and pass it around; nothing in the SDK
// is a package-level singleton.
type App struct {
	Store    session.Store
	Auth     *auth.Service
	REST     *rest.Client
	Orders   *ordercache.Store
	Toasts   *notify.Queue
	Realtime *realtime.Channel
}

// Option configures the App.
type Option func(*options)

type options struct {
	handler realtime.Handler
	store   session.Store
}

// WithRealtimeHandler registers a typed handler for realtime events.
func WithRealtimeHandler(h realtime.Handler) Option {
	return func(o *options) { o.handler = h }
}

// WithStore overrides the credential store, e.g. with a test double.
func WithStore(s session.Store) Option {
	return func(o *options) { o.store = s }
}

// New builds a fully wired App from configuration.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		if cfg.RedisAddr != "" {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
			})
			store = session.NewRedisStore(client, "")
		} else {
			store = session.NewMemoryStore()
		}
	}

	orders := ordercache.NewStore()
	toasts := notify.NewQueue()

	var channelOpts []realtime.Option
	if o.handler != nil {
		channelOpts = append(channelOpts, realtime.WithHandler(o.handler))
	}
	channel := realtime.NewChannel(cfg.RealtimeURL, store, orders, toasts, channelOpts...)

	// A forced logout (failed refresh) also drops the live connection:
	// the channel must never outlive the credential it handshook with.
	authSvc := auth.NewService(cfg.APIBaseURL, store,
		auth.WithLogoutHook(channel.Close),
	)

	restClient := rest.NewClient(cfg.APIBaseURL, store, authSvc,
		rest.WithExpiryMargin(cfg.ExpiryMargin),
		rest.WithTimeout(cfg.RequestTimeout),
	)

	return &App{
		Store:    store,
		Auth:     authSvc,
		REST:     restClient,
		Orders:   orders,
		Toasts:   toasts,
		Realtime: channel,
	}, nil
}

// FetchOrders pulls the order list for a room through the request pipeline
// and primes the cache so realtime events reconcile against it.
func (a *App) FetchOrders(ctx context.Context, room, filter string) ([]domain.Order, error) {
	path := "/orders?restaurantId=" + url.QueryEscape(room)
	if filter != "" {
		path += "&status=" + url.QueryEscape(filter)
	}

	var orders []domain.Order
	if err := a.REST.Get(ctx, path, &orders); err != nil {
		a.ReportError(err)
		return nil, fmt.Errorf("fetching orders: %w", err)
	}

	a.Orders.Prime(ctx, ordercache.Key{Room: room, Filter: filter}, orders)

	return orders, nil
}

// ReportError surfaces an SDK error as exactly one transient alert. A
// validation failure shows as a warning, everything else as an error.
func (a *App) ReportError(err error) string {
	severity := notify.SeverityError

	var apiErr *apperrors.APIError
	if errors.As(err, &apiErr) && apiErr.IsValidation() {
		severity = notify.SeverityWarning
	}

	return a.Toasts.Enqueue(apperrors.UserMessage(err), severity, errorToastTTL)
}

// Close releases everything the App holds open.
func (a *App) Close() {
	a.Realtime.Close()
	a.Orders.Close()
	a.Toasts.Close()
}
