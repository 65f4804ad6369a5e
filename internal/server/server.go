package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/larder/internal/alerts"
	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/backup"
	"github.com/dukerupert/larder/internal/clock"
	"github.com/dukerupert/larder/internal/directory"
	"github.com/dukerupert/larder/internal/handler"
	"github.com/dukerupert/larder/internal/ledger"
	"github.com/dukerupert/larder/internal/metrics"
	"github.com/dukerupert/larder/internal/middleware"
	"github.com/dukerupert/larder/internal/push"
	ws "github.com/dukerupert/larder/internal/websocket"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	joinLimit  = 10
	joinWindow = 15 * time.Minute
)

// Options wires the server to its collaborators. Sender may be nil, which
// turns push notifications off.
type Options struct {
	DB             *sql.DB
	Clock          clock.Clock
	Verifier       *auth.Verifier
	Sender         push.Sender
	VAPIDPublicKey string
	CronSecret     string
	AllowedOrigins []string
	Backup         backup.Config
	Logger         *slog.Logger
}

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	verifier       *auth.Verifier
	directory      *directory.Service
	cronSecret     string
	allowedOrigins []string

	stockH        *handler.StockHandler
	alertH        *handler.AlertHandler
	householdH    *handler.HouseholdHandler
	locationH     *handler.LocationHandler
	productH      *handler.ProductHandler
	shoppingH     *handler.ShoppingHandler
	notificationH *handler.NotificationHandler
	cronH         *handler.CronHandler

	rateLimiter   *middleware.RateLimiter
	dispatcher    *push.Dispatcher
	backupManager *backup.Manager
	logger        *slog.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	db := opts.DB
	hub := ws.NewHub(logger.With("component", "websocket"))

	ledgerSvc := ledger.New(db, opts.Clock, logger.With("component", "ledger"))
	projector := alerts.New(db, opts.Clock)
	dir := directory.New(db, logger.With("component", "directory"))
	backupMgr := backup.NewManager(opts.Backup, db, opts.Clock, logger.With("component", "backup"))

	var dispatcher *push.Dispatcher
	var digests handler.DigestRunner
	if opts.Sender != nil {
		dispatcher = push.NewDispatcher(db, opts.Sender, projector, opts.Clock, logger.With("component", "push"))
		digests = dispatcher
	}

	return &Server{
		db:             db,
		hub:            hub,
		verifier:       opts.Verifier,
		directory:      dir,
		cronSecret:     opts.CronSecret,
		allowedOrigins: opts.AllowedOrigins,

		stockH:        handler.NewStockHandler(ledgerSvc, hub, logger.With("component", "stock")),
		alertH:        handler.NewAlertHandler(projector, logger.With("component", "alerts")),
		householdH:    handler.NewHouseholdHandler(dir, hub, logger.With("component", "household")),
		locationH:     handler.NewLocationHandler(db, hub, logger.With("component", "location")),
		productH:      handler.NewProductHandler(db, hub, logger.With("component", "product")),
		shoppingH:     handler.NewShoppingHandler(db, ledgerSvc, hub, logger.With("component", "shopping")),
		notificationH: handler.NewNotificationHandler(db, opts.Sender, opts.VAPIDPublicKey, logger.With("component", "notification")),
		cronH:         handler.NewCronHandler(digests, backupMgr, logger.With("component", "cron")),

		rateLimiter:   middleware.NewRateLimiter(),
		dispatcher:    dispatcher,
		backupManager: backupMgr,
		logger:        logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Dispatcher returns the notification dispatcher, or nil when push is off.
func (s *Server) Dispatcher() *push.Dispatcher {
	return s.dispatcher
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	outerMux.HandleFunc("GET /health", handler.Health(s.db))
	outerMux.Handle("GET /metrics", metrics.Handler())

	cron := middleware.RequireCronSecret(s.cronSecret)
	outerMux.Handle("POST /api/cron/notifications", cron(http.HandlerFunc(s.cronH.Notifications)))
	outerMux.Handle("POST /api/cron/backup", cron(http.HandlerFunc(s.cronH.Backup)))

	// Routes that need a user but no household.
	userMux := http.NewServeMux()
	s.registerUserRoutes(userMux)

	// Routes scoped to the household from X-Household-ID.
	householdMux := http.NewServeMux()
	s.registerHouseholdRoutes(householdMux)
	userMux.Handle("/", middleware.RequireHousehold(s.directory)(householdMux))

	outerMux.Handle("/", middleware.RequireUser(s.verifier)(userMux))

	logged := middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
	return otelhttp.NewHandler(logged, "larder.http")
}

func (s *Server) registerUserRoutes(mux *http.ServeMux) {
	join := middleware.RateLimit(s.rateLimiter, middleware.ByUser, joinLimit, joinWindow)

	mux.HandleFunc("GET /api/households", s.householdH.ListMine)
	mux.HandleFunc("POST /api/households", s.householdH.Create)
	mux.Handle("POST /api/households/join", join(http.HandlerFunc(s.householdH.Join)))

	mux.HandleFunc("GET /api/notifications/devices", s.notificationH.ListDevices)
	mux.HandleFunc("POST /api/notifications/devices", s.notificationH.RegisterDevice)
	mux.HandleFunc("DELETE /api/notifications/devices", s.notificationH.UnregisterDevice)
	mux.HandleFunc("GET /api/notifications/preferences", s.notificationH.GetPreferences)
	mux.HandleFunc("PUT /api/notifications/preferences", s.notificationH.UpdatePreferences)
	mux.HandleFunc("GET /api/notifications/vapid-key", s.notificationH.VAPIDKey)
}

func (s *Server) registerHouseholdRoutes(mux *http.ServeMux) {
	write := func(h http.HandlerFunc) http.Handler { return middleware.RequireWriter(h) }
	admin := func(h http.HandlerFunc) http.Handler { return middleware.RequireAdmin(h) }

	// Household
	mux.HandleFunc("GET /api/household", s.householdH.Get)
	mux.Handle("PATCH /api/household", admin(s.householdH.Update))
	mux.Handle("DELETE /api/household", admin(s.householdH.Delete))
	mux.Handle("POST /api/household/code", admin(s.householdH.RegenerateCode))
	mux.HandleFunc("POST /api/household/leave", s.householdH.Leave)
	mux.HandleFunc("GET /api/household/members", s.householdH.Members)
	mux.HandleFunc("PATCH /api/household/members/me", s.householdH.SetNickname)
	mux.Handle("PATCH /api/household/members/{user_id}", admin(s.householdH.ChangeRole))
	mux.Handle("DELETE /api/household/members/{user_id}", admin(s.householdH.Kick))

	// Locations
	mux.HandleFunc("GET /api/locations", s.locationH.List)
	mux.Handle("POST /api/locations", write(s.locationH.Create))
	mux.Handle("PATCH /api/locations/{id}", write(s.locationH.Update))
	mux.Handle("DELETE /api/locations/{id}", write(s.locationH.Delete))

	// Products
	mux.HandleFunc("GET /api/products", s.productH.Search)
	mux.HandleFunc("GET /api/products/barcode/{barcode}", s.productH.GetByBarcode)
	mux.HandleFunc("POST /api/products/suggest-locations", s.productH.SuggestLocations)
	mux.Handle("PATCH /api/products/{id}", write(s.productH.Update))

	// Stock
	mux.HandleFunc("GET /api/stock", s.stockH.List)
	mux.Handle("POST /api/stock", write(s.stockH.Create))
	mux.Handle("POST /api/stock/scan", write(s.stockH.Scan))
	mux.HandleFunc("GET /api/stock/{id}", s.stockH.Get)
	mux.Handle("PATCH /api/stock/{id}", write(s.stockH.Update))
	mux.Handle("DELETE /api/stock/{id}", write(s.stockH.Delete))
	mux.Handle("POST /api/stock/{id}/consume", write(s.stockH.Consume))
	mux.Handle("POST /api/stock/{id}/remove", write(s.stockH.Remove))
	mux.Handle("POST /api/stock/{id}/open", write(s.stockH.Open))
	mux.Handle("POST /api/stock/{id}/freeze", write(s.stockH.Freeze))
	mux.Handle("POST /api/stock/{id}/thaw", write(s.stockH.Thaw))
	mux.Handle("POST /api/stock/{id}/relocate", write(s.stockH.Relocate))

	mux.HandleFunc("GET /api/alerts", s.alertH.List)

	// Shopping list
	mux.HandleFunc("GET /api/shopping", s.shoppingH.List)
	mux.Handle("POST /api/shopping", write(s.shoppingH.Create))
	mux.Handle("PATCH /api/shopping/{id}", write(s.shoppingH.Update))
	mux.Handle("DELETE /api/shopping/{id}", write(s.shoppingH.Delete))
	mux.Handle("POST /api/shopping/clear-completed", write(s.shoppingH.ClearCompleted))
	mux.Handle("POST /api/shopping/{id}/to-inventory", write(s.shoppingH.ToInventory))

	mux.HandleFunc("GET /ws", ws.Handler(s.hub, s.allowedOrigins, s.logger.With("component", "websocket")))
}
