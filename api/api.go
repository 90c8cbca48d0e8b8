package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vocdoni/aztec-rpc/aztecrpc"
	"github.com/vocdoni/aztec-rpc/log"
)

const (
	maxRequestBodyLog = 512 // Maximum length of request body to log
	shutdownTimeout   = 10 * time.Second
)

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host   string
	Port   int
	Client *aztecrpc.Client
}

// API type represents the HTTP API of the RPC client.
type API struct {
	router *chi.Mux
	client *aztecrpc.Client
	addr   string
}

// New creates a new API instance with the given configuration. The server
// is started with Start.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Client == nil {
		return nil, fmt.Errorf("missing rpc client")
	}
	a := &API{
		client: conf.Client,
		addr:   fmt.Sprintf("%s:%d", conf.Host, conf.Port),
	}
	a.initRouter()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Start serves the API until ctx is canceled, then shuts the server down.
func (a *API) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infow("starting API server", "addr", a.addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("could not shut down the API server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Infow("API server stopped", "addr", a.addr)
	return nil
}

// registerHandlers registers all the HTTP handlers for the API endpoints.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	// account endpoints
	log.Infow("register handler", "endpoint", AccountsEndpoint, "method", "GET")
	a.router.Get(AccountsEndpoint, a.accounts)
	log.Infow("register handler", "endpoint", AccountsEndpoint, "method", "POST")
	a.router.Post(AccountsEndpoint, a.createAccount)
	log.Infow("register handler", "endpoint", RegisterAccountEndpoint, "method", "POST")
	a.router.Post(RegisterAccountEndpoint, a.registerAccount)
	log.Infow("register handler", "endpoint", AccountPublicKeyEndpoint, "method", "GET")
	a.router.Get(AccountPublicKeyEndpoint, a.accountPublicKey)
	// contract endpoints
	log.Infow("register handler", "endpoint", ContractsEndpoint, "method", "POST")
	a.router.Post(ContractsEndpoint, a.addContracts)
	log.Infow("register handler", "endpoint", ContractDeployedEndpoint, "method", "GET")
	a.router.Get(ContractDeployedEndpoint, a.contractDeployed)
	log.Infow("register handler", "endpoint", DeployEndpoint, "method", "POST")
	a.router.Post(DeployEndpoint, a.deploy)
	// tx endpoints
	log.Infow("register handler", "endpoint", TxsEndpoint, "method", "POST")
	a.router.Post(TxsEndpoint, a.createTx)
	log.Infow("register handler", "endpoint", ViewTxEndpoint, "method", "POST")
	a.router.Post(ViewTxEndpoint, a.viewTx)
	log.Infow("register handler", "endpoint", SendTxEndpoint, "method", "POST")
	a.router.Post(SendTxEndpoint, a.sendTx)
	log.Infow("register handler", "endpoint", TxReceiptEndpoint, "method", "GET")
	a.router.Get(TxReceiptEndpoint, a.txReceipt)
	// storage endpoints
	log.Infow("register handler", "endpoint", StorageEndpoint, "method", "GET")
	a.router.Get(StorageEndpoint, a.storageAt)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	a.router.Use(requestIDMiddleware)
	a.router.Use(loggingMiddleware(maxRequestBodyLog))
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))
	a.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrResourceNotFound.Withf("no route for %s %s", r.Method, r.URL.Path).Write(w)
	})

	a.registerHandlers()
}
