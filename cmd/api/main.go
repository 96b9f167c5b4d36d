package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/mcclellann/lotledger/pkg/config"
	"github.com/mcclellann/lotledger/pkg/ledger"
	"github.com/mcclellann/lotledger/pkg/lock"
	"github.com/mcclellann/lotledger/pkg/store"
	"github.com/sirupsen/logrus"
)

// Server holds the ledger instance.
type Server struct {
	ledger   *ledger.Ledger
	log      logrus.FieldLogger
	validate *validator.Validate
}

func NewServer(l *ledger.Ledger, log logrus.FieldLogger) *Server {
	validate := validator.New()
	// report fields by their JSON names
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{ledger: l, log: log, validate: validate}
}

// Router wires every route. An empty jwtSecret falls back to the X-Recorded-By header for identity.
func (s *Server) Router(jwtSecret string) *mux.Router {
	router := mux.NewRouter()
	router.Use(LogMiddleware(s.log))
	if jwtSecret != "" {
		router.Use(AuthMiddleware(jwtSecret))
	} else {
		router.Use(HeaderIdentityMiddleware)
	}

	router.HandleFunc("/lots", s.createLotHandler).Methods(http.MethodPost)
	router.HandleFunc("/lots", s.listLotsHandler).Methods(http.MethodGet)
	router.HandleFunc("/lots/{id}", s.getLotHandler).Methods(http.MethodGet)
	router.HandleFunc("/lots/{id}", s.updateLotHandler).Methods(http.MethodPut)

	router.HandleFunc("/clients", s.listClientsHandler).Methods(http.MethodGet)
	router.HandleFunc("/sales", s.createSaleHandler).Methods(http.MethodPost)

	router.HandleFunc("/contracts", s.listContractsHandler).Methods(http.MethodGet)
	router.HandleFunc("/contracts/{id}", s.statementHandler).Methods(http.MethodGet)
	router.HandleFunc("/contracts/{id}/snapshot", s.snapshotHandler).Methods(http.MethodGet)
	router.HandleFunc("/contracts/{id}/schedule", s.generateScheduleHandler).Methods(http.MethodPost)
	router.HandleFunc("/contracts/{id}/delinquency", s.refreshDelinquencyHandler).Methods(http.MethodPost)
	router.HandleFunc("/contracts/{id}/payments", s.applyPaymentHandler).Methods(http.MethodPost)
	router.HandleFunc("/contracts/{id}/payments", s.listPaymentsHandler).Methods(http.MethodGet)
	router.HandleFunc("/contracts/{id}/close", s.closeContractHandler).Methods(http.MethodPost)
	router.HandleFunc("/contracts/{id}/cancel", s.cancelContractHandler).Methods(http.MethodPost)
	router.HandleFunc("/contracts/{id}/return", s.returnContractHandler).Methods(http.MethodPost)
	router.HandleFunc("/contracts/{id}/void", s.voidContractHandler).Methods(http.MethodPost)

	router.HandleFunc("/installments/{id}/exemption", s.toggleExemptionHandler).Methods(http.MethodPost)

	router.HandleFunc("/policy", s.getPolicyHandler).Methods(http.MethodGet)
	router.HandleFunc("/policy", s.updatePolicyHandler).Methods(http.MethodPut)

	router.HandleFunc("/dashboard", s.dashboardHandler).Methods(http.MethodGet)
	router.HandleFunc("/reports/monthly", s.monthlyReportHandler).Methods(http.MethodGet)
	router.HandleFunc("/reports/general", s.generalReportHandler).Methods(http.MethodGet)
	return router
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log, err := cfg.Log.NewLogger()
	if err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}
	log.SetOutput(os.Stdout)

	storage, err := store.NewSQLStore(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", cfg.Database.Driver, err)
	}
	defer storage.Close()

	opts := []ledger.Option{ledger.WithLogger(log)}
	if cfg.Redis.Addr != "" {
		locker, err := lock.NewRedisLocker(context.Background(), cfg.Redis.Addr, cfg.Redis.LockTTL, log)
		if err != nil {
			log.Fatalf("Failed to initialize Redis lock: %v", err)
		}
		defer locker.Close()
		opts = append(opts, ledger.WithLocker(locker))
		log.WithField("addr", cfg.Redis.Addr).Info("using Redis contract locks")
	}
	if cfg.JWT.Secret == "" {
		log.Warn("JWT_SECRET is not set; recorder identity comes from the X-Recorded-By header")
	}

	server := NewServer(ledger.NewLedger(storage, opts...), log)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(cfg.JWT.Secret),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Server starting on :%d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
	}
	log.Info("Server gracefully stopped")
}
