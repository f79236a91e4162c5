package app

import (
	"context"
	"errors"
	"net/http"

	"gitlab.com/nevasik7/alerting/logger"
)

type HTTPServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// Inbound is the notification feed, stopped before the HTTP server goes down
type Inbound interface {
	Unsubscribe() error
}

type App struct {
	log     logger.Logger
	httpSrv HTTPServer
	inbound Inbound
}

func New(log logger.Logger, httpSrv HTTPServer, inbound Inbound) *App {
	return &App{log: log, httpSrv: httpSrv, inbound: inbound}
}

func (a *App) Start() error {
	a.log.Debug("App started begin...")

	go func() {
		if err := a.httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Fatalf("Start HTTP server is error=%v", err)
		}
	}()

	a.log.Info("App started")
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.log.Debug("App stopped begin...")

	var errs []error
	if a.inbound != nil {
		if err := a.inbound.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.httpSrv.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	a.log.Info("App stopped")
	return nil
}
