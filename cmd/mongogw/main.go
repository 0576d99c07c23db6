package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nikmy/mongoflow/internal/gateway"
	"github.com/nikmy/mongoflow/pkg/errors"
	"github.com/nikmy/mongoflow/pkg/logger"
	"github.com/nikmy/mongoflow/pkg/mongoflow"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := loadConfig()
	if err != nil {
		stdlog.Panic(errors.WrapFail(err, "load config"))
	}

	log, err := logger.New(cfg.Environment)
	if err != nil {
		stdlog.Panic(errors.WrapFail(err, "init logger"))
	}

	log.Infof("starting in %s environment", cfg.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGABRT)
	defer cancel()

	client, err := mongoflow.Connect(ctx, cfg.Mongo, log)
	if err != nil {
		log.Panic(errors.WrapFail(err, "connect to mongo"))
	}

	srv := gateway.NewServer(cfg.Gateway, client, log)

	stopped := make(chan struct{})
	context.AfterFunc(ctx, func() {
		stdlog.Println("Graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			log.Warn(errors.WrapFail(err, "shutdown gateway"))
		}
		stopped <- struct{}{}
	})

	stdlog.Println("Gateway is listening on", cfg.Gateway.HTTP.Addr)

	err = srv.Serve(ctx)
	if err != nil {
		log.Error(errors.WrapFail(err, "serve gateway"))
	}

	<-stopped
	stdlog.Println("Shutdown complete")
}
