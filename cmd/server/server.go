package main

import (
	"context"
	"os/signal"
	"syscall"

	"ironbook/internal/adapter"
	"ironbook/internal/events"
	"ironbook/internal/exchange"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	// Wire the event bus and exchange, then the TCP adapter over both.
	bus := events.NewBus()
	xchg := exchange.New(bus, bus)
	srv := adapter.New("0.0.0.0", 9001, xchg, bus)

	go srv.Run(ctx)
	// Block on running the server.
	<-ctx.Done()
}
