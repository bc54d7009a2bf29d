package lib

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

// SliceContains reports whether slice holds item
func SliceContains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func LocalFileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || os.IsExist(err)
}

// SetupCloseHandler returns a context that is cancelled on the first
// interrupt or SIGTERM. A second signal exits the process right away.
func SetupCloseHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			log.Warn().Msg("Interrupt received, finishing in-flight scenarios. Press Ctrl+C again to exit")
			cancel()
		case <-ctx.Done():
			return
		}
		select {
		case <-signals:
			os.Exit(130)
		case <-parent.Done():
		}
	}()
	return ctx, cancel
}
