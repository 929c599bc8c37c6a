// Package app holds process lifecycle helpers shared by the scale commands.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/ngageoint/scale/internal/common/scalecontext"
)

// CreateContextWithShutdown returns a context, logging as process, that is cancelled when the process receives
// SIGINT or SIGTERM.
func CreateContextWithShutdown(process string) *scalecontext.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-c:
			log.Infof("Received %s, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return scalecontext.New(ctx, log.WithField("process", process))
}
