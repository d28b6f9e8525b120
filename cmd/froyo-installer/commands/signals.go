package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/installer/pkg/engine"
)

// watchSignals sets the returned signal on SIGINT or SIGTERM. The running
// step finishes first; a second signal exits immediately.
func watchSignals() (*engine.CancelSignal, func()) {
	cancel := engine.NewCancelSignal()
	sigChan := make(chan os.Signal, 2)
	done := make(chan struct{})
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		received := 0
		for {
			select {
			case sig := <-sigChan:
				received++
				if received > 1 {
					log.Error().Str("signal", sig.String()).Msg("Received second signal, exiting")
					os.Exit(130)
				}
				log.Warn().Str("signal", sig.String()).Msg("Cancelling after the current step finishes")
				cancel.Cancel()
			case <-done:
				return
			}
		}
	}()

	return cancel, func() {
		signal.Stop(sigChan)
		close(done)
	}
}
