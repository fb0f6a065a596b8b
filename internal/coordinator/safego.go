package coordinator

import (
	"log"
	"time"

	"github.com/getsentry/sentry-go"
)

// goRecover runs fn on its own goroutine and reports any panic to Sentry
// (a no-op when no DSN was ever configured via sentry.Init) instead of
// letting it crash the whole peer process, matching spec.md §7's
// best-effort error semantics for the coordinator's background work.
func goRecover(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				sentry.CurrentHub().Recover(r)
				sentry.Flush(2 * time.Second)
				log.Printf("coordinator: recovered panic: %v", r)
			}
		}()
		fn()
	}()
}
