// Command turboproxy runs the non-blocking, single-threaded HTTP/1.1
// reverse proxy: one listening socket, one event loop, one backend
// connection per client transaction.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/nazibul7/turboproxy/internal/backend"
	"github.com/nazibul7/turboproxy/internal/dispatcher"
	"github.com/nazibul7/turboproxy/internal/ioevent"
	"github.com/nazibul7/turboproxy/internal/proxylog"
	"github.com/nazibul7/turboproxy/internal/rawsock"
	"github.com/nazibul7/turboproxy/internal/routetable"
)

const minBacklog = 512

func main() {
	os.Exit(run())
}

func run() int {
	var (
		listenAddr  string
		routesPath  string
		watchRoutes bool
		backlog     int
		validate    bool
	)
	flag.StringVar(&listenAddr, "listen", ":8000", "address to listen on")
	flag.StringVar(&routesPath, "routes", "routes.conf", "path to the route config file")
	flag.BoolVar(&watchRoutes, "watch-routes", false, "hot-reload the route config file on change")
	flag.IntVar(&backlog, "backlog", minBacklog, "listen backlog (minimum 512)")
	flag.BoolVar(&validate, "validate-backends", true, "resolve every route's backend host at startup")
	flag.Parse()

	if backlog < minBacklog {
		backlog = minBacklog
	}

	// The proxy's fds are raw, non-blocking sockets managed outside
	// net.Conn, so a write to a peer that has already reset the
	// connection can still raise SIGPIPE; mask it process-wide the way
	// the original does.
	signal.Ignore(syscall.SIGPIPE)

	routes, err := routetable.LoadFile(routesPath)
	if err != nil {
		proxylog.Error("failed to load routes from %s: %v", routesPath, err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if validate {
		if err := routetable.ValidateBackends(ctx, routes); err != nil {
			proxylog.Error("backend validation failed: %v", err)
			return 1
		}
	}

	listenFD, err := rawsock.Listen(listenAddr, backlog)
	if err != nil {
		proxylog.Error("failed to listen on %s: %v", listenAddr, err)
		return 1
	}
	defer unix.Close(listenFD)

	notifier, err := ioevent.New()
	if err != nil {
		proxylog.Error("failed to create event notifier: %v", err)
		return 1
	}
	defer notifier.Close()

	d := dispatcher.New(notifier, routes, backend.NewDialer(), listenFD)

	if watchRoutes {
		stop, err := routetable.Watch(ctx, routesPath, func(newRoutes *routetable.Table, loadErr error) {
			if loadErr != nil {
				proxylog.Error("route reload failed, keeping previous table: %v", loadErr)
				return
			}
			d.SetRoutes(newRoutes)
			proxylog.Debugf("routes reloaded from %s", routesPath)
		})
		if err != nil {
			proxylog.Error("failed to watch %s: %v", routesPath, err)
			return 1
		}
		defer stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	proxylog.Debugf("turboproxy listening on %s, routes from %s", listenAddr, routesPath)
	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		proxylog.Error("dispatcher exited: %v", err)
		return 1
	}
	return 0
}
