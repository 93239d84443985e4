package commands

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CanRau/logux-core/action"
	"github.com/CanRau/logux-core/conn"
	"github.com/CanRau/logux-core/conn/tcp"
	"github.com/CanRau/logux-core/conn/ws"
	"github.com/CanRau/logux-core/node"
	"github.com/CanRau/logux-core/store"
	"github.com/CanRau/logux-core/store/memory"
	"github.com/CanRau/logux-core/store/pebblestore"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Accept ServerNode connections over websocket (and optionally raw TCP)",
		PreRunE: bindAndLoadLogger,
		RunE:    runServe,
	}
	cmd.Flags().String("node-id", "", "this peer's node id (random if omitted)")
	cmd.Flags().String("listen", ":31337", "HTTP/websocket listen address; the path segment after /ws/ namespaces the log")
	cmd.Flags().String("tcp-listen", "", "raw TCP listen address; leave empty to disable (the shared log for TCP is always room \"default\")")
	cmd.Flags().String("datadir", "", "pebble data directory, one subdirectory per log; empty keeps everything in memory")
	cmd.Flags().String("subprotocol", "0.0.0", "subprotocol version advertised to peers")
	cmd.Flags().Duration("timeout", 20*time.Second, "handshake/liveness deadline, 0 disables it")
	cmd.Flags().Duration("ping", 10*time.Second, "idle ping interval, 0 disables liveness probing")
	cmd.Flags().Bool("fix-time", true, "apply §4.4.4 clock-skew correction")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	nodeId := resolveNodeId(viper.GetString("node-id"))
	listen := viper.GetString("listen")
	tcpListen := viper.GetString("tcp-listen")
	datadir := viper.GetString("datadir")

	cfg := node.Config{
		Proto:       1,
		MinProtocol: 1,
		Subprotocol: viper.GetString("subprotocol"),
		Timeout:     viper.GetDuration("timeout"),
		Ping:        viper.GetDuration("ping"),
		FixTime:     viper.GetBool("fix-time"),
		Logger:      logger,
	}

	registry := node.NewRegistry(func(key string) (store.Store, error) {
		if datadir == "" {
			return memory.New(), nil
		}
		return pebblestore.Open(datadir+"/"+key, pebblestore.Options{Logger: logger})
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		room := strings.TrimPrefix(r.URL.Path, "/ws/")
		if room == "" {
			room = "default"
		}
		c, err := ws.Upgrade(w, r)
		if err != nil {
			logger.Error("serve: websocket upgrade failed", "room", room, "err", err)
			return
		}
		acceptPeer(registry, nodeId, room, cfg, c)
	})
	httpSrv := &http.Server{Addr: listen, Handler: mux}

	go func() {
		logger.Info("serve: websocket listening", "addr", listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("serve: http server stopped", "err", err)
		}
	}()

	if tcpListen != "" {
		ln, err := tcp.Listen(ctx, tcpListen, nil)
		if err != nil {
			return err
		}
		logger.Info("serve: tcp listening", "addr", tcpListen)
		go acceptTCP(ln, registry, nodeId, cfg)
		defer ln.Close()
	}

	<-ctx.Done()
	logger.Info("serve: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func acceptTCP(ln net.Listener, registry *node.Registry, nodeId string, cfg node.Config) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		acceptPeer(registry, nodeId, "default", cfg, tcp.Wrap(nc))
	}
}

// acceptPeer builds a ServerNode for one freshly-accepted Connection,
// sharing the room's Log via registry, and wires a few log lines so a
// serve session is observable without a metrics scraper attached.
func acceptPeer(registry *node.Registry, nodeId, room string, cfg node.Config, c conn.Connection) {
	l, err := registry.LogFor(room, nodeId, cfg.Clock)
	if err != nil {
		logger.Error("serve: could not open log", "room", room, "err", err)
		_ = c.Disconnect("log-unavailable")
		return
	}
	n := node.NewServerNode(nodeId, l, c, cfg)
	n.OnState(func(s node.State) { logger.Debug("serve: state", "room", room, "state", s.String()) })
	n.OnClientError(func(de *node.DomainError) { logger.Warn("serve: peer error", "room", room, "kind", de.Kind) })
	n.OnDisconnect(func(reason string) { logger.Info("serve: peer disconnected", "room", room, "reason", reason) })
	n.OnAdd(func(e action.Entry) { logger.Debug("serve: action added", "room", room, "type", e.Action.Type, "id", e.Meta.Id) })
	if err := n.Connect(); err != nil {
		logger.Error("serve: connect failed", "room", room, "err", err)
	}
}
