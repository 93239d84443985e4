package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CanRau/logux-core/action"
	"github.com/CanRau/logux-core/actionlog"
	"github.com/CanRau/logux-core/conn"
	"github.com/CanRau/logux-core/conn/tcp"
	"github.com/CanRau/logux-core/conn/ws"
	"github.com/CanRau/logux-core/node"
	"github.com/CanRau/logux-core/store"
	"github.com/CanRau/logux-core/store/memory"
	"github.com/CanRau/logux-core/store/pebblestore"
)

func newConnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connect <url>",
		Short:   "Run a ClientNode against a peer (ws://, wss:// or tcp://)",
		Args:    cobra.ExactArgs(1),
		PreRunE: bindAndLoadLogger,
		RunE:    runConnect,
	}
	cmd.Flags().String("node-id", "", "this peer's node id (random if omitted)")
	cmd.Flags().String("datadir", "", "pebble data directory; empty keeps the local log in memory")
	cmd.Flags().String("subprotocol", "0.0.0", "subprotocol version advertised to the peer")
	cmd.Flags().Duration("timeout", 20*time.Second, "handshake/liveness deadline, 0 disables it")
	cmd.Flags().Duration("ping", 10*time.Second, "idle ping interval, 0 disables liveness probing")
	cmd.Flags().Bool("fix-time", true, "apply §4.4.4 clock-skew correction")
	cmd.Flags().String("submit-type", "", "if set, add one local action of this type then keep running")
	cmd.Flags().StringArray("submit-field", nil, "key=value field for --submit-type, repeatable")
	cmd.Flags().StringArray("reason", []string{"cli"}, "reason(s) to attach to the submitted action")
	return cmd
}

func runConnect(cmd *cobra.Command, args []string) error {
	url := args[0]
	nodeId := resolveNodeId(viper.GetString("node-id"))
	datadir := viper.GetString("datadir")

	st, err := openLocalStore(datadir)
	if err != nil {
		return err
	}

	l, err := actionlog.New(nodeId, st, nil)
	if err != nil {
		return err
	}
	l.OnAdd(func(e action.Entry) {
		logger.Info("connect: action added", "type", e.Action.Type, "id", e.Meta.Id)
	})

	c, err := dialConnection(url)
	if err != nil {
		return err
	}

	cfg := node.Config{
		Proto:       1,
		MinProtocol: 1,
		Subprotocol: viper.GetString("subprotocol"),
		Timeout:     viper.GetDuration("timeout"),
		Ping:        viper.GetDuration("ping"),
		FixTime:     viper.GetBool("fix-time"),
		Logger:      logger,
	}
	n := node.NewClientNode(nodeId, l, c, cfg)
	n.OnState(func(s node.State) { logger.Debug("connect: state", "state", s.String()) })
	n.OnClientError(func(de *node.DomainError) { logger.Warn("connect: peer error", "kind", de.Kind) })
	n.OnDisconnect(func(reason string) { logger.Info("connect: disconnected", "reason", reason) })

	if err := n.Connect(); err != nil {
		return err
	}
	defer n.Destroy()

	if submitType := viper.GetString("submit-type"); submitType != "" {
		a, err := buildAction(submitType, viper.GetStringSlice("submit-field"))
		if err != nil {
			return err
		}
		if _, _, err := l.Add(a, action.Meta{Reasons: viper.GetStringSlice("reason")}); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

func openLocalStore(datadir string) (store.Store, error) {
	if datadir == "" {
		return memory.New(), nil
	}
	return pebblestore.Open(datadir, pebblestore.Options{Logger: logger})
}

func dialConnection(url string) (conn.Connection, error) {
	switch {
	case strings.HasPrefix(url, "ws://"), strings.HasPrefix(url, "wss://"):
		return ws.Dial(url, http.Header{}), nil
	case strings.HasPrefix(url, "tcp://"):
		addr := strings.TrimPrefix(url, "tcp://")
		return tcp.Dial(context.Background(), addr, nil)
	default:
		return nil, fmt.Errorf("connect: unsupported url scheme in %q (use ws://, wss:// or tcp://)", url)
	}
}

func buildAction(actionType string, fields []string) (action.Action, error) {
	a := action.Action{Type: actionType, Fields: map[string]any{}}
	for _, f := range fields {
		kv := strings.SplitN(f, "=", 2)
		if len(kv) != 2 {
			return action.Action{}, fmt.Errorf("connect: --submit-field %q must be key=value", f)
		}
		a.Fields[kv[0]] = kv[1]
	}
	return a, nil
}
