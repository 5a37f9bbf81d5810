package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/devghori1264/feederbalancer/internal/models"
	natsclient "github.com/devghori1264/feederbalancer/internal/nats"
)

type options struct {
	server  string
	natsURL string
	prefix  string
}

func newRootCmd(log *zap.Logger, out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "feederctl",
		Short:         "Operate the feeder balancer backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.server, "server", "http://localhost:8000", "backend base URL")
	root.PersistentFlags().StringVar(&opts.natsURL, "nats", "nats://localhost:4222", "NATS URL for watch")
	root.PersistentFlags().StringVar(&opts.prefix, "subject-prefix", natsclient.DefaultSubjectPrefix, "relay subject prefix")

	root.AddCommand(
		pingCmd(opts),
		nodesCmd(opts),
		nodeCmd(opts),
		telemetryCmd(opts),
		ingestCmd(opts),
		sendCmd(opts),
		eventsCmd(opts),
		commandCmd(opts),
		auditCmd(opts),
		watchCmd(opts, log),
	)
	return root
}

func pingCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return newClient(opts.server).get(cmd.Context(), "/healthz", nil, cmd.OutOrStdout())
		},
	}
}

func nodesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List every node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return newClient(opts.server).get(cmd.Context(), "/api/nodes", nil, cmd.OutOrStdout())
		},
	}
}

func nodeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "node <id>",
		Short: "Show one node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(opts.server).get(cmd.Context(), "/api/nodes/"+url.PathEscape(args[0]), nil, cmd.OutOrStdout())
		},
	}
}

func telemetryCmd(opts *options) *cobra.Command {
	var from, to string
	var step, limit int
	var recent bool
	c := &cobra.Command{
		Use:   "telemetry <id>",
		Short: "Fetch a node's telemetry series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			setIf(q, "from", from)
			setIf(q, "to", to)
			if step > 0 {
				q.Set("step", strconv.Itoa(step))
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			path := "/api/nodes/" + url.PathEscape(args[0]) + "/telemetry"
			if recent {
				path += "/recent"
			}
			return newClient(opts.server).get(cmd.Context(), path, q, cmd.OutOrStdout())
		},
	}
	c.Flags().StringVar(&from, "from", "", "start time (ISO-8601)")
	c.Flags().StringVar(&to, "to", "", "end time (ISO-8601)")
	c.Flags().IntVar(&step, "step", 0, "synthetic step in seconds")
	c.Flags().IntVar(&limit, "limit", 0, "max points for stored telemetry")
	c.Flags().BoolVar(&recent, "recent", false, "read the in-memory log instead")
	return c
}

func ingestCmd(opts *options) *cobra.Command {
	var body struct {
		NodeID         string  `json:"nodeId"`
		VUF            float64 `json:"vuf"`
		VA             int     `json:"v_a"`
		VB             int     `json:"v_b"`
		VC             int     `json:"v_c"`
		NeutralCurrent float64 `json:"neutral_current"`
	}
	c := &cobra.Command{
		Use:   "ingest",
		Short: "Post one telemetry reading as a node would",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return newClient(opts.server).post(cmd.Context(), "/api/pi/telemetry", body, cmd.OutOrStdout())
		},
	}
	c.Flags().StringVar(&body.NodeID, "node", "ND-001", "reporting node id")
	c.Flags().Float64Var(&body.VUF, "vuf", 0, "voltage unbalance factor (%)")
	c.Flags().IntVar(&body.VA, "va", 230, "phase A voltage")
	c.Flags().IntVar(&body.VB, "vb", 230, "phase B voltage")
	c.Flags().IntVar(&body.VC, "vc", 230, "phase C voltage")
	c.Flags().Float64Var(&body.NeutralCurrent, "nc", 0, "neutral current (A)")
	return c
}

func sendCmd(opts *options) *cobra.Command {
	var nodes []string
	var command, by string
	var params []string
	c := &cobra.Command{
		Use:   "send",
		Short: "Dispatch a command to one or more nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			body := map[string]any{
				"nodeIds": nodes,
				"command": command,
				"params":  p,
			}
			if by != "" {
				body["initiatedBy"] = by
			}
			return newClient(opts.server).post(cmd.Context(), "/api/commands", body, cmd.OutOrStdout())
		},
	}
	c.Flags().StringSliceVar(&nodes, "nodes", nil, "target node ids")
	c.Flags().StringVar(&command, "command", "", "command name (switch-mode, quick-balance, restart, ...)")
	c.Flags().StringArrayVar(&params, "param", nil, "command parameter key=value, repeatable")
	c.Flags().StringVar(&by, "by", "feederctl", "initiator recorded with the command")
	_ = c.MarkFlagRequired("nodes")
	_ = c.MarkFlagRequired("command")
	return c
}

func eventsCmd(opts *options) *cobra.Command {
	var limit int
	var node string
	c := &cobra.Command{
		Use:   "events",
		Short: "List recent events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			setIf(q, "node", node)
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			return newClient(opts.server).get(cmd.Context(), "/api/events", q, cmd.OutOrStdout())
		},
	}
	c.Flags().IntVar(&limit, "limit", 0, "max events")
	c.Flags().StringVar(&node, "node", "", "only events of this node")
	return c
}

func commandCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "command <id>",
		Short: "Show a recorded command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(opts.server).get(cmd.Context(), "/api/commands/"+url.PathEscape(args[0]), nil, cmd.OutOrStdout())
		},
	}
}

func auditCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Print the command audit trail as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return newClient(opts.server).raw(cmd.Context(), "/api/commands/export.csv", cmd.OutOrStdout())
		},
	}
}

func watchCmd(opts *options, log *zap.Logger) *cobra.Command {
	var node string
	c := &cobra.Command{
		Use:   "watch",
		Short: "Receive relayed commands as a node would",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			nc, err := nats.Connect(opts.natsURL, nats.Name("feederctl"))
			if err != nil {
				return fmt.Errorf("connect nats: %w", err)
			}
			defer nc.Drain()

			subject := opts.prefix + ".>"
			if node != "" {
				subject = natsclient.CommandSubject(opts.prefix, node)
			}
			out := cmd.OutOrStdout()
			sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
				var msg models.RelayMessage
				if err := json.Unmarshal(m.Data, &msg); err != nil {
					log.Warn("undecodable relay message", zap.String("subject", m.Subject), zap.Error(err))
					return
				}
				fmt.Fprintf(out, "%s %s -> %s (%s) by %s\n",
					msg.Timestamp.Format("15:04:05"), msg.Command, msg.Target, msg.CommandID, msg.InitiatedBy)
			})
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()
			log.Info("watching relay", zap.String("subject", subject))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
	c.Flags().StringVar(&node, "node", "", "only this node's subject")
	return c
}

// parseParams turns key=value pairs into command params. Numbers and
// booleans keep their type.
func parseParams(kvs []string) (map[string]any, error) {
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid param %q, want key=value", kv)
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
		} else if b, err := strconv.ParseBool(v); err == nil {
			out[k] = b
		} else {
			out[k] = v
		}
	}
	return out, nil
}

func setIf(q url.Values, key, v string) {
	if v != "" {
		q.Set(key, v)
	}
}

