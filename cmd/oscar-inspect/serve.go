package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-oscar/pkg/im"
	"github.com/ZentaChain/zentalk-oscar/pkg/inspect"
	"github.com/ZentaChain/zentalk-oscar/pkg/rendezvous"
)

func serveCmd(configPath *string) *cobra.Command {
	var (
		listen     string
		rateLimit  int
		negTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP inspection API",
		Long: `Serve the inspection API. Decoded frames are dispatched to a rendezvous
tracker, so proposals seen through /api/v1/frames/decode show up under
/api/v1/rendezvous until they are answered or time out.

When the config names a numeric owner, /api/v1/offline replays stored
messages.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if negTimeout < 0 {
				return fmt.Errorf("negotiation-timeout must not be negative, got %s", negTimeout)
			}

			s, err := newStack(*configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			s.registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			tracker := rendezvous.NewTracker(rendezvous.WithLogger(s.log))
			sub := s.dispatcher.Subscribe(tracker.Handler())
			defer sub.Unsubscribe()

			opts := []inspect.Option{
				inspect.WithLogger(s.log),
				inspect.WithTracker(tracker),
				inspect.WithGatherer(s.registry),
			}
			if s.roster != nil {
				opts = append(opts, inspect.WithRoster(s.roster))
			}
			if s.cfg.Owner != "" {
				offline, err := im.NewOfflineRetriever(s.dispatcher, s.encoder, im.Handle(s.cfg.Owner), s.opts...)
				if err != nil {
					s.log.Warn("offline retrieval disabled", zap.Error(err))
				} else {
					opts = append(opts, inspect.WithOffline(offline))
				}
			}

			apiConfig := inspect.DefaultConfig()
			apiConfig.Listen = s.cfg.Inspect.Listen
			apiConfig.EnableCORS = s.cfg.Inspect.EnableCORS
			if cmd.Flags().Changed("listen") {
				apiConfig.Listen = listen
			}
			apiConfig.RateLimit = rateLimit

			server := inspect.NewServer(s.dispatcher, s.encoder, apiConfig, opts...)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if negTimeout > 0 {
				go expireNegotiations(ctx, tracker, s.encoder, negTimeout, s.log)
			}

			return server.Start(ctx)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", ":8080", "Listen address, overriding the config")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 600, "Requests per minute per client, 0 to disable")
	cmd.Flags().DurationVar(&negTimeout, "negotiation-timeout", 5*time.Minute, "Cancel rendezvous proposals left unanswered this long")
	return cmd
}

// minSweepInterval bounds how often stale negotiations are looked for.
const minSweepInterval = time.Second

// sweepInterval checks twice per timeout, but no more than once a second.
func sweepInterval(timeout time.Duration) time.Duration {
	return max(timeout/2, minSweepInterval)
}

// expireNegotiations cancels stale proposals until ctx is done. The Cancel
// frames are logged, since this process holds no server connection.
func expireNegotiations(ctx context.Context, tracker *rendezvous.Tracker, enc *im.Encoder, timeout time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(sweepInterval(timeout))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, n := range tracker.Expire(timeout) {
			req := &im.RendezvousRequest{Cookie: n.Cookie, Capability: n.Capability, Status: im.StatusCancel}
			msg, err := im.NewMessage(im.ChannelRendezvous, req, im.WithRecipient(n.Peer), im.WithCookie(n.Cookie))
			if err != nil {
				log.Warn("build cancel", zap.Stringer("cookie", n.Cookie), zap.Error(err))
				continue
			}
			frame, err := enc.Encode(msg)
			if err != nil {
				log.Warn("encode cancel", zap.Stringer("cookie", n.Cookie), zap.Error(err))
				continue
			}
			log.Info("rendezvous timed out",
				zap.String("peer", string(n.Peer)),
				zap.Stringer("cookie", n.Cookie),
				zap.String("cancel", hex.EncodeToString(frame)),
			)
		}
	}
}
