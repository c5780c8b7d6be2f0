package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-oscar/pkg/config"
	"github.com/ZentaChain/zentalk-oscar/pkg/im"
	"github.com/ZentaChain/zentalk-oscar/pkg/logging"
	"github.com/ZentaChain/zentalk-oscar/pkg/roster"
)

// stack is the set of components every command builds from the config.
type stack struct {
	cfg        *config.Config
	log        *zap.Logger
	registry   *prometheus.Registry
	roster     *roster.Store
	dispatcher *im.Dispatcher
	encoder    *im.Encoder
	opts       []im.Option
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newStack(configPath string) (*stack, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}

	codepages, err := cfg.CodepageSet()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	s := &stack{
		cfg:      cfg,
		log:      logger,
		registry: prometheus.NewRegistry(),
	}

	opts := []im.Option{
		im.WithLogger(logger),
		im.WithMetrics(im.NewMetrics(s.registry)),
		im.WithCodepages(codepages),
		im.WithRendezvousPolicy(policy),
	}

	if cfg.Roster.Path != "" {
		s.roster, err = roster.Open(cfg.Roster.Path)
		if err != nil {
			return nil, fmt.Errorf("open roster: %w", err)
		}
		opts = append(opts, im.WithContactLookup(s.roster))
	}

	s.opts = opts
	s.dispatcher = im.NewDispatcher(opts...)
	s.encoder = im.NewEncoder(opts...)
	return s, nil
}

// encoderWithAck returns an encoder that asks the server to confirm
// delivery. Its request ids are independent of s.encoder.
func (s *stack) encoderWithAck() *im.Encoder {
	opts := append([]im.Option{}, s.opts...)
	return im.NewEncoder(append(opts, im.WithServerAck())...)
}

func (s *stack) Close() {
	if s.roster != nil {
		if err := s.roster.Close(); err != nil {
			s.log.Warn("close roster", zap.Error(err))
		}
	}
	_ = s.log.Sync()
}
