package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/atc"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/catalog"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/machine"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/machine/fabmo"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/machine/sim"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/opensbp"
)

// simSlots is the bar size used when the simulator starts without a config file.
const simSlots = 6

// service binds a machine to its configuration source. The tool registry is
// built separately by Registry so a failed config read is not fatal.
type service struct {
	cfg    Config
	log    *zap.Logger
	m      *machine.Machine
	store  atc.Store
	policy atc.StatusPolicy
	load   func(context.Context) (*opensbp.Config, error)

	mx   sync.Mutex
	bits []string
}

// newService connects to the engine (or the simulator) and loads the bit catalog.
// It does not read the tool configuration.
func newService(ctx context.Context, cfg Config, log *zap.Logger) (*service, error) {
	err := cfg.validate()
	if err != nil {
		return nil, err
	}
	policy, _ := atc.ParseStatusPolicy(cfg.StatusPolicy)

	bits, err := catalog.Load(ctx, cfg.catalogSource())
	if err != nil {
		log.Warn("bit catalog unavailable, using fallback", zap.String("source", cfg.catalogSource()), zap.Error(err))
	}

	svc := &service{cfg: cfg, log: log, policy: policy, bits: bits}
	if cfg.Simulate {
		fs := opensbp.NewFileStore(cfg.SimConfig)
		svc.m = machine.NewMachine(sim.New())
		svc.store = fs
		svc.load = func(ctx context.Context) (*opensbp.Config, error) {
			conf, err := fs.Load(ctx)
			if errors.Is(err, os.ErrNotExist) {
				log.Info("no simulator config, starting empty", zap.String("path", fs.Path()), zap.Int("slots", simSlots))
				conf = &opensbp.Config{}
				conf.OpenSBP.Variables.ATC.NumClips = simSlots
				return conf, nil
			}
			if err != nil {
				return nil, fmt.Errorf("load %s: %w", fs.Path(), err)
			}
			return conf, nil
		}
		return svc, nil
	}

	c, err := fabmo.NewClient(fabmo.Config{
		URL:          cfg.Engine.URL,
		PersistURL:   cfg.Engine.PersistURL,
		PollInterval: cfg.Engine.PollInterval,
		StartGrace:   cfg.Engine.StartGrace,
		Logger:       log.Named("fabmo"),
	})
	if err != nil {
		return nil, err
	}
	svc.m = machine.NewMachine(c)
	svc.store = c
	svc.load = c.Config
	return svc, nil
}

// SetBits replaces the catalog used for registries built from now on.
func (s *service) SetBits(bits []string) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.bits = append([]string(nil), bits...)
}

// Registry reads the tool configuration and builds a hydrated registry.
func (s *service) Registry(ctx context.Context) (*atc.Registry, error) {
	conf, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	s.mx.Lock()
	bits := s.bits
	s.mx.Unlock()

	reg, err := conf.NewRegistry(s.m, s.store,
		atc.WithLogger(s.log.Named("atc")),
		atc.WithStatusPolicy(s.policy),
		atc.WithBits(bits),
	)
	if err != nil {
		return nil, err
	}
	s.log.Info("tool registry loaded",
		zap.Int("slots", reg.SlotCount()),
		zap.Int("offBar", len(reg.OffBarTools())),
		zap.String("current", reg.DescribeCurrentTool()),
	)
	return reg, nil
}
