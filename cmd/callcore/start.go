package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"callcore/internal/api"
	"callcore/internal/auth"
	"callcore/internal/callmanager"
	"callcore/internal/clock"
	"callcore/internal/config"
	"callcore/internal/database"
	"callcore/internal/logging"
	"callcore/internal/radio"
	"callcore/internal/radio/simradio"
	"callcore/internal/telephony"
	"callcore/internal/tracker"
	"callcore/internal/websocket"
)

// service holds everything cmdStart brings up, in start order.
type service struct {
	log      *logrus.Entry
	closers  []func()
	calls    *callmanager.CallManager
	hub      *websocket.Hub
	history  api.HistoryStore
	sink     telephony.MultiSink
	recorder *database.Recorder
}

func (s *service) onStop(fn func()) {
	s.closers = append(s.closers, fn)
}

// stop releases resources in reverse start order.
func (s *service) stop() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func cmdStart() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logFile, err := logging.Setup(logging.Options{
		Level:        cfg.Log.Level,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		MaxSizeMB:    cfg.Log.MaxSizeMB,
		MaxBackups:   cfg.Log.MaxBackups,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logging: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	log := logging.For("main")
	log.Infof("callcore %s starting", version)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc := &service{log: log, calls: callmanager.New()}
	if err := svc.start(ctx, cfg); err != nil {
		svc.stop()
		log.WithError(err).Fatal("Startup failed")
	}

	apiServer := api.NewServer(cfg.API, svc.calls, auth.New(cfg.API), svc.hub, svc.history)
	log.Info("========================================")
	log.Infof("Phones: %v", svc.calls.Phones())
	log.Infof("API REST listening on %s", cfg.API.Address())
	log.Info("Press Ctrl+C to stop")
	log.Info("========================================")

	if err := apiServer.Start(ctx); err != nil {
		log.WithError(err).Error("API server failed")
	}

	log.Info("Stopping service...")
	svc.stop()
	log.Info("Stopped")
}

// start brings up the sinks, the phones and the watchdog.
func (s *service) start(ctx context.Context, cfg *config.Config) error {
	s.hub = websocket.NewHub()
	hubCtx, stopHub := context.WithCancel(ctx)
	go s.hub.Run(hubCtx)
	s.onStop(stopHub)
	s.sink = append(s.sink, s.hub)

	if cfg.History.Enabled {
		if err := s.startHistory(ctx, cfg.History); err != nil {
			return err
		}
	}

	causes, err := telephony.NewCausePolicy(cfg.DisconnectCauses)
	if err != nil {
		return err
	}
	for _, p := range cfg.Phones {
		if err := s.startPhone(p, cfg.PostDial, causes); err != nil {
			return fmt.Errorf("phone %s: %w", p.ID, err)
		}
	}

	if cfg.Watchdog.MaxDialAge > 0 {
		wd := callmanager.NewWatchdog(s.calls, cfg.Watchdog.Interval, cfg.Watchdog.MaxDialAge)
		wd.Start()
		s.onStop(wd.Stop)
		s.log.Infof("Dial watchdog started (max dial age %s)", cfg.Watchdog.MaxDialAge)
	}
	return nil
}

func (s *service) startHistory(ctx context.Context, cfg config.HistoryConfig) error {
	conn, err := database.NewConnection(cfg.Database)
	if err != nil {
		return err
	}
	s.onStop(func() { conn.Close() })
	if err := conn.EnsureSchema(ctx); err != nil {
		return err
	}

	repo := database.NewRepository(conn)
	s.history = repo

	s.recorder = database.NewRecorder(repo, cfg.BatchSize, cfg.FlushInterval)
	s.recorder.Start()
	s.onStop(s.recorder.Stop)
	s.sink = append(s.sink, s.recorder)

	if cfg.Retention > 0 {
		cleaner := database.NewRetentionCleaner(repo, cfg.Retention)
		cleaner.Start()
		s.onStop(cleaner.Stop)
	}
	s.log.Info("Call history enabled")
	return nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// newRadio builds the transport of one phone.
func newRadio(p config.PhoneConfig) (telephony.Radio, io.Closer, error) {
	if p.Radio.Mode == config.ModeSimulated {
		return simradio.New(simradio.Options{AutoAnswer: p.Radio.AutoAnswer}), closerFunc(func() error { return nil }), nil
	}
	client := radio.NewClient(p.ID, &p.Radio)
	if err := client.Connect(); err != nil {
		return nil, nil, err
	}
	return client, client, nil
}

func (s *service) startPhone(p config.PhoneConfig, postDial config.PostDialConfig, causes *telephony.CausePolicy) error {
	r, closer, err := newRadio(p)
	if err != nil {
		return err
	}
	s.onStop(func() { closer.Close() })

	t := tracker.New(tracker.Config{
		PhoneID:    p.ID,
		Technology: p.Tech(),
		Radio:      r,
		Sink:       s.sink,
		Clock:      clock.Real(),
		Causes:     causes,
		PauseDelay: postDial.PauseFor(p.Tech()),
		Logger:     logging.For("tracker").WithField("phone", p.ID),
	})
	if err := s.calls.Register(t); err != nil {
		return err
	}
	t.Start()
	s.onStop(func() {
		s.calls.Unregister(p.ID)
		t.Stop()
	})
	s.log.Infof("Phone %s (%s, %s radio) started", p.ID, p.Technology, p.Radio.Mode)
	return nil
}
