// Package wiring resolves the "class" strings in scrywarden.yml to the
// concrete transport/collector/analyzer/shipper/profile constructors
// compiled into this binary. Go has no runtime dotted-path import
// resolution the way the upstream config loader does, so each kind's
// registry below is the Go-idiomatic stand-in: a compile-time map from
// short class name to factory, populated by this package's own init.
package wiring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/scrywarden/scrywarden/pkg/analyzer"
	"github.com/scrywarden/scrywarden/pkg/collector"
	"github.com/scrywarden/scrywarden/pkg/config"
	"github.com/scrywarden/scrywarden/pkg/errs"
	"github.com/scrywarden/scrywarden/pkg/metrics"
	"github.com/scrywarden/scrywarden/pkg/profile"
	"github.com/scrywarden/scrywarden/pkg/reporter"
	"github.com/scrywarden/scrywarden/pkg/shipper"
	shippercsv "github.com/scrywarden/scrywarden/pkg/shipper/csv"
	shipperlogger "github.com/scrywarden/scrywarden/pkg/shipper/logger"
	shipperprom "github.com/scrywarden/scrywarden/pkg/shipper/prometheus"
	"github.com/scrywarden/scrywarden/pkg/store"
	"github.com/scrywarden/scrywarden/pkg/transport"
	transportcsv "github.com/scrywarden/scrywarden/pkg/transport/csv"
	"github.com/scrywarden/scrywarden/pkg/transport/filewatch"
	"github.com/scrywarden/scrywarden/pkg/transport/heartbeat"
)

func decode(raw yaml.Node, out any) error {
	if raw.IsZero() {
		return nil
	}
	return raw.Decode(out)
}

// ---- transports ----

type transportFactory func(name string, raw yaml.Node, logger *slog.Logger) (transport.Transport, error)

var transportFactories = map[string]transportFactory{
	"csv":       newCSVTransport,
	"filewatch": newFilewatchTransport,
	"heartbeat": newHeartbeatTransport,
}

type csvTransportOptions struct {
	File         string   `yaml:"file"`
	Headers      []string `yaml:"headers"`
	ProcessCheck int      `yaml:"process_check"`
}

func newCSVTransport(name string, raw yaml.Node, logger *slog.Logger) (transport.Transport, error) {
	var opts csvTransportOptions
	if err := decode(raw, &opts); err != nil {
		return nil, err
	}
	return transportcsv.New(name, opts.File, opts.Headers, opts.ProcessCheck, logger), nil
}

type filewatchTransportOptions struct {
	Dir    string `yaml:"dir"`
	Suffix string `yaml:"suffix"`
}

func newFilewatchTransport(name string, raw yaml.Node, logger *slog.Logger) (transport.Transport, error) {
	var opts filewatchTransportOptions
	if err := decode(raw, &opts); err != nil {
		return nil, err
	}
	return filewatch.New(name, opts.Dir, opts.Suffix, logger), nil
}

type heartbeatTransportOptions struct {
	Count    int            `yaml:"count"`
	Data     map[string]any `yaml:"data"`
	Interval time.Duration  `yaml:"interval"`
}

func newHeartbeatTransport(name string, raw yaml.Node, logger *slog.Logger) (transport.Transport, error) {
	opts := heartbeatTransportOptions{Interval: time.Second}
	if err := decode(raw, &opts); err != nil {
		return nil, err
	}
	return heartbeat.New(name, opts.Count, opts.Data, opts.Interval, logger), nil
}

// BuildTransports resolves every entry of cfgs to a running transport.
func BuildTransports(cfgs map[string]config.TransportConfig, logger *slog.Logger) ([]transport.Transport, error) {
	out := make([]transport.Transport, 0, len(cfgs))
	for name, c := range cfgs {
		factory, ok := transportFactories[c.Class]
		if !ok {
			return nil, errs.NewConfigError("transports."+name, fmt.Errorf("%w: %q", config.ErrUnknownClass, c.Class))
		}
		tr, err := factory(name, c.Config, logger)
		if err != nil {
			return nil, errs.NewConfigError("transports."+name, err)
		}
		out = append(out, tr)
	}
	return out, nil
}

// ---- collectors ----

type collectorFactory func(raw yaml.Node, repo *store.Repo, logger *slog.Logger) (collector.Collector, error)

var collectorFactories = map[string]collectorFactory{
	"time_range": newTimeRangeCollector,
}

type timeRangeOptions struct {
	WindowSeconds   float64 `yaml:"window_seconds"`
	IntervalSeconds float64 `yaml:"interval_seconds"`
	DelaySeconds    float64 `yaml:"delay_seconds"`
}

func newTimeRangeCollector(raw yaml.Node, repo *store.Repo, logger *slog.Logger) (collector.Collector, error) {
	opts := timeRangeOptions{IntervalSeconds: 1}
	if err := decode(raw, &opts); err != nil {
		return nil, err
	}
	seconds := time.Duration(opts.WindowSeconds * float64(time.Second))
	interval := time.Duration(opts.IntervalSeconds * float64(time.Second))
	delay := time.Duration(opts.DelaySeconds * float64(time.Second))
	return collector.NewTimeRangeCollector(repo, logger, seconds, interval, delay), nil
}

// ---- analyzers ----

type analyzerFactory func(raw yaml.Node) (analyzer.Analyzer, error)

var analyzerFactories = map[string]analyzerFactory{
	"exponential_decay": newExponentialDecayAnalyzer,
}

type exponentialDecayOptions struct {
	Weight    float64 `yaml:"weight"`
	Decay     float64 `yaml:"decay"`
	Threshold float64 `yaml:"threshold"`
}

func newExponentialDecayAnalyzer(raw yaml.Node) (analyzer.Analyzer, error) {
	opts := exponentialDecayOptions{Weight: 1, Decay: 0.5, Threshold: 0.5}
	if err := decode(raw, &opts); err != nil {
		return nil, err
	}
	return analyzer.NewExponentialDecayAnalyzer(opts.Weight, opts.Decay, opts.Threshold), nil
}

// ---- profiles ----

type profileFactory func(raw yaml.Node) (*profile.Definition, error)

var profileFactories = map[string]profileFactory{
	"example": newExampleProfile,
}

// newExampleProfile matches any message carrying a "greeting" key,
// attributing it to the actor named by its "person" key. It exists to
// exercise a profile end to end against the heartbeat transport's
// default payload, the way the upstream example profile demonstrates the
// framework without a real ingest source.
func newExampleProfile(_ yaml.Node) (*profile.Definition, error) {
	def := profile.NewDefinition("example",
		func(m map[string]any) bool {
			_, ok := m["greeting"]
			return ok
		},
		func(m map[string]any) (string, error) {
			person, ok := m["person"].(string)
			if !ok || person == "" {
				return "", fmt.Errorf("message missing 'person' field")
			}
			return person, nil
		},
	)
	if err := def.AddField("greeting", &profile.Single{}, reporter.NewMandatory(1.0)); err != nil {
		return nil, err
	}
	return def, nil
}

// ResolvedProfile bundles a synced profile with the collector/analyzer it
// investigates with, ready for investigator.New.
type ResolvedProfile struct {
	Profile   *profile.Profile
	Collector collector.Collector
	Analyzer  analyzer.Analyzer
}

// BuildProfiles resolves every entry of cfgs against the store, returning
// one ResolvedProfile per entry.
func BuildProfiles(ctx context.Context, cfgs map[string]config.ProfileConfig, repo *store.Repo, logger *slog.Logger) (map[string]ResolvedProfile, error) {
	out := make(map[string]ResolvedProfile, len(cfgs))
	for name, c := range cfgs {
		factory, ok := profileFactories[c.Class]
		if !ok {
			return nil, errs.NewConfigError("profiles."+name, fmt.Errorf("%w: %q", config.ErrUnknownClass, c.Class))
		}
		def, err := factory(c.Config)
		if err != nil {
			return nil, errs.NewConfigError("profiles."+name, err)
		}
		synced, err := profile.Sync(ctx, repo, def)
		if err != nil {
			return nil, err
		}

		collFactory, ok := collectorFactories[c.Collector.Class]
		if !ok {
			return nil, errs.NewConfigError("profiles."+name+".collector", fmt.Errorf("%w: %q", config.ErrUnknownClass, c.Collector.Class))
		}
		coll, err := collFactory(c.Collector.Config, repo, logger)
		if err != nil {
			return nil, errs.NewConfigError("profiles."+name+".collector", err)
		}

		anFactory, ok := analyzerFactories[c.Analyzer.Class]
		if !ok {
			return nil, errs.NewConfigError("profiles."+name+".analyzer", fmt.Errorf("%w: %q", config.ErrUnknownClass, c.Analyzer.Class))
		}
		an, err := anFactory(c.Analyzer.Config)
		if err != nil {
			return nil, errs.NewConfigError("profiles."+name+".analyzer", err)
		}

		out[name] = ResolvedProfile{Profile: synced, Collector: coll, Analyzer: an}
	}
	return out, nil
}

// ---- shippers ----

type shipperFactory func(name string, raw yaml.Node, logger *slog.Logger, m *metrics.Metrics) (shipper.Shipper, error)

var shipperFactories = map[string]shipperFactory{
	"csv":        newCSVShipper,
	"logger":     newLoggerShipper,
	"prometheus": newPrometheusShipper,
}

type csvShipperOptions struct {
	File string `yaml:"file"`
}

func newCSVShipper(name string, raw yaml.Node, _ *slog.Logger, _ *metrics.Metrics) (shipper.Shipper, error) {
	var opts csvShipperOptions
	if err := decode(raw, &opts); err != nil {
		return nil, err
	}
	return shippercsv.New(name, opts.File), nil
}

type loggerShipperOptions struct {
	Level    string `yaml:"level"`
	Detailed bool   `yaml:"detailed"`
}

func newLoggerShipper(name string, raw yaml.Node, logger *slog.Logger, _ *metrics.Metrics) (shipper.Shipper, error) {
	opts := loggerShipperOptions{Level: "info"}
	if err := decode(raw, &opts); err != nil {
		return nil, err
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		return nil, fmt.Errorf("invalid level %q: %w", opts.Level, err)
	}
	return shipperlogger.New(name, logger, level, opts.Detailed), nil
}

type prometheusShipperOptions struct {
	Profile string `yaml:"profile"`
}

func newPrometheusShipper(name string, raw yaml.Node, _ *slog.Logger, m *metrics.Metrics) (shipper.Shipper, error) {
	var opts prometheusShipperOptions
	if err := decode(raw, &opts); err != nil {
		return nil, err
	}
	if opts.Profile == "" {
		opts.Profile = name
	}
	return shipperprom.New(name, opts.Profile, counterOrNil(m)), nil
}

func counterOrNil(m *metrics.Metrics) *promclient.CounterVec {
	if m == nil {
		return nil
	}
	return m.MaliciousFindingsTotal
}

// BuildShippers resolves every entry of cfgs to a running shipper, along
// with the queue depth (config.ShipperConfig.Limit) each one was
// configured with - zero where the entry left it unset, meaning the
// curator's own default applies.
func BuildShippers(cfgs map[string]config.ShipperConfig, logger *slog.Logger, m *metrics.Metrics) ([]shipper.Shipper, []int, error) {
	out := make([]shipper.Shipper, 0, len(cfgs))
	limits := make([]int, 0, len(cfgs))
	for name, c := range cfgs {
		factory, ok := shipperFactories[c.Class]
		if !ok {
			return nil, nil, errs.NewConfigError("shippers."+name, fmt.Errorf("%w: %q", config.ErrUnknownClass, c.Class))
		}
		s, err := factory(name, c.Config, logger, m)
		if err != nil {
			return nil, nil, errs.NewConfigError("shippers."+name, err)
		}
		out = append(out, s)
		limits = append(limits, c.Limit)
	}
	return out, limits, nil
}
