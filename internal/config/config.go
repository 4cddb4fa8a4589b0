package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel   string           `json:"log_level" yaml:"log_level"`
	Ingest     IngestConfig     `json:"ingest" yaml:"ingest"`
	Quality    QualityConfig    `json:"quality" yaml:"quality"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
	Detectors  DetectorsConfig  `json:"detectors" yaml:"detectors"`
	Fusion     FusionConfig     `json:"fusion" yaml:"fusion"`
	Classifier ClassifierConfig `json:"classifier" yaml:"classifier"`
	Insight    InsightConfig    `json:"insight" yaml:"insight"`
	API        APIConfig        `json:"api" yaml:"api"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Results    ResultsConfig    `json:"results" yaml:"results"`
}

type IngestConfig struct {
	ChannelBuffer int          `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig   `json:"rest" yaml:"rest"`
	Stream        StreamConfig `json:"stream" yaml:"stream"`
	Kafka         KafkaConfig  `json:"kafka" yaml:"kafka"`
	Parser        ParserConfig `json:"parser" yaml:"parser"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type ParserConfig struct {
	Timezone       string `json:"timezone" yaml:"timezone"`
	DefaultUnit    string `json:"default_unit" yaml:"default_unit"`
	DefaultSubject string `json:"default_subject" yaml:"default_subject"`
}

type QualityConfig struct {
	NominalInterval    time.Duration `json:"nominal_interval" yaml:"nominal_interval"`
	MinCompletenessPct float64       `json:"min_completeness_pct" yaml:"min_completeness_pct"`
	MaxGap             time.Duration `json:"max_gap" yaml:"max_gap"`
	GapDowngradeCount  int           `json:"gap_downgrade_count" yaml:"gap_downgrade_count"`
	StuckWindow        time.Duration `json:"stuck_window" yaml:"stuck_window"`
	StuckTolerance     float64       `json:"stuck_tolerance" yaml:"stuck_tolerance"`
	DriftWindow        time.Duration `json:"drift_window" yaml:"drift_window"`
	DriftMaxRate       float64       `json:"drift_max_rate" yaml:"drift_max_rate"`
	EventExplainWindow time.Duration `json:"event_explain_window" yaml:"event_explain_window"`
	SignalRejectBelow  float64       `json:"signal_reject_below" yaml:"signal_reject_below"`
	SignalRepairBelow  float64       `json:"signal_repair_below" yaml:"signal_repair_below"`
	SignalWarnBelow    float64       `json:"signal_warn_below" yaml:"signal_warn_below"`
}

type MetricsConfig struct {
	ChaosMinPoints    int     `json:"chaos_min_points" yaml:"chaos_min_points"`
	EmbeddingDim      int     `json:"embedding_dim" yaml:"embedding_dim"`
	EntropyM          int     `json:"entropy_m" yaml:"entropy_m"`
	EntropyRFactor    float64 `json:"entropy_r_factor" yaml:"entropy_r_factor"`
	HurstMinDivisions int     `json:"hurst_min_divisions" yaml:"hurst_min_divisions"`
}

type DetectorsConfig struct {
	Statistical StatisticalConfig `json:"statistical" yaml:"statistical"`
	Clustering  ClusteringConfig  `json:"clustering" yaml:"clustering"`
	Gradient    GradientConfig    `json:"gradient" yaml:"gradient"`
	Phase       PhaseConfig       `json:"phase" yaml:"phase"`
}

type StatisticalConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	MinWindow      int     `json:"min_window" yaml:"min_window"`
	WindowFraction float64 `json:"window_fraction" yaml:"window_fraction"`
	TThreshold     float64 `json:"t_threshold" yaml:"t_threshold"`
}

type ClusteringConfig struct {
	Enabled       bool  `json:"enabled" yaml:"enabled"`
	K             int   `json:"k" yaml:"k"`
	WindowPoints  int   `json:"window_points" yaml:"window_points"`
	MaxIterations int   `json:"max_iterations" yaml:"max_iterations"`
	Seed          int64 `json:"seed" yaml:"seed"`
}

type GradientConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	SmoothSpan int     `json:"smooth_span" yaml:"smooth_span"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
}

type PhaseConfig struct {
	Enabled bool          `json:"enabled" yaml:"enabled"`
	Window  time.Duration `json:"window" yaml:"window"`
	Step    time.Duration `json:"step" yaml:"step"`
}

type FusionConfig struct {
	ClusterTolerance  time.Duration `json:"cluster_tolerance" yaml:"cluster_tolerance"`
	MinSegment        time.Duration `json:"min_segment" yaml:"min_segment"`
	MergeWindow       time.Duration `json:"merge_window" yaml:"merge_window"`
	TIRMergeTolerance float64       `json:"tir_merge_tolerance" yaml:"tir_merge_tolerance"`
	CVMergeTolerance  float64       `json:"cv_merge_tolerance" yaml:"cv_merge_tolerance"`
	TargetSegment     time.Duration `json:"target_segment" yaml:"target_segment"`
}

type ClassifierConfig struct {
	LyapunovChaotic   float64       `json:"lyapunov_chaotic" yaml:"lyapunov_chaotic"`
	HurstAntiPersist  float64       `json:"hurst_anti_persist" yaml:"hurst_anti_persist"`
	PeriodicityScore  float64       `json:"periodicity_score" yaml:"periodicity_score"`
	EntropyThreshold  float64       `json:"entropy_threshold" yaml:"entropy_threshold"`
	AutocorrThreshold float64       `json:"autocorr_threshold" yaml:"autocorr_threshold"`
	HurstRandomLow    float64       `json:"hurst_random_low" yaml:"hurst_random_low"`
	HurstRandomHigh   float64       `json:"hurst_random_high" yaml:"hurst_random_high"`
	SpectralDevLimit  float64       `json:"spectral_dev_limit" yaml:"spectral_dev_limit"`
	Weights           WeightsConfig `json:"weights" yaml:"weights"`
	RiskModerateAt    float64       `json:"risk_moderate_at" yaml:"risk_moderate_at"`
	RiskHighAt        float64       `json:"risk_high_at" yaml:"risk_high_at"`
	RiskCriticalAt    float64       `json:"risk_critical_at" yaml:"risk_critical_at"`
}

type WeightsConfig struct {
	Rhythm      float64 `json:"rhythm" yaml:"rhythm"`
	Variability float64 `json:"variability" yaml:"variability"`
	Chaos       float64 `json:"chaos" yaml:"chaos"`
}

type InsightConfig struct {
	NoOpBandPct float64 `json:"noop_band_pct" yaml:"noop_band_pct"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type ResultsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			Stream:        StreamConfig{Enabled: false, Addr: ":9000"},
			Kafka:         KafkaConfig{Enabled: false},
			Parser:        ParserConfig{Timezone: "UTC", DefaultUnit: "mmol/L", DefaultSubject: "unknown"},
		},
		Quality: QualityConfig{
			NominalInterval:    5 * time.Minute,
			MinCompletenessPct: 60,
			MaxGap:             90 * time.Minute,
			GapDowngradeCount:  3,
			StuckWindow:        2 * time.Hour,
			StuckTolerance:     0.01,
			DriftWindow:        6 * time.Hour,
			DriftMaxRate:       0.3,
			EventExplainWindow: time.Hour,
			SignalRejectBelow:  50,
			SignalRepairBelow:  70,
			SignalWarnBelow:    85,
		},
		Metrics: MetricsConfig{
			ChaosMinPoints:    144,
			EmbeddingDim:      4,
			EntropyM:          2,
			EntropyRFactor:    0.2,
			HurstMinDivisions: 4,
		},
		Detectors: DetectorsConfig{
			Statistical: StatisticalConfig{Enabled: true, MinWindow: 48, WindowFraction: 0.08, TThreshold: 3.0},
			Clustering:  ClusteringConfig{Enabled: true, K: 3, WindowPoints: 48, MaxIterations: 100, Seed: 42},
			Gradient:    GradientConfig{Enabled: true, SmoothSpan: 5, Multiplier: 1.5},
			Phase:       PhaseConfig{Enabled: true, Window: 12 * time.Hour, Step: 2 * time.Hour},
		},
		Fusion: FusionConfig{
			ClusterTolerance:  30 * time.Minute,
			MinSegment:        12 * time.Hour,
			MergeWindow:       24 * time.Hour,
			TIRMergeTolerance: 5.0,
			CVMergeTolerance:  5.0,
			TargetSegment:     48 * time.Hour,
		},
		Classifier: ClassifierConfig{
			LyapunovChaotic:   0.1,
			HurstAntiPersist:  0.3,
			PeriodicityScore:  0.7,
			EntropyThreshold:  0.8,
			AutocorrThreshold: 0.3,
			HurstRandomLow:    0.45,
			HurstRandomHigh:   0.55,
			SpectralDevLimit:  2.0,
			Weights:           WeightsConfig{Rhythm: 30, Variability: 30, Chaos: 40},
			RiskModerateAt:    25,
			RiskHighAt:        50,
			RiskCriticalAt:    75,
		},
		Insight: InsightConfig{NoOpBandPct: 2.0},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:glycoscope.db?_pragma=busy_timeout(5000)"},
		Results: ResultsConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Ingest.Parser.Timezone == "" {
		cfg.Ingest.Parser.Timezone = "UTC"
	}
	if cfg.Ingest.Parser.DefaultUnit == "" {
		cfg.Ingest.Parser.DefaultUnit = "mmol/L"
	}
	if cfg.Ingest.Parser.DefaultSubject == "" {
		cfg.Ingest.Parser.DefaultSubject = "unknown"
	}
	if cfg.Quality.NominalInterval <= 0 {
		cfg.Quality.NominalInterval = 5 * time.Minute
	}
	if cfg.Metrics.ChaosMinPoints <= 0 {
		cfg.Metrics.ChaosMinPoints = 144
	}
	if cfg.Metrics.EmbeddingDim <= 0 {
		cfg.Metrics.EmbeddingDim = 4
	}
	if cfg.Metrics.EntropyM <= 0 {
		cfg.Metrics.EntropyM = 2
	}
	if cfg.Metrics.EntropyRFactor <= 0 {
		cfg.Metrics.EntropyRFactor = 0.2
	}
	if cfg.Metrics.HurstMinDivisions <= 0 {
		cfg.Metrics.HurstMinDivisions = 4
	}
	if cfg.Results.StoreLimit <= 0 {
		cfg.Results.StoreLimit = 1000
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Stream.Enabled && cfg.Ingest.Stream.Addr == "" {
		return errors.New("ingest.stream.addr required when ingest.stream.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Quality.MinCompletenessPct <= 0 || cfg.Quality.MinCompletenessPct > 100 {
		return errors.New("quality.min_completeness_pct must be in (0, 100]")
	}
	if cfg.Quality.MaxGap <= 0 {
		return errors.New("quality.max_gap must be > 0")
	}
	if cfg.Quality.StuckWindow <= 0 {
		return errors.New("quality.stuck_window must be > 0")
	}
	if !(cfg.Quality.SignalRejectBelow < cfg.Quality.SignalRepairBelow &&
		cfg.Quality.SignalRepairBelow < cfg.Quality.SignalWarnBelow) {
		return errors.New("quality signal bands must be strictly increasing")
	}
	if cfg.Metrics.EmbeddingDim < 3 || cfg.Metrics.EmbeddingDim > 5 {
		return fmt.Errorf("metrics.embedding_dim must be 3-5, got %d", cfg.Metrics.EmbeddingDim)
	}
	if cfg.Detectors.Statistical.Enabled {
		if cfg.Detectors.Statistical.MinWindow < 8 {
			return errors.New("detectors.statistical.min_window must be >= 8")
		}
		if cfg.Detectors.Statistical.TThreshold <= 0 {
			return errors.New("detectors.statistical.t_threshold must be > 0")
		}
	}
	if cfg.Detectors.Clustering.Enabled {
		if cfg.Detectors.Clustering.K < 2 {
			return errors.New("detectors.clustering.k must be >= 2")
		}
		if cfg.Detectors.Clustering.MaxIterations <= 0 {
			return errors.New("detectors.clustering.max_iterations must be > 0")
		}
	}
	if cfg.Detectors.Gradient.Enabled {
		if cfg.Detectors.Gradient.SmoothSpan < 3 || cfg.Detectors.Gradient.SmoothSpan%2 == 0 {
			return errors.New("detectors.gradient.smooth_span must be odd and >= 3")
		}
		if cfg.Detectors.Gradient.Multiplier <= 0 {
			return errors.New("detectors.gradient.multiplier must be > 0")
		}
	}
	if cfg.Detectors.Phase.Enabled {
		if cfg.Detectors.Phase.Window <= 0 || cfg.Detectors.Phase.Step <= 0 {
			return errors.New("detectors.phase.window and step must be > 0")
		}
	}
	if cfg.Fusion.ClusterTolerance <= 0 {
		return errors.New("fusion.cluster_tolerance must be > 0")
	}
	if cfg.Fusion.MinSegment <= 0 {
		return errors.New("fusion.min_segment must be > 0")
	}
	if cfg.Fusion.MergeWindow < cfg.Fusion.MinSegment {
		return errors.New("fusion.merge_window must be >= fusion.min_segment")
	}
	if cfg.Classifier.HurstRandomLow >= cfg.Classifier.HurstRandomHigh {
		return errors.New("classifier.hurst_random_low must be < hurst_random_high")
	}
	w := cfg.Classifier.Weights
	if w.Rhythm < 0 || w.Variability < 0 || w.Chaos < 0 || w.Rhythm+w.Variability+w.Chaos == 0 {
		return errors.New("classifier.weights must be non-negative and not all zero")
	}
	if !(cfg.Classifier.RiskModerateAt < cfg.Classifier.RiskHighAt &&
		cfg.Classifier.RiskHighAt < cfg.Classifier.RiskCriticalAt) {
		return errors.New("classifier risk cut points must be strictly increasing")
	}
	if cfg.Insight.NoOpBandPct < 0 {
		return errors.New("insight.noop_band_pct must be >= 0")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps a fixed config for callers that do not watch a
// file, such as one-shot CLI analysis.
func NewStaticManager(cfg *Config) *Manager {
	m := &Manager{}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
