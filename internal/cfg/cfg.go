package cfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"residualbind/internal/common"
	"residualbind/internal/null"
	"residualbind/internal/seq"
)

type Settings struct {
	DataDir          string
	TargetsPath      string
	SequencesPath    string
	SplitColumn      string
	SequenceColumn   string
	TrainSplit       string
	TestSplit        string
	ValidFraction    float64
	Seed             uint64
	IncludeStructure bool
	RNAplfoldDir     string
	DatasetPath      string
	ModelPath        string
	ScriptPath       string
	ModelServerURL   string
	ModelName        string
	PredictTimeout   time.Duration
	BatchSize        int
	ClassIndex       int
	Alphabet         string
	NullModel        string
	NumSample        int
	FilterLow        float64
	FilterHigh       float64
	ReportDir        string
	MetricsPort      int
}

type ConfigFile struct {
	Data struct {
		Dir            string `yaml:"dir"`
		Targets        string `yaml:"targets"`
		Sequences      string `yaml:"sequences"`
		SplitColumn    string `yaml:"splitColumn"`
		SequenceColumn string `yaml:"sequenceColumn"`
	} `yaml:"data"`

	Dataset struct {
		TrainSplit       string  `yaml:"trainSplit"`
		TestSplit        string  `yaml:"testSplit"`
		ValidFraction    float64 `yaml:"validFraction"`
		Seed             uint64  `yaml:"seed"`
		IncludeStructure bool    `yaml:"includeStructure"`
		RNAplfoldDir     string  `yaml:"rnaplfoldDir"`
		Output           string  `yaml:"output"`
	} `yaml:"dataset"`

	Model struct {
		Path           string `yaml:"path"`
		Script         string `yaml:"script"`
		ServerURL      string `yaml:"serverURL"`
		Name           string `yaml:"name"`
		PredictTimeout string `yaml:"predictTimeout"`
		BatchSize      int    `yaml:"batchSize"`
		ClassIndex     int    `yaml:"classIndex"`
	} `yaml:"model"`

	GIA struct {
		Alphabet   string  `yaml:"alphabet"`
		NullModel  string  `yaml:"nullModel"`
		NumSample  int     `yaml:"numSample"`
		FilterLow  float64 `yaml:"filterLow"`
		FilterHigh float64 `yaml:"filterHigh"`
		ReportDir  string  `yaml:"reportDir"`
	} `yaml:"gia"`

	System struct {
		MetricsPort int `yaml:"metricsPort"`
	} `yaml:"system"`
}

// Load reads the settings. A .env file in the working directory is applied
// to the environment first; CONFIG_FILE then selects a YAML file whose values
// environment variables override. Without CONFIG_FILE the environment and
// the defaults are used.
func Load() (Settings, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded .env file")
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	timeout, err := time.ParseDuration(config.Model.PredictTimeout)
	if err != nil {
		timeout = 60 * time.Second
	}

	dataDir := getEnvOrDefault(common.EnvDataDir, orDefault(config.Data.Dir, common.DefaultDataDir))
	settings := Settings{
		DataDir:          dataDir,
		TargetsPath:      getEnvOrDefault(common.EnvTargetsPath, orDefault(config.Data.Targets, filepath.Join(dataDir, common.DefaultTargetsFile))),
		SequencesPath:    getEnvOrDefault(common.EnvSequencesPath, orDefault(config.Data.Sequences, filepath.Join(dataDir, common.DefaultSequencesFile))),
		SplitColumn:      getEnvOrDefault(common.EnvSplitColumn, orDefault(config.Data.SplitColumn, common.DefaultSplitColumn)),
		SequenceColumn:   getEnvOrDefault(common.EnvSequenceColumn, orDefault(config.Data.SequenceColumn, common.DefaultSequenceColumn)),
		TrainSplit:       getEnvOrDefault(common.EnvTrainSplit, orDefault(config.Dataset.TrainSplit, common.DefaultTrainSplit)),
		TestSplit:        getEnvOrDefault(common.EnvTestSplit, orDefault(config.Dataset.TestSplit, common.DefaultTestSplit)),
		ValidFraction:    getFloatFromEnvOrConfig(common.EnvValidFraction, config.Dataset.ValidFraction, common.DefaultValidFraction),
		Seed:             getUintFromEnvOrConfig(common.EnvSeed, config.Dataset.Seed, common.DefaultSeed),
		IncludeStructure: getBoolFromEnvOrConfig(common.EnvIncludeStructure, config.Dataset.IncludeStructure),
		RNAplfoldDir:     getEnvOrDefault(common.EnvRNAplfoldDir, config.Dataset.RNAplfoldDir),
		DatasetPath:      getEnvOrDefault(common.EnvDatasetPath, orDefault(config.Dataset.Output, filepath.Join(dataDir, common.DefaultDatasetFile))),
		ModelPath:        getEnvOrDefault(common.EnvModelPath, orDefault(config.Model.Path, common.DefaultModelPath)),
		ScriptPath:       getEnvOrDefault(common.EnvScriptPath, config.Model.Script),
		ModelServerURL:   getEnvOrDefault(common.EnvModelServerURL, config.Model.ServerURL),
		ModelName:        getEnvOrDefault(common.EnvModelName, orDefault(config.Model.Name, common.DefaultModelName)),
		PredictTimeout:   getDurationOrDefault(common.EnvPredictTimeout, timeout),
		BatchSize:        getIntFromEnvOrConfig(common.EnvBatchSize, config.Model.BatchSize, common.DefaultBatchSize),
		ClassIndex:       getIntFromEnvOrConfig(common.EnvClassIndex, config.Model.ClassIndex, 0),
		Alphabet:         getEnvOrDefault(common.EnvAlphabet, orDefault(config.GIA.Alphabet, common.DefaultAlphabet)),
		NullModel:        getEnvOrDefault(common.EnvNullModel, orDefault(config.GIA.NullModel, common.DefaultNullModel)),
		NumSample:        getIntFromEnvOrConfig(common.EnvNumSample, config.GIA.NumSample, common.DefaultNumSample),
		FilterLow:        getFloatFromEnvOrConfig(common.EnvFilterLow, config.GIA.FilterLow, common.DefaultFilterLow),
		FilterHigh:       getFloatFromEnvOrConfig(common.EnvFilterHigh, config.GIA.FilterHigh, common.DefaultFilterHigh),
		ReportDir:        getEnvOrDefault(common.EnvReportDir, orDefault(config.GIA.ReportDir, common.DefaultReportDir)),
		MetricsPort:      getIntFromEnvOrConfig(common.EnvMetricsPort, config.System.MetricsPort, 0),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	dataDir := getEnvOrDefault(common.EnvDataDir, common.DefaultDataDir)
	settings := Settings{
		DataDir:          dataDir,
		TargetsPath:      getEnvOrDefault(common.EnvTargetsPath, filepath.Join(dataDir, common.DefaultTargetsFile)),
		SequencesPath:    getEnvOrDefault(common.EnvSequencesPath, filepath.Join(dataDir, common.DefaultSequencesFile)),
		SplitColumn:      getEnvOrDefault(common.EnvSplitColumn, common.DefaultSplitColumn),
		SequenceColumn:   getEnvOrDefault(common.EnvSequenceColumn, common.DefaultSequenceColumn),
		TrainSplit:       getEnvOrDefault(common.EnvTrainSplit, common.DefaultTrainSplit),
		TestSplit:        getEnvOrDefault(common.EnvTestSplit, common.DefaultTestSplit),
		ValidFraction:    getFloatOrDefault(common.EnvValidFraction, common.DefaultValidFraction),
		Seed:             getUintOrDefault(common.EnvSeed, common.DefaultSeed),
		IncludeStructure: getBoolOrDefault(common.EnvIncludeStructure, false),
		RNAplfoldDir:     os.Getenv(common.EnvRNAplfoldDir), // optional, PATH lookup otherwise
		DatasetPath:      getEnvOrDefault(common.EnvDatasetPath, filepath.Join(dataDir, common.DefaultDatasetFile)),
		ModelPath:        getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		ScriptPath:       os.Getenv(common.EnvScriptPath),
		ModelServerURL:   os.Getenv(common.EnvModelServerURL),
		ModelName:        getEnvOrDefault(common.EnvModelName, common.DefaultModelName),
		PredictTimeout:   getDurationOrDefault(common.EnvPredictTimeout, 60*time.Second),
		BatchSize:        getIntOrDefault(common.EnvBatchSize, common.DefaultBatchSize),
		ClassIndex:       getIntOrDefault(common.EnvClassIndex, 0),
		Alphabet:         getEnvOrDefault(common.EnvAlphabet, common.DefaultAlphabet),
		NullModel:        getEnvOrDefault(common.EnvNullModel, common.DefaultNullModel),
		NumSample:        getIntOrDefault(common.EnvNumSample, common.DefaultNumSample),
		FilterLow:        getFloatOrDefault(common.EnvFilterLow, common.DefaultFilterLow),
		FilterHigh:       getFloatOrDefault(common.EnvFilterHigh, common.DefaultFilterHigh),
		ReportDir:        getEnvOrDefault(common.EnvReportDir, common.DefaultReportDir),
		MetricsPort:      getIntOrDefault(common.EnvMetricsPort, 0), // 0 disables the metrics server
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getUintOrDefault(key string, defaultValue uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			return u
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getUintFromEnvOrConfig(key string, configValue, defaultValue uint64) uint64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getUintOrDefault(key, defaultValue)
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getFloatOrDefault(key, defaultValue)
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	return getBoolOrDefault(key, configValue)
}

// validateSettings performs range checks on the configuration values
func validateSettings(settings *Settings) error {
	// Validate input tables
	if settings.TargetsPath == "" || settings.SequencesPath == "" {
		return fmt.Errorf("targets and sequences paths are required")
	}
	if settings.SplitColumn == "" || settings.SequenceColumn == "" {
		return fmt.Errorf("split and sequence column names are required")
	}

	// Validate partitioning
	if settings.TrainSplit == "" || settings.TestSplit == "" {
		return fmt.Errorf("train and test split labels are required")
	}
	if settings.TrainSplit == settings.TestSplit {
		return fmt.Errorf("train and test split labels must differ, both are %q", settings.TrainSplit)
	}
	if settings.ValidFraction < 0 || settings.ValidFraction >= 1 {
		return fmt.Errorf("valid fraction must be in [0, 1), got %f", settings.ValidFraction)
	}

	// Validate prediction
	if settings.BatchSize <= 0 || settings.BatchSize > common.MaxBatchSize {
		return fmt.Errorf("batch size must be between 1 and %d, got %d", common.MaxBatchSize, settings.BatchSize)
	}
	if settings.ClassIndex < 0 {
		return fmt.Errorf("class index cannot be negative, got %d", settings.ClassIndex)
	}
	if settings.PredictTimeout < common.MinPredictTimeout*time.Second || settings.PredictTimeout > common.MaxPredictTimeout*time.Second {
		return fmt.Errorf("predict timeout must be between 1s and 1h, got %v", settings.PredictTimeout)
	}

	// Validate GIA
	// the encoder and the hairpin stem complement assume the encoder's channel order
	if settings.Alphabet != seq.Alphabet {
		return fmt.Errorf("alphabet must be %q to match the one-hot channel order, got %q", seq.Alphabet, settings.Alphabet)
	}
	if _, err := null.ParseModel(settings.NullModel); err != nil {
		return err
	}
	if settings.NumSample <= 0 || settings.NumSample > common.MaxNumSample {
		return fmt.Errorf("num samples must be between 1 and %d, got %d", common.MaxNumSample, settings.NumSample)
	}
	if settings.FilterLow < 0 || settings.FilterHigh > 100 || settings.FilterLow >= settings.FilterHigh {
		return fmt.Errorf("filter percentiles must satisfy 0 <= low < high <= 100, got [%g, %g]", settings.FilterLow, settings.FilterHigh)
	}

	// Validate metrics server, 0 disables it
	if settings.MetricsPort != 0 && (settings.MetricsPort < common.MinMetricsPort || settings.MetricsPort > common.MaxMetricsPort) {
		return fmt.Errorf("metrics port must be between %d and %d, got %d", common.MinMetricsPort, common.MaxMetricsPort, settings.MetricsPort)
	}

	return nil
}
