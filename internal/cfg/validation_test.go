package cfg

import (
	"errors"
	"testing"
	"time"

	"residualbind/internal/null"
)

// createValidSettings creates a valid Settings struct for testing
func createValidSettings() *Settings {
	return &Settings{
		DataDir:        "data",
		TargetsPath:    "data/targets.tsv",
		SequencesPath:  "data/sequences.tsv",
		SplitColumn:    "Fold ID",
		SequenceColumn: "seq",
		TrainSplit:     "A",
		TestSplit:      "B",
		ValidFraction:  0.1,
		Seed:           100,
		DatasetPath:    "data/rnacompete2013.db",
		ModelPath:      "models/residualbind.h5",
		ModelName:      "residualbind",
		PredictTimeout: 60 * time.Second,
		BatchSize:      100,
		Alphabet:       "ACGU",
		NullModel:      "profile",
		NumSample:      1000,
		FilterLow:      10,
		FilterHigh:     90,
		ReportDir:      "results",
		MetricsPort:    9090,
	}
}

func TestValidateSettings_ValidConfig(t *testing.T) {
	settings := createValidSettings()

	err := validateSettings(settings)
	if err != nil {
		t.Errorf("Expected valid config to pass, got error: %v", err)
	}
}

func TestValidateSettings_MissingInputs(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{"no targets", func(s *Settings) { s.TargetsPath = "" }},
		{"no sequences", func(s *Settings) { s.SequencesPath = "" }},
		{"no split column", func(s *Settings) { s.SplitColumn = "" }},
		{"no sequence column", func(s *Settings) { s.SequenceColumn = "" }},
		{"no train split", func(s *Settings) { s.TrainSplit = "" }},
		{"same splits", func(s *Settings) { s.TestSplit = s.TrainSplit }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			tc.mutate(settings)
			if err := validateSettings(settings); err == nil {
				t.Errorf("Expected error for %s", tc.name)
			}
		})
	}
}

func TestValidateSettings_InvalidValidFraction(t *testing.T) {
	testCases := []struct {
		name     string
		fraction float64
		wantErr  bool
	}{
		{"negative", -0.1, true},
		{"zero", 0, false},
		{"normal", 0.1, false},
		{"almost all", 0.99, false},
		{"one", 1, true},
		{"too large", 1.5, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.ValidFraction = tc.fraction

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected error for invalid valid fraction")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error for valid fraction, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_InvalidBatchSize(t *testing.T) {
	testCases := []struct {
		name      string
		batchSize int
		wantErr   bool
	}{
		{"zero", 0, true},
		{"negative", -1, true},
		{"minimum valid", 1, false},
		{"normal", 100, false},
		{"maximum valid", 100000, false},
		{"too large", 100001, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.BatchSize = tc.batchSize

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected error for invalid batch size")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error for valid batch size, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_InvalidPredictTimeout(t *testing.T) {
	testCases := []struct {
		name    string
		timeout time.Duration
		wantErr bool
	}{
		{"too short", 500 * time.Millisecond, true},
		{"minimum valid", time.Second, false},
		{"normal", time.Minute, false},
		{"maximum valid", time.Hour, false},
		{"too long", 2 * time.Hour, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.PredictTimeout = tc.timeout

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected error for invalid predict timeout")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error for valid predict timeout, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_Alphabet(t *testing.T) {
	testCases := []struct {
		name     string
		alphabet string
		wantErr  bool
	}{
		{"encoder order", "ACGU", false},
		{"dna spelling", "ACGT", true},
		{"reordered", "UGCA", true},
		{"lower case", "acgu", true},
		{"too short", "ACG", true},
		{"repeated symbol", "AACG", true},
		{"empty", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.Alphabet = tc.alphabet

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Errorf("Expected error for alphabet %q", tc.alphabet)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error for alphabet %q, got: %v", tc.alphabet, err)
			}
		})
	}
}

func TestValidateSettings_NullModel(t *testing.T) {
	for _, m := range null.Models() {
		settings := createValidSettings()
		settings.NullModel = m.String()
		if err := validateSettings(settings); err != nil {
			t.Errorf("Expected null model %s to be accepted, got: %v", m, err)
		}
	}

	settings := createValidSettings()
	settings.NullModel = "markov"
	err := validateSettings(settings)
	var invalid *null.InvalidModelError
	if !errors.As(err, &invalid) {
		t.Errorf("Expected InvalidModelError, got: %v", err)
	}
}

func TestValidateSettings_InvalidNumSample(t *testing.T) {
	testCases := []struct {
		name      string
		numSample int
		wantErr   bool
	}{
		{"zero", 0, true},
		{"negative", -5, true},
		{"one", 1, false},
		{"normal", 1000, false},
		{"too large", 1000001, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.NumSample = tc.numSample

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected error for invalid num samples")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error for valid num samples, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_FilterBounds(t *testing.T) {
	testCases := []struct {
		name      string
		low, high float64
		wantErr   bool
	}{
		{"default", 10, 90, false},
		{"full range", 0, 100, false},
		{"negative low", -1, 90, true},
		{"high above 100", 10, 101, true},
		{"inverted", 90, 10, true},
		{"equal", 50, 50, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.FilterLow, settings.FilterHigh = tc.low, tc.high

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected error for invalid filter bounds")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error for valid filter bounds, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_InvalidMetricsPort(t *testing.T) {
	testCases := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{"disabled", 0, false},
		{"privileged", 80, true},
		{"minimum valid", 1024, false},
		{"normal", 9090, false},
		{"maximum valid", 65535, false},
		{"too large", 65536, true},
		{"negative", -1, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.MetricsPort = tc.port

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected error for invalid metrics port")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error for valid metrics port, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_NegativeClassIndex(t *testing.T) {
	settings := createValidSettings()
	settings.ClassIndex = -1
	if err := validateSettings(settings); err == nil {
		t.Error("Expected error for negative class index")
	}
}
