package common

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvLogLevel         = "LOG_LEVEL"
	EnvDataDir          = "DATA_DIR"
	EnvTargetsPath      = "TARGETS_PATH"
	EnvSequencesPath    = "SEQUENCES_PATH"
	EnvSplitColumn      = "SPLIT_COLUMN"
	EnvSequenceColumn   = "SEQUENCE_COLUMN"
	EnvTrainSplit       = "TRAIN_SPLIT"
	EnvTestSplit        = "TEST_SPLIT"
	EnvValidFraction    = "VALID_FRACTION"
	EnvSeed             = "SEED"
	EnvIncludeStructure = "INCLUDE_STRUCTURE"
	EnvRNAplfoldDir     = "RNAPLFOLD_DIR"
	EnvDatasetPath      = "DATASET_PATH"
	EnvModelPath        = "MODEL_PATH"
	EnvScriptPath       = "SCRIPT_PATH"
	EnvModelServerURL   = "MODEL_SERVER_URL"
	EnvModelName        = "MODEL_NAME"
	EnvPredictTimeout   = "PREDICT_TIMEOUT"
	EnvBatchSize        = "BATCH_SIZE"
	EnvClassIndex       = "CLASS_INDEX"
	EnvAlphabet         = "ALPHABET"
	EnvNullModel        = "NULL_MODEL"
	EnvNumSample        = "NUM_SAMPLE"
	EnvFilterLow        = "FILTER_LOW"
	EnvFilterHigh       = "FILTER_HIGH"
	EnvReportDir        = "REPORT_DIR"
	EnvMetricsPort      = "METRICS_PORT"
)

// Configuration defaults
const (
	DefaultDataDir        = "data"
	DefaultTargetsFile    = "targets.tsv"
	DefaultSequencesFile  = "sequences.tsv"
	DefaultSplitColumn    = "Fold ID"
	DefaultSequenceColumn = "seq"
	DefaultTrainSplit     = "A"
	DefaultTestSplit      = "B"
	DefaultValidFraction  = 0.1
	DefaultSeed           = 100
	DefaultDatasetFile    = "rnacompete2013.db"
	DefaultModelPath      = "models/residualbind.h5"
	DefaultModelName      = "residualbind"
	DefaultBatchSize      = 100
	DefaultAlphabet       = "ACGU"
	DefaultNullModel      = "profile"
	DefaultNumSample      = 1000
	DefaultFilterLow      = 10.0
	DefaultFilterHigh     = 90.0
	DefaultReportDir      = "results"
)

// Validation constants
const (
	MinMetricsPort    = 1024
	MaxMetricsPort    = 65535
	MaxBatchSize      = 100000
	MaxNumSample      = 1000000
	MinPredictTimeout = 1 // seconds
	MaxPredictTimeout = 3600
)
