package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"residualbind/internal/tensor"
)

// ScriptPredictor runs a Python inference script once per batch. The batch
// is written to the script's stdin as JSON and the predictions are read back
// from its stdout.
type ScriptPredictor struct {
	modelPath  string
	pythonPath string
	scriptPath string
	timeout    time.Duration
}

// ScriptRequest is the JSON document sent to the inference script.
type ScriptRequest struct {
	Inputs [][][]float32 `json:"inputs"`
}

// ScriptResponse is the JSON document the inference script prints.
type ScriptResponse struct {
	Predictions [][]float32 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

// NewScriptPredictor locates a Python 3 interpreter and the inference script
// for the model at modelPath. An empty scriptPath means model_inference.py
// next to the model, then scripts/model_inference.py one level up, and
// finally an embedded Keras script written next to the model.
func NewScriptPredictor(modelPath, scriptPath string, timeout time.Duration) (*ScriptPredictor, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model not accessible: %w", err)
	}

	pythonPath, err := findPython()
	if err != nil {
		return nil, err
	}

	if scriptPath == "" {
		scriptPath, err = locateScript(modelPath)
		if err != nil {
			return nil, err
		}
	}

	log.Info().
		Str("model_path", modelPath).
		Str("python_path", pythonPath).
		Str("script_path", scriptPath).
		Msg("Script predictor ready")

	return NewScriptPredictorWithPython(pythonPath, scriptPath, modelPath, timeout), nil
}

// NewScriptPredictorWithPython skips interpreter discovery.
func NewScriptPredictorWithPython(pythonPath, scriptPath, modelPath string, timeout time.Duration) *ScriptPredictor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ScriptPredictor{
		modelPath:  modelPath,
		pythonPath: pythonPath,
		scriptPath: scriptPath,
		timeout:    timeout,
	}
}

func locateScript(modelPath string) (string, error) {
	scriptDir := filepath.Dir(modelPath)
	candidates := []string{
		filepath.Join(scriptDir, "model_inference.py"),
		filepath.Join(filepath.Dir(scriptDir), "scripts", "model_inference.py"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	embedded := filepath.Join(scriptDir, "model_inference_embedded.py")
	if err := createInferenceScript(embedded); err != nil {
		return "", fmt.Errorf("create inference script: %w", err)
	}
	return embedded, nil
}

// Predict implements Predictor.
func (p *ScriptPredictor) Predict(ctx context.Context, x *tensor.Tensor, batchSize int) ([][]float32, error) {
	if p == nil {
		return nil, fmt.Errorf("predictor is nil")
	}
	return predictBatches(ctx, x, batchSize, p.predictBatch)
}

func (p *ScriptPredictor) predictBatch(ctx context.Context, batch *tensor.Tensor) ([][]float32, error) {
	reqJSON, err := json.Marshal(ScriptRequest{Inputs: nested(batch)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.pythonPath, p.scriptPath, p.modelPath)
	cmd.Stdin = bytes.NewReader(reqJSON)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Error().
			Err(err).
			Str("python_path", p.pythonPath).
			Str("script_path", p.scriptPath).
			Str("model_path", p.modelPath).
			Str("stderr", stderr.String()).
			Int("batch", batch.Len()).
			Dur("timeout", p.timeout).
			Bool("context_cancelled", ctx.Err() != nil).
			Msg("Python inference execution failed")

		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("prediction timeout after %v: %w", p.timeout, context.DeadlineExceeded)
		}
		var resp ScriptResponse
		if json.Unmarshal(stdout.Bytes(), &resp) == nil && resp.Error != "" {
			return nil, fmt.Errorf("python inference error: %s: %w", resp.Error, err)
		}
		if strings.Contains(stderr.String(), "No such file or directory") {
			return nil, fmt.Errorf("model file not accessible: %w", err)
		}
		return nil, fmt.Errorf("python inference failed: %w, stderr: %s", err, stderr.String())
	}

	var resp ScriptResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		log.Error().
			Err(err).
			Str("stdout", stdout.String()).
			Str("stderr", stderr.String()).
			Msg("Failed to parse prediction response")
		return nil, fmt.Errorf("failed to parse response: %w, stdout: %s", err, stdout.String())
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("python inference error: %s", resp.Error)
	}

	log.Debug().
		Int("batch", batch.Len()).
		Int("predictions", len(resp.Predictions)).
		Msg("Prediction successful")

	return resp.Predictions, nil
}

// nested converts a (N, L, A) tensor to the nested slices JSON expects.
func nested(x *tensor.Tensor) [][][]float32 {
	out := make([][][]float32, x.Shape[0])
	for i := range out {
		out[i] = make([][]float32, x.Shape[1])
		ex := x.Example(i)
		for j := range out[i] {
			out[i][j] = ex[j*x.Shape[2] : (j+1)*x.Shape[2]]
		}
	}
	return out
}

const pythonProbe = "import sys, numpy; print('Python', sys.version)"

func findPython() (string, error) {
	if venvPath := os.Getenv("VIRTUAL_ENV"); venvPath != "" {
		candidates := []string{
			filepath.Join(venvPath, "bin", "python3"),
			filepath.Join(venvPath, "bin", "python"),
			filepath.Join(venvPath, "Scripts", "python.exe"),
			filepath.Join(venvPath, "Scripts", "python3.exe"),
		}
		for _, venvPython := range candidates {
			if probePython(venvPython) {
				log.Info().Str("python_path", venvPython).Msg("Using virtual environment Python")
				return venvPython, nil
			}
		}
	}

	// Try to find venv relative to executable location
	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		for _, root := range []string{execDir, filepath.Dir(execDir), filepath.Dir(filepath.Dir(execDir))} {
			for _, venvPython := range []string{
				filepath.Join(root, "venv", "bin", "python3"),
				filepath.Join(root, ".venv", "bin", "python3"),
				filepath.Join(root, "venv", "Scripts", "python.exe"),
			} {
				if probePython(venvPython) {
					log.Info().Str("python_path", venvPython).Msg("Using project virtual environment Python")
					return venvPython, nil
				}
			}
		}
	}

	candidates := []string{"python3", "python", "python3.12", "python3.11", "python3.10", "python3.9"}
	for _, candidate := range candidates {
		if path, err := exec.LookPath(candidate); err == nil && probePython(path) {
			log.Info().Str("python_path", path).Msg("Using system Python")
			return path, nil
		}
	}

	return "", fmt.Errorf("no Python 3 with numpy found; install Python 3.9-3.12 or set VIRTUAL_ENV")
}

func probePython(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	output, err := exec.Command(path, "-c", pythonProbe).Output()
	return err == nil && strings.Contains(string(output), "Python 3")
}

func createInferenceScript(scriptPath string) error {
	script := `#!/usr/bin/env python3
"""
Keras inference script for residualbind (embedded version).
Reads {"inputs": [[[...]]]} from stdin, prints {"predictions": [[...]]}.
"""
import sys
import json
import numpy as np

try:
    from tensorflow import keras
except ImportError:
    print(json.dumps({"error": "tensorflow not installed"}))
    sys.exit(1)

def main():
    if len(sys.argv) != 2:
        print(json.dumps({"error": "Usage: python model_inference.py <model_path>"}))
        sys.exit(1)

    try:
        request = json.load(sys.stdin)
        inputs = np.array(request["inputs"], dtype=np.float32)
        model = keras.models.load_model(sys.argv[1], compile=False)
        predictions = model.predict(inputs, verbose=0)
        if predictions.ndim == 1:
            predictions = predictions[:, None]
        print(json.dumps({"predictions": predictions.tolist()}))
    except Exception as e:
        print(json.dumps({"error": str(e)}))
        sys.exit(1)

if __name__ == "__main__":
    main()
`

	return os.WriteFile(scriptPath, []byte(script), 0o755)
}
