package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/hitoshi/neuroscan/internal/model"
)

// Result は分類器の出力。
type Result struct {
	Classification model.Classification `json:"classification"`
	Scores         map[string]float64   `json:"scores"`
}

// Classifier はMRI画像の分類を抽象化する。
type Classifier interface {
	// Classify は画像データを分類する。
	Classify(ctx context.Context, image []byte) (*Result, error)
}

// ExecClassifier は外部プロセスとして分類スクリプトを起動するClassifier実装。
// 画像をbase64でJSONに包んで標準入力に渡し、標準出力のJSONを結果として読む。
type ExecClassifier struct {
	command string
	script  string
	timeout time.Duration
}

// NewExecClassifier はExecClassifierを生成する。
func NewExecClassifier(command, script string, timeout time.Duration) *ExecClassifier {
	return &ExecClassifier{command: command, script: script, timeout: timeout}
}

type execRequest struct {
	Image []byte `json:"image"`
}

type execResponse struct {
	Classification string             `json:"classification"`
	Scores         map[string]float64 `json:"scores"`
	Error          string             `json:"error,omitempty"`
}

// Classify は画像データを分類する。
func (c *ExecClassifier) Classify(ctx context.Context, image []byte) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	input, err := json.Marshal(execRequest{Image: image})
	if err != nil {
		return nil, fmt.Errorf("failed to encode classifier input: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.command, c.script)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("classifier timed out after %s", c.timeout)
		}
		return nil, fmt.Errorf("classifier process failed: %w: %s", err, stderr.String())
	}

	var resp execResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode classifier output: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("classifier reported error: %s", resp.Error)
	}

	classification := model.Classification(resp.Classification)
	if !classification.Valid() {
		return nil, fmt.Errorf("classifier returned unknown label: %q", resp.Classification)
	}

	return &Result{Classification: classification, Scores: resp.Scores}, nil
}

// compile-time interface check
var _ Classifier = (*ExecClassifier)(nil)
