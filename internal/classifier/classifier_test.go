package classifier

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/neuroscan/internal/model"
)

// writeFakeScript は標準入力を読み捨てて固定の出力を返すシェルスクリプトを作成する。
func writeFakeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("シェルスクリプトを使用するテストのためwindowsではスキップ")
	}
	path := filepath.Join(t.TempDir(), "fake_classifier.sh")
	script := "#!/bin/sh\ncat > /dev/null\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("スクリプト作成に失敗: %v", err)
	}
	return path
}

func TestExecClassifier_Classify(t *testing.T) {
	script := writeFakeScript(t, `printf '{"classification":"EMCI","scores":{"AD":0.1,"CN":0.2,"EMCI":0.6,"LMCI":0.1}}'`)
	c := NewExecClassifier("sh", script, 10*time.Second)

	result, err := c.Classify(context.Background(), []byte("image-bytes"))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.Classification != model.ClassificationEMCI {
		t.Errorf("Classification = %s, want EMCI", result.Classification)
	}
	if result.Scores["EMCI"] != 0.6 {
		t.Errorf("Scores[EMCI] = %f, want 0.6", result.Scores["EMCI"])
	}
}

func TestExecClassifier_Classify_UnknownLabel(t *testing.T) {
	script := writeFakeScript(t, `printf '{"classification":"UNKNOWN","scores":{}}'`)
	c := NewExecClassifier("sh", script, 10*time.Second)

	_, err := c.Classify(context.Background(), []byte("image-bytes"))
	if err == nil {
		t.Fatal("未知のラベルでエラーにならなかった")
	}
	if !strings.Contains(err.Error(), "unknown label") {
		t.Errorf("error = %v, want unknown label", err)
	}
}

func TestExecClassifier_Classify_ScriptError(t *testing.T) {
	script := writeFakeScript(t, `printf '{"error":"model file not found"}'`)
	c := NewExecClassifier("sh", script, 10*time.Second)

	_, err := c.Classify(context.Background(), []byte("image-bytes"))
	if err == nil {
		t.Fatal("スクリプトのエラー報告でエラーにならなかった")
	}
	if !strings.Contains(err.Error(), "model file not found") {
		t.Errorf("error = %v, want model file not found", err)
	}
}

func TestExecClassifier_Classify_ProcessFailure(t *testing.T) {
	script := writeFakeScript(t, `echo "broken" >&2; exit 1`)
	c := NewExecClassifier("sh", script, 10*time.Second)

	_, err := c.Classify(context.Background(), []byte("image-bytes"))
	if err == nil {
		t.Fatal("プロセス異常終了でエラーにならなかった")
	}
	if !strings.Contains(err.Error(), "classifier process failed") {
		t.Errorf("error = %v, want classifier process failed", err)
	}
}

func TestExecClassifier_Classify_Timeout(t *testing.T) {
	script := writeFakeScript(t, `sleep 5`)
	c := NewExecClassifier("sh", script, 100*time.Millisecond)

	_, err := c.Classify(context.Background(), []byte("image-bytes"))
	if err == nil {
		t.Fatal("タイムアウトでエラーにならなかった")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %v, want timed out", err)
	}
}
