package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/defistate/synthamm/engine"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// quoteLine is one line of quote output.
type quoteLine struct {
	Request engine.SwapRequest `json:"request"`
	Result  *engine.SwapResult `json:"result,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// readSwapRequests parses one engine.SwapRequest per non-empty line.
func readSwapRequests(r io.Reader) ([]engine.SwapRequest, error) {
	var reqs []engine.SwapRequest
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScriptLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		var req engine.SwapRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("request line %d: %w", line, err)
		}
		reqs = append(reqs, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read requests: %w", err)
	}
	return reqs, nil
}

// writeQuotes prints the batch results as JSON lines in request order.
func writeQuotes(ctx context.Context, e *engine.Engine, reqs []engine.SwapRequest, w io.Writer) (failed int, err error) {
	results, err := e.QuoteBatch(ctx, reqs)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	for i := range results {
		out := quoteLine{Request: results[i].Request}
		if results[i].Err != nil {
			out.Error = results[i].Err.Error()
			failed++
		} else {
			out.Result = &results[i].Result
		}
		if err := enc.Encode(&out); err != nil {
			return failed, err
		}
	}
	return failed, nil
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Script == "" {
		return fmt.Errorf("script is required")
	}
	if cfg.Snapshot == "" {
		return fmt.Errorf("snapshot is required")
	}

	ctx, stop := signalContext()
	defer stop()

	rt, err := newRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.engine.Close()

	pools, err := rt.restore(cfg.Snapshot)
	if err != nil {
		return err
	}

	file, err := os.Open(cfg.Script)
	if err != nil {
		return fmt.Errorf("open script: %w", err)
	}
	defer file.Close()
	reqs, err := readSwapRequests(file)
	if err != nil {
		return err
	}

	failed, err := writeQuotes(ctx, rt.engine, reqs, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	logger.Info("quotes complete",
		zap.Int("pools", pools),
		zap.Int("requests", len(reqs)),
		zap.Int("failed", failed),
	)
	return nil
}
