package ingestion

import (
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"codegraph-backend/internal/errors"
)

// Analyzer produces the parser message stream for the workspace. The
// engine never parses source itself; the analyzer is an external
// collaborator speaking the NDJSON message contract.
type Analyzer interface {
	Analyze(ctx context.Context) (io.ReadCloser, error)
}

// CommandAnalyzer runs the configured analyzer command. The workspace root
// is passed as the final argument and ignore patterns as repeated
// --ignore flags; the message stream is read from stdout.
type CommandAnalyzer struct {
	argv           []string
	workspaceRoot  string
	ignorePatterns []string
	logger         *zap.Logger
}

// NewCommandAnalyzer creates an analyzer client. argv must be non-empty.
func NewCommandAnalyzer(argv []string, workspaceRoot string, ignorePatterns []string, logger *zap.Logger) (*CommandAnalyzer, error) {
	if len(argv) == 0 {
		return nil, errors.ParserError("no analyzer command configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandAnalyzer{
		argv:           argv,
		workspaceRoot:  workspaceRoot,
		ignorePatterns: ignorePatterns,
		logger:         logger,
	}, nil
}

// Analyze starts the analyzer process. Closing the returned reader reaps
// the process.
func (a *CommandAnalyzer) Analyze(ctx context.Context) (io.ReadCloser, error) {
	args := append([]string{}, a.argv[1:]...)
	for _, pattern := range a.ignorePatterns {
		args = append(args, "--ignore", pattern)
	}
	args = append(args, a.workspaceRoot)

	cmd := exec.CommandContext(ctx, a.argv[0], args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindParserError, "pipe analyzer stdout")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, errors.KindParserError, "start analyzer")
	}
	a.logger.Info("analyzer started",
		zap.String("command", a.argv[0]),
		zap.String("workspace", a.workspaceRoot))
	return &processStream{ReadCloser: stdout, cmd: cmd}, nil
}

// processStream reaps the analyzer process on Close.
type processStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (p *processStream) Close() error {
	_ = p.ReadCloser.Close()
	return p.cmd.Wait()
}

// Runner triggers analyses on demand, guarding the analyzer behind a
// circuit breaker: repeated analyzer failures open the circuit and
// re-analysis fails fast with parser_error until the cool-down passes.
type Runner struct {
	coordinator *Coordinator
	analyzer    Analyzer
	breaker     *gobreaker.CircuitBreaker
	logger      *zap.Logger
}

// NewRunner wires the coordinator to its analyzer.
func NewRunner(coordinator *Coordinator, analyzer Analyzer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "analyzer",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.8
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("analyzer breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Runner{
		coordinator: coordinator,
		analyzer:    analyzer,
		breaker:     breaker,
		logger:      logger,
	}
}

// ForceReanalysis starts the analyzer and returns as soon as the new
// batch's first message arrives. The rest of the stream is consumed on a
// background goroutine; its outcome is delivered on the returned channel.
// The batch outlives the caller's context: an HTTP request context is
// cancelled the moment the 202 is written, and that must not kill the
// analyzer process or the apply path. Only the per-batch deadline bounds
// the work.
func (r *Runner) ForceReanalysis(ctx context.Context) (string, <-chan error, error) {
	ctx = context.WithoutCancel(ctx)
	streamAny, err := r.breaker.Execute(func() (any, error) {
		return r.analyzer.Analyze(ctx)
	})
	if err != nil {
		switch err {
		case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
			return "", nil, errors.Wrap(err, errors.KindParserError, "analyzer circuit open")
		}
		return "", nil, errors.Wrap(err, errors.KindParserError, "start analysis")
	}
	stream := streamAny.(io.ReadCloser)

	dec := json.NewDecoder(stream)
	var first Message
	if err := dec.Decode(&first); err != nil {
		_ = stream.Close()
		return "", nil, errors.Wrap(err, errors.KindParserError, "read first analyzer message")
	}
	batchID := first.BatchID
	if batchID == "" {
		batchID = uuid.New().String()
		first.BatchID = batchID
	}

	done := make(chan error, 1)
	go func() {
		defer stream.Close()
		done <- r.consumeFrom(ctx, &first, dec)
	}()
	return batchID, done, nil
}

// consumeFrom replays the already-decoded first message and then the rest
// of the stream through the coordinator's buffering path.
func (r *Runner) consumeFrom(ctx context.Context, first *Message, dec *json.Decoder) error {
	batches := make(map[string]*batch)

	process := func(msg *Message) error {
		ready, err := r.coordinator.consumeMessage(ctx, batches, msg)
		if err != nil {
			return err
		}
		if ready != nil {
			return r.coordinator.ApplyBatch(ctx, ready)
		}
		return nil
	}

	if err := process(first); err != nil {
		return err
	}
	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, errors.KindParserError, "decode analyzer stream")
		}
		if err := process(&msg); err != nil {
			return err
		}
	}
}
