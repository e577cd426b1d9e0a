package solver

import (
	"bytes"
	"context"
	"drt-simulator/internal/platform/obs"
	"drt-simulator/internal/ports"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

const (
	maxSolverAttempts = 3

	problemFile  = "problem.xml"
	matrixFile   = "matrix.csv"
	solutionFile = "solution.xml"
)

// JspritSolver runs an external VRP solver once per Solve call.
// The command is invoked as: Cmd... <problem.xml> <matrix.csv> <solution.xml>.
type JspritSolver struct {
	Cmd []string
	// Dir holds the exchange files; a temporary directory is used when empty.
	Dir string
	// Seed is exported to the solver as DRTSIM_SOLVER_SEED.
	Seed    uint64
	Backoff time.Duration
}

func NewJspritSolver(cmd []string, dir string, seed uint64) (*JspritSolver, error) {
	if len(cmd) == 0 || cmd[0] == "" {
		return nil, errors.New("solver: command is empty")
	}
	return &JspritSolver{Cmd: cmd, Dir: dir, Seed: seed, Backoff: 500 * time.Millisecond}, nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Solve writes the problem, runs the solver and reads back its solution.
// Failed runs are retried a few times; a solution that does not parse is permanent.
func (s *JspritSolver) Solve(ctx context.Context, p *ports.Problem) (_ *ports.Solution, err error) {
	defer obs.Time(ctx, "solver.Solve")(&err)

	dir := s.Dir
	if dir == "" {
		dir, err = os.MkdirTemp("", "drtsim-vrp-")
		if err != nil {
			return nil, fmt.Errorf("solver: temp dir: %w", err)
		}
		defer os.RemoveAll(dir)
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("solver: exchange dir: %w", err)
	}

	problemPath := filepath.Join(dir, problemFile)
	matrixPath := filepath.Join(dir, matrixFile)
	solutionPath := filepath.Join(dir, solutionFile)

	if err := writeFile(problemPath, func(f *os.File) error { return WriteProblem(f, p) }); err != nil {
		return nil, fmt.Errorf("solver: %w", err)
	}
	if err := writeFile(matrixPath, func(f *os.File) error { return WriteMatrix(f, p.Matrix) }); err != nil {
		return nil, fmt.Errorf("solver: %w", err)
	}

	attempt := 0
	op := func() (*ports.Solution, error) {
		attempt++
		_ = os.Remove(solutionPath)

		args := append(append([]string{}, s.Cmd[1:]...), problemPath, matrixPath, solutionPath)
		cmd := exec.CommandContext(ctx, s.Cmd[0], args...)
		cmd.Env = append(os.Environ(), "DRTSIM_SOLVER_SEED="+strconv.FormatUint(s.Seed, 10))
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			log.Warn().Err(err).Int("attempt", attempt).Str("stderr", lastLine(stderr.String())).Msg("solver run failed")
			return nil, fmt.Errorf("run solver: %w", err)
		}

		f, err := os.Open(solutionPath)
		if err != nil {
			return nil, fmt.Errorf("open solution: %w", err)
		}
		defer f.Close()

		sol, err := ReadSolution(f)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return sol, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.Backoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxSolverAttempts-1), ctx)

	sol, err := backoff.RetryWithData(op, policy)
	if err != nil {
		return nil, fmt.Errorf("solver: %w", err)
	}
	return sol, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
