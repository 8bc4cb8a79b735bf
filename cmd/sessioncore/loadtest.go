package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/MrEthical07/sessioncore"
	"github.com/MrEthical07/sessioncore/internal"
	"github.com/MrEthical07/sessioncore/store"
)

type loadtestOptions struct {
	sessions    int
	concurrency int
	ops         int
	identifiers int
	redisAddr   string
}

// newLoadtestCmd measures the hot paths against a throwaway SQLite store
// and a redis rate limit backend (miniredis unless --redis-addr is set).
// It ignores --config.
func newLoadtestCmd(a *app) *cobra.Command {
	var o loadtestOptions
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Benchmark token verification, refresh rotation and rate limiting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.sessions <= 0 || o.concurrency <= 0 || o.ops <= 0 || o.identifiers <= 0 {
				return fmt.Errorf("sessions, concurrency, ops and identifiers must be > 0")
			}
			return runLoadtest(cmd.Context(), a.stdout, o)
		},
	}
	cmd.Flags().IntVar(&o.sessions, "sessions", 200, "number of sessions to open")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 32, "number of concurrent workers")
	cmd.Flags().IntVar(&o.ops, "ops", 5000, "operations per phase")
	cmd.Flags().IntVar(&o.identifiers, "identifiers", 1000, "distinct rate limit callers")
	cmd.Flags().StringVar(&o.redisAddr, "redis-addr", "", "redis address; miniredis is started when empty")
	return cmd
}

type sessionState struct {
	access  string
	refresh string
	mu      sync.Mutex
}

func runLoadtest(ctx context.Context, out io.Writer, o loadtestOptions) error {
	if o.redisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		o.redisAddr = mr.Addr()
		fmt.Fprintf(out, "using miniredis at %s\n", o.redisAddr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", o.redisAddr)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{o.redisAddr}})
	defer client.Close()

	st, err := store.Open(ctx, store.Config{Driver: store.DriverSQLite, DSN: ":memory:"})
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	secret, err := internal.RandomToken(32)
	if err != nil {
		return err
	}
	cfg := sessioncore.DefaultConfig()
	cfg.JWT.Secret = secret
	cfg.Password.BcryptCost = bcrypt.MinCost
	cfg.RateLimit.Backend = "redis"
	cfg.Redis.Addr = o.redisAddr
	cfg.Telemetry.Alerts.Dispatcher.Enabled = false

	engine, err := sessioncore.New().WithConfig(cfg).WithStore(st).WithRedis(client).Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	const pass = "loadtest-password-1"
	if _, err := engine.Signup(ctx, "loadtest@example.com", pass); err != nil {
		return fmt.Errorf("signup: %w", err)
	}
	states := make([]sessionState, o.sessions)
	fmt.Fprintf(out, "opening %d sessions...\n", o.sessions)
	startSeed := time.Now()
	for i := range states {
		res, err := engine.Login(ctx, sessioncore.LoginRequest{Email: "loadtest@example.com", Password: pass})
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		states[i].access = res.AccessToken
		states[i].refresh = res.RefreshToken
	}
	fmt.Fprintf(out, "opened in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verify := runPhase(o.ops, o.concurrency, func(r *rand.Rand, _ int) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		tok := s.access
		s.mu.Unlock()
		_, err := engine.Authenticate(ctx, tok)
		return err
	})
	refresh := runPhase(o.ops, o.concurrency, func(r *rand.Rand, _ int) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := engine.Refresh(ctx, s.refresh)
		if err != nil {
			return err
		}
		s.access = res.AccessToken
		if res.RefreshToken != "" {
			s.refresh = res.RefreshToken
		}
		return nil
	})
	var denied int64
	limit := runPhase(o.ops, o.concurrency, func(r *rand.Rand, _ int) error {
		n := r.Intn(o.identifiers)
		id := fmt.Sprintf("ip_10.%d.%d.%d", n>>16&0xff, n>>8&0xff, n&0xff)
		_, err := engine.CheckRateLimit(ctx, id, "/api/items", "GET")
		if errors.Is(err, sessioncore.ErrRateLimited) {
			atomic.AddInt64(&denied, 1)
			return nil
		}
		return err
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "authenticate", verify)
	printStats(out, "refresh", refresh)
	printStats(out, "rate_limit", limit)
	fmt.Fprintf(out, "rate_limit denied=%d\n", atomic.LoadInt64(&denied))
	return nil
}

// runPhase spreads ops calls of fn over concurrency workers.
func runPhase(ops, concurrency int, fn func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := fn(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
