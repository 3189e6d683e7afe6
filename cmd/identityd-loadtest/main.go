// Command identityd-loadtest measures the identity service against Redis
// without the HTTP layer: it seeds accounts, then runs login, profile and
// captcha phases from concurrent workers.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authflow/internal/identity"
	"github.com/MrEthical07/authflow/jwt"
	"github.com/MrEthical07/authflow/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const seedPassword = "loadtest-secret"

func main() {
	var (
		users       = flag.Int("users", 2000, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		argonMemory = flag.Uint("argon-memory", 8*1024, "argon2 memory in KiB")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	svc, err := newService(client, uint32(*argonMemory))
	if err != nil {
		fmt.Fprintf(os.Stderr, "identity: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("seeding %d accounts...\n", *users)
	startSeed := time.Now()
	accounts := make([]seeded, *users)
	for i := range accounts {
		name := fmt.Sprintf("load-%06d", i)
		u, err := svc.Register(ctx, identity.RegisterInput{
			Username: name,
			Email:    name + "@load.test",
			Password: seedPassword,
			ClientIP: "10.0.0.1",
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "register failed: %v\n", err)
			os.Exit(1)
		}
		accounts[i] = seeded{id: u.ID, username: name}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loginStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand) error {
		a := accounts[r.Intn(len(accounts))]
		_, err := svc.Login(ctx, identity.LoginInput{
			Username: a.username,
			Password: seedPassword,
			ClientIP: fmt.Sprintf("10.1.%d.%d", r.Intn(256), r.Intn(256)),
		})
		return err
	})
	meStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand) error {
		_, err := svc.Me(ctx, accounts[r.Intn(len(accounts))].id)
		return err
	})
	captchaStats := runPhase(*ops, *concurrency, 4099, func(*rand.Rand) error {
		_, err := svc.NewCaptcha(ctx)
		return err
	})

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("me", meStats)
	printStats("captcha", captchaStats)
}

type seeded struct {
	id       string
	username string
}

func newService(client redis.UniversalClient, memory uint32) (*identity.Service, error) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i*31 + 7)
	}
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     30 * time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    key,
		Issuer:        "identityd-loadtest",
	})
	if err != nil {
		return nil, err
	}

	hashCfg := password.DefaultConfig()
	hashCfg.Memory = memory
	hashCfg.Time = 1
	hashCfg.Parallelism = 1
	hasher, err := password.NewArgon2(hashCfg)
	if err != nil {
		return nil, err
	}

	settings := identity.DefaultSettings()
	settings.RequireEmailVerification = false
	settings.RegistrationsPerIP = 0
	settings.MaxLoginAttempts = 0

	return identity.New(identity.Deps{
		Redis:    client,
		Tokens:   tokens,
		Mailer:   identity.NewLogMailer(zap.NewNop()),
		Hasher:   hasher,
		Settings: settings,
	})
}

// runPhase spreads ops calls of fn over concurrency workers and records the
// latency of each call.
func runPhase(ops, concurrency int, seed int64, fn func(r *rand.Rand) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := fn(r)
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
	total := time.Since(start)
	return computeStats(total, latencies, failures)
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

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
