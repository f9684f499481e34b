// Command ipn-replay verifies recorded gateway callbacks and optionally
// reconciles them against the database.
//
// The input is a gzip stream with one callback per line, either a raw query
// string or a full callback URL.
package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/dinein/internal/domain/payment"
	"github.com/xenking/dinein/internal/storage/postgres"
	"github.com/xenking/dinein/internal/vnpay"
)

const maxLineBytes = 64 << 10

type verifier interface {
	VerifyQuery(rawQuery string) (*vnpay.Callback, error)
}

type confirmer interface {
	Confirm(ctx context.Context, cb *vnpay.Callback) (payment.Outcome, error)
}

// report aggregates replay results.
type report struct {
	Lines     int64
	Verified  int64
	Invalid   int64
	Malformed int64
	Succeeded int64
	Failed    int64

	mu       sync.Mutex
	Outcomes map[payment.Outcome]int64
}

func (r *report) outcome(o payment.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Outcomes == nil {
		r.Outcomes = make(map[payment.Outcome]int64)
	}
	r.Outcomes[o]++
}

func main() {
	var (
		input        string
		workers      int
		reconcile    bool
		databaseURL  string
		tmnCode      string
		hashSecret   string
		exchangeRate string
	)

	flag.StringVar(&input, "input", "callbacks.gz", "gzip file with one recorded callback per line")
	flag.IntVar(&workers, "workers", 8, "concurrent verifications")
	flag.BoolVar(&reconcile, "reconcile", false, "apply verified callbacks through the reconciler")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env), required with --reconcile")
	flag.StringVar(&tmnCode, "tmn-code", "", "merchant terminal code (or DINEIN_VNPAY_TMN_CODE env)")
	flag.StringVar(&hashSecret, "hash-secret", "", "merchant hash secret (or DINEIN_VNPAY_HASH_SECRET env)")
	flag.StringVar(&exchangeRate, "exchange-rate", "1", "settlement units per display unit")
	flag.Parse()

	if tmnCode == "" {
		tmnCode = os.Getenv("DINEIN_VNPAY_TMN_CODE")
	}
	if hashSecret == "" {
		hashSecret = os.Getenv("DINEIN_VNPAY_HASH_SECRET")
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if reconcile && databaseURL == "" {
		slog.Error("database URL is required with --reconcile: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	rate, err := decimal.NewFromString(exchangeRate)
	if err != nil {
		slog.Error("invalid exchange rate", slog.String("error", err.Error()))
		os.Exit(1)
	}
	signer, err := vnpay.NewSigner(vnpay.Config{
		TmnCode:      tmnCode,
		HashSecret:   hashSecret,
		PaymentURL:   "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ExchangeRate: rate,
	})
	if err != nil {
		slog.Error("create signer failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, input, workers, signer, reconcile, databaseURL); err != nil {
		slog.Error("ipn replay failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, input string, workers int, signer *vnpay.Signer, reconcile bool, databaseURL string) error {
	f, err := os.Open(input)
	if err != nil {
		return errors.Wrap(err, "open input")
	}
	defer func() { _ = f.Close() }()

	zr, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "open gzip stream")
	}
	defer func() { _ = zr.Close() }()

	var c confirmer
	if reconcile {
		slog.Info("connecting to database")

		pool, err := postgres.NewPool(ctx, databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()

		r, err := payment.NewReconciler(postgres.NewTransactor(pool).Payments(), signer)
		if err != nil {
			return errors.Wrap(err, "create reconciler")
		}
		c = r
	}

	rep, err := replay(ctx, zr, workers, signer, c)
	if err != nil {
		return err
	}

	attrs := []any{
		slog.Int64("lines", rep.Lines),
		slog.Int64("verified", rep.Verified),
		slog.Int64("invalid_signature", rep.Invalid),
		slog.Int64("malformed", rep.Malformed),
		slog.Int64("succeeded", rep.Succeeded),
		slog.Int64("failed", rep.Failed),
	}
	for o, n := range rep.Outcomes {
		attrs = append(attrs, slog.Int64("outcome_"+string(o), n))
	}
	slog.Info("replay completed", attrs...)
	return nil
}

// replay verifies every line concurrently. When c is set, verified callbacks
// are reconciled too; a reconciliation error aborts the replay.
func replay(ctx context.Context, r io.Reader, workers int, v verifier, c confirmer) (*report, error) {
	if workers <= 0 {
		workers = 1
	}
	rep := &report{}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for sc.Scan() {
		line := queryOf(sc.Text())
		if line == "" {
			continue
		}
		atomic.AddInt64(&rep.Lines, 1)
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			cb, err := v.VerifyQuery(line)
			switch {
			case errors.Is(err, vnpay.ErrInvalidSignature):
				atomic.AddInt64(&rep.Invalid, 1)
				return nil
			case err != nil:
				atomic.AddInt64(&rep.Malformed, 1)
				return nil
			}
			atomic.AddInt64(&rep.Verified, 1)
			if cb.Success {
				atomic.AddInt64(&rep.Succeeded, 1)
			} else {
				atomic.AddInt64(&rep.Failed, 1)
			}

			if c == nil {
				return nil
			}
			outcome, err := c.Confirm(ctx, cb)
			if err != nil {
				return errors.Wrapf(err, "reconcile %s", cb.TxnRef)
			}
			rep.outcome(outcome)
			return nil
		})
	}
	if err := sc.Err(); err != nil {
		_ = g.Wait()
		return nil, errors.Wrap(err, "read input")
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rep, nil
}

// queryOf extracts the raw query from a recorded line, which may hold a
// full URL.
func queryOf(line string) string {
	line = strings.TrimSpace(line)
	if i := strings.IndexByte(line, '?'); i >= 0 {
		line = line[i+1:]
	}
	return line
}
