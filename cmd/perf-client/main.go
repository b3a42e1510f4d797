package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/kkkkikiki/loyalty/internal/shopify"
)

// PerfResult gathers aggregated metrics for the test run.
// Atomic counters are used to avoid lock-contention on hot paths.
// LatencySum & P95Latency are in nanoseconds.
type PerfResult struct {
	TotalRequests int64
	SuccessCount  int64
	RejectedCount int64 // expected 400s: active code exists, balance too low
	ReplayCount   int64 // webhook redeliveries acknowledged as already processed
	ErrorCount    int64
	LatencySum    int64
	P95Latency    int64
}

const defaultTimeout = 30 * time.Second

type runner struct {
	addr   string
	secret string
	client *http.Client
}

type customer struct {
	email     string
	orders    []int64
	earned    int64
	redeemed  atomic.Int64
	requested int64
}

func main() {
	var (
		addr      = flag.String("addr", "http://localhost:8080", "loyalty service base URL")
		secret    = flag.String("secret", os.Getenv("SHOPIFY_WEBHOOK_SECRET"), "order webhook HMAC secret")
		rps       = flag.Int("rps", 200, "target requests per second")
		duration  = flag.Duration("duration", 15*time.Second, "load phase duration")
		workers   = flag.Int("workers", 20, "concurrent workers")
		customers = flag.Int("customers", 10, "number of synthetic customers")
		orders    = flag.Int("orders", 3, "seed orders per customer")
		total     = flag.String("order-total", "50.00", "total of each seed order")
		points    = flag.Int64("points", 10, "points per redemption request")
	)
	flag.Parse()

	transport := &http.Transport{
		MaxIdleConns:        *workers * 4,
		MaxIdleConnsPerHost: *workers * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	r := &runner{
		addr:   *addr,
		secret: *secret,
		client: &http.Client{Transport: transport, Timeout: defaultTimeout},
	}

	// ─── Seed ───────────────────────────────────────────────────
	run := time.Now().Unix()
	pool := make([]*customer, *customers)
	for i := range pool {
		c := &customer{email: fmt.Sprintf("perf-%d-%d@example.com", run, i), requested: *points}
		for j := 0; j < *orders; j++ {
			id := run*1_000_000 + int64(i*1000+j)
			if _, err := r.order(context.Background(), id, c.email, *total); err != nil {
				fmt.Fprintf(os.Stderr, "failed to seed order: %v\n", err)
				os.Exit(1)
			}
			c.orders = append(c.orders, id)
		}
		bal, err := r.points(context.Background(), c.email)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read balance: %v\n", err)
			os.Exit(1)
		}
		c.earned = bal.TotalEarned
		pool[i] = c
	}

	fmt.Println("==========================================")
	fmt.Println("Loyalty ledger load test")
	fmt.Println("==========================================")
	fmt.Printf("Target      : %s\n", *addr)
	fmt.Printf("Customers   : %d (%d orders each)\n", *customers, *orders)
	fmt.Printf("RPS         : %d\n", *rps)
	fmt.Printf("Duration    : %v\n", *duration)
	fmt.Println("==========================================")

	// ─── Rate limiter & context ─────────────────────────────────
	burst := *rps / *workers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(*rps), burst)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	var result PerfResult
	var wg sync.WaitGroup
	var seq atomic.Int64

	latencyChan := make(chan time.Duration, 4096)
	go trackP95(latencyChan, &result)

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				n := seq.Add(1)
				c := pool[int(n)%len(pool)]
				if n%3 == 0 && len(c.orders) > 0 {
					r.replay(c, *total, &result, latencyChan)
					continue
				}
				r.redeem(c, &result, latencyChan)
			}
		}()
	}

	start := time.Now()
	<-ctx.Done()
	wg.Wait()
	close(latencyChan)
	totalDur := time.Since(start)

	// ─── Report ─────────────────────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("Results")
	fmt.Println("==========================================")
	fmt.Printf("Elapsed            : %.2fs\n", totalDur.Seconds())
	fmt.Printf("Requests           : %d\n", result.TotalRequests)
	fmt.Printf("Redemptions        : %d\n", result.SuccessCount)
	fmt.Printf("Rejected (400)     : %d\n", result.RejectedCount)
	fmt.Printf("Webhook replays    : %d\n", result.ReplayCount)
	fmt.Printf("Errors             : %d\n", result.ErrorCount)

	handled := result.SuccessCount + result.RejectedCount + result.ReplayCount
	var avgLatency time.Duration
	if handled > 0 {
		avgLatency = time.Duration(result.LatencySum / handled)
	}
	fmt.Printf("Actual RPS         : %.2f\n", float64(result.TotalRequests)/totalDur.Seconds())
	fmt.Printf("Avg latency        : %v\n", avgLatency)
	fmt.Printf("P95 latency        : %v\n", time.Duration(atomic.LoadInt64(&result.P95Latency)))

	// ─── Data Consistency Check ─────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("Consistency check")
	fmt.Println("==========================================")

	failed := false
	for _, c := range pool {
		if err := r.verify(c); err != nil {
			failed = true
			fmt.Printf("FAIL %s: %v\n", c.email, err)
		}
	}
	if failed {
		fmt.Println("==========================================")
		os.Exit(1)
	}
	fmt.Println("All ledgers consistent")
	fmt.Println("==========================================")
}

// redeem converts points into a discount code. Only the first request per
// customer may succeed while its code stays active.
func (r *runner) redeem(c *customer, result *PerfResult, latencies chan<- time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	atomic.AddInt64(&result.TotalRequests, 1)
	start := time.Now()
	status, err := r.post(ctx, "/api/discount-codes", map[string]any{"email": c.email, "pointsToUse": c.requested}, nil, nil)
	latency := time.Since(start)

	switch {
	case err != nil:
		atomic.AddInt64(&result.ErrorCount, 1)
		return
	case status == http.StatusOK:
		c.redeemed.Add(1)
		atomic.AddInt64(&result.SuccessCount, 1)
	case status == http.StatusBadRequest:
		atomic.AddInt64(&result.RejectedCount, 1)
	default:
		atomic.AddInt64(&result.ErrorCount, 1)
		return
	}
	record(result, latencies, latency)
}

// replay redelivers an already credited order.
func (r *runner) replay(c *customer, total string, result *PerfResult, latencies chan<- time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	atomic.AddInt64(&result.TotalRequests, 1)
	start := time.Now()
	status, err := r.order(ctx, c.orders[0], c.email, total)
	latency := time.Since(start)
	if err != nil || status != "already_processed" {
		atomic.AddInt64(&result.ErrorCount, 1)
		return
	}
	atomic.AddInt64(&result.ReplayCount, 1)
	record(result, latencies, latency)
}

func record(result *PerfResult, latencies chan<- time.Duration, latency time.Duration) {
	atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())
	select {
	case latencies <- latency:
	default:
	}
}

type balance struct {
	Balance     int64 `json:"points_balance"`
	TotalEarned int64 `json:"total_points_earned"`
	TotalSpent  int64 `json:"total_points_spent"`
}

// verify checks the ledger of c against what the run observed.
func (r *runner) verify(c *customer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bal, err := r.points(ctx, c.email)
	if err != nil {
		return err
	}
	var codes struct {
		ActiveCount int `json:"active_count"`
		TotalCount  int `json:"total_count"`
	}
	if err := r.get(ctx, "/api/discount-codes?email="+c.email, &codes); err != nil {
		return err
	}

	fmt.Printf("%s earned=%d spent=%d balance=%d codes=%d active=%d\n",
		c.email, bal.TotalEarned, bal.TotalSpent, bal.Balance, codes.TotalCount, codes.ActiveCount)

	if bal.Balance != bal.TotalEarned-bal.TotalSpent {
		return fmt.Errorf("balance %d != earned %d - spent %d", bal.Balance, bal.TotalEarned, bal.TotalSpent)
	}
	if bal.TotalEarned != c.earned {
		return fmt.Errorf("earned changed under webhook replays: %d -> %d", c.earned, bal.TotalEarned)
	}
	if want := c.redeemed.Load() * c.requested; bal.TotalSpent != want {
		return fmt.Errorf("spent %d, want %d from %d redemptions", bal.TotalSpent, want, c.redeemed.Load())
	}
	if codes.ActiveCount > 1 {
		return fmt.Errorf("%d active point codes", codes.ActiveCount)
	}
	return nil
}

func (r *runner) order(ctx context.Context, id int64, email, total string) (string, error) {
	raw, err := json.Marshal(map[string]any{
		"id":          id,
		"name":        fmt.Sprintf("#%d", id),
		"email":       email,
		"total_price": total,
	})
	if err != nil {
		return "", err
	}
	headers := map[string]string{}
	if r.secret != "" {
		headers[shopify.HMACHeader] = shopify.Sign(r.secret, raw)
	}

	var resp struct {
		Status string `json:"status"`
	}
	status, err := r.post(ctx, "/api/webhooks/orders", raw, headers, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("order webhook returned %d", status)
	}
	return resp.Status, nil
}

func (r *runner) points(ctx context.Context, email string) (*balance, error) {
	var b balance
	if err := r.get(ctx, "/api/points?email="+email, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *runner) post(ctx context.Context, path string, body any, headers map[string]string, out any) (int, error) {
	raw, ok := body.([]byte)
	if !ok {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.addr+path, bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return r.do(req, out)
}

func (r *runner) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.addr+path, nil)
	if err != nil {
		return err
	}
	status, err := r.do(req, out)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("GET %s returned %d", path, status)
	}
	return nil
}

func (r *runner) do(req *http.Request, out any) (int, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
}

// trackP95 maintains a best-effort rolling P95 latency estimation.
func trackP95(latencies <-chan time.Duration, result *PerfResult) {
	const size = 1000
	buf := make([]int64, 0, size)

	for lat := range latencies {
		if len(buf) < size {
			buf = append(buf, lat.Nanoseconds())
		} else if idx := time.Now().UnixNano() % int64(size); idx < int64(size/10) {
			// simple reservoir sampling
			buf[idx] = lat.Nanoseconds()
		}

		if len(buf) >= 100 && len(buf)%100 == 0 {
			copyBuf := make([]int64, len(buf))
			copy(copyBuf, buf)
			quickSort(copyBuf)
			p95Index := int(float64(len(copyBuf)) * 0.95)
			if p95Index >= len(copyBuf) {
				p95Index = len(copyBuf) - 1
			}
			atomic.StoreInt64(&result.P95Latency, copyBuf[p95Index])
		}
	}
}

// quickSort sorts the array in ascending order
func quickSort(arr []int64) {
	if len(arr) < 2 {
		return
	}

	left, right := 0, len(arr)-1
	pivot := len(arr) / 2

	arr[pivot], arr[right] = arr[right], arr[pivot]

	for i := range arr {
		if arr[i] < arr[right] {
			arr[left], arr[i] = arr[i], arr[left]
			left++
		}
	}

	arr[left], arr[right] = arr[right], arr[left]

	quickSort(arr[:left])
	quickSort(arr[left+1:])
}
