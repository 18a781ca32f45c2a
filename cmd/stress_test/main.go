package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/rl1809/seckill-cache/internal/adapter/handler"
)

var (
	httpFlag = &cli.StringFlag{
		Name:  "http",
		Usage: "base URL of the HTTP API",
		Value: "http://localhost:8080",
	}
	grpcFlag = &cli.StringFlag{
		Name:  "grpc",
		Usage: "gRPC address; when set requests go over gRPC instead of HTTP",
	}
	voucherFlag = &cli.Int64Flag{
		Name:     "voucher",
		Usage:    "seckill voucher id",
		Required: true,
	}
	usersFlag = &cli.IntFlag{
		Name:  "users",
		Usage: "number of distinct buyers",
		Value: 200,
	}
	attemptsFlag = &cli.IntFlag{
		Name:  "attempts",
		Usage: "requests sent per buyer",
		Value: 2,
	}
	concurrencyFlag = &cli.IntFlag{
		Name:  "concurrency",
		Usage: "maximum requests in flight",
		Value: 50,
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "per-request timeout",
		Value: 5 * time.Second,
	}
)

type sender func(ctx context.Context, userID int64) string

func main() {
	app := &cli.App{
		Name:  "stress_test",
		Usage: "fire concurrent seckill requests and tally the outcomes",
		Flags: []cli.Flag{httpFlag, grpcFlag, voucherFlag, usersFlag, attemptsFlag, concurrencyFlag, timeoutFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	voucherID := c.Int64(voucherFlag.Name)
	users := c.Int(usersFlag.Name)
	attempts := c.Int(attemptsFlag.Name)
	timeout := c.Duration(timeoutFlag.Name)

	send, closeFn, err := newSender(c, voucherID)
	if err != nil {
		return err
	}
	defer closeFn()

	var (
		mu       sync.Mutex
		outcomes = map[string]int{}
	)

	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(c.Int(concurrencyFlag.Name))

	start := time.Now()
	for u := 1; u <= users; u++ {
		for a := 0; a < attempts; a++ {
			userID := int64(u)
			g.Go(func() error {
				reqCtx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				outcome := send(reqCtx, userID)

				mu.Lock()
				outcomes[outcome]++
				mu.Unlock()
				return nil
			})
		}
	}
	g.Wait()
	elapsed := time.Since(start)

	total := users * attempts
	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Voucher:          %d\n", voucherID)
	fmt.Printf("Buyers:           %d\n", users)
	fmt.Printf("Total Requests:   %d\n", total)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Printf("Throughput:       %.1f req/s\n", float64(total)/elapsed.Seconds())

	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-16s %d\n", k+":", outcomes[k])
	}
	fmt.Println("==========================================")

	if outcomes["ok"] > users {
		return fmt.Errorf("FAIL: %d orders placed for %d buyers", outcomes["ok"], users)
	}
	fmt.Println("PASS: at most one order per buyer")
	return nil
}

func newSender(c *cli.Context, voucherID int64) (sender, func(), error) {
	if addr := c.String(grpcFlag.Name); addr != "" {
		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		client := handler.NewSeckillClient(conn)
		send := func(ctx context.Context, userID int64) string {
			resp, err := client.Seckill(ctx, &handler.SeckillRequest{UserID: userID, VoucherID: voucherID})
			if err != nil {
				return status.Code(err).String()
			}
			if resp.Success {
				return "ok"
			}
			return resp.Message
		}
		return send, func() { conn.Close() }, nil
	}

	client := &http.Client{Transport: &http.Transport{MaxIdleConnsPerHost: c.Int(concurrencyFlag.Name)}}
	url := c.String(httpFlag.Name) + "/api/voucher-order/seckill/" + strconv.FormatInt(voucherID, 10)
	send := func(ctx context.Context, userID int64) string {
		body, _ := json.Marshal(handler.SeckillHTTPRequest{UserID: userID})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "error"
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return "transport error"
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return "ok"
		}
		return strconv.Itoa(resp.StatusCode)
	}
	return send, client.CloseIdleConnections, nil
}
