//go:build ignore

// Run: go run ./build-tools/loadgen.go -nats nats://localhost:4222 -prefix hook -pools 3 -rps 50 -duration 60s

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	mrand "math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"swapguard/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/nats-io/nats.go"
)

// pool walks its sqrt price in small random steps around 1.0 (Q64.96)
type pool struct {
	key   domain.PoolKey
	price float64
}

func main() {
	var (
		url      = flag.String("nats", nats.DefaultURL, "nats server url")
		prefix   = flag.String("prefix", "hook", "subject prefix, notifications go to <prefix>.in.<kind>")
		pools    = flag.Int("pools", 3, "number of pools to simulate")
		rps      = flag.Int("rps", 50, "notifications per second target")
		duration = flag.Duration("duration", 30*time.Second, "how long to run")
		chainID  = flag.Uint64("chain", 1, "chain id")
		stepBps  = flag.Float64("step-bps", 25, "max price move per swap, in bp")
	)
	flag.Parse()

	if *pools <= 0 {
		fmt.Println("at least one pool is required")
		os.Exit(1)
	}

	nc, err := nats.Connect(*url, nats.Name("swapguard-loadgen"))
	if err != nil {
		fmt.Printf("nats connect error: %v\n", err)
		os.Exit(1)
	}
	defer nc.Close()

	fmt.Printf("loadgen → nats=%s prefix=%s pools=%d rps=%d duration=%s\n", *url, *prefix, *pools, *rps, duration.String())

	ps := make([]*pool, 0, *pools)
	for i := 0; i < *pools; i++ {
		p := &pool{key: randomKey(), price: 1}
		ps = append(ps, p)
		publish(nc, *prefix, notification(*chainID, domain.NotificationInitialized, p))
		fmt.Printf("pool %s initialized\n", p.key.ID().Hex())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	end := time.Now().Add(*duration)

	// steady pace with a little drift
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	perTick := float64(*rps) / 10.0 // 10 ticks in sec
	accum := 0.0
	sent := 0

loop:
	for {
		select {
		case <-ctx.Done():
			fmt.Println("signal received, stopping…")
			break loop
		case now := <-tick.C:
			if now.After(end) {
				break loop
			}

			accum += perTick
			batch := int(math.Floor(accum))
			if batch <= 0 {
				continue
			}
			accum -= float64(batch)

			for i := 0; i < batch; i++ {
				p := ps[mrand.Intn(len(ps))]
				p.price *= 1 + (mrand.Float64()*2-1)*(*stepBps)/10_000
				publish(nc, *prefix, notification(*chainID, domain.NotificationSwapped, p))
				sent++
			}
		}
	}

	fmt.Println("flushing…")
	if err = nc.FlushTimeout(5 * time.Second); err != nil {
		fmt.Printf("flush error: %v\n", err)
	}
	fmt.Printf("done, sent=%d\n", sent)
}

func publish(nc *nats.Conn, prefix string, n domain.Notification) {
	b, err := json.Marshal(n)
	if err != nil {
		fmt.Printf("marshal error: %v\n", err)
		return
	}
	if err = nc.Publish(prefix+".in."+string(n.Kind), b); err != nil {
		fmt.Printf("publish error: %v\n", err)
	}
}

func notification(chainID uint64, kind domain.NotificationKind, p *pool) domain.Notification {
	return domain.Notification{
		EventID:      domain.MakeNotificationID(chainID, "0x"+randHex(64), uint32(mrand.Intn(20))),
		Kind:         kind,
		PoolKey:      p.key,
		SqrtPriceX96: sqrtPriceX96(p.price),
	}
}

// sqrtPriceX96 scales price by 2^96 keeping 1e-9 precision
func sqrtPriceX96(price float64) *uint256.Int {
	scaled := uint256.NewInt(uint64(price * 1e9))
	q96 := new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	return new(uint256.Int).Div(new(uint256.Int).Mul(scaled, q96), uint256.NewInt(1e9))
}

func randomKey() domain.PoolKey {
	return domain.PoolKey{
		Currency0:   common.HexToAddress("0x" + randHex(40)),
		Currency1:   common.HexToAddress("0x" + randHex(40)),
		Fee:         3000,
		TickSpacing: 60,
		Hooks:       common.HexToAddress("0x" + randHex(40)),
	}
}

func randHex(n int) string {
	b := make([]byte, n/2)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
