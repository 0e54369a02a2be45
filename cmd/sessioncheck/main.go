package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/phonechess-client/internal/config"
	"github.com/park285/phonechess-client/internal/healthcheck"
	"github.com/park285/phonechess-client/internal/protocol"
)

func main() {
	watch := flag.Duration("watch", 10*time.Second, "how long to print inbound messages")
	join := flag.String("join", "", "optionally join this queue bucket after auth")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	client := healthcheck.NewClient(cfg.HealthURL, healthcheck.WithTimeout(5*time.Second))
	hctx, hcancel := context.WithTimeout(context.Background(), 8*time.Second)
	st, err := client.Check(hctx)
	hcancel()
	if err != nil {
		log.Printf("/health error: %v", err)
	} else {
		log.Printf("/health ok: status=%s", st.Status)
	}

	hdr := http.Header{}
	if cfg.WSOrigin != "" {
		hdr.Set("Origin", cfg.WSOrigin)
	}
	dctx, dcancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, _, err := websocket.Dial(dctx, cfg.ServerURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      hdr,
	})
	dcancel()
	if err != nil {
		log.Fatalf("WS connect error: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	ctx, cancel := context.WithTimeout(context.Background(), *watch)
	defer cancel()

	debugUID := cfg.DebugUID
	if cfg.InitData == "" && debugUID <= 0 {
		debugUID = time.Now().UnixNano() % 1_000_000_000
	}
	if err := wsjson.Write(ctx, conn, protocol.NewAuth(cfg.InitData, debugUID)); err != nil {
		log.Fatalf("auth send error: %v", err)
	}
	log.Printf("auth sent (debug identity: %v)", cfg.InitData == "")

	if *join != "" {
		if err := wsjson.Write(ctx, conn, protocol.NewJoinQueue(*join)); err != nil {
			log.Printf("join send error: %v", err)
		}
	}

	for {
		var raw map[string]any
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return
			}
			log.Printf("WS read ended: %v", err)
			return
		}
		fmt.Printf("WS msg type=%v %v\n", raw["type"], raw)
	}
}
