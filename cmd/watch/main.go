package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voxelwfc.ai/internal/observerproto"
	"voxelwfc.ai/internal/sim/encoding"
)

func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/observer/ws", "observer ws url")
		center = flag.String("center", "0,0,0", "chunk key x,y,z to watch")
		radius = flag.Int("radius", 1, "watch radius in chunks")
		drive  = flag.Bool("drive", false, "recentre streaming on the watched area")
		walk   = flag.Duration("walk", 0, "move the watched centre one chunk along +X at this interval (0 disables)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lmicroseconds)
	c, err := parseKey(*center)
	if err != nil {
		logger.Fatalf("-center: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	subscribe := func(k [3]int) {
		err := conn.WriteJSON(observerproto.SubscribeMsg{
			Type:            observerproto.TypeSubscribe,
			ProtocolVersion: observerproto.Version,
			Center:          k,
			Radius:          *radius,
			Drive:           *drive,
		})
		if err != nil {
			logger.Fatalf("send SUBSCRIBE: %v", err)
		}
	}
	subscribe(c)

	if *walk > 0 {
		go func() {
			t := time.NewTicker(*walk)
			defer t.Stop()
			k := c
			for range t.C {
				k[0]++
				logger.Printf("moving to %v", k)
				subscribe(k)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	msgs := make(chan []byte, 64)
	go func() {
		defer close(msgs)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Printf("read: %v", err)
				return
			}
			msgs <- msg
		}
	}()

	var names []string
	for {
		select {
		case <-stop:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var base struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &base); err != nil {
				continue
			}
			switch base.Type {
			case observerproto.TypeHello:
				var h observerproto.HelloMsg
				if err := json.Unmarshal(msg, &h); err != nil {
					continue
				}
				names = h.States
				logger.Printf("HELLO session=%s tick=%d chunk_size=%d seed=%d states=%v", h.SessionID, h.Tick, h.WorldParams.ChunkSize, h.WorldParams.Seed, h.States)

			case observerproto.TypeChunk:
				var m observerproto.ChunkMsg
				if err := json.Unmarshal(msg, &m); err != nil {
					continue
				}
				logger.Printf("CHUNK %v %s lod=%d tick=%d %s", m.Key, m.State, m.LOD, m.Tick, summarize(m.Data, names))

			case observerproto.TypeEvict:
				var m observerproto.ChunkEvictMsg
				if err := json.Unmarshal(msg, &m); err != nil {
					continue
				}
				logger.Printf("EVICT %v tick=%d", m.Key, m.Tick)

			case observerproto.TypeStats:
				var m observerproto.StatsMsg
				if err := json.Unmarshal(msg, &m); err != nil {
					continue
				}
				logger.Printf("STATS tick=%d loaded=%d pending=%d complete=%d best_effort=%d collapses=%d conflicts=%d",
					m.Tick, m.Loaded, m.Pending, m.Complete, m.BestEffort, m.Collapses, m.Conflicts)
			}
		}
	}
}

// summarize renders the state histogram of an encoded chunk.
func summarize(data string, names []string) string {
	states, err := encoding.DecodeStates(data, 0)
	if err != nil {
		return "bad data: " + err.Error()
	}
	counts := map[int]int{}
	for _, s := range states {
		counts[s]++
	}
	var b strings.Builder
	for s := encoding.Unresolved; s < len(names); s++ {
		n := counts[s]
		if n == 0 {
			continue
		}
		name := "?"
		if s >= 0 {
			name = names[s]
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

func parseKey(s string) ([3]int, error) {
	var k [3]int
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return k, strconv.ErrSyntax
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return k, err
		}
		k[i] = n
	}
	return k, nil
}
