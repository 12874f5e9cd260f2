package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/lumberjack/internal/eventbus"
	"github.com/annel0/lumberjack/internal/game"
)

const defaultServerAddr = "http://localhost:8088"

func main() {
	var (
		serverAddr = flag.String("server", defaultServerAddr, "REST API address")
		command    = flag.String("cmd", "board", "Command: board, history, tail")
		natsURL    = flag.String("nats", "nats://127.0.0.1:4222", "NATS URL for tail")
		stream     = flag.String("stream", "LUMBERJACK", "JetStream stream for tail")
		subject    = flag.String("subject", "lumberjack.events", "JetStream subject prefix for tail")
		types      = flag.String("types", "", "Event types filter (comma-separated)")
		all        = flag.Bool("all", false, "tail: replay the whole stream, not only new events")
	)
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	switch *command {
	case "board":
		if err := showBoard(client, *serverAddr); err != nil {
			log.Fatalf("❌ Board failed: %v", err)
		}
	case "history":
		if err := showHistory(client, *serverAddr); err != nil {
			log.Fatalf("❌ History failed: %v", err)
		}
	case "tail":
		cfg := eventbus.JetStreamConfig{URL: *natsURL, Stream: *stream, Subject: *subject, DeliverAll: *all}
		if err := tailEvents(cfg, parseStringList(*types)); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: board, history, tail")
		os.Exit(1)
	}
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func getJSON(client *http.Client, url string, out interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if !r.Success {
		return fmt.Errorf("%s: %s", resp.Status, r.Message)
	}
	return json.Unmarshal(r.Data, out)
}

func showBoard(client *http.Client, server string) error {
	var data struct {
		Board   game.Board `json:"board"`
		Version uint64     `json:"version"`
	}
	if err := getJSON(client, server+"/api/board", &data); err != nil {
		return err
	}
	fmt.Printf("🌲 Board v%d  wood=%d stone=%d actions=%d\n\n",
		data.Version, data.Board.Wood, data.Board.Stone, data.Board.ActionID)
	fmt.Print(renderBoard(&data.Board))
	return nil
}

func showHistory(client *http.Client, server string) error {
	var data struct {
		Actions []game.GameAction `json:"actions"`
	}
	if err := getJSON(client, server+"/api/board/history", &data); err != nil {
		return err
	}
	if len(data.Actions) == 0 {
		fmt.Println("📭 History is empty")
		return nil
	}
	for _, a := range data.Actions {
		fmt.Println(formatAction(a))
	}
	return nil
}

// renderBoard рисует поле: строки - y, столбцы - x.
// T - дерево, . - пусто, S<lvl> - лесопилка, M<lvl> - шахта.
func renderBoard(b *game.Board) string {
	var sb strings.Builder
	sb.WriteString("    ")
	for x := 0; x < game.BoardSizeX; x++ {
		fmt.Fprintf(&sb, "%-4d", x)
	}
	sb.WriteString("\n")

	for y := 0; y < game.BoardSizeY; y++ {
		fmt.Fprintf(&sb, "%-4d", y)
		for x := 0; x < game.BoardSizeX; x++ {
			sb.WriteString(tileSymbol(b.Tiles[x][y]))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func tileSymbol(t game.Tile) string {
	switch t.BuildingType {
	case game.BuildingTree:
		return "T   "
	case game.BuildingEmpty:
		return ".   "
	case game.BuildingSawmill:
		return fmt.Sprintf("S%-3d", t.BuildingLevel)
	case game.BuildingMine:
		return fmt.Sprintf("M%-3d", t.BuildingLevel)
	default:
		return "?   "
	}
}

func formatAction(a game.GameAction) string {
	return fmt.Sprintf("#%-6d %-8s (%d,%d) → %-7s by %s…",
		a.ActionID, a.ActionType, a.X, a.Y, a.Tile.BuildingType, a.Player.String()[:8])
}

// tailEvents выводит события из JetStream, пока не придёт сигнал.
// Повторы одного action_id (например, после переподключения) печатаются один раз.
func tailEvents(cfg eventbus.JetStreamConfig, types []string) error {
	bus, err := eventbus.NewJetStreamBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("🎬 Tailing %s on %s\n", cfg.Subject, cfg.URL)
	seen := newActionDeduper(1024)
	printed := make(chan string, 64)

	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: types}, func(_ context.Context, ev *eventbus.Envelope) {
		line, ok := describeEvent(ev, seen)
		if !ok {
			return
		}
		select {
		case printed <- line:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\n👋 Stopped")
			return nil
		case line := <-printed:
			fmt.Println(line)
		}
	}
}

func describeEvent(ev *eventbus.Envelope, seen *actionDeduper) (string, bool) {
	ts := ev.Timestamp.Local().Format("15:04:05")
	if ev.EventType == eventbus.EventPlayerInit {
		var p eventbus.PlayerInitEvent
		if err := ev.Decode(&p); err != nil {
			return fmt.Sprintf("%s ⚠️  %v", ts, err), true
		}
		return fmt.Sprintf("%s 🧑‍🌾 player %q joined (%s)", ts, p.Name, p.Authority), true
	}

	var a eventbus.ActionEvent
	if err := ev.Decode(&a); err != nil {
		return fmt.Sprintf("%s ⚠️  %v", ts, err), true
	}
	if !seen.add(a.Action.ActionID) {
		return "", false
	}
	return fmt.Sprintf("%s %s  wood=%d stone=%d energy=%d", ts, formatAction(a.Action), a.Wood, a.Stone, a.EnergyLeft), true
}

// actionDeduper помнит последние n action_id.
type actionDeduper struct {
	ids   map[uint64]struct{}
	order []uint64
	limit int
}

func newActionDeduper(limit int) *actionDeduper {
	return &actionDeduper{ids: make(map[uint64]struct{}, limit), limit: limit}
}

func (d *actionDeduper) add(id uint64) bool {
	if _, ok := d.ids[id]; ok {
		return false
	}
	if len(d.order) >= d.limit {
		delete(d.ids, d.order[0])
		d.order = d.order[1:]
	}
	d.ids[id] = struct{}{}
	d.order = append(d.order, id)
	return true
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
