package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"questsync.dev/internal/client"
	"questsync.dev/internal/platform/config"
	"questsync.dev/internal/quest"
)

// happyPath is the full quest in order, one action per collected item.
var happyPath = []string{
	quest.ActionTalkOcto1,
	quest.ActionTalkCatGuy,
	quest.ActionGetHair,
	quest.ActionTalkOcto2,
	quest.ActionCollectVine, quest.ActionCollectVine, quest.ActionCollectVine,
	quest.ActionCollectBerry, quest.ActionCollectBerry, quest.ActionCollectBerry,
	quest.ActionCollectKimk, quest.ActionCollectKimk, quest.ActionCollectKimk,
	quest.ActionTalkOcto3,
	quest.ActionCalis,
	quest.ActionTalkOcto4,
}

func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/quest/ws", "ws url")
		player = flag.String("player", "bot", "player id")
		delay  = flag.Duration("delay", 200*time.Millisecond, "pause between actions")
		reset  = flag.Bool("reset", false, "reset the quest before playing")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	var env config.ClientEnv
	if err := config.ParseEnv(&env); err != nil {
		logger.Fatalf("%v", err)
	}
	*url = config.Pick(env.URL, *url)
	*player = config.Pick(env.PlayerID, *player)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Rules only shape the progress text; the server stays authoritative.
	rules := quest.DefaultRules()
	mirror := client.NewMirror()
	mirror.OnStepChange(func(old, next quest.Step) {
		logger.Printf("step %s -> %s", old, next)
	})
	mirror.OnUpdate(func(st quest.State) {
		logger.Printf("task: %s", quest.NextTask(st, rules))
	})
	mirror.OnComplete(func() {
		logger.Printf("quest complete")
	})

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	conn, err := client.Dial(dialCtx, client.Options{URL: *url, PlayerID: *player, Logger: logger}, mirror)
	dialCancel()
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	st, seq, err := wait(ctx, mirror, 0)
	if err != nil {
		logger.Fatalf("initial state: %v", err)
	}
	if *reset {
		if err := conn.Reset(); err != nil {
			logger.Fatalf("reset: %v", err)
		}
		if st, seq, err = wait(ctx, mirror, seq); err != nil {
			logger.Fatalf("reset: %v", err)
		}
	}
	if st.Complete() {
		logger.Printf("already complete; pass -reset to replay")
		return
	}

	for _, a := range happyPath {
		select {
		case <-ctx.Done():
			return
		case <-time.After(*delay):
		}
		if err := conn.SendAction(a); err != nil {
			logger.Fatalf("send %s: %v", a, err)
		}
		if st, seq, err = wait(ctx, mirror, seq); err != nil {
			logger.Fatalf("await %s: %v", a, err)
		}
	}
	if !st.Complete() {
		logger.Printf("finished at step=%s", st.CurrentStep)
		os.Exit(1)
	}
}

func wait(ctx context.Context, m *client.Mirror, seq uint64) (quest.State, uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.Wait(ctx, seq)
}
