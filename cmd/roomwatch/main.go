package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"PMarket/client/roomsync"
	"PMarket/global"
	"PMarket/logger"
	"PMarket/tools/errs"
)

func main() {
	cmd := &cobra.Command{
		Use:          "roomwatch ROOM",
		Short:        "Follow a room's messages through polls and pushes",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         run,
	}
	cmd.Flags().String("config", "", "config file (defaults to $PMARKET_CONFIG)")
	cmd.Flags().String("identity", "", "identity to authenticate as, overrides client.identity")
	cmd.Flags().Bool("no-push", false, "poll only")
	cmd.Flags().Bool("id-tiebreak", false, "order equal timestamps by message id")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := global.Load(path)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.Log.Level)
	defer logger.Sync()

	cc := cfg.Client
	if id, _ := cmd.Flags().GetString("identity"); id != "" {
		cc.Identity = id
	}
	noPush, _ := cmd.Flags().GetBool("no-push")
	tiebreak, _ := cmd.Flags().GetBool("id-tiebreak")
	if !noPush && cc.Identity == "" {
		return errs.New("an identity is required for the push channel, pass --identity or --no-push")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	var tr roomsync.Transport
	if !noPush {
		ws := roomsync.NewWSTransport(roomsync.WSConfig{
			URL:         cc.WSURL,
			Identity:    cc.Identity,
			DisplayName: cc.DisplayName,
			Token:       cc.Token,
		})
		g.Go(func() error { return ws.Run(ctx) })
		tr = ws
	}

	src := roomsync.NewHTTPSource(cc.BaseURL, cc.Token, cc.RequestTimeout)
	eng, err := roomsync.Open(ctx, roomsync.Config{
		Room:           args[0],
		PollInterval:   cc.PollInterval,
		OfferCacheSize: cc.OfferCacheSize,
		IDTieBreak:     tiebreak,
	}, src, tr)
	if err != nil {
		stop()
		_ = g.Wait()
		return err
	}
	eng.OnChange(func(msgs []roomsync.Message) { render(eng.Room(), msgs, eng.PushReady()) })

	g.Go(func() error {
		<-ctx.Done()
		eng.Close()
		return nil
	})
	err = g.Wait()
	logger.Info("roomwatch stopped", zap.String("room", eng.Room()))
	return err
}

func render(room string, msgs []roomsync.Message, push bool) {
	mode := "poll"
	if push {
		mode = "push"
	}
	fmt.Printf("== %s (%d messages, %s) ==\n", room, len(msgs), mode)
	for _, m := range msgs {
		line := fmt.Sprintf("%s  %-12s %s", m.CreatedAt.Local().Format(time.TimeOnly), m.SenderName, m.Body)
		if m.SenderName == "" {
			line = fmt.Sprintf("%s  %-12s %s", m.CreatedAt.Local().Format(time.TimeOnly), m.SenderID, m.Body)
		}
		if m.Offer != nil {
			line += fmt.Sprintf("  [offer %d %s %s]", m.Offer.Amount, m.Offer.Currency, m.Offer.Status)
		} else if m.IsOffer {
			line += "  [offer unresolved]"
		}
		fmt.Println(line)
	}
}
