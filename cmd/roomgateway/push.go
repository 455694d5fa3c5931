package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"PMarket/global"
	"PMarket/service/chat"
	"PMarket/service/kafka"
	"PMarket/service/natsx"
	"PMarket/tools/errs"
)

func pushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push ROOM EVENT [JSON]",
		Short: "Send a server push to a room over http, nats or kafka",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			req := chat.PushRequest{Room: args[0], Event: args[1], Payload: json.RawMessage("{}")}
			if len(args) == 3 {
				if !json.Valid([]byte(args[2])) {
					return errs.ErrBadPayload.WrapMsg("payload is not json")
				}
				req.Payload = json.RawMessage(args[2])
			}
			if _, err := chat.ParseRoom(req.Room); err != nil {
				return err
			}

			via, _ := cmd.Flags().GetString("via")
			switch via {
			case "http":
				url, _ := cmd.Flags().GetString("url")
				token, _ := cmd.Flags().GetString("token")
				return pushHTTP(cmd.Context(), cfg, url, token, req)
			case "nats":
				return pushNATS(cmd.Context(), cfg, req)
			case "kafka":
				return pushKafka(cfg, req)
			}
			return errs.New("unknown transport", "via", via)
		},
	}
	cmd.Flags().String("via", "http", "http, nats or kafka")
	cmd.Flags().String("url", "", "gateway base url for --via http, defaults to client.base_url")
	cmd.Flags().String("token", "", "internal token for --via http, defaults to the first http.internal_tokens")
	return cmd
}

type pushResult struct {
	Delivered int `json:"delivered"`
}

func pushHTTP(ctx context.Context, cfg global.AppConfig, url, token string, req chat.PushRequest) error {
	if url == "" {
		url = cfg.Client.BaseURL
	}
	if token == "" && len(cfg.HTTP.InternalTokens) > 0 {
		token = cfg.HTTP.InternalTokens[0]
	}
	var out pushResult
	resp, err := resty.New().
		SetBaseURL(url).
		SetTimeout(cfg.Client.RequestTimeout).
		SetAuthToken(token).
		R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&errs.CodeError{}).
		Post("/internal/push")
	if err != nil {
		return errs.WrapMsg(err, "push", "url", url)
	}
	if resp.IsError() {
		if ce, ok := resp.Error().(*errs.CodeError); ok && ce.Code != 0 {
			return ce.Wrap()
		}
		return errs.New("push rejected", "status", resp.Status())
	}
	fmt.Printf("delivered to %d connections\n", out.Delivered)
	return nil
}

func pushNATS(ctx context.Context, cfg global.AppConfig, req chat.PushRequest) error {
	c, err := natsx.NewClient(cfg.NATS)
	if err != nil {
		return err
	}
	defer c.Close()
	data, err := json.Marshal(req)
	if err != nil {
		return errs.Wrap(err)
	}
	subject := natsx.PushSubject(c.Config().Subject, req.Room)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Publish(pctx, subject, data, nil); err != nil {
		return err
	}
	fmt.Printf("published to %s\n", subject)
	return nil
}

func pushKafka(cfg global.AppConfig, req chat.PushRequest) error {
	p, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return err
	}
	defer p.Close()
	if err := p.SendPush(cfg.Kafka.Topic, req); err != nil {
		return err
	}
	fmt.Printf("sent to topic %s\n", cfg.Kafka.Topic)
	return nil
}
