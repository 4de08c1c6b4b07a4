package main

import (
	"fmt"
	"log"
	"os"

	"github.com/hiendaovinh/toolkit/pkg/env"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	tele "gopkg.in/telebot.v3"
)

func init() {
	// for development
	//nolint:errcheck
	godotenv.Load("../../.env")

	// for production
	//nolint:errcheck
	godotenv.Load("./.env")
}

func main() {
	app := &cli.App{
		Name:  "webhook",
		Usage: "manage the bot's telegram webhook registration",
		Commands: []*cli.Command{
			{
				Name:   "set",
				Usage:  "register the webhook url",
				Action: actionSet,
			},
			{
				Name:   "delete",
				Usage:  "remove the webhook registration",
				Action: actionDelete,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newBot(token string) (*tele.Bot, error) {
	return tele.NewBot(tele.Settings{
		Token:   token,
		Offline: false,
	})
}

func actionSet(c *cli.Context) error {
	vs, err := env.EnvsRequired(
		"BOT_TOKEN",
		"WEBHOOK_URL",
	)
	if err != nil {
		return err
	}

	b, err := newBot(vs["BOT_TOKEN"])
	if err != nil {
		return err
	}

	webhook := &tele.Webhook{
		Endpoint: &tele.WebhookEndpoint{PublicURL: vs["WEBHOOK_URL"]},
	}
	if err := b.SetWebhook(webhook); err != nil {
		return err
	}

	registered, err := b.Webhook()
	if err != nil {
		return err
	}
	var got string
	if registered.Endpoint != nil {
		got = registered.Endpoint.PublicURL
	}
	if got != vs["WEBHOOK_URL"] {
		return fmt.Errorf("webhook verification failed: telegram reports %q", got)
	}

	log.Println("webhook set:", vs["WEBHOOK_URL"])
	return nil
}

func actionDelete(c *cli.Context) error {
	vs, err := env.EnvsRequired(
		"BOT_TOKEN",
	)
	if err != nil {
		return err
	}

	b, err := newBot(vs["BOT_TOKEN"])
	if err != nil {
		return err
	}

	if err := b.RemoveWebhook(); err != nil {
		return err
	}

	log.Println("webhook removed")
	return nil
}
