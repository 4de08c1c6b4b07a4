package services

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gojek/heimdall/v7/httpclient"

	initdata "github.com/telegram-mini-apps/init-data-golang"

	"pulsepay/internal/models"
)

type Bot struct {
	token string
	http  *httpclient.Client
}

func NewBot(token string) (*Bot, error) {
	client := httpclient.NewClient(
		httpclient.WithHTTPTimeout(30*time.Second),
		httpclient.WithRetryCount(2),
	)
	return &Bot{token: token, http: client}, nil
}

func (bot *Bot) ValidateInitData(dataStr string) (*models.UserFromAuth, error) {
	err := initdata.Validate(dataStr, bot.token, 0)
	if err != nil {
		return nil, err
	}

	data, err := initdata.Parse(dataStr)
	if err != nil {
		return nil, err
	}

	return &models.UserFromAuth{
		ID:        data.User.ID,
		Username:  data.User.Username,
		FirstName: data.User.FirstName,
		LastName:  data.User.LastName,
		IsPremium: data.User.IsPremium,
	}, nil
}

// FileURL builds the download URL for a path returned by getFile.
func (bot *Bot) FileURL(filePath string) string {
	return fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", bot.token, filePath)
}

func (bot *Bot) FetchFile(url string) ([]byte, error) {
	resp, err := bot.http.Get(url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch file: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
