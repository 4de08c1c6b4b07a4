package handler

import (
	"encoding/base64"
	"errors"
	"strconv"

	"pulsepay/internal/models"
	"pulsepay/internal/services"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"
)

type groupWallet struct {
	container *do.Injector
}

type buildTransferRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

func (gr *groupWallet) BuildTransfer(c echo.Context) error {
	ctx := c.Request().Context()

	var req buildTransferRequest
	if err := c.Bind(&req); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	amount, err := strconv.ParseUint(req.Amount, 10, 64)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(errors.New("invalid amount"), errorx.Invalid))
	}

	serviceWallet, err := do.Invoke[*services.ServiceWallet](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	txn, err := serviceWallet.BuildTransfer(ctx, req.Sender, req.Recipient, amount)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	return httpx.RestAbort(c, txn, nil)
}

func (gr *groupWallet) EncodeRelay(c echo.Context) error {
	var payload models.RelayPayload
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	serviceWallet, err := do.Invoke[*services.ServiceWallet](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	token, png, err := serviceWallet.EncodeQR(&payload)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	return httpx.RestAbort(c, map[string]interface{}{
		"token": token,
		"png":   base64.StdEncoding.EncodeToString(png),
	}, nil)
}

func (gr *groupWallet) Balance(c echo.Context) error {
	ctx := c.Request().Context()
	address := c.Param("address")

	serviceWallet, err := do.Invoke[*services.ServiceWallet](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	balance, err := serviceWallet.Balance(ctx, address)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	return httpx.RestAbort(c, balance, nil)
}
