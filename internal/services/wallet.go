package services

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/samber/do"

	"pulsepay/internal/chain"
	"pulsepay/internal/models"
	"pulsepay/internal/pkg/caching"
	"pulsepay/internal/qr"
	"pulsepay/internal/relay"
)

const balanceCacheTTL = 15 * time.Second

type WalletBalance struct {
	Address string `json:"address"`
	Octas   uint64 `json:"octas"`
	APT     string `json:"apt"`
}

type ServiceWallet struct {
	container *do.Injector
	chain     chain.Client
	cache     caching.Cache
}

func NewServiceWallet(container *do.Injector) (*ServiceWallet, error) {
	chainClient, err := do.Invoke[chain.Client](container)
	if err != nil {
		return nil, err
	}

	cache, err := do.Invoke[caching.Cache](container)
	if err != nil {
		return nil, err
	}

	return &ServiceWallet{
		container: container,
		chain:     chainClient,
		cache:     cache,
	}, nil
}

// BuildTransfer prepares an unsigned native transfer for the dashboard to
// hand off to the wallet for signing.
func (service *ServiceWallet) BuildTransfer(ctx context.Context, sender, recipient string, amountOctas uint64) (*models.UnsignedTransaction, error) {
	return service.chain.BuildTransfer(ctx, sender, recipient, amountOctas)
}

// EncodeQR turns a signed payload into the PNG the dashboard displays for
// the bot to scan.
func (service *ServiceWallet) EncodeQR(payload *models.RelayPayload) (string, []byte, error) {
	if err := relay.Verify(payload); err != nil {
		return "", nil, err
	}
	token, err := relay.Encode(payload)
	if err != nil {
		return "", nil, err
	}
	png, err := qr.Render(token)
	if err != nil {
		return "", nil, err
	}
	return token, png, nil
}

func (service *ServiceWallet) Balance(ctx context.Context, address string) (*WalletBalance, error) {
	return caching.UseCache(ctx, service.cache, dbKeyWalletBalance(address), balanceCacheTTL, func() (*WalletBalance, error) {
		octas, err := service.chain.GetBalance(ctx, address)
		if err != nil {
			return nil, err
		}
		return &WalletBalance{
			Address: address,
			Octas:   octas,
			APT:     relay.FormatAmount(new(big.Int).SetUint64(octas)),
		}, nil
	})
}

func dbKeyWalletBalance(address string) string {
	return fmt.Sprintf("wallet:balance:%s", address)
}
