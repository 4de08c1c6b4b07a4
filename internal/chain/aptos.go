package chain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/api"
	"github.com/aptos-labs/aptos-go-sdk/bcs"
	"github.com/aptos-labs/aptos-go-sdk/crypto"

	"pulsepay/internal/models"
)

// AptosClient implements Client against an Aptos fullnode.
type AptosClient struct {
	client *aptos.Client
}

var _ Client = (*AptosClient)(nil)

func NewAptosClient(network string) (*AptosClient, error) {
	cfg := aptos.TestnetConfig
	switch strings.ToLower(network) {
	case "mainnet":
		cfg = aptos.MainnetConfig
	case "devnet":
		cfg = aptos.DevnetConfig
	case "localnet":
		cfg = aptos.LocalnetConfig
	}

	client, err := aptos.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("aptos client: %w", err)
	}

	return &AptosClient{client: client}, nil
}

func parseAddress(address string) (aptos.AccountAddress, error) {
	addr := aptos.AccountAddress{}
	if err := addr.ParseStringRelaxed(address); err != nil {
		return aptos.AccountAddress{}, fmt.Errorf("invalid address %q: %w", address, err)
	}
	return addr, nil
}

func (c *AptosClient) BuildTransfer(ctx context.Context, sender, recipient string, amountOctas uint64) (*models.UnsignedTransaction, error) {
	senderAddr, err := parseAddress(sender)
	if err != nil {
		return nil, err
	}
	recipientAddr, err := parseAddress(recipient)
	if err != nil {
		return nil, err
	}

	amountBytes, err := bcs.SerializeU64(amountOctas)
	if err != nil {
		return nil, err
	}

	entry := &aptos.EntryFunction{
		Module:   aptos.ModuleId{Address: aptos.AccountOne, Name: "aptos_account"},
		Function: "transfer",
		ArgTypes: []aptos.TypeTag{},
		Args:     [][]byte{recipientAddr[:], amountBytes},
	}

	rawTxn, err := c.client.BuildTransaction(senderAddr, aptos.TransactionPayload{Payload: entry})
	if err != nil {
		return nil, wrapNetworkErr(err)
	}

	return &models.UnsignedTransaction{
		Sender:         senderAddr.StringLong(),
		SequenceNumber: models.Uint64Str(rawTxn.SequenceNumber),
		Payload: &models.TransactionPayload{
			Function: models.TransferFunctionID,
			Arguments: []models.Argument{
				models.AddressArgument(recipientAddr.StringLong()),
				models.U64Argument(amountOctas),
			},
		},
		MaxGasAmount:        models.Uint64Str(rawTxn.MaxGasAmount),
		GasUnitPrice:        models.Uint64Str(rawTxn.GasUnitPrice),
		ExpirationTimestamp: models.Uint64Str(rawTxn.ExpirationTimestampSeconds),
		ChainID:             rawTxn.ChainId,
	}, nil
}

func (c *AptosClient) Submit(ctx context.Context, payload *models.RelayPayload) (*SubmitResult, error) {
	if payload == nil || payload.Transaction == nil || payload.Authenticator == nil {
		return nil, fmt.Errorf("%w: incomplete payload", ErrSubmissionRejected)
	}

	rawTxn, err := rawTransaction(payload.Transaction)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmissionRejected, err)
	}
	auth, err := accountAuthenticator(payload.Authenticator)
	if err != nil {
		return nil, err
	}

	signedTxn, err := rawTxn.SignedTransactionWithAuthenticator(auth)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmissionRejected, err)
	}

	// The broadcast itself runs under the caller's deadline. Once the request
	// is in flight, expiry means the node may have accepted it, which is the
	// unknown outcome, never "not broadcast".
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBroadcastTimeout, err)
	}

	type submitResult struct {
		resp *api.SubmitTransactionResponse
		err  error
	}
	done := make(chan submitResult, 1)
	go func() {
		resp, err := c.client.SubmitTransaction(signedTxn)
		done <- submitResult{resp, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrBroadcastTimeout, ctx.Err())
	case res := <-done:
		if res.err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrBroadcastTimeout, res.err)
			}
			if isNetworkErr(res.err) {
				return nil, fmt.Errorf("%w: %v", ErrNetworkUnavailable, res.err)
			}
			return nil, fmt.Errorf("%w: %v", ErrSubmissionRejected, res.err)
		}
		return &SubmitResult{Hash: res.resp.Hash}, nil
	}
}

func (c *AptosClient) AwaitFinality(ctx context.Context, hash string) (*FinalityResult, error) {
	type waitResult struct {
		txn *api.UserTransaction
		err error
	}
	done := make(chan waitResult, 1)
	go func() {
		txn, err := c.client.WaitForTransaction(hash)
		done <- waitResult{txn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrFinalityTimeout, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, wrapNetworkErr(res.err)
		}
		return &FinalityResult{
			Hash:     res.txn.Hash,
			Success:  res.txn.Success,
			VMStatus: res.txn.VmStatus,
		}, nil
	}
}

func (c *AptosClient) ResolveOutcome(ctx context.Context, hash string) (*FinalityResult, error) {
	txn, err := c.client.TransactionByHash(hash)
	if err != nil {
		// not yet visible; still unknown
		return nil, nil
	}
	if txn.Type == api.TransactionVariantPending {
		return nil, nil
	}
	user, err := txn.UserTransaction()
	if err != nil {
		return nil, nil
	}
	return &FinalityResult{
		Hash:     user.Hash,
		Success:  user.Success,
		VMStatus: user.VmStatus,
	}, nil
}

func (c *AptosClient) GetBalance(ctx context.Context, address string) (uint64, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return 0, err
	}
	balance, err := c.client.AccountAPTBalance(addr)
	if err != nil {
		return 0, wrapNetworkErr(err)
	}
	return balance, nil
}

// rawTransaction rebuilds the exact raw transaction the wallet signed. Every
// field comes from the relayed payload; nothing is re-derived from the
// network, otherwise the signature would no longer match.
func rawTransaction(txn *models.UnsignedTransaction) (*aptos.RawTransaction, error) {
	sender, err := parseAddress(txn.Sender)
	if err != nil {
		return nil, err
	}
	if txn.Payload == nil {
		return nil, fmt.Errorf("missing transaction payload")
	}
	entry, err := entryFunction(txn.Payload)
	if err != nil {
		return nil, err
	}

	return &aptos.RawTransaction{
		Sender:                     sender,
		SequenceNumber:             uint64(txn.SequenceNumber),
		Payload:                    aptos.TransactionPayload{Payload: entry},
		MaxGasAmount:               uint64(txn.MaxGasAmount),
		GasUnitPrice:               uint64(txn.GasUnitPrice),
		ExpirationTimestampSeconds: uint64(txn.ExpirationTimestamp),
		ChainId:                    txn.ChainID,
	}, nil
}

func entryFunction(p *models.TransactionPayload) (*aptos.EntryFunction, error) {
	parts := strings.Split(p.Function, "::")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid function id %q", p.Function)
	}
	moduleAddr, err := parseAddress(parts[0])
	if err != nil {
		return nil, err
	}

	args := make([][]byte, 0, len(p.Arguments))
	for i, arg := range p.Arguments {
		b, err := bcsArgument(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args = append(args, b)
	}

	return &aptos.EntryFunction{
		Module:   aptos.ModuleId{Address: moduleAddr, Name: parts[1]},
		Function: parts[2],
		ArgTypes: []aptos.TypeTag{},
		Args:     args,
	}, nil
}

func bcsArgument(arg models.Argument) ([]byte, error) {
	ser := &bcs.Serializer{}
	switch arg.Kind {
	case models.ArgAddress:
		addr, err := parseAddress(arg.Address)
		if err != nil {
			return nil, err
		}
		return addr[:], nil
	case models.ArgU64:
		if arg.Uint == nil || !arg.Uint.IsUint64() {
			return nil, fmt.Errorf("invalid u64 argument")
		}
		ser.U64(arg.Uint.Uint64())
	case models.ArgU128:
		if arg.Uint == nil {
			return nil, fmt.Errorf("invalid u128 argument")
		}
		ser.U128(*arg.Uint)
	case models.ArgBytes:
		ser.WriteBytes(arg.Bytes)
	default:
		return nil, fmt.Errorf("unsupported argument kind %q", arg.Kind)
	}
	return ser.ToBytes(), ser.Error()
}

func accountAuthenticator(auth *models.Authenticator) (*crypto.AccountAuthenticator, error) {
	switch auth.Scheme {
	case models.SchemeEd25519:
		pub := &crypto.Ed25519PublicKey{}
		if err := pub.FromBytes(auth.PublicKey); err != nil {
			return nil, fmt.Errorf("%w: bad public key: %v", ErrSubmissionRejected, err)
		}
		sig := &crypto.Ed25519Signature{}
		if err := sig.FromBytes(auth.Signature); err != nil {
			return nil, fmt.Errorf("%w: bad signature: %v", ErrSubmissionRejected, err)
		}
		return &crypto.AccountAuthenticator{
			Variant: crypto.AccountAuthenticatorEd25519,
			Auth:    &crypto.Ed25519Authenticator{PubKey: pub, Sig: sig},
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported authenticator scheme %q", ErrSubmissionRejected, auth.Scheme)
	}
}

func wrapNetworkErr(err error) error {
	if isNetworkErr(err) {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrSubmissionRejected, err)
}

func isNetworkErr(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
