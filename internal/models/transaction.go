package models

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
)

const (
	// TransferFunctionID is the native APT transfer entry function.
	TransferFunctionID = "0x1::aptos_account::transfer"

	// OctasPerAPT is the fixed decimal scale of the native coin.
	OctasPerAPT = 100_000_000
)

// Uint64Str is a u64 carried as a decimal string on the wire so that values
// above the 53-bit float boundary survive the round trip exactly.
type Uint64Str uint64

func (u Uint64Str) String() string {
	return strconv.FormatUint(uint64(u), 10)
}

func (u Uint64Str) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *Uint64Str) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// tolerate bare integer literals from older encoders
		s = string(data)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid u64 %q: %w", s, err)
	}
	*u = Uint64Str(v)
	return nil
}

// ByteSeq is a binary field serialized as an explicit ordered array of byte
// values, never as an implicit string coercion.
type ByteSeq []byte

func (b ByteSeq) MarshalJSON() ([]byte, error) {
	vs := make([]uint16, len(b))
	for i, c := range b {
		vs[i] = uint16(c)
	}
	return json.Marshal(vs)
}

func (b *ByteSeq) UnmarshalJSON(data []byte) error {
	var vs []int
	if err := json.Unmarshal(data, &vs); err != nil {
		return err
	}
	out := make([]byte, len(vs))
	for i, v := range vs {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte value %d out of range at index %d", v, i)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

type ArgumentKind string

const (
	ArgAddress ArgumentKind = "address"
	ArgU64     ArgumentKind = "u64"
	ArgU128    ArgumentKind = "u128"
	ArgBytes   ArgumentKind = "bytes"
)

// Argument is one entry-function argument, decided at decode time instead of
// probing an untyped value downstream.
type Argument struct {
	Kind    ArgumentKind
	Address string
	Uint    *big.Int
	Bytes   ByteSeq
}

// Defined reports whether the argument carries a value of its kind.
func (a Argument) Defined() bool {
	switch a.Kind {
	case ArgAddress:
		return a.Address != ""
	case ArgU64, ArgU128:
		return a.Uint != nil
	case ArgBytes:
		return a.Bytes != nil
	}
	return false
}

func AddressArgument(address string) Argument {
	return Argument{Kind: ArgAddress, Address: address}
}

func U64Argument(v uint64) Argument {
	return Argument{Kind: ArgU64, Uint: new(big.Int).SetUint64(v)}
}

func U128Argument(v *big.Int) Argument {
	return Argument{Kind: ArgU128, Uint: v}
}

func BytesArgument(b []byte) Argument {
	return Argument{Kind: ArgBytes, Bytes: b}
}

type argumentWire struct {
	Type  ArgumentKind    `json:"type"`
	Value json.RawMessage `json:"value"`
}

func (a Argument) MarshalJSON() ([]byte, error) {
	var value any
	switch a.Kind {
	case ArgAddress:
		value = a.Address
	case ArgU64, ArgU128:
		if a.Uint == nil {
			return nil, fmt.Errorf("missing integer value for %s argument", a.Kind)
		}
		value = a.Uint.String()
	case ArgBytes:
		value = a.Bytes
	default:
		return nil, fmt.Errorf("unknown argument kind %q", a.Kind)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(argumentWire{Type: a.Kind, Value: raw})
}

func (a *Argument) UnmarshalJSON(data []byte) error {
	var wire argumentWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch wire.Type {
	case ArgAddress:
		var s string
		if err := json.Unmarshal(wire.Value, &s); err != nil {
			return err
		}
		*a = Argument{Kind: ArgAddress, Address: s}
	case ArgU64, ArgU128:
		var s string
		if err := json.Unmarshal(wire.Value, &s); err != nil {
			return err
		}
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return fmt.Errorf("invalid %s value %q", wire.Type, s)
		}
		*a = Argument{Kind: wire.Type, Uint: v}
	case ArgBytes:
		var b ByteSeq
		if err := json.Unmarshal(wire.Value, &b); err != nil {
			return err
		}
		*a = Argument{Kind: ArgBytes, Bytes: b}
	default:
		return fmt.Errorf("unknown argument kind %q", wire.Type)
	}
	return nil
}

// TransactionPayload is the entry function call carried by a transaction.
type TransactionPayload struct {
	Function  string     `json:"function"`
	Arguments []Argument `json:"arguments"`
}

// UnsignedTransaction mirrors the raw transaction fields covered by the
// signature. Sequence number and chain id ride along because the signed
// transaction cannot be reconstructed for submission without them.
type UnsignedTransaction struct {
	Sender              string              `json:"sender"`
	SequenceNumber      Uint64Str           `json:"sequenceNumber"`
	Payload             *TransactionPayload `json:"payload"`
	MaxGasAmount        Uint64Str           `json:"maxGasAmount"`
	GasUnitPrice        Uint64Str           `json:"gasUnitPrice"`
	ExpirationTimestamp Uint64Str           `json:"expirationTimestamp"`
	ChainID             uint8               `json:"chainId"`
}

// SchemeEd25519 is the single-signer scheme the submitter knows how to
// reconstruct. Anything else is carried opaquely in Authenticator.Raw.
const SchemeEd25519 = "ed25519"

type Authenticator struct {
	Scheme    string          `json:"scheme"`
	PublicKey ByteSeq         `json:"publicKey,omitempty"`
	Signature ByteSeq         `json:"signature,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// RelayPayload is the unit of transport: a transaction and its authenticator.
// Neither half is meaningful alone.
type RelayPayload struct {
	Transaction   *UnsignedTransaction `json:"transaction"`
	Authenticator *Authenticator       `json:"authenticator"`
}

type SummaryKind string

const (
	SummaryTransfer SummaryKind = "transfer"
	SummaryGeneric  SummaryKind = "generic"
)

// TransactionSummary is the human-facing view of a decoded payload. It is
// derived on demand and never feeds back into what gets submitted.
type TransactionSummary struct {
	Kind         SummaryKind `json:"kind"`
	Sender       string      `json:"sender"`
	Recipient    string      `json:"recipient,omitempty"`
	Amount       string      `json:"amount,omitempty"`
	AmountOctas  *big.Int    `json:"-"`
	FunctionID   string      `json:"function_id"`
	GasUnitPrice string      `json:"gas_unit_price"`
	MaxGasAmount string      `json:"max_gas_amount"`
	Args         []Argument  `json:"args,omitempty"`
}
