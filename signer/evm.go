package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/uptoprotocol/payfetch/chainregistry"
	"github.com/uptoprotocol/payfetch/types"
)

// permitDeadlineWindow is how far out a freshly minted Permit is valid.
const permitDeadlineWindow = 3600 * time.Second

// nowFunc is overridden in tests.
var nowFunc = time.Now

// NonceReader is the injected external collaborator that reads the
// current ERC-2612 Permit nonce of an owner on a token contract. The
// core never dials an RPC endpoint itself.
type NonceReader interface {
	ReadNonce(ctx context.Context, chainID *big.Int, token common.Address, owner common.Address) (*big.Int, error)
}

// eip2612NoncesABI is the minimal ABI fragment for ERC-2612's
// nonces(address) view, used by callers to build a NonceReader.
const eip2612NoncesABI = `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"nonces","outputs":[{"name":"","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"}]`

// PackNoncesCall ABI-encodes a call to nonces(owner); exported so a
// host-supplied NonceReader can build the calldata the teacher's
// ReadContract helper expects without redefining the ABI fragment.
func PackNoncesCall(owner common.Address) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(eip2612NoncesABI))
	if err != nil {
		return nil, fmt.Errorf("parse nonces ABI: %w", err)
	}
	return parsed.Pack("nonces", owner)
}

// UnpackNoncesResult decodes the return value of a nonces(owner) call.
func UnpackNoncesResult(data []byte) (*big.Int, error) {
	parsed, err := abi.JSON(strings.NewReader(eip2612NoncesABI))
	if err != nil {
		return nil, fmt.Errorf("parse nonces ABI: %w", err)
	}
	out, err := parsed.Unpack("nonces", data)
	if err != nil {
		return nil, fmt.Errorf("unpack nonces result: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected nonces() return arity: %d", len(out))
	}
	nonce, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected nonces() return type: %T", out[0])
	}
	return nonce, nil
}

// permitEIP712Types is the fixed type set for an EIP-2612 Permit.
var permitEIP712Types = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Permit": {
		{Name: "owner", Type: "address"},
		{Name: "spender", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	},
}

// SignerOption configures optional NewEVMPermitSigner collaborators.
type SignerOption func(*signerConfig)

type signerConfig struct {
	onNonceRead func(time.Duration)
}

// WithNonceReadObserver registers a callback invoked with the latency
// of every on-chain ReadNonce call, regardless of outcome. Typically
// bound to a metrics histogram by the host.
func WithNonceReadObserver(fn func(time.Duration)) SignerOption {
	return func(c *signerConfig) { c.onNonceRead = fn }
}

// NewEVMPermitSigner builds a types.SignFunc from a 0x-prefixed,
// 32-byte hex private key. resolveClient supplies the on-chain read
// client for the chain a given SignatureInput names; it is resolved
// once per invocation since a single signer may serve requests against
// more than one network over its lifetime.
func NewEVMPermitSigner(privateKeyHex string, resolveClient ChainClientResolver, opts ...SignerOption) (types.SignFunc, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	account := crypto.PubkeyToAddress(privateKey.PublicKey)

	cfg := &signerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(ctx context.Context, input types.SignatureInput) (types.SignatureOutput, error) {
		chain := chainregistry.Resolve(input.Network)

		reader, err := resolveClient(input.Network)
		if err != nil {
			return types.SignatureOutput{}, fmt.Errorf("resolve chain client for %s: %w", input.Network, err)
		}

		tokenAddr := common.HexToAddress(input.Asset)
		nonceStart := time.Now()
		nonce, err := reader.ReadNonce(ctx, chain.ChainID, tokenAddr, account)
		if cfg.onNonceRead != nil {
			cfg.onNonceRead(time.Since(nonceStart))
		}
		if err != nil {
			return types.SignatureOutput{}, fmt.Errorf("read permit nonce: %w", err)
		}

		deadline := nowFunc().Unix() + int64(permitDeadlineWindow.Seconds())
		if input.MinDeadlineExclusive != nil && deadline <= *input.MinDeadlineExclusive {
			deadline = *input.MinDeadlineExclusive + 1
		}

		cap, ok := new(big.Int).SetString(input.PermitCap, 10)
		if !ok {
			return types.SignatureOutput{}, fmt.Errorf("invalid permit cap: %q", input.PermitCap)
		}

		signature, err := signPermit(privateKey, permitDomain{
			name:              input.TokenName,
			version:           input.TokenVersion,
			chainID:           chain.ChainID,
			verifyingContract: input.Asset,
		}, permitMessage{
			owner:    account,
			spender:  common.HexToAddress(input.FacilitatorSigner),
			value:    cap,
			nonce:    nonce,
			deadline: big.NewInt(deadline),
		})
		if err != nil {
			return types.SignatureOutput{}, fmt.Errorf("sign permit: %w", err)
		}

		return types.SignatureOutput{
			Signature:      signature,
			Nonce:          nonce.String(),
			Deadline:       strconv.FormatInt(deadline, 10),
			AccountAddress: account.Hex(),
		}, nil
	}, nil
}

type permitDomain struct {
	name              string
	version           string
	chainID           *big.Int
	verifyingContract string
}

type permitMessage struct {
	owner    common.Address
	spender  common.Address
	value    *big.Int
	nonce    *big.Int
	deadline *big.Int
}

// signPermit builds the EIP-712 digest for a Permit struct and signs
// it, returning a 0x-prefixed hex signature with the recovery byte
// adjusted to Ethereum's 27/28 convention.
func signPermit(privateKey *ecdsa.PrivateKey, domain permitDomain, msg permitMessage) (string, error) {
	typedData := apitypes.TypedData{
		Types:       permitEIP712Types,
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.name,
			Version:           domain.version,
			ChainId:           (*math.HexOrDecimal256)(domain.chainID),
			VerifyingContract: domain.verifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"owner":    msg.owner.Hex(),
			"spender":  msg.spender.Hex(),
			"value":    msg.value,
			"nonce":    msg.nonce,
			"deadline": msg.deadline,
		},
	}

	dataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return "", fmt.Errorf("hash permit struct: %w", err)
	}
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return "", fmt.Errorf("hash permit domain: %w", err)
	}

	digest := crypto.Keccak256(append([]byte{0x19, 0x01}, append(domainSeparator, dataHash...)...))

	signature, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return "", fmt.Errorf("sign digest: %w", err)
	}
	signature[64] += 27

	return "0x" + common.Bytes2Hex(signature), nil
}
