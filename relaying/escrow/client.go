package escrow

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "escrow")

// settleGasLimit bounds the settlement call; settle() writes one storage
// slot and transfers, so this is generous.
const settleGasLimit = uint64(500_000)

// Client talks to the source chain over a standard JSON-RPC endpoint.
type Client struct {
	endpoint string
	rpc      *ethclient.Client
}

// NewClient dials the source-chain RPC endpoint.
func NewClient(ctx context.Context, endpoint string) (*Client, error) {
	rpcClient, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "could not dial source chain at %s", endpoint)
	}
	return &Client{endpoint: endpoint, rpc: rpcClient}, nil
}

// Endpoint returns the RPC endpoint this client was dialed with.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// BlockNumber returns the current source-chain height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.rpc.BlockNumber(ctx)
}

// RequestLogs fetches all CrossChainRequest logs emitted by the escrow
// contract from the given block onward.
func (c *Client) RequestLogs(ctx context.Context, contract common.Address, fromBlock uint64) ([]gethTypes.Log, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{contract},
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Topics:    [][]common.Hash{{RequestEventSignature}},
	}
	logs, err := c.rpc.FilterLogs(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "could not filter escrow logs")
	}
	return logs, nil
}

// Settle submits settle(nonce, result, signature) to the escrow contract,
// waits for the transaction to be mined, and returns the confirmed hash.
// A dropped or reverted transaction is an error.
func (c *Client) Settle(ctx context.Context, key *ecdsa.PrivateKey, contract common.Address, nonce uint64, result, signature []byte) (common.Hash, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)
	accountNonce, err := c.rpc.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "could not fetch account nonce")
	}
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "could not fetch gas price")
	}
	chainID, err := c.rpc.ChainID(ctx)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "could not fetch chain id")
	}
	calldata, err := PackSettleCall(nonce, result, signature)
	if err != nil {
		return common.Hash{}, err
	}
	tx := gethTypes.NewTransaction(accountNonce, contract, common.Big0, settleGasLimit, gasPrice, calldata)
	signedTx, err := gethTypes.SignTx(tx, gethTypes.LatestSignerForChainID(chainID), key)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "could not sign settlement transaction")
	}
	if err := c.rpc.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, errors.Wrap(err, "could not send settlement transaction")
	}
	log.WithFields(logrus.Fields{
		"txHash": signedTx.Hash().Hex(),
		"nonce":  nonce,
	}).Info("Settlement transaction sent")

	receipt, err := bind.WaitMined(ctx, c.rpc, signedTx)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "settlement transaction was dropped")
	}
	if receipt.Status != gethTypes.ReceiptStatusSuccessful {
		return common.Hash{}, errors.Errorf("settlement transaction %s reverted", receipt.TxHash.Hex())
	}
	log.WithFields(logrus.Fields{
		"txHash": receipt.TxHash.Hex(),
		"block":  receipt.BlockNumber,
	}).Info("Settlement confirmed")
	return receipt.TxHash, nil
}
