// Package lnd wraps the LND gRPC API behind the small NodeClient interface
// the gateway needs: invoice creation and decoding, asynchronous payment
// dispatch, and the two event streams used for ledger reconciliation.
package lnd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"ln-gateway/pkg/logger"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

type Config struct {
	GRPCHost              string
	GRPCPort              string
	TLSCertPath           string // Path to LND's tls.cert
	MacaroonPath          string // Path to admin.macaroon (or custom-baked macaroon)
	Network               string // "mainnet", "testnet", "regtest"
	PaymentTimeoutSeconds int
}

// NodeClient is the Lightning node surface the gateway depends on. The
// concrete Client talks gRPC to LND; tests substitute fakes.
type NodeClient interface {
	// DecodeInvoice decodes a BOLT11 invoice string without paying it.
	DecodeInvoice(ctx context.Context, bolt11 string) (*Invoice, error)

	// CreateInvoice asks the node for a fresh invoice over the given amount.
	CreateInvoice(ctx context.Context, amountSats int64, memo string) (*Invoice, error)

	// PayInvoice starts paying a BOLT11 invoice and returns as soon as the
	// node has accepted the attempt. The outcome arrives on TrackPayments.
	PayInvoice(ctx context.Context, bolt11 string, feeLimitSats int64) error

	// TrackPayments streams terminal outcomes of outgoing payments.
	TrackPayments(ctx context.Context) (<-chan PaymentUpdate, error)

	// PaidInvoices streams incoming invoices as they settle.
	PaidInvoices(ctx context.Context) (<-chan *Invoice, error)

	// Close closes the underlying gRPC connection.
	Close() error
}

// macaroonCredential implements grpc.PerRPCCredentials.
// It attaches the hex-encoded macaroon as gRPC metadata on every RPC call,
// so LND can authenticate and authorize the request.
type macaroonCredential struct {
	macaroon string // hex-encoded serialized macaroon
}

// GetRequestMetadata is called by gRPC before each RPC. It returns the
// "macaroon" key with the hex-encoded value that LND expects.
func (m macaroonCredential) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"macaroon": m.macaroon}, nil
}

// RequireTransportSecurity returns true because macaroons are sensitive
// credentials that must only be sent over TLS-encrypted connections.
func (m macaroonCredential) RequireTransportSecurity() bool {
	return true
}

type Client struct {
	conn         *grpc.ClientConn
	lnClient     lnrpc.LightningClient
	routerClient routerrpc.RouterClient
	cfg          Config
}

func NewClient(cfg Config) (*Client, error) {
	creds, err := credentials.NewClientTLSFromFile(cfg.TLSCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("could not load tls cert from %s: %w", cfg.TLSCertPath, err)
	}

	macaroonData, err := os.ReadFile(cfg.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read macaroon file %s: %w", cfg.MacaroonPath, err)
	}
	macaroonCreds := macaroonCredential{macaroon: hex.EncodeToString(macaroonData)}

	url := cfg.GRPCHost + ":" + cfg.GRPCPort
	conn, err := grpc.NewClient(url, grpc.WithTransportCredentials(creds), grpc.WithPerRPCCredentials(macaroonCreds))
	if err != nil {
		return nil, fmt.Errorf("could not dial %s: %w", url, err)
	}

	lnClient := lnrpc.NewLightningClient(conn)

	// Validate the connection by calling GetInfo. Fails fast if LND is not
	// running, the wallet is locked, or the credentials are wrong.
	info, err := lnClient.GetInfo(context.Background(), &lnrpc.GetInfoRequest{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to LND (is it running? wallet unlocked?): %w", err)
	}

	logger.Info("LND connected",
		zap.String("alias", info.Alias),
		zap.String("pubkey", info.IdentityPubkey),
		zap.Uint32("block_height", info.BlockHeight),
		zap.Bool("synced_to_chain", info.SyncedToChain),
		zap.Bool("synced_to_graph", info.SyncedToGraph),
	)

	if !info.SyncedToChain {
		logger.Warn("LND is not synced to chain, payments may fail until sync completes")
	}

	return &Client{
		conn:         conn,
		lnClient:     lnClient,
		routerClient: routerrpc.NewRouterClient(conn),
		cfg:          cfg,
	}, nil
}

// Close closes the underlying gRPC connection to LND.
func (c *Client) Close() error {
	return c.conn.Close()
}
