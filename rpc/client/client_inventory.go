package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dInv/lib/store"
	"github.com/ValentinKolb/dInv/rpc/common"
	"github.com/ValentinKolb/dInv/rpc/transport"
	"github.com/ValentinKolb/dInv/rpc/transport/base"
	"github.com/ValentinKolb/dInv/rpc/transport/secure"
)

// IInventoryClient is a logged-in session with an inventory server.
// Every method returns an error matching ErrFailure if the server replied FAILURE.
type IInventoryClient interface {
	// Auth logs in. NewInventoryClient already does this if the config holds a username.
	Auth(username, password string) error
	// GetAll returns every item
	GetAll() ([]store.Item, error)
	// Get returns a single item
	Get(id int64) (store.Item, error)
	// Put inserts a new item and returns its id. The id of the item is ignored.
	Put(item store.Item) (int64, error)
	// Mod replaces the item with the id of item
	Mod(item store.Item) error
	// Del deletes the item with the given id
	Del(id int64) error
	// Sync replicates the inventory to the backup peer of the server
	Sync() error
	// Term shuts the server down. The connection is closed afterward.
	Term() error
	// Do sends a raw request and returns the raw reply (also for FAILURE replies)
	Do(raw []byte) (*common.Reply, error)
	// Close closes the connection
	Close() error
}

// NewInventoryClient connects to the server of the config and logs in if a username is set
func NewInventoryClient(ctx context.Context, config common.ClientConfig) (IInventoryClient, error) {
	connector, err := secure.NewTLSClientConnector(config.TLS, config.Socket)
	if err != nil {
		return nil, err
	}
	return NewInventoryClientWithConnector(ctx, config, connector)
}

// NewInventoryClientWithConnector connects with an arbitrary connector
func NewInventoryClientWithConnector(ctx context.Context, config common.ClientConfig, connector transport.IClientConnector) (IInventoryClient, error) {
	timeout := time.Duration(config.TimeoutSecond) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, err := connector.Connect(dialCtx, config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Endpoint, err)
	}

	c := &inventoryClient{rpcClientAdapter{
		conn:    conn,
		timeout: timeout,
		buf:     make([]byte, base.MaxRequestSize),
	}}

	if config.Username != "" {
		if err := c.Auth(config.Username, config.Password); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	Logger.Debugf("connected to %s as %q", config.Endpoint, config.Username)
	return c, nil
}

type inventoryClient struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IInventoryClient)
// --------------------------------------------------------------------------

func (c *inventoryClient) Auth(username, password string) error {
	// the first reply may also be the busy rejection of the acceptor
	_, err := c.invokeRequest(common.NewAuthRequest(username, password), false)
	return err
}

func (c *inventoryClient) GetAll() ([]store.Item, error) {
	reply, err := c.invokeRequest(common.NewGetAllRequest(), true)
	if err != nil {
		return nil, err
	}
	return common.ParseItemReply(reply.Payload)
}

func (c *inventoryClient) Get(id int64) (store.Item, error) {
	reply, err := c.invokeRequest(common.NewGetRequest(id), true)
	if err != nil {
		return store.Item{}, err
	}
	items, err := common.ParseItemReply(reply.Payload)
	if err != nil {
		return store.Item{}, err
	}
	if len(items) != 1 {
		return store.Item{}, fmt.Errorf("expected one item, got %d", len(items))
	}
	return items[0], nil
}

func (c *inventoryClient) Put(item store.Item) (int64, error) {
	reply, err := c.invokeRequest(common.NewPutRequest(item), false)
	if err != nil {
		return 0, err
	}
	return common.ParseIDReply(reply.Payload)
}

func (c *inventoryClient) Mod(item store.Item) error {
	_, err := c.invokeRequest(common.NewModRequest(item), false)
	return err
}

func (c *inventoryClient) Del(id int64) error {
	_, err := c.invokeRequest(common.NewDelRequest(id), false)
	return err
}

func (c *inventoryClient) Sync() error {
	_, err := c.invokeRequest(common.NewSyncRequest(), false)
	return err
}

func (c *inventoryClient) Term() error {
	_, err := c.invokeRequest(common.NewTermRequest(), false)
	_ = c.Close()
	return err
}

func (c *inventoryClient) Do(raw []byte) (*common.Reply, error) {
	t := common.ParseCommand(raw).CmdType
	reply, err := c.invokeRequest(raw, t == common.CmdTGet || t == common.CmdTGetAll)
	var re *ReplyError
	if errors.As(err, &re) {
		return common.NewFailureReply(re.Reason), nil
	}
	return reply, err
}

func (c *inventoryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
