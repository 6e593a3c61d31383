// Package client implements a Go client for the inventory server protocol.
//
// A client holds one TLS connection, which is one server session. Requests are strictly
// request/reply; the client serializes concurrent calls. Replies carrying item records are read
// until their group separator, so large inventories spanning several reads are returned whole.
//
// Key Components:
//
//   - NewInventoryClient: Connects, completes the TLS handshake and logs in.
//
//   - IInventoryClient: Auth, GetAll, Get, Put, Mod, Del, Sync and Term, plus Do for raw requests.
//
//   - ReplyError / ErrFailure: Every FAILURE reply is returned as a *ReplyError matching
//     ErrFailure. IsBusy reports the rejection of a server without free session slots.
//
// Usage Example:
//
//	c, err := client.NewInventoryClient(ctx, common.ClientConfig{
//	  Endpoint:      "localhost:4466",
//	  Username:      "esnyder",
//	  Password:      "abcd123",
//	  TimeoutSecond: 10,
//	  TLS:           common.TLSConf{CAFile: "cert.pem"},
//	})
//	if err != nil {
//	  log.Fatalf("Login failed: %v", err)
//	}
//	defer c.Close()
//
//	id, _ := c.Put(store.Item{Name: "Sword", Damage: 12})
//	items, _ := c.GetAll()
//
// Thread Safety:
//
//	A client may be shared between goroutines, calls are executed one after another.
package client
