package erp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kolo/xmlrpc"
	"go.uber.org/zap"
)

// Config holds connection settings for the XML-RPC endpoint.
type Config struct {
	URL      string
	Database string
	Username string
	Password string

	// Timeout bounds the wait for response headers. Zero means none.
	Timeout time.Duration

	// RequestsPerSecond paces outgoing calls. Zero disables pacing.
	RequestsPerSecond float64
}

// XMLRPCClient talks to the ERP's /xmlrpc/2 endpoints. It authenticates once
// and reuses the uid for every object call.
type XMLRPCClient struct {
	objectURL string
	db        string
	uid       int64
	password  string
	transport http.RoundTripper
	log       *zap.Logger
}

var _ Client = (*XMLRPCClient)(nil)

// Dial authenticates against /xmlrpc/2/common and returns a ready client.
func Dial(ctx context.Context, cfg Config, log *zap.Logger) (*XMLRPCClient, error) {
	if cfg.URL == "" || cfg.Database == "" || cfg.Username == "" {
		return nil, errors.New("erp: url, database and username are required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ResponseHeaderTimeout = cfg.Timeout
	transport := newTransport(base, cfg.RequestsPerSecond)

	root := strings.TrimRight(cfg.URL, "/")
	common, err := xmlrpc.NewClient(root+"/xmlrpc/2/common", transport)
	if err != nil {
		return nil, fmt.Errorf("erp: failed to create common client: %w", err)
	}
	defer common.Close()

	var reply interface{}
	args := []interface{}{cfg.Database, cfg.Username, cfg.Password, map[string]interface{}{}}
	if err := common.Call("authenticate", args, &reply); err != nil {
		return nil, fmt.Errorf("erp: authenticate: %w", err)
	}
	uid, ok := AsInt64(reply)
	if !ok || uid == 0 {
		return nil, fmt.Errorf("erp: authentication rejected for user %q on %q", cfg.Username, cfg.Database)
	}

	log.Info("authenticated with ERP",
		zap.String("url", root),
		zap.String("database", cfg.Database),
		zap.Int64("uid", uid),
	)

	return &XMLRPCClient{
		objectURL: root + "/xmlrpc/2/object",
		db:        cfg.Database,
		uid:       uid,
		password:  cfg.Password,
		transport: transport,
		log:       log,
	}, nil
}

// execute issues one execute_kw call. A fresh RPC client is used per call so
// concurrent callers never share codec state.
func (c *XMLRPCClient) execute(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rpc, err := xmlrpc.NewClient(c.objectURL, c.transport)
	if err != nil {
		return nil, fmt.Errorf("erp: failed to create object client: %w", err)
	}
	defer rpc.Close()

	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	params := []interface{}{c.db, c.uid, c.password, model, method, args, kwargs}

	var reply interface{}
	start := time.Now()
	if err := rpc.Call("execute_kw", params, &reply); err != nil {
		return nil, fmt.Errorf("erp: %s.%s: %w", model, method, err)
	}
	c.log.Debug("erp call",
		zap.String("model", model),
		zap.String("method", method),
		zap.Duration("elapsed", time.Since(start)),
	)
	return reply, nil
}

func pageKwargs(page Page) map[string]interface{} {
	kw := map[string]interface{}{}
	if page.Limit > 0 {
		kw["limit"] = page.Limit
	}
	if page.Offset > 0 {
		kw["offset"] = page.Offset
	}
	return kw
}

func int64Args(ids []int64) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// SearchRead implements Client.
func (c *XMLRPCClient) SearchRead(ctx context.Context, model string, domain Domain, fields []string, page Page) ([]Values, error) {
	kw := pageKwargs(page)
	kw["fields"] = fields
	reply, err := c.execute(ctx, model, "search_read", []interface{}{domain.Encode()}, kw)
	if err != nil {
		return nil, err
	}
	return toRows(reply)
}

// Search implements Client.
func (c *XMLRPCClient) Search(ctx context.Context, model string, domain Domain, page Page) ([]int64, error) {
	reply, err := c.execute(ctx, model, "search", []interface{}{domain.Encode()}, pageKwargs(page))
	if err != nil {
		return nil, err
	}
	return toIDs(reply)
}

// Read implements Client.
func (c *XMLRPCClient) Read(ctx context.Context, model string, ids []int64, fields []string) ([]Values, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	reply, err := c.execute(ctx, model, "read", []interface{}{int64Args(ids)}, map[string]interface{}{"fields": fields})
	if err != nil {
		return nil, err
	}
	return toRows(reply)
}

// Create implements Client. Records are sent as one list-create call.
func (c *XMLRPCClient) Create(ctx context.Context, model string, records []Values) ([]int64, error) {
	if len(records) == 0 {
		return nil, nil
	}
	list := make([]interface{}, len(records))
	for i, r := range records {
		list[i] = map[string]interface{}(r)
	}
	reply, err := c.execute(ctx, model, "create", []interface{}{list}, nil)
	if err != nil {
		return nil, err
	}
	if id, ok := AsInt64(reply); ok && !isList(reply) {
		return []int64{id}, nil
	}
	return toIDs(reply)
}

// Write implements Client.
func (c *XMLRPCClient) Write(ctx context.Context, model string, ids []int64, values Values) (bool, error) {
	reply, err := c.execute(ctx, model, "write", []interface{}{int64Args(ids), map[string]interface{}(values)}, nil)
	if err != nil {
		return false, err
	}
	ok, _ := reply.(bool)
	return ok, nil
}

// Unlink implements Client.
func (c *XMLRPCClient) Unlink(ctx context.Context, model string, ids []int64) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	reply, err := c.execute(ctx, model, "unlink", []interface{}{int64Args(ids)}, nil)
	if err != nil {
		return false, err
	}
	ok, _ := reply.(bool)
	return ok, nil
}

// SearchCount implements Client.
func (c *XMLRPCClient) SearchCount(ctx context.Context, model string, domain Domain) (int, error) {
	reply, err := c.execute(ctx, model, "search_count", []interface{}{domain.Encode()}, nil)
	if err != nil {
		return 0, err
	}
	n, ok := AsInt64(reply)
	if !ok {
		return 0, fmt.Errorf("erp: unexpected search_count reply %T", reply)
	}
	return int(n), nil
}

// =============================================================================
// REPLY DECODING
// =============================================================================

func isList(v interface{}) bool {
	_, ok := v.([]interface{})
	return ok
}

func toIDs(reply interface{}) ([]int64, error) {
	list, ok := reply.([]interface{})
	if !ok {
		if reply == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("erp: expected id list, got %T", reply)
	}
	ids := make([]int64, 0, len(list))
	for _, v := range list {
		id, ok := AsInt64(v)
		if !ok {
			return nil, fmt.Errorf("erp: non-numeric id %v", v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func toRows(reply interface{}) ([]Values, error) {
	list, ok := reply.([]interface{})
	if !ok {
		if reply == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("erp: expected record list, got %T", reply)
	}
	rows := make([]Values, 0, len(list))
	for _, v := range list {
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("erp: expected record, got %T", v)
		}
		rows = append(rows, Values(m))
	}
	return rows, nil
}
